package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"

	"github.com/onechat/internal/watch"
)

// EnvPrefix is stripped from environment variables overlaid on the file,
// e.g. ONECHAT_MODEL overrides the model key.
const EnvPrefix = "ONECHAT_"

// ErrParse covers a malformed or invalid configuration file. Recoverable:
// the last good snapshot keeps serving.
var ErrParse = errors.New("config: parse failed")

// reservedKeys are consumed by the client itself and never forwarded to the
// remote call.
var reservedKeys = map[string]bool{
	"model":         true,
	"system_prompt": true,
}

// operationalKeys are process-level CLI settings (credentials, paths, log
// tuning) that happen to share the ONECHAT_ prefix. The env overlay skips
// them so they never enter the snapshot or the outbound parameter set.
var operationalKeys = map[string]bool{
	"api_key":   true,
	"base_url":  true,
	"config":    true,
	"template":  true,
	"log_level": true,
	"log_file":  true,
}

// Snapshot is an immutable view of one successfully loaded configuration.
// A reload builds a new Snapshot and swaps it in whole; existing snapshots
// are never mutated.
type Snapshot struct {
	k *koanf.Koanf
}

func (s *Snapshot) Model() string        { return s.k.String("model") }
func (s *Snapshot) SystemPrompt() string { return s.k.String("system_prompt") }

func (s *Snapshot) Temperature() (float64, bool) {
	if !s.k.Exists("temperature") {
		return 0, false
	}
	return s.k.Float64("temperature"), true
}

func (s *Snapshot) MaxTokens() (int, bool) {
	if !s.k.Exists("max_tokens") {
		return 0, false
	}
	return s.k.Int("max_tokens"), true
}

// All returns the full flattened key space. Used as the template render
// context so template authors can reference any config field.
func (s *Snapshot) All() map[string]interface{} { return s.k.All() }

// Extra returns every key except the reserved ones, forwarded verbatim as
// request parameters.
func (s *Snapshot) Extra() map[string]interface{} {
	out := make(map[string]interface{})
	for key, value := range s.k.All() {
		if reservedKeys[key] {
			continue
		}
		out[key] = value
	}
	return out
}

// ReloadResult reports one CheckAndReload outcome. On Reloaded both the old
// and new snapshots are carried so the caller can diff them for the user.
type ReloadResult struct {
	Status watch.Status
	Old    *Snapshot
	New    *Snapshot
	Err    error
}

// Store owns the current configuration snapshot and its reload descriptor.
// Reload checks happen only at turn boundaries, so no locking is needed.
type Store struct {
	desc *watch.Descriptor
	snap *Snapshot
	log  zerolog.Logger
}

// NewStore loads the initial snapshot. A broken file at startup is fatal
// because there is no last good snapshot to fall back to.
func NewStore(path string, logger zerolog.Logger) (*Store, error) {
	s := &Store{desc: watch.NewDescriptor(path), log: logger}

	_, mtime, err := s.desc.Check()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	snap, err := Load(path)
	if err != nil {
		return nil, err
	}
	s.snap = snap
	s.desc.Commit(mtime)
	return s, nil
}

// Current returns the latest successfully loaded snapshot.
func (s *Store) Current() *Snapshot { return s.snap }

// CheckAndReload compares the backing file's modification time against the
// descriptor. Unchanged files are not re-parsed. A parse or validation
// failure keeps both the prior snapshot and the descriptor untouched, so the
// next check retries and the conversation is never interrupted by a bad
// config edit.
func (s *Store) CheckAndReload() ReloadResult {
	stale, mtime, err := s.desc.Check()
	if err != nil {
		return ReloadResult{Status: watch.Failed, Err: fmt.Errorf("%w: %v", ErrParse, err)}
	}
	if !stale {
		return ReloadResult{Status: watch.Unchanged}
	}

	snap, err := Load(s.desc.Path())
	if err != nil {
		s.log.Warn().Err(err).Str("path", s.desc.Path()).
			Msg("Config reload failed, keeping last good snapshot")
		return ReloadResult{Status: watch.Failed, Err: err}
	}

	old := s.snap
	s.snap = snap
	s.desc.Commit(mtime)
	s.log.Info().Str("path", s.desc.Path()).Str("model", snap.Model()).
		Msg("Config reloaded")
	return ReloadResult{Status: watch.Reloaded, Old: old, New: snap}
}

// Load parses and validates one configuration file into a snapshot.
func Load(path string) (*Snapshot, error) {
	k := koanf.New(".")

	// Defaults sit under the file so templates can always reference
	// system_prompt even when the file omits it.
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"system_prompt": "",
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	// Environment overlay with prefix ONECHAT_. Returning "" from the
	// callback drops the variable, keeping operational settings out.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		if operationalKeys[key] {
			return ""
		}
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	snap := &Snapshot{k: k}
	if err := validate(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func validate(s *Snapshot) error {
	if strings.TrimSpace(s.Model()) == "" {
		return fmt.Errorf("%w: required key %q is missing", ErrParse, "model")
	}
	if n, ok := s.MaxTokens(); ok && n <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive, got %d", ErrParse, n)
	}
	return nil
}

// Init writes a sample configuration file.
func Init(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists at %s", path)
	}

	sample := `# onechat configuration
# Edits to this file are hot-applied at the next turn boundary.

model = "anthropic/claude-3.5-sonnet"
temperature = 0.7
max_tokens = 1024
system_prompt = "You are a helpful assistant."

# Any additional keys are forwarded verbatim to the model endpoint:
# top_p = 0.9
`

	return os.WriteFile(path, []byte(sample), 0644)
}

package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/rs/zerolog"

	"github.com/onechat/internal/watch"
)

// UserTemplateName is the optional sibling template applied to outgoing user
// messages. When it is absent the user text passes through untouched.
const UserTemplateName = "user.tmpl"

var (
	// ErrCompile covers a template that cannot be read or parsed.
	// Recoverable: the last good compiled template keeps serving.
	ErrCompile = errors.New("prompt: template compile failed")
	// ErrRender covers an execution failure of the current template.
	ErrRender = errors.New("prompt: template render failed")
)

// ReloadResult reports one CheckAndReload outcome.
type ReloadResult struct {
	Status watch.Status
	Err    error
}

// Store owns the compiled system prompt template and its reload descriptor.
// The compiled form and the committed modification time always change
// together, so a recompile is never half-applied.
type Store struct {
	desc *watch.Descriptor
	tmpl *template.Template

	userDesc *watch.Descriptor
	userTmpl *template.Template

	log zerolog.Logger
}

// NewStore compiles the initial template. A broken template at startup is
// fatal because there is no last good version to fall back to.
func NewStore(path string, logger zerolog.Logger) (*Store, error) {
	s := &Store{
		desc:     watch.NewDescriptor(path),
		userDesc: watch.NewDescriptor(filepath.Join(filepath.Dir(path), UserTemplateName)),
		log:      logger,
	}

	_, mtime, err := s.desc.Check()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, err)
	}
	tmpl, err := compile(path)
	if err != nil {
		return nil, err
	}
	s.tmpl = tmpl
	s.desc.Commit(mtime)

	s.reloadUser()
	return s, nil
}

// CheckAndReload recompiles the system template when its backing file has a
// newer modification time. A compile failure keeps the last good template
// serving renders and leaves the descriptor untouched so the next check
// retries.
func (s *Store) CheckAndReload() ReloadResult {
	s.reloadUser()

	stale, mtime, err := s.desc.Check()
	if err != nil {
		return ReloadResult{Status: watch.Failed, Err: fmt.Errorf("%w: %v", ErrCompile, err)}
	}
	if !stale {
		return ReloadResult{Status: watch.Unchanged}
	}

	tmpl, err := compile(s.desc.Path())
	if err != nil {
		s.log.Warn().Err(err).Str("path", s.desc.Path()).
			Msg("Template reload failed, keeping last good template")
		return ReloadResult{Status: watch.Failed, Err: err}
	}

	s.tmpl = tmpl
	s.desc.Commit(mtime)
	s.log.Info().Str("path", s.desc.Path()).Msg("Template recompiled")
	return ReloadResult{Status: watch.Reloaded}
}

// Render executes the current system template against the supplied variable
// context, normally the full config map.
func (s *Store) Render(ctx map[string]interface{}) (string, error) {
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRender, err)
	}
	return buf.String(), nil
}

// RenderUser renders the outgoing user message through the optional user
// template, with the raw input available as user_input alongside the config
// fields. Any failure falls back to the raw text.
func (s *Store) RenderUser(userInput string, cfg map[string]interface{}) string {
	if s.userTmpl == nil {
		return userInput
	}
	ctx := make(map[string]interface{}, len(cfg)+1)
	for k, v := range cfg {
		ctx[k] = v
	}
	ctx["user_input"] = userInput

	var buf bytes.Buffer
	if err := s.userTmpl.Execute(&buf, ctx); err != nil {
		s.log.Warn().Err(err).Msg("User template render failed, using raw input")
		return userInput
	}
	return buf.String()
}

// reloadUser applies the same descriptor mechanism to the optional user
// template. Failures only log: a missing or broken user template means raw
// passthrough, never a failed turn.
func (s *Store) reloadUser() {
	stale, mtime, err := s.userDesc.Check()
	if err != nil {
		return
	}
	if !stale {
		return
	}
	tmpl, err := compile(s.userDesc.Path())
	if err != nil {
		s.log.Warn().Err(err).Str("path", s.userDesc.Path()).
			Msg("User template reload failed")
		return
	}
	s.userTmpl = tmpl
	s.userDesc.Commit(mtime)
	s.log.Info().Str("path", s.userDesc.Path()).Msg("User template recompiled")
}

func compile(path string) (*template.Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, err)
	}
	tmpl, err := template.New(filepath.Base(path)).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, err)
	}
	return tmpl, nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onechat/internal/watch"
)

const validConfig = `model = "anthropic/claude-3.5-sonnet"
temperature = 0.7
max_tokens = 1024
system_prompt = "Be terse."
top_p = 0.9
`

// writeFileAt writes content and pins the file's mtime so staleness checks
// behave deterministically regardless of filesystem timestamp granularity.
func writeFileAt(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func newTestStore(t *testing.T, content string) (*Store, string, time.Time) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "onechat.toml")
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	writeFileAt(t, path, content, base)

	store, err := NewStore(path, zerolog.Nop())
	require.NoError(t, err)
	return store, path, base
}

func TestSnapshotAccessors(t *testing.T) {
	store, _, _ := newTestStore(t, validConfig)
	snap := store.Current()

	assert.Equal(t, "anthropic/claude-3.5-sonnet", snap.Model())
	assert.Equal(t, "Be terse.", snap.SystemPrompt())

	temp, ok := snap.Temperature()
	require.True(t, ok)
	assert.InDelta(t, 0.7, temp, 1e-9)

	maxTokens, ok := snap.MaxTokens()
	require.True(t, ok)
	assert.Equal(t, 1024, maxTokens)

	extra := snap.Extra()
	assert.NotContains(t, extra, "model")
	assert.NotContains(t, extra, "system_prompt")
	assert.Contains(t, extra, "temperature")
	assert.Contains(t, extra, "max_tokens")
	assert.Contains(t, extra, "top_p")
}

func TestOptionalKeysAbsent(t *testing.T) {
	store, _, _ := newTestStore(t, "model = \"m1\"\n")
	snap := store.Current()

	_, ok := snap.Temperature()
	assert.False(t, ok)
	_, ok = snap.MaxTokens()
	assert.False(t, ok)

	// The confmap default guarantees templates can always reference
	// system_prompt.
	assert.Contains(t, snap.All(), "system_prompt")
	assert.Equal(t, "", snap.SystemPrompt())
}

func TestCheckAndReloadUnchangedIsIdempotent(t *testing.T) {
	store, _, _ := newTestStore(t, validConfig)
	before := store.Current()

	for i := 0; i < 2; i++ {
		res := store.CheckAndReload()
		assert.Equal(t, watch.Unchanged, res.Status)
	}

	// No re-parse happened: the snapshot is the same object.
	assert.Same(t, before, store.Current())
}

func TestCheckAndReloadPicksUpEdit(t *testing.T) {
	store, path, base := newTestStore(t, validConfig)

	edited := `model = "anthropic/claude-3.5-sonnet"
temperature = 0.2
max_tokens = 1024
system_prompt = "Be terse."
top_p = 0.9
`
	writeFileAt(t, path, edited, base.Add(2*time.Second))

	res := store.CheckAndReload()
	require.Equal(t, watch.Reloaded, res.Status)
	require.NotNil(t, res.Old)
	require.NotNil(t, res.New)

	oldTemp, _ := res.Old.Temperature()
	newTemp, _ := res.New.Temperature()
	assert.InDelta(t, 0.7, oldTemp, 1e-9)
	assert.InDelta(t, 0.2, newTemp, 1e-9)

	current, _ := store.Current().Temperature()
	assert.InDelta(t, 0.2, current, 1e-9)
}

func TestBadEditKeepsLastGoodSnapshot(t *testing.T) {
	store, path, base := newTestStore(t, validConfig)
	before := store.Current().All()

	writeFileAt(t, path, "model = \"broken\nthis is not toml", base.Add(2*time.Second))

	res := store.CheckAndReload()
	require.Equal(t, watch.Failed, res.Status)
	require.ErrorIs(t, res.Err, ErrParse)

	// The previous snapshot still serves, byte-for-byte equal to before.
	assert.Equal(t, before, store.Current().All())

	// The descriptor was not committed, so fixing the file reloads.
	writeFileAt(t, path, "model = \"m2\"\n", base.Add(4*time.Second))
	res = store.CheckAndReload()
	require.Equal(t, watch.Reloaded, res.Status)
	assert.Equal(t, "m2", store.Current().Model())
}

func TestMissingModelIsParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "onechat.toml")
	writeFileAt(t, path, "temperature = 0.7\n", time.Now())

	_, err := Load(path)
	require.ErrorIs(t, err, ErrParse)
}

func TestNonPositiveMaxTokensIsParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "onechat.toml")
	writeFileAt(t, path, "model = \"m1\"\nmax_tokens = 0\n", time.Now())

	_, err := Load(path)
	require.ErrorIs(t, err, ErrParse)
}

func TestEnvOverlay(t *testing.T) {
	t.Setenv("ONECHAT_MODEL", "env-model")

	path := filepath.Join(t.TempDir(), "onechat.toml")
	writeFileAt(t, path, validConfig, time.Now())

	snap, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-model", snap.Model())
}

// Process-level variables share the ONECHAT_ prefix with config overrides but
// must never reach the snapshot: anything in Extra() travels to the provider
// on every call.
func TestEnvOverlaySkipsOperationalVariables(t *testing.T) {
	t.Setenv("ONECHAT_API_KEY", "sk-secret")
	t.Setenv("ONECHAT_LOG_FILE", "/tmp/onechat.log")
	t.Setenv("ONECHAT_BASE_URL", "https://example.invalid/v1")
	t.Setenv("ONECHAT_TEMPLATE", "templates/system.tmpl")

	path := filepath.Join(t.TempDir(), "onechat.toml")
	writeFileAt(t, path, validConfig, time.Now())

	snap, err := Load(path)
	require.NoError(t, err)

	extra := snap.Extra()
	assert.NotContains(t, extra, "api_key")
	assert.NotContains(t, extra, "log_file")
	assert.NotContains(t, extra, "base_url")
	assert.NotContains(t, extra, "template")

	// They are absent from the whole snapshot, not just the passthrough.
	assert.NotContains(t, snap.All(), "api_key")
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "onechat.toml")

	require.NoError(t, Init(path))

	snap, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, snap.Model())

	// Refuses to overwrite an existing file.
	require.Error(t, Init(path))
}

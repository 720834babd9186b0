package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevels(t *testing.T) {
	cfg := ParseLevels("discovery/autopeering=debug, core/peerstore=warn,error,bogus=xx")

	assert.Equal(t, slog.LevelError, cfg.Default)
	assert.Equal(t, slog.LevelDebug, cfg.Components["discovery/autopeering"])
	assert.Equal(t, slog.LevelWarn, cfg.Components["core/peerstore"])
	_, ok := cfg.Components["bogus"]
	assert.False(t, ok)
}

func TestLevels_ForLongestPrefix(t *testing.T) {
	cfg := ParseLevels("discovery=warn,discovery/autopeering/selection=debug,info")

	assert.Equal(t, slog.LevelDebug, cfg.For("discovery/autopeering/selection"))
	assert.Equal(t, slog.LevelWarn, cfg.For("discovery/autopeering/discover"))
	assert.Equal(t, slog.LevelInfo, cfg.For("core/identity"))
}

func TestLazyLogger_FiltersByComponent(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	Setup(&buf, "text", ParseLevels("noisy=error,debug"))
	defer SetLevels(ParseLevels(""))

	Logger("noisy").Info("丢弃")
	Logger("quiet").Debug("保留", "k", 1)

	out := buf.String()
	assert.NotContains(t, out, "丢弃")
	require.Contains(t, out, "保留")
	assert.Contains(t, out, "component=quiet")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc", TruncateID("abc", 8))
	assert.Equal(t, "abcdefgh", TruncateID("abcdefghij", 8))
}

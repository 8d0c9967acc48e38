package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(LevelDebug))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(LevelWarn))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("bogus"))
}

func TestInitializeWritesToFile(t *testing.T) {
	prevLogger := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Pretty = false
	cfg.EnableFile = true
	cfg.LogDir = dir
	cfg.LogFileName = "test.log"

	closer := Initialize(cfg)
	sub := GetSubLogger(GetLogger("portfolio"), "fills")
	sub.Info().Msg("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "test.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"portfolio"`)
	assert.Contains(t, string(data), `"subcomponent":"fills"`)
	assert.Contains(t, string(data), "hello")
}

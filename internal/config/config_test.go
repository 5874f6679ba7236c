package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	body := "game_type = \"TSL\"\nprefer_switches = false\nmax_repair_passes = 5\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, GameTSL, cfg.Game)
	assert.False(t, cfg.PreferSwitches)
	assert.Equal(t, 5, cfg.MaxRepairPasses)
}

func TestValidateRejectsUnknownGame(t *testing.T) {
	cfg := Default()
	cfg.Game = "K3"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroRepairPassesWhenEnabled(t *testing.T) {
	cfg := Default()
	cfg.EnableRepairs = true
	cfg.MaxRepairPasses = 0
	assert.Error(t, cfg.Validate())
}

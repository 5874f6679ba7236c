// Package config carries the process-wide decisions spec.md §9 insists
// stay out of globals: game selection, switch/signature preferences,
// repair behavior, and the external compiler path. A Config is built
// once at startup (from flags, a settings file, or both) and passed by
// value into FileDecompiler.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Game identifies which action table a Config selects.
type Game string

const (
	GameK1  Game = "K1"
	GameK2  Game = "K2"
	GameTSL Game = "TSL"
)

// Config is the complete set of options spec.md §6 recognizes. It is
// copied by value wherever it is needed; nothing in this package or its
// consumers mutates a shared instance.
type Config struct {
	Game             Game   `toml:"game_type"`
	ActionsPath      string `toml:"actions_path"`
	PreferSwitches   bool   `toml:"prefer_switches"`
	StrictSignatures bool   `toml:"strict_signatures"`
	EnableRepairs    bool   `toml:"enable_output_repairs"`
	MaxRepairPasses  int    `toml:"max_repair_passes"`
	CompilerPath     string `toml:"compiler_path"`
	OutDir           string `toml:"out_dir"`
	Debug            bool   `toml:"debug"`
}

// Default returns the baseline Config every flag/file override starts
// from: K1 action table, switches preferred, three repair passes, no
// external compiler configured (round-trip checking is skipped and the
// driver reports PARTIAL_COMPILE).
func Default() Config {
	return Config{
		Game:            GameK1,
		PreferSwitches:  true,
		MaxRepairPasses: 3,
	}
}

// Load reads a TOML settings file and overlays it on Default(). A
// missing file is not an error — Default() alone is returned — since
// every option also has a command-line flag equivalent.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first configuration inconsistency found: an
// unrecognized Game, or a non-positive MaxRepairPasses when repairs are
// enabled.
func (c Config) Validate() error {
	switch c.Game {
	case GameK1, GameK2, GameTSL:
	default:
		return fmt.Errorf("config: unrecognized game type %q", c.Game)
	}
	if c.EnableRepairs && c.MaxRepairPasses <= 0 {
		return fmt.Errorf("config: max_repair_passes must be positive when repairs are enabled, got %d", c.MaxRepairPasses)
	}
	return nil
}

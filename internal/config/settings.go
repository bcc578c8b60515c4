package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/vidcap/internal/logging"
	"github.com/smazurov/vidcap/internal/pacing"
)

// Settings is the part of the settings file that can change while the
// process runs. New pacing values apply to captures started afterwards.
type Settings struct {
	Pacing  pacing.Config
	Logging logging.Config
}

// LoadSettings reads the reloadable settings from path. A missing or
// malformed file is an error, so a bad edit never resets a running
// process to defaults.
//
// In [logging], level and format are global; any other string key sets
// the level of the module it names:
//
//	[logging]
//	level = "info"
//	v4l2 = "debug"
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	var raw struct {
		Pacing  pacing.Config  `toml:"pacing"`
		Logging map[string]any `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}

	s := Settings{
		Pacing:  raw.Pacing,
		Logging: logging.Config{Level: "info", Format: "text", Modules: map[string]string{}},
	}
	for key, value := range raw.Logging {
		level, ok := value.(string)
		if !ok {
			continue
		}
		switch key {
		case "level":
			s.Logging.Level = level
		case "format":
			s.Logging.Format = level
		default:
			s.Logging.Modules[key] = level
		}
	}
	return s, nil
}

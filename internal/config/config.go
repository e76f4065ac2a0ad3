// Package config loads the puzzle server configuration from a YAML file or a
// Lua script, applies environment overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var ErrUnknownFormat = errors.New("config: unknown file format")

type Config struct {
	Addr           string   `yaml:"addr" validate:"required"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// ImageDir is served under /images/; Image names the puzzle picture inside it.
	ImageDir  string `yaml:"image_dir"`
	Image     string `yaml:"image"`
	PublicURL string `yaml:"public_url"`
	Puzzle    Puzzle `yaml:"puzzle"`
	Limits    Limits `yaml:"limits"`
}

type Puzzle struct {
	Rows                int     `yaml:"rows" validate:"min=1,max=100"`
	Cols                int     `yaml:"cols" validate:"min=1,max=100"`
	PieceWidth          float64 `yaml:"piece_width" validate:"gt=0"`
	PieceHeight         float64 `yaml:"piece_height" validate:"gt=0"`
	SnapThreshold       float64 `yaml:"snap_threshold" validate:"gt=0"`
	ConnectionThreshold float64 `yaml:"connection_threshold" validate:"gt=0,ltfield=SnapThreshold"`
	Layout              string  `yaml:"layout" validate:"oneof=solved scattered"`
	// Seed fixes board generation; 0 picks a fresh seed per room.
	Seed int64 `yaml:"seed"`
}

type Limits struct {
	MaxSessions int     `yaml:"max_sessions" validate:"min=1"`
	DragRate    float64 `yaml:"drag_rate" validate:"gt=0"`
	DragBurst   int     `yaml:"drag_burst" validate:"min=1"`
	SendBuffer  int     `yaml:"send_buffer" validate:"min=1"`
}

func Default() Config {
	return Config{
		Addr:           ":8080",
		AllowedOrigins: []string{"http://localhost:8080", "http://127.0.0.1:8080"},
		ImageDir:       "public/images",
		Image:          "puzzle.jpg",
		Puzzle: Puzzle{
			Rows:                10,
			Cols:                10,
			PieceWidth:          2,
			PieceHeight:         2,
			SnapThreshold:       0.5,
			ConnectionThreshold: 0.01,
			Layout:              "scattered",
		},
		Limits: Limits{
			MaxSessions: 4,
			DragRate:    60,
			DragBurst:   20,
			SendBuffer:  64,
		},
	}
}

// Load reads path over the defaults, applies env overrides and validates.
// An empty path loads the defaults only.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = loadYAML(path, &cfg)
		case ".lua":
			err = loadLua(path, &cfg)
		default:
			err = fmt.Errorf("%w: %s", ErrUnknownFormat, path)
		}
		if err != nil {
			return Config{}, err
		}
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// ApplyEnv honours PORT and ORIGIN_ALLOWLIST, as the server always has.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if port := getenv("PORT"); port != "" {
		c.Addr = ":" + port
	}
	if allow := getenv("ORIGIN_ALLOWLIST"); allow != "" {
		c.AllowedOrigins = nil
		for _, o := range strings.Split(allow, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ImagePath is the on-disk location of the puzzle picture, or "" if none is configured.
func (c Config) ImagePath() string {
	if c.Image == "" {
		return ""
	}
	return filepath.Join(c.ImageDir, c.Image)
}

// ImageURL is the reference sent to clients in the room snapshot.
func (c Config) ImageURL() string {
	if c.Image == "" {
		return ""
	}
	return strings.TrimSuffix(c.PublicURL, "/") + "/images/" + c.Image
}

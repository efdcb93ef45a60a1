// Package config handles lunar.toml run configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/xirelogy/go-lunar/internal/inspect"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "lunar.toml"

// Config represents a lunar.toml configuration.
type Config struct {
	Chunk  string `toml:"chunk"`
	Log    Log    `toml:"log"`
	VM     VM     `toml:"vm"`
	Decode Decode `toml:"decode"`
	Output Output `toml:"output"`

	// Path is the file the configuration was read from (set at load time).
	Path string `toml:"-"`
}

// Log configures the zerolog logger.
type Log struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

// VM configures execution limits and tracing.
type VM struct {
	InstructionLimit int  `toml:"instruction-limit"`
	MaxFrames        int  `toml:"max-frames"`
	Trace            bool `toml:"trace"`
}

// Decode configures the chunk decoder.
type Decode struct {
	DebugInfo bool `toml:"debug-info"`
}

// Output configures result and export formatting.
type Output struct {
	Format string `toml:"format"`
	Color  bool   `toml:"color"`
}

const (
	defaultChunk     = "luac.out"
	defaultLevel     = "info"
	defaultFormat    = "text"
	defaultMaxFrames = 200
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	c.Output.Color = true
	c.Log.Pretty = true
	return c
}

func (c *Config) applyDefaults() {
	if c.Chunk == "" {
		c.Chunk = defaultChunk
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLevel
	}
	if c.Output.Format == "" {
		c.Output.Format = defaultFormat
	}
	if c.VM.MaxFrames == 0 {
		c.VM.MaxFrames = defaultMaxFrames
	}
}

// Load parses the configuration file at path and fills in defaults.
// The chunk path is resolved relative to the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.Path = path
	if c.Chunk != "" && !filepath.IsAbs(c.Chunk) {
		c.Chunk = filepath.Join(filepath.Dir(path), c.Chunk)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}

// FindAndLoad walks up from startDir to find a lunar.toml file.
// Returns Default() if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Validate checks value ranges and names.
func (c *Config) Validate() error {
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if c.VM.InstructionLimit < 0 {
		return fmt.Errorf("vm.instruction-limit must be >= 0, got %d", c.VM.InstructionLimit)
	}
	if c.VM.MaxFrames < 0 {
		return fmt.Errorf("vm.max-frames must be >= 0, got %d", c.VM.MaxFrames)
	}
	if c.Output.Format != defaultFormat {
		if _, err := inspect.ParseFormat(c.Output.Format); err != nil {
			return fmt.Errorf("output.format: %w", err)
		}
	}
	return nil
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

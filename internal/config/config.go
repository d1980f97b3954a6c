package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// NoteMapping holds the four controller note numbers, one per transport
// action. Persisted with the rest of the configuration; saved only on
// explicit user confirmation.
type NoteMapping struct {
	Record uint8 `json:"record"`
	Play   uint8 `json:"play"`
	Stop   uint8 `json:"stop"`
	Clear  uint8 `json:"clear"`
}

// DefaultMapping returns the documented default note mapping
// (the first four pads of a typical drum controller).
func DefaultMapping() NoteMapping {
	return NoteMapping{
		Record: 36,
		Play:   37,
		Stop:   38,
		Clear:  39,
	}
}

// Config holds application configuration
type Config struct {
	AudioDeviceID int         `json:"audio_device_id"`
	LoopsDir      string      `json:"loops_dir"`
	HTTPPort      int         `json:"http_port"`
	Mapping       NoteMapping `json:"note_mapping"`
	mu            sync.RWMutex
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		AudioDeviceID: -1, // -1 means use system default device
		LoopsDir:      DefaultLoopsDir(),
		HTTPPort:      18766,
		Mapping:       DefaultMapping(),
	}
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, "Library", "Application Support", "QuickLoops", "config.json")
}

// DefaultLoopsDir returns the default directory for persisted loops
func DefaultLoopsDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, "Library", "Application Support", "QuickLoops", "Loops")
}

// Load loads configuration from the specified path. Missing or malformed
// data falls back to the documented defaults rather than failing: a broken
// config file must never keep the transport from starting.
func Load(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultConfig()
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return DefaultConfig()
	}
	return config
}

// Save saves configuration to the specified path
func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetMapping returns the current note mapping
func (c *Config) GetMapping() NoteMapping {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Mapping
}

// SetMapping replaces the note mapping. The caller persists it with Save.
func (c *Config) SetMapping(m NoteMapping) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Mapping = m
}

// Validate validates all configuration fields
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.AudioDeviceID < -1 {
		return fmt.Errorf("invalid audio_device_id: %d", c.AudioDeviceID)
	}
	if c.LoopsDir == "" {
		return fmt.Errorf("loops_dir cannot be empty")
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.HTTPPort)
	}
	for _, note := range []uint8{c.Mapping.Record, c.Mapping.Play, c.Mapping.Stop, c.Mapping.Clear} {
		if note > 127 {
			return fmt.Errorf("invalid note number: %d", note)
		}
	}
	return nil
}

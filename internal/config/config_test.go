package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_ValidConfig(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `directories:
  included:
    - /data/photos
    - /data/backup
  reference:
    - /data/backup
filters:
  excluded_items:
    - "*.tmp"
    - "*/cache/*"
  minimal_file_size: 1
  recursive: false
duplicates:
  method: size
  hash_type: xxh3
images:
  hash_size: 8
  tolerance: 4
threads: 3
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	expectedIncluded := []string{"/data/photos", "/data/backup"}
	if len(cfg.Directories.Included) != len(expectedIncluded) {
		t.Fatalf("Expected %d included dirs, got %d", len(expectedIncluded), len(cfg.Directories.Included))
	}
	for i, expected := range expectedIncluded {
		if cfg.Directories.Included[i] != expected {
			t.Errorf("Included[%d]: expected %q, got %q", i, expected, cfg.Directories.Included[i])
		}
	}

	if len(cfg.Filters.ExcludedItems) != 2 {
		t.Errorf("Expected 2 excluded items, got %d", len(cfg.Filters.ExcludedItems))
	}
	if cfg.Filters.Recursive {
		t.Error("Expected recursive to be overridden to false")
	}
	if cfg.Duplicates.Method != "size" {
		t.Errorf("Expected method %q, got %q", "size", cfg.Duplicates.Method)
	}
	if cfg.Images.HashSize != 8 || cfg.Images.Tolerance != 4 {
		t.Errorf("Unexpected image settings: %+v", cfg.Images)
	}
	if cfg.ThreadCount() != 3 {
		t.Errorf("Expected 3 threads, got %d", cfg.ThreadCount())
	}

	// Keys missing from the file keep their defaults
	if cfg.Images.HashAlg != DefaultConfig().Images.HashAlg {
		t.Errorf("Expected default hash_alg, got %q", cfg.Images.HashAlg)
	}
	if !cfg.Cache.Enabled {
		t.Error("Cache should stay enabled by default")
	}
}

func TestLoadConfig_NonExistentFile(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("LoadConfig should return default config for nonexistent file, got error: %v", err)
	}

	// Should return default config with common exclusions
	if len(cfg.Filters.ExcludedItems) == 0 {
		t.Error("Default config should have some excluded items")
	}

	if len(cfg.Directories.Included) != 0 {
		t.Errorf("Expected no included directories by default, got %v", cfg.Directories.Included)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `filters:
  excluded_items: [
    "*.tmp"
  invalid syntax
`

	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadConfig(configPath)
	if err == nil {
		t.Error("LoadConfig should return error for invalid YAML")
	}
}

func TestLoadConfig_EmptyConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "empty.yaml")

	if err := os.WriteFile(configPath, []byte(""), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed for empty config: %v", err)
	}

	if cfg.Directories.Included == nil {
		t.Error("Included should not be nil")
	}
	if cfg.Duplicates.Method != "hash" {
		t.Errorf("Expected default method hash, got %q", cfg.Duplicates.Method)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}

	// Check that common patterns are included
	expectedPatterns := []string{"*/.git/*", "*/node_modules/*"}
	for _, pattern := range expectedPatterns {
		found := false
		for _, item := range cfg.Filters.ExcludedItems {
			if item == pattern {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Default config should include pattern %q", pattern)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"negative threads", func(c *Config) { c.Threads = -1 }, "threads"},
		{"max below min", func(c *Config) { c.Filters.MinimalFileSize = 10; c.Filters.MaximalFileSize = 5 }, "filters.maximal_file_size"},
		{"bad hash size", func(c *Config) { c.Images.HashSize = 12 }, "images.hash_size"},
		{"tolerance too big", func(c *Config) { c.Images.HashSize = 8; c.Images.Tolerance = 65 }, "images.tolerance"},
		{"negative tolerance", func(c *Config) { c.Images.Tolerance = -1 }, "images.tolerance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate should fail")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) || vErr.Field != tt.field {
				t.Errorf("Expected field %q, got %v", tt.field, err)
			}
		})
	}
}

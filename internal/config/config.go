package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is matched by every *ValidationError.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a validation failure with details
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

type Config struct {
	Directories Directories `yaml:"directories"`
	Filters     Filters     `yaml:"filters"`
	Cache       Cache       `yaml:"cache"`
	Duplicates  Duplicates  `yaml:"duplicates"`
	Images      Images      `yaml:"images"`
	Threads     int         `yaml:"threads"`
}

type Directories struct {
	Included  []string `yaml:"included"`
	Excluded  []string `yaml:"excluded"`
	Reference []string `yaml:"reference"`
}

type Filters struct {
	AllowedExtensions  []string `yaml:"allowed_extensions"`
	ExcludedExtensions []string `yaml:"excluded_extensions"`
	ExcludedItems      []string `yaml:"excluded_items"`
	MinimalFileSize    uint64   `yaml:"minimal_file_size"`
	MaximalFileSize    uint64   `yaml:"maximal_file_size"`
	Recursive          bool     `yaml:"recursive"`
	SameFilesystem     bool     `yaml:"same_filesystem"`
}

type Cache struct {
	Enabled         bool   `yaml:"enabled"`
	Dir             string `yaml:"dir"`
	DeleteOutdated  bool   `yaml:"delete_outdated"`
	SaveJSON        bool   `yaml:"save_json"`
	MinimalFileSize uint64 `yaml:"minimal_file_size"`
	UsePrehash      bool   `yaml:"use_prehash"`
}

type Duplicates struct {
	Method             string `yaml:"method"`
	HashType           string `yaml:"hash_type"`
	CaseSensitiveNames bool   `yaml:"case_sensitive_names"`
	IgnoreHardLinks    bool   `yaml:"ignore_hard_links"`
	DeleteMethod       string `yaml:"delete_method"`
	DryRun             bool   `yaml:"dry_run"`
}

type Images struct {
	HashSize        int    `yaml:"hash_size"`
	HashAlg         string `yaml:"hash_alg"`
	ResizeFilter    string `yaml:"resize_filter"`
	Tolerance       int    `yaml:"tolerance"`
	ExcludeSameSize bool   `yaml:"exclude_same_size"`
	IgnoreHardLinks bool   `yaml:"ignore_hard_links"`
}

func DefaultConfig() *Config {
	return &Config{
		Directories: Directories{
			Included:  []string{},
			Excluded:  []string{},
			Reference: []string{},
		},
		Filters: Filters{
			AllowedExtensions:  []string{},
			ExcludedExtensions: []string{},
			ExcludedItems: []string{
				"*/.git/*",
				"*/node_modules/*",
				"*/__pycache__/*",
				"*/.svn/*",
				"*.DS_Store",
				"*Thumbs.db",
			},
			MinimalFileSize: 8 * 1024,
			MaximalFileSize: math.MaxUint64,
			Recursive:       true,
			SameFilesystem:  false,
		},
		Cache: Cache{
			Enabled:         true,
			DeleteOutdated:  true,
			SaveJSON:        false,
			MinimalFileSize: 256 * 1024,
			UsePrehash:      true,
		},
		Duplicates: Duplicates{
			Method:             "hash",
			HashType:           "blake3",
			CaseSensitiveNames: false,
			IgnoreHardLinks:    true,
			DeleteMethod:       "none",
			DryRun:             false,
		},
		Images: Images{
			HashSize:        16,
			HashAlg:         "difference",
			ResizeFilter:    "lanczos3",
			Tolerance:       10,
			ExcludeSameSize: false,
			IgnoreHardLinks: true,
		},
		Threads: runtime.NumCPU(),
	}
}

// LoadConfig reads the YAML file at path on top of DefaultConfig.
// A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	// Initialize slices if nil (for explicit "key:" entries with no value)
	if cfg.Directories.Included == nil {
		cfg.Directories.Included = []string{}
	}
	if cfg.Directories.Excluded == nil {
		cfg.Directories.Excluded = []string{}
	}
	if cfg.Directories.Reference == nil {
		cfg.Directories.Reference = []string{}
	}
	if cfg.Filters.ExcludedItems == nil {
		cfg.Filters.ExcludedItems = []string{}
	}

	return cfg, nil
}

// Validate checks value ranges. Enumerated string options are checked by
// the tool that consumes them.
func (c *Config) Validate() error {
	if c.Threads < 0 {
		return &ValidationError{Field: "threads", Message: "must not be negative"}
	}
	if c.Filters.MaximalFileSize < c.Filters.MinimalFileSize {
		return &ValidationError{
			Field:   "filters.maximal_file_size",
			Message: fmt.Sprintf("%d is smaller than minimal_file_size %d", c.Filters.MaximalFileSize, c.Filters.MinimalFileSize),
		}
	}
	switch c.Images.HashSize {
	case 8, 16, 32, 64:
	default:
		return &ValidationError{Field: "images.hash_size", Message: fmt.Sprintf("%d is not one of 8, 16, 32, 64", c.Images.HashSize)}
	}
	maxTolerance := c.Images.HashSize * c.Images.HashSize
	if c.Images.Tolerance < 0 || c.Images.Tolerance > maxTolerance {
		return &ValidationError{
			Field:   "images.tolerance",
			Message: fmt.Sprintf("%d is outside 0..%d", c.Images.Tolerance, maxTolerance),
		}
	}
	return nil
}

// ThreadCount returns the configured worker count, falling back to the CPU count.
func (c *Config) ThreadCount() int {
	if c.Threads <= 0 {
		return runtime.NumCPU()
	}
	return c.Threads
}

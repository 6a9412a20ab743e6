// Package config resolves shmq settings from defaults, JSONC config files and
// command line overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sugawarayuuta/sonnet"
	"github.com/tailscale/hujson"

	"github.com/calvinalkan/shmcache/internal/fs"
	"github.com/calvinalkan/shmcache/internal/shm"
	"github.com/calvinalkan/shmcache/pkg/shmcache"
)

// Errors returned by [Load].
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config")
)

// FileName is the project config file looked up in the working directory.
const FileName = ".shmq.json"

// DefaultSlots is the slot count used when neither slots nor size is set.
const DefaultSlots = 1024

// Config holds all configuration options.
type Config struct {
	// Segment is a segment name (placed in /dev/shm) or a path.
	Segment string `json:"segment,omitempty"`

	// Creation geometry. Only used by create; attach reads it from the header.
	Slots       int    `json:"slots,omitempty"`
	Size        string `json:"size,omitempty"`
	KeySize     int    `json:"key_size,omitempty"`
	PayloadSize int    `json:"payload_size,omitempty"`
	Buckets     int    `json:"buckets,omitempty"`
	Hash        string `json:"hash,omitempty"`

	// WorkDir is the directory relative segment paths resolve against.
	WorkDir string `json:"-"`

	// Sources tracks which config files were loaded (for diagnostics).
	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string
	Project string
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Segment:     "shmq",
		KeySize:     shmcache.DefaultKeySize,
		PayloadSize: shmcache.DefaultPayloadSize,
		Hash:        shmcache.HashRolling.String(),
	}
}

// LoadInput holds the inputs for [Load].
type LoadInput struct {
	WorkDir    string            // if empty, os.Getwd() is used
	ConfigPath string            // -c/--config flag value
	Overrides  Config            // non-zero fields win over every file
	Env        map[string]string // environment variables
	FS         fs.FS             // nil means the real filesystem
}

// Load resolves the configuration with the following precedence (highest
// wins):
//  1. Defaults
//  2. Global user config ($XDG_CONFIG_HOME/shmq/config.json or
//     ~/.config/shmq/config.json)
//  3. Project config (.shmq.json in the working directory), or the file given
//     by ConfigPath instead, which must exist
//  4. Overrides
func Load(input LoadInput) (Config, error) {
	fsys := input.FS
	if fsys == nil {
		fsys = fs.NewReal()
	}

	workDir := input.WorkDir
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default()

	if globalPath := globalConfigPath(input.Env); globalPath != "" {
		globalCfg, loaded, err := loadFile(fsys, globalPath, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = merge(cfg, globalCfg)
			cfg.Sources.Global = globalPath
		}
	}

	projectPath := filepath.Join(workDir, FileName)
	mustExist := false

	if input.ConfigPath != "" {
		projectPath = input.ConfigPath
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}

		mustExist = true
	}

	projectCfg, loaded, err := loadFile(fsys, projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = merge(cfg, projectCfg)
		cfg.Sources.Project = projectPath
	}

	cfg = merge(cfg, input.Overrides)

	err = cfg.validate()
	if err != nil {
		return Config{}, err
	}

	cfg.WorkDir = workDir

	return cfg, nil
}

// globalConfigPath returns the global config file path, or "" if no home
// directory is known.
func globalConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "shmq", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "shmq", "config.json")
	}

	return ""
}

// loadFile reads and parses one config file. Missing optional files are not
// an error and report loaded=false.
func loadFile(fsys fs.FS, path string, mustExist bool) (Config, bool, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if mustExist {
				return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}

			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigFileRead, path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return cfg, true, nil
}

// Parse decodes a JSONC (JSON with comments and trailing commas) config.
// Unknown fields are rejected.
func Parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var raw map[string]any

	err = sonnet.Unmarshal(standardized, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	for key := range raw {
		if !knownKeys[key] {
			return Config{}, fmt.Errorf("unknown field %q", key)
		}
	}

	if v, ok := raw["segment"]; ok {
		if s, isString := v.(string); isString && s == "" {
			return Config{}, errors.New("segment cannot be empty")
		}
	}

	var cfg Config

	err = sonnet.Unmarshal(standardized, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return cfg, nil
}

var knownKeys = map[string]bool{
	"segment":      true,
	"slots":        true,
	"size":         true,
	"key_size":     true,
	"payload_size": true,
	"buckets":      true,
	"hash":         true,
}

func merge(base, overlay Config) Config {
	if overlay.Segment != "" {
		base.Segment = overlay.Segment
	}

	if overlay.Slots != 0 {
		base.Slots = overlay.Slots
	}

	if overlay.Size != "" {
		base.Size = overlay.Size
	}

	if overlay.KeySize != 0 {
		base.KeySize = overlay.KeySize
	}

	if overlay.PayloadSize != 0 {
		base.PayloadSize = overlay.PayloadSize
	}

	if overlay.Buckets != 0 {
		base.Buckets = overlay.Buckets
	}

	if overlay.Hash != "" {
		base.Hash = overlay.Hash
	}

	return base
}

func (c Config) validate() error {
	if c.Segment == "" {
		return fmt.Errorf("%w: segment cannot be empty", ErrConfigInvalid)
	}

	if c.Slots < 0 {
		return fmt.Errorf("%w: slots must be >= 0, got %d", ErrConfigInvalid, c.Slots)
	}

	if c.Size != "" {
		_, err := ParseSize(c.Size)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
		}
	}

	_, err := c.CacheOptions()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	return nil
}

// SegmentPath returns the resolved segment file path. Bare names live in
// [shm.DefaultDir]; relative paths resolve against WorkDir.
func (c Config) SegmentPath() string {
	path := shm.ResolvePath(c.Segment)
	if !filepath.IsAbs(path) && c.WorkDir != "" {
		path = filepath.Join(c.WorkDir, path)
	}

	return path
}

// CacheOptions converts the creation geometry to engine options.
func (c Config) CacheOptions() (shmcache.Options, error) {
	alg, err := shmcache.ParseHashAlgorithm(c.Hash)
	if err != nil {
		return shmcache.Options{}, err
	}

	opts := shmcache.Options{
		KeySize:     c.KeySize,
		PayloadSize: c.PayloadSize,
		BucketCount: c.Buckets,
		Hash:        alg,
	}

	// Sizing validates the options as a side effect.
	_, err = shmcache.SegmentSize(opts, 1)
	if err != nil {
		return shmcache.Options{}, err
	}

	return opts, nil
}

// SegmentBytes returns the size of the segment create should allocate: the
// explicit size if set, otherwise what fits Slots (or [DefaultSlots]) exactly.
func (c Config) SegmentBytes() (int, error) {
	if c.Size != "" {
		return ParseSize(c.Size)
	}

	opts, err := c.CacheOptions()
	if err != nil {
		return 0, err
	}

	slots := c.Slots
	if slots == 0 {
		slots = DefaultSlots
	}

	return shmcache.SegmentSize(opts, slots)
}

// ParseSize parses a byte count with an optional binary suffix: 4096, 64K,
// 64KiB, 16M, 1G.
func ParseSize(s string) (int, error) {
	str := strings.ToUpper(strings.TrimSpace(s))
	str = strings.TrimSuffix(strings.TrimSuffix(str, "IB"), "B")

	shift := 0

	if n := len(str); n > 0 {
		switch str[n-1] {
		case 'K':
			shift = 10
		case 'M':
			shift = 20
		case 'G':
			shift = 30
		}

		if shift != 0 {
			str = str[:n-1]
		}
	}

	n, err := strconv.ParseUint(strings.TrimSpace(str), 10, 63-30)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid size %q (want e.g. 4096, 64K, 16M)", s)
	}

	return int(n << shift), nil
}

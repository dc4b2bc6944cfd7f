package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mattn/go-shellwords"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort           = 8080
	defaultLogDir         = "./logs/"
	defaultDownloaderPath = "./yt-dlp"
	defaultRelocatorPath  = "rsync"
	defaultStaticDir      = "static"
)

var (
	ErrDuplicateSource = errors.New("duplicate output directory source")
	ErrEmptySource     = errors.New("output directory source is empty")
	ErrEmptyRemote     = errors.New("remote destination is empty")
	ErrInvalidArgs     = errors.New("remote extra_args cannot be parsed")
)

// RemoteDestination is an rsync target such as "host:/srv/media". ExtraArgs is split
// with shell quoting rules, so `-e "ssh -p 2222"` is two arguments. Variables and
// backticks are not expanded.
type RemoteDestination struct {
	Destination string `yaml:"destination" toml:"destination" json:"destination"`
	ExtraArgs   string `yaml:"extra_args" toml:"extra_args" json:"extra_args"`
}

// Args splits ExtraArgs into relocator arguments.
func (r RemoteDestination) Args() ([]string, error) {
	args, err := shellwords.Parse(r.ExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidArgs, r.ExtraArgs, err)
	}
	return args, nil
}

// OutputDirectory maps a download directory (Source) to where its files get relocated.
// Both destinations empty means download only.
type OutputDirectory struct {
	Source            string             `yaml:"source" toml:"source" json:"source"`
	DestinationLocal  string             `yaml:"destination_local,omitempty" toml:"destination_local" json:"destination_local,omitempty"`
	DestinationRemote *RemoteDestination `yaml:"destination_remote,omitempty" toml:"destination_remote" json:"destination_remote,omitempty"`
}

// Config describes runtime configuration for the service.
type Config struct {
	Port                  int               `yaml:"port" toml:"port"`
	LogDir                string            `yaml:"log_dir" toml:"log_dir"`
	DownloaderPath        string            `yaml:"downloader_path" toml:"downloader_path"`
	RelocatorPath         string            `yaml:"relocator_path" toml:"relocator_path"`
	DeleteSourceAfterMove bool              `yaml:"delete_source_after_move" toml:"delete_source_after_move"`
	MakeWorldReadable     bool              `yaml:"make_world_readable" toml:"make_world_readable"`
	SubmitRatePerMinute   int               `yaml:"submit_rate_per_minute" toml:"submit_rate_per_minute"`
	StaticDir             string            `yaml:"static_dir" toml:"static_dir"`
	OutputDirectories     []OutputDirectory `yaml:"output_directories" toml:"output_directories"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Port:                  defaultPort,
		LogDir:                defaultLogDir,
		DownloaderPath:        defaultDownloaderPath,
		RelocatorPath:         defaultRelocatorPath,
		DeleteSourceAfterMove: true,
		StaticDir:             defaultStaticDir,
	}
}

// Load reads the config file at path, applies .env and environment overrides and validates
// the result. A missing or empty file yields defaults. The decoder is picked by extension:
// .toml uses TOML, anything else YAML.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	fileData, err := os.ReadFile(path) //nolint:gosec // config path is controlled by deployment
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(bytes.TrimSpace(fileData)) > 0 {
		if err := decode(path, fileData, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := loadEnvFiles(); err != nil {
		return cfg, err
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse toml: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse yaml: %w", err)
		}
	}
	return nil
}

func normalize(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.LogDir == "" {
		cfg.LogDir = defaultLogDir
	}
	if cfg.DownloaderPath == "" {
		cfg.DownloaderPath = defaultDownloaderPath
	}
	if cfg.RelocatorPath == "" {
		cfg.RelocatorPath = defaultRelocatorPath
	}
	if cfg.SubmitRatePerMinute < 0 {
		cfg.SubmitRatePerMinute = 0
	}
	// an empty list still lets the service download into the working directory
	if len(cfg.OutputDirectories) == 0 {
		cfg.OutputDirectories = []OutputDirectory{{Source: ".", DestinationLocal: "."}}
	}
	for i := range cfg.OutputDirectories {
		cfg.OutputDirectories[i].Source = strings.TrimSpace(cfg.OutputDirectories[i].Source)
	}
}

// Validate rejects configurations the task pipeline cannot act on.
func (c Config) Validate() error {
	seen := make(map[string]struct{}, len(c.OutputDirectories))
	for _, dir := range c.OutputDirectories {
		if dir.Source == "" {
			return ErrEmptySource
		}
		if _, ok := seen[dir.Source]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateSource, dir.Source)
		}
		seen[dir.Source] = struct{}{}
		if dir.DestinationRemote != nil {
			if strings.TrimSpace(dir.DestinationRemote.Destination) == "" {
				return fmt.Errorf("%w: %s", ErrEmptyRemote, dir.Source)
			}
			if _, err := dir.DestinationRemote.Args(); err != nil {
				return fmt.Errorf("%s: %w", dir.Source, err)
			}
		}
	}
	return nil
}

// Sources lists the output directory keys in configuration order.
func (c Config) Sources() []string {
	keys := make([]string, 0, len(c.OutputDirectories))
	for _, dir := range c.OutputDirectories {
		keys = append(keys, dir.Source)
	}
	return keys
}

// Clone returns a deep copy so tasks never share slices or pointers with the live config.
func (c Config) Clone() Config {
	out := c
	out.OutputDirectories = make([]OutputDirectory, len(c.OutputDirectories))
	for i, dir := range c.OutputDirectories {
		out.OutputDirectories[i] = dir.Clone()
	}
	return out
}

// Clone deep-copies the remote destination pointer.
func (d OutputDirectory) Clone() OutputDirectory {
	out := d
	if d.DestinationRemote != nil {
		remote := *d.DestinationRemote
		out.DestinationRemote = &remote
	}
	return out
}

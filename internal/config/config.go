// Package config loads the daemon configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrNoRadio       = errors.New("config: radio.address is required")
	ErrBadAPIVersion = errors.New("config: radio.apiVersion must look like 1.4")
)

type Radio struct {
	Address string `yaml:"address"`
	// StreamPort is the local UDP port datagrams are received on.
	StreamPort int    `yaml:"streamPort"`
	Program    string `yaml:"program"`
	Station    string `yaml:"station"`
	// APIVersion pins the payload layout, overriding the radio's V line.
	APIVersion string `yaml:"apiVersion"`
	// Subscriptions are sent after connecting, e.g. "sub pan all".
	Subscriptions []string `yaml:"subscriptions"`
}

type Stream struct {
	Workers int `yaml:"workers"`
	Queue   int `yaml:"queue"`
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

type NATS struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type Record struct {
	// Meters is the Parquet file meter values are written to.
	Meters string `yaml:"meters"`
	Flush  int    `yaml:"flushRows"`
}

type Logs struct {
	Directory  string `yaml:"directory"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

type Config struct {
	Radio    Radio  `yaml:"radio"`
	Stream   Stream `yaml:"stream"`
	HTTP     HTTP   `yaml:"http"`
	NATS     NATS   `yaml:"nats"`
	Record   Record `yaml:"record"`
	Logs     Logs   `yaml:"logs"`
	DataDir  string `yaml:"dataDir"`
	EventLog string `yaml:"eventLog"`
	Capture  string `yaml:"capture"`
}

// Load reads path, fills defaults and validates the result. Relative file
// paths are resolved against the directory holding the file.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	cfg, err := Decode(f)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	base := filepath.Dir(path)
	for _, p := range []*string{&cfg.DataDir, &cfg.EventLog, &cfg.Capture, &cfg.Record.Meters, &cfg.Logs.Directory} {
		*p = resolve(base, *p)
	}
	return cfg, nil
}

// Decode parses a configuration document without touching the filesystem.
func Decode(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Radio.StreamPort == 0 {
		cfg.Radio.StreamPort = 4993
	}
	if cfg.Radio.Program == "" {
		cfg.Radio.Program = "sdrmodel"
	}
	if cfg.Radio.Station == "" {
		cfg.Radio.Station = "sdrmodel"
	}
	if len(cfg.Radio.Subscriptions) == 0 {
		cfg.Radio.Subscriptions = []string{"sub pan all", "sub slice all", "sub meter all", "sub amplifier all", "sub xvtr all", "sub daxiq all", "sub dax all"}
	}
	if cfg.Radio.Address != "" {
		if _, _, err := net.SplitHostPort(cfg.Radio.Address); err != nil {
			cfg.Radio.Address = net.JoinHostPort(cfg.Radio.Address, "4992")
		}
	}
	if cfg.Stream.Workers <= 0 {
		cfg.Stream.Workers = runtime.NumCPU()
	}
	if cfg.Stream.Queue <= 0 {
		cfg.Stream.Queue = 256
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.NATS.URL != "" && cfg.NATS.Subject == "" {
		cfg.NATS.Subject = "sdrmodel"
	}
	if cfg.Record.Flush <= 0 {
		cfg.Record.Flush = 1024
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(".", "data")
	}
	if cfg.Logs.Directory == "" {
		cfg.Logs.Directory = filepath.Join(cfg.DataDir, "logs")
	}
	if cfg.Logs.Level == "" {
		cfg.Logs.Level = "INFO"
	}
	cfg.Logs.Level = strings.ToUpper(cfg.Logs.Level)
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 25
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = 7
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 5
	}
}

func validate(cfg Config) error {
	if cfg.Radio.Address == "" {
		return ErrNoRadio
	}
	if cfg.Radio.APIVersion != "" {
		if _, _, err := ParseAPIVersion(cfg.Radio.APIVersion); err != nil {
			return err
		}
	}
	switch cfg.Logs.Level {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("config: unknown log level %q", cfg.Logs.Level)
	}
	if strings.ContainsAny(cfg.NATS.Subject, " *>") {
		return fmt.Errorf("config: nats.subject %q must be a literal subject", cfg.NATS.Subject)
	}
	return nil
}

// ParseAPIVersion parses "major.minor".
func ParseAPIVersion(s string) (major, minor int, err error) {
	if _, err := fmt.Sscanf(s, "%d.%d", &major, &minor); err != nil || major < 0 || minor < 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadAPIVersion, s)
	}
	return major, minor, nil
}

func resolve(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(base, p))
}

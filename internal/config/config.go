package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const configFileName = "config.json"

// Config holds all application configuration.
type Config struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	NoWatch      bool          `json:"no_watch"`
	DataDir      string        `json:"data_dir"`
	DBPath       string        `json:"-"`
	ImportDir    string        `json:"import_dir"`
	CenterID     string        `json:"center_id"`
	Timezone     string        `json:"timezone"`
	FetchCap     int           `json:"fetch_cap"`
	FetchTimeout time.Duration `json:"-"`
	// MinSessionsForFollowUp is the session count at which a
	// patient counts as followed up.
	MinSessionsForFollowUp int           `json:"min_sessions_for_follow_up"`
	WriteTimeout           time.Duration `json:"-"`

	// ImportDirs, when set in config.json, replaces the single
	// ImportDir. The env var overrides both with one directory.
	ImportDirs []string `json:"import_dirs,omitempty"`
}

// Default returns a Config with default values.
func Default() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf(
			"determining home directory: %w", err,
		)
	}
	dataDir := filepath.Join(home, ".clinicview")
	return Config{
		Host:                   "127.0.0.1",
		Port:                   8090,
		DataDir:                dataDir,
		DBPath:                 filepath.Join(dataDir, "records.db"),
		ImportDir:              filepath.Join(dataDir, "imports"),
		Timezone:               "UTC",
		FetchCap:               5000,
		FetchTimeout:           10 * time.Second,
		MinSessionsForFollowUp: 2,
		WriteTimeout:           30 * time.Second,
	}, nil
}

// Load builds a Config by layering: defaults < config file < env < flags.
// The provided FlagSet must already be parsed by the caller.
// Only flags that were explicitly set override the lower layers.
func Load(fs *flag.FlagSet) (Config, error) {
	cfg, err := LoadMinimal()
	if err != nil {
		return cfg, err
	}
	if err := applyFlags(&cfg, fs); err != nil {
		return cfg, err
	}
	cfg.DBPath = filepath.Join(cfg.DataDir, "records.db")
	return cfg, cfg.Validate()
}

// LoadMinimal builds a Config from defaults, the config file and
// env, without CLI flags. Use this for subcommands that manage
// their own flag sets.
func LoadMinimal() (Config, error) {
	cfg, err := Default()
	if err != nil {
		return cfg, err
	}
	// The config file lives in the data dir, so the data dir
	// override must be known first.
	if v := os.Getenv("CLINICVIEW_DATA_DIR"); v != "" {
		cfg.DataDir = v
		cfg.ImportDir = filepath.Join(v, "imports")
	}
	if err := cfg.loadFile(); err != nil {
		return cfg, fmt.Errorf("loading config file: %w", err)
	}
	if err := cfg.loadEnv(); err != nil {
		return cfg, err
	}
	cfg.DBPath = filepath.Join(cfg.DataDir, "records.db")
	return cfg, nil
}

func (c *Config) configPath() string {
	return filepath.Join(c.DataDir, configFileName)
}

func (c *Config) loadFile() error {
	data, err := os.ReadFile(c.configPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var file struct {
		Host                   string   `json:"host"`
		Port                   int      `json:"port"`
		ImportDir              string   `json:"import_dir"`
		ImportDirs             []string `json:"import_dirs"`
		CenterID               string   `json:"center_id"`
		Timezone               string   `json:"timezone"`
		FetchCap               int      `json:"fetch_cap"`
		FetchTimeout           string   `json:"fetch_timeout"`
		MinSessionsForFollowUp int      `json:"min_sessions_for_follow_up"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if file.Host != "" {
		c.Host = file.Host
	}
	if file.Port != 0 {
		c.Port = file.Port
	}
	if file.ImportDir != "" {
		c.ImportDir = file.ImportDir
	}
	if len(file.ImportDirs) > 0 {
		c.ImportDirs = file.ImportDirs
	}
	if file.CenterID != "" {
		c.CenterID = file.CenterID
	}
	if file.Timezone != "" {
		c.Timezone = file.Timezone
	}
	if file.FetchCap != 0 {
		c.FetchCap = file.FetchCap
	}
	if file.FetchTimeout != "" {
		d, err := time.ParseDuration(file.FetchTimeout)
		if err != nil {
			return fmt.Errorf("parsing fetch_timeout: %w", err)
		}
		c.FetchTimeout = d
	}
	if file.MinSessionsForFollowUp != 0 {
		c.MinSessionsForFollowUp = file.MinSessionsForFollowUp
	}
	return nil
}

func (c *Config) loadEnv() error {
	if v := os.Getenv("CLINICVIEW_IMPORT_DIR"); v != "" {
		c.ImportDir = v
		c.ImportDirs = []string{v}
	}
	if v := os.Getenv("CLINICVIEW_CENTER"); v != "" {
		c.CenterID = v
	}
	if v := os.Getenv("CLINICVIEW_TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("CLINICVIEW_FETCH_CAP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing CLINICVIEW_FETCH_CAP: %w", err)
		}
		c.FetchCap = n
	}
	return nil
}

// ResolveImportDirs returns the effective import directories.
// Precedence: env var (single) > config file array > single dir.
func (c *Config) ResolveImportDirs() []string {
	if len(c.ImportDirs) > 0 {
		return c.ImportDirs
	}
	if c.ImportDir != "" {
		return []string{c.ImportDir}
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.FetchCap <= 0 {
		errs = append(errs, fmt.Errorf("fetch cap must be positive, got %d", c.FetchCap))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch timeout must be positive, got %s", c.FetchTimeout))
	}
	if c.MinSessionsForFollowUp < 1 {
		errs = append(errs, fmt.Errorf(
			"min sessions for follow-up must be at least 1, got %d",
			c.MinSessionsForFollowUp,
		))
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
		}
	}
	return errors.Join(errs...)
}

// RegisterServeFlags registers serve-command flags on fs.
// The caller must call fs.Parse before passing fs to Load.
func RegisterServeFlags(fs *flag.FlagSet) {
	fs.String("host", "127.0.0.1", "Host to bind to")
	fs.Int("port", 8090, "Port to listen on")
	fs.Bool("no-watch", false, "Don't watch the import directory")
	RegisterQueryFlags(fs)
}

// RegisterQueryFlags registers the flags shared by every command
// that loads records.
func RegisterQueryFlags(fs *flag.FlagSet) {
	fs.String("center", "", "Center id to report on (empty = all)")
	fs.String("timezone", "UTC", "IANA timezone for day bucketing")
	fs.String("import-dir", "", "Directory scanned for JSONL exports")
	fs.Int("fetch-cap", 5000, "Maximum records fetched per collection")
	fs.Duration("fetch-timeout", 10*time.Second, "Timeout for loading records")
	fs.Int("min-sessions", 2, "Sessions needed to count a patient as followed up")
}

// applyFlags copies explicitly-set flags from fs into cfg.
func applyFlags(cfg *Config, fs *flag.FlagSet) error {
	if fs == nil {
		return nil
	}
	var err error
	fs.Visit(func(f *flag.Flag) {
		v := f.Value.String()
		switch f.Name {
		case "host":
			cfg.Host = v
		case "port":
			// flag already validated the int; ignore parse error
			cfg.Port, _ = strconv.Atoi(v)
		case "no-watch":
			cfg.NoWatch = v == "true"
		case "center":
			cfg.CenterID = v
		case "timezone":
			cfg.Timezone = v
		case "import-dir":
			cfg.ImportDir = v
			cfg.ImportDirs = []string{v}
		case "fetch-cap":
			cfg.FetchCap, _ = strconv.Atoi(v)
		case "fetch-timeout":
			cfg.FetchTimeout, err = time.ParseDuration(v)
		case "min-sessions":
			cfg.MinSessionsForFollowUp, _ = strconv.Atoi(v)
		}
	})
	return err
}

// ResolveDataDir returns the effective data directory by applying
// defaults and environment overrides, without reading any files.
func ResolveDataDir() (string, error) {
	cfg, err := Default()
	if err != nil {
		return "", err
	}
	if v := os.Getenv("CLINICVIEW_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	return cfg.DataDir, nil
}

// SaveCenter persists the default center id to the config file,
// keeping any other keys already there.
func (c *Config) SaveCenter(center string) error {
	if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	existing := make(map[string]any)
	data, err := os.ReadFile(c.configPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf(
				"existing config is invalid, cannot update: %w",
				err,
			)
		}
	}

	existing["center_id"] = center
	out, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(c.configPath(), out, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	c.CenterID = center
	return nil
}

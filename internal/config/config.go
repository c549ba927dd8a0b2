// Package config holds the explicit settings of a playback run: the agent
// endpoint, buffer capacity, verbosity and I/O deadline.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/xvcplay/pkg/scan"
	"github.com/OpenTraceLab/xvcplay/pkg/xvc"
)

// EnvPrefix prefixes environment overrides, e.g. XVCPLAY_ADDR.
const EnvPrefix = "XVCPLAY"

// Config stores the settings shared by every command.
type Config struct {
	Addr      string        // agent endpoint, host:port
	Capacity  int           // bit-plane size in bytes
	Verbosity int           // 0 quiet, 1 status, 2 tap states and batches
	IOTimeout time.Duration // per-exchange deadline, zero for none
	TCKHz     int           // requested TCK, zero leaves the agent's clock alone
	Journal   bool          // also log to the systemd journal
	LogFormat string        // text or json
}

// Default returns the settings of the classic host: a local agent on the
// XVC port, 1 KiB planes, quiet output and blocking I/O.
func Default() Config {
	return Config{
		Addr:      fmt.Sprintf("127.0.0.1:%d", xvc.DefaultPort),
		Capacity:  scan.DefaultCapacity,
		Verbosity: 0,
		LogFormat: "text",
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("config: empty agent address")
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("config: capacity must be positive, got %d", c.Capacity)
	}
	if c.Verbosity < 0 || c.Verbosity > 2 {
		return fmt.Errorf("config: verbosity must be 0..2, got %d", c.Verbosity)
	}
	if c.IOTimeout < 0 {
		return fmt.Errorf("config: negative I/O timeout %s", c.IOTimeout)
	}
	if c.TCKHz < 0 {
		return fmt.Errorf("config: negative TCK frequency %d", c.TCKHz)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	return nil
}

// Keys lists the flag names that may also come from the environment or a
// config file.
var Keys = []string{"addr", "capacity", "verbosity", "io-timeout", "tck-hz", "journal", "log-format"}

// RegisterFlags binds c to fs. Current values of c become the defaults.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", c.Addr, "XVC agent address (host:port)")
	fs.IntVar(&c.Capacity, "capacity", c.Capacity, "bit-plane buffer size in bytes")
	fs.IntVarP(&c.Verbosity, "verbosity", "V", c.Verbosity, "report level: 0 quiet, 1 status, 2 tap states")
	fs.DurationVar(&c.IOTimeout, "io-timeout", c.IOTimeout, "deadline for each agent exchange (0 = none)")
	fs.IntVar(&c.TCKHz, "tck-hz", c.TCKHz, "TCK frequency to request from the agent (0 = unchanged)")
	fs.BoolVar(&c.Journal, "journal", c.Journal, "also log to the systemd journal")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: text or json")
}

// Resolve fills every flag in Keys the user did not set on the command line,
// first from the environment (EnvPrefix_NAME) and then from file values.
func Resolve(fs *pflag.FlagSet, file map[string]string) error {
	for _, name := range Keys {
		f := fs.Lookup(name)
		if f == nil || f.Changed {
			continue
		}
		value, ok := os.LookupEnv(EnvName(name))
		source := EnvName(name)
		if !ok {
			value, ok = file[name]
			source = "config file"
		}
		if !ok {
			continue
		}
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("config: %s from %s: %w", name, source, err)
		}
	}
	return nil
}

// EnvName returns the environment variable overriding flag name.
func EnvName(name string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// DefaultPath returns the per-user config file location.
func DefaultPath() (string, error) {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, "xvcplay", "config.toml"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "xvcplay", "config.toml"), nil
}

// LoadFile reads a table keyed by flag name. The format follows the
// extension: .yaml and .yml are YAML, .json is JSON, anything else TOML. A
// missing file yields no values and no error.
func LoadFile(path string) (map[string]string, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var doc map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(buf, &doc)
	case ".json":
		err = json.Unmarshal(buf, &doc)
	default:
		err = toml.Unmarshal(buf, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("config: %s parse failed: %w", path, err)
	}

	values := make(map[string]string, len(doc))
	for key, v := range doc {
		switch v := v.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("config: %s: %s must be a scalar", path, key)
		case float64:
			// JSON numbers
			values[key] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			values[key] = fmt.Sprint(v)
		}
	}
	return values, nil
}

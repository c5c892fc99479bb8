package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	kToml "github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable lndir reads.
const EnvPrefix = "LNDIR_"

// envKeys maps environment variable suffixes to config keys.
var envKeys = map[string]string{
	"SILENT":        "silent",
	"IGNORE_LINKS":  "ignorelinks",
	"IGNORELINKS":   "ignorelinks",
	"WITH_REV_INFO": "withrevinfo",
	"WITHREVINFO":   "withrevinfo",
	"MAX_DEPTH":     "maxdepth",
	"MAXDEPTH":      "maxdepth",
}

// LoadRequest describes where options come from.
type LoadRequest struct {
	// Paths locates the default config file
	Paths *Paths

	// ConfigFile is an explicit config file; it must exist when set
	ConfigFile string

	// Overrides are values set on the command line, keyed like the config
	// file. They win over every other layer.
	Overrides map[string]interface{}
}

// Loaded is the result of Load.
type Loaded struct {
	Options Options

	// ConfigFile is the config file that was read, or "" if none
	ConfigFile string
}

// Load resolves Options from defaults, config file, environment and
// overrides, in that order.
func Load(req LoadRequest) (*Loaded, error) {
	k := koanf.New(".")

	// 1. Built-in defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	configFile := req.ConfigFile
	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return nil, fmt.Errorf("%w: config file %s: %v", ErrInvalid, configFile, err)
		}
	} else if req.Paths != nil {
		configFile = req.Paths.FindConfigFile()
	}
	if configFile != "" {
		parser, err := parserFor(configFile)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(configFile), parser); err != nil {
			return nil, fmt.Errorf("%w: failed to load config from %s: %v", ErrInvalid, configFile, err)
		}
	}

	// 3. Environment
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// 4. Command line
	if len(req.Overrides) > 0 {
		if err := k.Load(confmap.Provider(req.Overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load overrides: %w", err)
		}
	}

	var opts Options
	if err := k.Unmarshal("", &opts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return &Loaded{Options: opts, ConfigFile: configFile}, nil
}

// WriteTOML writes the options as a TOML document.
func (o Options) WriteTOML(w io.Writer) error {
	data, err := toml.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to encode options: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"silent":      false,
		"ignorelinks": false,
		"withrevinfo": false,
		"maxdepth":    0,
	}
}

// envKey maps LNDIR_MAX_DEPTH to maxdepth. Unknown variables are skipped.
func envKey(name string) string {
	return envKeys[strings.TrimPrefix(name, EnvPrefix)]
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return kToml.Parser(), nil
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported config file format %q", ErrInvalid, path)
	}
}

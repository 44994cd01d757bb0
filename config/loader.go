package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment variable overrides.
	// A double underscore separates nesting levels, so
	// FLOWMILL_SERVER__PORT maps to server.port and
	// FLOWMILL_ENGINE__POLL_INTERVAL maps to engine.poll_interval.
	EnvPrefix = "FLOWMILL_"

	// Delimiter separates nested keys in koanf paths.
	Delimiter = "."
)

// defaultFileCandidates are probed in order when no config path is given.
var defaultFileCandidates = []string{
	"config.yaml",
	"config.yml",
	"config.json",
	"/etc/flowmill/config.yaml",
	"/etc/flowmill/config.yml",
	"/etc/flowmill/config.json",
}

// Loader resolves configuration from defaults, file, environment and
// explicit overrides, each layer taking precedence over the previous one.
type Loader struct {
	k *koanf.Koanf
}

// NewLoader creates an empty configuration loader.
func NewLoader() *Loader {
	return &Loader{k: koanf.New(Delimiter)}
}

// Load resolves the full configuration. configPath may be empty, in which
// case the default file locations are probed and silently skipped when
// absent. overrides are dotted koanf keys, e.g. "server.port".
func (l *Loader) Load(configPath string, overrides map[string]any) (*Config, error) {
	if err := l.loadDefaults(); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := l.loadFile(configPath); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else {
		l.loadDefaultFiles()
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if len(overrides) > 0 {
		if err := l.k.Load(confmap.Provider(overrides, Delimiter), nil); err != nil {
			return nil, fmt.Errorf("apply overrides: %w", err)
		}
	}

	var cfg Config
	if err := l.k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "mapstructure"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := ValidateWithDetails(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDefaults seeds the koanf tree from DefaultConfig. Loading the
// defaults as a flat base layer means every key exists before the file
// and env layers merge over it.
func (l *Loader) loadDefaults() error {
	return l.k.Load(confmap.Provider(structToMap(DefaultConfig()), Delimiter), nil)
}

// loadFile loads a YAML or JSON config file, selected by extension.
func (l *Loader) loadFile(path string) error {
	parser, err := parserFor(path)
	if err != nil {
		return err
	}
	if err := l.k.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// loadDefaultFiles probes the well-known locations and loads the first
// file that exists. A missing file is not an error.
func (l *Loader) loadDefaultFiles() {
	for _, candidate := range defaultFileCandidates {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if err := l.loadFile(candidate); err == nil {
			return
		}
	}
}

// loadEnv merges FLOWMILL_ environment variables over the current tree.
func (l *Loader) loadEnv() error {
	provider := env.Provider(EnvPrefix, Delimiter, func(key string) string {
		trimmed := strings.TrimPrefix(key, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(trimmed), "__", Delimiter)
	})
	return l.k.Load(provider, nil)
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", path)
	}
}

// structToMap flattens a config struct into a nested map keyed by
// mapstructure tags, suitable for the confmap provider.
func structToMap(v any) map[string]any {
	out := make(map[string]any)
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return out
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		tag = strings.Split(tag, ",")[0]

		value := rv.Field(i)
		if value.Kind() == reflect.Struct && field.Type.String() != "time.Duration" {
			out[tag] = structToMap(value.Interface())
			continue
		}
		out[tag] = value.Interface()
	}
	return out
}

// Get returns a raw value from the resolved tree by dotted key.
func (l *Loader) Get(key string) any { return l.k.Get(key) }

// GetString returns a string value by dotted key.
func (l *Loader) GetString(key string) string { return l.k.String(key) }

// GetInt returns an int value by dotted key.
func (l *Loader) GetInt(key string) int { return l.k.Int(key) }

// GetBool returns a bool value by dotted key.
func (l *Loader) GetBool(key string) bool { return l.k.Bool(key) }

// Set writes a value into the tree, primarily for tests.
func (l *Loader) Set(key string, value any) error {
	return l.k.Load(confmap.Provider(map[string]any{key: value}, Delimiter), nil)
}

// Load resolves configuration with a fresh loader.
func Load(configPath string, overrides map[string]any) (*Config, error) {
	return NewLoader().Load(configPath, overrides)
}

// LoadOrDie resolves configuration and exits the process on failure.
func LoadOrDie(configPath string, overrides map[string]any) *Config {
	cfg, err := Load(configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/perbu/emqu/pkg/emqu"
)

// Load builds the configuration from Default, the YAML file at path and EMQU_
// environment variables, later sources winning, and validates the result.
// A missing file is skipped; an empty path skips the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		data, err := readYAML(path)
		if err != nil {
			return nil, err
		}
		if len(data) > 0 {
			if err := k.Load(rawMap(data), nil); err != nil {
				return nil, fmt.Errorf("failed to apply %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key string, value string) (string, any) {
			return transformEnvKey(strings.TrimPrefix(key, EnvPrefix)), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
		},
	}); err != nil {
		return nil, emqu.NewError(emqu.ErrInvalidArgument, "load configuration", "", err)
	}

	if cfg.Embedder.APIKey == "" {
		cfg.Embedder.APIKey = os.Getenv(OpenAIKeyEnv)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readYAML(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, emqu.NewError(emqu.ErrIO, "read configuration", path, err)
	}
	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, emqu.NewError(emqu.ErrInvalidArgument, "parse configuration", path, err)
	}
	return filterNilValues(values), nil
}

// filterNilValues drops empty YAML keys so they do not erase defaults
func filterNilValues(m map[string]any) map[string]any {
	result := make(map[string]any, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			if filtered := filterNilValues(nested); len(filtered) > 0 {
				result[k] = filtered
			}
			continue
		}
		result[k] = v
	}
	return result
}

// rawMap adapts an already parsed map to koanf.Provider
type rawMap map[string]any

func (r rawMap) Read() (map[string]any, error) {
	return r, nil
}

func (r rawMap) ReadBytes() ([]byte, error) {
	return nil, errors.New("ReadBytes not implemented")
}

// transformEnvKey maps the unprefixed variable name to a koanf path: the first
// segment is the section, the rest is the field name.
// EMBEDDER_BASE_URL -> embedder.base_url
func transformEnvKey(s string) string {
	parts := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == '_'
	})
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return parts[0] + "." + strings.Join(parts[1:], "_")
	}
}

var validate = validator.New()

// Validate checks ranges and enumerations of cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return emqu.Errorf(emqu.ErrInvalidArgument, "validate configuration", "configuration cannot be nil")
	}
	if err := validate.Struct(cfg); err != nil {
		return emqu.NewError(emqu.ErrInvalidArgument, "validate configuration", "", err)
	}
	return nil
}

package cmd

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/subarr/internal/config"
	"github.com/jmylchreest/subarr/pkg/bytesize"
	"github.com/jmylchreest/subarr/pkg/duration"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing subarr configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

This shows all available configuration options with their default values.
You can redirect this output to a file to create a configuration template:

  subarr config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml, ~/.subarr/config.yaml, /etc/subarr/config.yaml)
  - Environment variables (SUBARR_TRANSLATION_API_KEY, etc.)
  - Command-line flags (for some options)

Environment variables use the SUBARR_ prefix and underscores for nesting.
Example: translation.api_key -> SUBARR_TRANSLATION_API_KEY`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a struct to a map, formatting durations and sizes for
// human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Tag.Get("yaml")
		}
		if key == "" {
			key = fieldType.Name
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = duration.Format(v)
		case config.ByteSize:
			result[key] = bytesize.Format(bytesize.Size(v))
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	// Defaults only, no file.
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfgMap := toMap(cfg)

	yamlData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	header := []string{
		"# subarr Configuration File",
		"# ==========================",
		"#",
		"# All values shown below are defaults.",
		"# Duration format: 30s, 5m, 1h",
		"# Size format: 5MB, 1GB",
		"#",
		"# Environment variable overrides:",
		"#   SUBARR_TRANSLATION_ENGINE, SUBARR_TRANSLATION_API_KEY",
		"#   SUBARR_SCHEDULER_MAX_WORKERS",
		"#   SUBARR_LOGGING_LEVEL, SUBARR_LOGGING_FORMAT",
		"#   etc.",
		"#",
		"",
	}
	fmt.Print(strings.Join(header, "\n"))
	fmt.Print(string(yamlData))

	return nil
}

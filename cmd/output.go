package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/vexa-cli/config"
)

// resolveFormat returns the --output flag value if set, otherwise the
// configured default.
func resolveFormat(flag string, cfg *config.CLIConfig) (config.OutputFormat, error) {
	if flag != "" {
		f := config.OutputFormat(flag)
		if !f.IsValid() {
			return "", fmt.Errorf("invalid output format: %s (must be text, json, or yaml)", flag)
		}
		return f, nil
	}
	if cfg != nil && cfg.OutputFormat != "" {
		return cfg.OutputFormat, nil
	}
	return config.OutputFormatText, nil
}

// writeOutput encodes v as JSON or YAML, or calls text for the text format.
func writeOutput(w io.Writer, format config.OutputFormat, v interface{}, text func(io.Writer) error) error {
	switch format {
	case config.OutputFormatJSON:
		return outputJSON(w, v)
	case config.OutputFormatYAML:
		return outputYAML(w, v)
	default:
		return text(w)
	}
}

func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func outputYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(v)
}

// truncateString truncates a string to maxLen runes, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

package common

import (
	"time"

	"github.com/invopop/jsonschema"
)

// Duration wraps time.Duration so it can be parsed from and rendered as a
// human-readable string ("1m", "300ms") in YAML/JSON/TOML configuration,
// instead of the raw nanosecond integer time.Duration marshals to by default.
type Duration struct {
	time.Duration
}

// NewDuration wraps a time.Duration.
func NewDuration(d time.Duration) Duration {
	return Duration{Duration: d}
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// JSONSchema lets Duration render as a plain string in generated JSON
// schemas instead of the struct shape time.Duration would otherwise produce.
func (d Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Title:       "Duration",
		Description: "Duration expressed in units, e.g. \"1m\", \"300ms\", \"1h30m\"",
		Examples:    []interface{}{"1m", "300ms", "30s"},
	}
}

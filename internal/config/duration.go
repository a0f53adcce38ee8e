package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that YAML can carry either as a duration
// string ("300ms", "15m") or as a bare number of seconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	// Numbers first: a numeric scalar also decodes into a string, which
	// time.ParseDuration would then reject for lacking a unit.
	var seconds float64

	if err := value.Decode(&seconds); err == nil {
		*d = Duration(time.Duration(seconds * float64(time.Second)))

		return nil
	}

	var s string

	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("config: invalid duration %q: %w", s, perr)
		}

		*d = Duration(parsed)

		return nil
	}

	return fmt.Errorf("config: cannot parse %q as a duration", value.Value)
}

// MarshalYAML implements yaml.Marshaler, rendering the duration string
// form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

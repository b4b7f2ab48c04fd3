// Package config handles application configuration.
package config

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DurationSeconds is a duration that can be unmarshalled from a bare
// number of seconds or from a Go duration string like "1m30s".
type DurationSeconds int64

// UnmarshalYAML implements the yaml.Unmarshaler interface for DurationSeconds.
func (d *DurationSeconds) UnmarshalYAML(value *yaml.Node) error {
	switch value.Tag {
	case "!!int":
		n, err := strconv.ParseInt(value.Value, 10, 64)
		if err != nil {
			return err
		}
		*d = DurationSeconds(n)
	case "!!float":
		f, err := strconv.ParseFloat(value.Value, 64)
		if err != nil {
			return err
		}
		*d = DurationSeconds(int64(f))
	case "!!str":
		dur, err := time.ParseDuration(value.Value)
		if err != nil {
			return fmt.Errorf("cannot unmarshal string %q into DurationSeconds: %w", value.Value, err)
		}
		*d = DurationSeconds(int64(dur / time.Second))
	default:
		return fmt.Errorf("cannot unmarshal %s into DurationSeconds", value.Tag)
	}
	return nil
}

// Duration converts to a time.Duration.
func (d DurationSeconds) Duration() time.Duration {
	return time.Duration(d) * time.Second
}

package types

import (
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts either a Go duration string ("1m30s") or a plain
// number of seconds.
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if seconds, err := strconv.ParseUint(node.Value, 10, 32); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}

	tmp, err := time.ParseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = Duration(tmp)
	return nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

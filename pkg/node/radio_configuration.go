package node

import (
	"fmt"
	"strconv"

	"github.com/Archie3d/lora-relay-node/pkg/radio"
	"github.com/brocaar/lorawan/band"
	"gopkg.in/yaml.v3"
)

// Region is a LoRaWAN regional band name, e.g. EU868.
type Region band.Name

func (r Region) MarshalYAML() (any, error) {
	return string(r), nil
}

func (r *Region) UnmarshalYAML(node *yaml.Node) error {
	name := band.Name(node.Value)

	if _, err := radio.Band(name); err != nil {
		return fmt.Errorf("unsupported region '%s'", node.Value)
	}

	*r = Region(name)

	return nil
}

//------------------------------------------------------------------------------

type DataRate int

func (d DataRate) MarshalYAML() (any, error) {
	return int(d), nil
}

func (d *DataRate) UnmarshalYAML(node *yaml.Node) error {
	dr, err := strconv.ParseUint(node.Value, 10, 8)
	if err != nil {
		return err
	}

	if dr > 15 {
		return fmt.Errorf("unsupported data rate %d", dr)
	}

	*d = DataRate(dr)

	return nil
}

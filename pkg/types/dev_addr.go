package types

import (
	"github.com/brocaar/lorawan"
	"gopkg.in/yaml.v3"
)

// DevAddr is the 32-bit device address used for ABP activation.
type DevAddr lorawan.DevAddr

func (a DevAddr) MarshalYAML() (any, error) {
	return a.String(), nil
}

func (a *DevAddr) UnmarshalYAML(node *yaml.Node) error {
	var addr lorawan.DevAddr
	if err := addr.UnmarshalText([]byte(node.Value)); err != nil {
		return err
	}
	*a = DevAddr(addr)
	return nil
}

func (a DevAddr) MarshalJSON() ([]byte, error) {
	return []byte("\"" + a.String() + "\""), nil
}

func (a *DevAddr) UnmarshalJSON(data []byte) error {
	value := string(data)
	if len(value) > 2 && value[0] == '"' && value[len(value)-1] == '"' {
		value = value[1 : len(value)-1]
	}

	var addr lorawan.DevAddr
	if err := addr.UnmarshalText([]byte(value)); err != nil {
		return err
	}
	*a = DevAddr(addr)
	return nil
}

func (a DevAddr) String() string {
	return lorawan.DevAddr(a).String()
}

func (a DevAddr) IsZero() bool {
	return a == DevAddr{}
}

package types

import (
	"github.com/brocaar/lorawan"
	"gopkg.in/yaml.v3"
)

// AESKey is a 128-bit LoRaWAN session key written as 32 hex digits.
type AESKey lorawan.AES128Key

func (k AESKey) MarshalYAML() (any, error) {
	return k.String(), nil
}

func (k *AESKey) UnmarshalYAML(node *yaml.Node) error {
	var key lorawan.AES128Key
	if err := key.UnmarshalText([]byte(node.Value)); err != nil {
		return err
	}
	*k = AESKey(key)
	return nil
}

func (k AESKey) String() string {
	return lorawan.AES128Key(k).String()
}

func (k AESKey) IsZero() bool {
	return k == AESKey{}
}

package node

import (
	"os"
	"time"

	"github.com/Archie3d/lora-relay-node/pkg/command"
	"github.com/Archie3d/lora-relay-node/pkg/link"
	"github.com/Archie3d/lora-relay-node/pkg/radio"
	"github.com/Archie3d/lora-relay-node/pkg/settings"
	"github.com/Archie3d/lora-relay-node/pkg/types"
	"github.com/brocaar/lorawan"
	"github.com/brocaar/lorawan/band"
	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultNatsSubjectPrefix = "relay"
	DefaultMetricsBind       = "0.0.0.0:9100"

	// LoRaWAN application ports
	minPort = 1
	maxPort = 223
)

type NodeConfiguration struct {
	SerialPort string `yaml:"serial_port"`
	LogLevel   string `yaml:"log_level"`

	NatsUrl           string `yaml:"nats_url"`
	NatsSubjectPrefix string `yaml:"nats_subject_prefix"`

	// Prometheus endpoint, empty disables it
	MetricsBind string `yaml:"metrics_bind"`

	Radio    RadioConfiguration    `yaml:"radio"`
	Session  SessionConfiguration  `yaml:"session"`
	Settings SettingsConfiguration `yaml:"settings"`
	Command  CommandConfiguration  `yaml:"command"`
}

type RadioConfiguration struct {
	Region   Region   `yaml:"region"`
	TxPower  int      `yaml:"tx_power"`
	DataRate DataRate `yaml:"data_rate"`

	// Zero selects the regional default
	RX2Frequency uint32   `yaml:"rx2_frequency"`
	RX2DataRate  DataRate `yaml:"rx2_data_rate"`

	EnforcePayloadSize bool `yaml:"enforce_payload_size"`
}

type SessionConfiguration struct {
	DevAddr types.DevAddr `yaml:"dev_addr"`
	NwkSKey types.AESKey  `yaml:"nwk_s_key"`
	AppSKey types.AESKey  `yaml:"app_s_key"`

	RejoinBackoff BackoffConfiguration `yaml:"rejoin_backoff"`
}

type BackoffConfiguration struct {
	Initial types.Duration `yaml:"initial"`
	Max     types.Duration `yaml:"max"`
	Factor  float64        `yaml:"factor"`
}

type SettingsConfiguration struct {
	Port int    `yaml:"port"`
	File string `yaml:"file"`
}

type CommandConfiguration struct {
	Port int `yaml:"port"`
}

func DefaultNodeConfiguration() *NodeConfiguration {
	return &NodeConfiguration{
		LogLevel:          "info",
		NatsSubjectPrefix: DefaultNatsSubjectPrefix,
		MetricsBind:       DefaultMetricsBind,
		Radio: RadioConfiguration{
			Region:      Region(radio.DefaultRegion),
			TxPower:     link.DefaultTxPower,
			DataRate:    link.DefaultDataRate,
			RX2DataRate: link.DefaultRX2DataRate,
		},
		Settings: SettingsConfiguration{
			Port: settings.DefaultPort,
		},
		Command: CommandConfiguration{
			Port: command.DefaultPort,
		},
	}
}

// LoadNodeConfiguration reads a YAML file on top of the defaults.
func LoadNodeConfiguration(configFile string) (*NodeConfiguration, error) {
	f, err := os.Open(configFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	config := DefaultNodeConfiguration()
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(config); err != nil {
		return nil, errors.Wrapf(err, "decode %s error", configFile)
	}

	if err := config.Resolve(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Resolve fills in values that depend on other settings, like the
// regional RX2 frequency.
func (c *NodeConfiguration) Resolve() error {
	if c.Radio.RX2Frequency == 0 {
		frequency, err := radio.DefaultRX2Frequency(band.Name(c.Radio.Region))
		if err != nil {
			return err
		}
		c.Radio.RX2Frequency = frequency
	}

	if c.NatsSubjectPrefix == "" {
		c.NatsSubjectPrefix = DefaultNatsSubjectPrefix
	}

	return nil
}

func (c *NodeConfiguration) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}

	if c.Radio.TxPower < 0 || c.Radio.TxPower > 30 {
		return errors.Errorf("unsupported tx power %d dBm", c.Radio.TxPower)
	}

	for _, port := range []int{c.Settings.Port, c.Command.Port} {
		if port < minPort || port > maxPort {
			return errors.Errorf("port %d is outside of %d..%d", port, minPort, maxPort)
		}
	}

	if c.Settings.Port == c.Command.Port {
		return errors.Errorf("settings and command share port %d", c.Settings.Port)
	}

	if !c.Session.DevAddr.IsZero() && (c.Session.NwkSKey.IsZero() || c.Session.AppSKey.IsZero()) {
		return errors.New("ABP dev_addr is set but session keys are missing")
	}

	return nil
}

func (c *NodeConfiguration) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

func (c *NodeConfiguration) LinkConfig() link.Config {
	return link.Config{
		Region:       band.Name(c.Radio.Region),
		TxPower:      c.Radio.TxPower,
		DataRate:     int(c.Radio.DataRate),
		RX2Frequency: c.Radio.RX2Frequency,
		RX2DataRate:  int(c.Radio.RX2DataRate),

		DevAddr: lorawan.DevAddr(c.Session.DevAddr),
		NwkSKey: lorawan.AES128Key(c.Session.NwkSKey),
		AppSKey: lorawan.AES128Key(c.Session.AppSKey),

		RejoinBackoff: link.Backoff{
			Initial: time.Duration(c.Session.RejoinBackoff.Initial),
			Max:     time.Duration(c.Session.RejoinBackoff.Max),
			Factor:  c.Session.RejoinBackoff.Factor,
		},

		EnforcePayloadSize: c.Radio.EnforcePayloadSize,
	}
}

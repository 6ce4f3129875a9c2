package node

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Archie3d/lora-relay-node/pkg/types"
	"github.com/brocaar/lorawan"
	"github.com/brocaar/lorawan/band"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadNodeConfigYaml(t *testing.T) {
	cfg, err := LoadNodeConfiguration(filepath.Join("testdata", "node_config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.SerialPort)
	assert.Equal(t, log.DebugLevel, cfg.Level())
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NatsUrl)
	assert.Equal(t, "field.relay01", cfg.NatsSubjectPrefix)
	assert.Equal(t, "127.0.0.1:9200", cfg.MetricsBind)

	assert.Equal(t, Region(band.EU868), cfg.Radio.Region)
	assert.Equal(t, 14, cfg.Radio.TxPower)
	assert.Equal(t, DataRate(5), cfg.Radio.DataRate)
	assert.Equal(t, DataRate(3), cfg.Radio.RX2DataRate)
	assert.Equal(t, uint32(869525000), cfg.Radio.RX2Frequency)
	assert.True(t, cfg.Radio.EnforcePayloadSize)

	assert.Equal(t, types.DevAddr{0x26, 0x01, 0x1b, 0xda}, cfg.Session.DevAddr)
	assert.Equal(t, "2b7e151628aed2a6abf7158809cf4f3c", cfg.Session.NwkSKey.String())
	assert.Equal(t, types.Duration(10*time.Second), cfg.Session.RejoinBackoff.Initial)
	assert.Equal(t, types.Duration(10*time.Minute), cfg.Session.RejoinBackoff.Max)
	assert.Equal(t, 2.0, cfg.Session.RejoinBackoff.Factor)

	assert.Equal(t, 3, cfg.Settings.Port)
	assert.Equal(t, "/var/lib/relay-node/settings.json", cfg.Settings.File)
	assert.Equal(t, 30, cfg.Command.Port)
}

func TestLinkConfig(t *testing.T) {
	cfg, err := LoadNodeConfiguration(filepath.Join("testdata", "node_config.yaml"))
	require.NoError(t, err)

	lc := cfg.LinkConfig()

	assert.Equal(t, band.EU868, lc.Region)
	assert.Equal(t, 14, lc.TxPower)
	assert.Equal(t, 5, lc.DataRate)
	assert.Equal(t, uint32(869525000), lc.RX2Frequency)
	assert.Equal(t, 3, lc.RX2DataRate)
	assert.Equal(t, lorawan.DevAddr{0x26, 0x01, 0x1b, 0xda}, lc.DevAddr)
	assert.Equal(t, 10*time.Second, lc.RejoinBackoff.Initial)
	assert.True(t, lc.RejoinBackoff.Enabled())
	assert.True(t, lc.EnforcePayloadSize)
}

func TestMinimalConfigUsesDefaults(t *testing.T) {
	cfg, err := LoadNodeConfiguration(filepath.Join("testdata", "minimal.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Region(band.US915), cfg.Radio.Region)
	assert.Equal(t, uint32(923300000), cfg.Radio.RX2Frequency)
	assert.Equal(t, 20, cfg.Radio.TxPower)
	assert.Equal(t, DataRate(3), cfg.Radio.DataRate)
	assert.Equal(t, 3, cfg.Settings.Port)
	assert.Equal(t, 30, cfg.Command.Port)
	assert.Equal(t, DefaultNatsSubjectPrefix, cfg.NatsSubjectPrefix)
	assert.Equal(t, DefaultMetricsBind, cfg.MetricsBind)
	assert.Equal(t, log.InfoLevel, cfg.Level())

	assert.True(t, cfg.Session.DevAddr.IsZero())
	assert.False(t, cfg.LinkConfig().RejoinBackoff.Enabled())
}

func TestInvalidConfigs(t *testing.T) {
	for _, name := range []string{"port_clash.yaml", "bad_region.yaml", "missing.yaml"} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadNodeConfiguration(filepath.Join("testdata", name))
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultNodeConfiguration()
	assert.NoError(t, cfg.Validate())

	cfg.Session.DevAddr = types.DevAddr{0x01, 0x02, 0x03, 0x04}
	assert.Error(t, cfg.Validate())

	cfg.Session.NwkSKey = types.AESKey{0x01}
	cfg.Session.AppSKey = types.AESKey{0x02}
	assert.NoError(t, cfg.Validate())

	cfg.Command.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultNodeConfiguration()
	cfg.LogLevel = "chatty"
	assert.Error(t, cfg.Validate())

	cfg = DefaultNodeConfiguration()
	cfg.Radio.TxPower = 40
	assert.Error(t, cfg.Validate())
}

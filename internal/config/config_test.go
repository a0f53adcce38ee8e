package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk4msl/goax25kiss/internal/config"
)

const sampleYAML = `
station:
  callsign: VK4MSL
  ssid: 10
  ax25_2_2: true
  max_retries: 5
  idle_timeout: 300s
kiss:
  kind: tcp
  device: "localhost:8001"
  channel: 2
  send_block_size: 64
  send_block_delay: 5ms
  reset_on_close: true
  kiss_commands: []
aprs:
  retransmit_count: 2
  retransmit_timeout_base: 20s
  retransmit_timeout_rand: 5s
  retransmit_timeout_scale: 2.0
  aprs_destination: APZ001
  aprs_path: [WIDE1-1, WIDE2-1]
  listen_altnets: ["^VK4NET"]
  msgid_modulo: 100
  deduplication_expiry: 30s
digipeater:
  enabled: true
  aliases: [RELAY]
`

func loadSample(t *testing.T) config.Config {
	t.Helper()

	path := filepath.Join(t.TempDir(), "station.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	return cfg
}

func TestLoadStationSection(t *testing.T) {
	cfg := loadSample(t)

	assert.Equal(t, "VK4MSL", cfg.Station.Callsign)
	assert.Equal(t, uint8(10), cfg.Station.SSID)
	assert.Equal(t, "VK4MSL-10", cfg.Address().String())

	pc := cfg.PeerConfig()
	assert.Equal(t, 5, pc.MaxRetries)
	assert.Equal(t, 5*time.Minute, pc.IdleTimeout)
}

func TestDeviceConfigTranslation(t *testing.T) {
	cfg := loadSample(t)

	dc := cfg.DeviceConfig()
	assert.Equal(t, 64, dc.SendBlockSize)
	assert.Equal(t, 5*time.Millisecond, dc.SendBlockDelay)
	assert.True(t, dc.ResetOnClose)
	// An explicit empty kiss_commands list means "no handshake", which must
	// survive translation rather than collapsing to the default sequence.
	assert.NotNil(t, dc.InitCommands)
	assert.Empty(t, dc.InitCommands)
}

func TestAPRSIfaceConfigTranslation(t *testing.T) {
	cfg := loadSample(t)

	ac := cfg.APRSIfaceConfig()
	assert.Equal(t, 2, ac.RetransmitCount)
	assert.Equal(t, 20*time.Second, ac.RetransmitTimeoutBase)
	assert.Equal(t, 5*time.Second, ac.RetransmitTimeoutRand)
	assert.Equal(t, 2.0, ac.RetransmitTimeoutScale)
	assert.Equal(t, 100, ac.MsgIDModulo)
	assert.Equal(t, 30*time.Second, ac.DedupeWindow)
	assert.Equal(t, "APZ001", ac.Destination.Callsign)

	require.Len(t, ac.Path, 2)
	assert.Equal(t, "WIDE1-1", ac.Path[0].String())
	assert.Equal(t, "WIDE2-1", ac.Path[1].String())

	assert.Equal(t, []string{"^VK4NET"}, ac.ListenAltNets)
}

func TestDigipeaterConfigParsesAliasSSIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "station.yaml")
	doc := "digipeater:\n  enabled: true\n  aliases: [RELAY, WIDE1-1, WIDE2-1]\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	dc := cfg.DigipeaterConfigFor(cfg.Address())
	require.Len(t, dc.Aliases, 3)
	assert.Equal(t, "RELAY", dc.Aliases[0].String())
	assert.Equal(t, "WIDE1-1", dc.Aliases[1].String())
	assert.Equal(t, uint8(1), dc.Aliases[2].SSID)
}

func TestDurationAcceptsBareSeconds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "station.yaml")
	require.NoError(t, os.WriteFile(path, []byte("station:\n  idle_timeout: 900\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.Station.IdleTimeout.Std())
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

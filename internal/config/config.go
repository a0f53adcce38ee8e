// Package config loads the YAML configuration describing a station's
// callsign, KISS transport, and APRS behaviour.
package config

import (
	"fmt"
	"os"
	"os/exec"

	"gopkg.in/yaml.v3"

	"github.com/vk4msl/goax25kiss/internal/ax25"
	"github.com/vk4msl/goax25kiss/internal/aprsiface"
	"github.com/vk4msl/goax25kiss/internal/digipeater"
	"github.com/vk4msl/goax25kiss/internal/iface"
	"github.com/vk4msl/goax25kiss/internal/kiss"
	"github.com/vk4msl/goax25kiss/internal/peer"
)

// KISSConfig describes the transport to a TNC and the device-level KISS
// behaviour layered on it.
type KISSConfig struct {
	// Kind selects the transport: "serial", "subprocess", or "tcp". Empty
	// defaults to serial.
	Kind string `yaml:"kind"`
	// Device is a serial port path (e.g. "/dev/ttyUSB0") for serial, or
	// "host:port" for tcp.
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
	// Command is the argv of the TNC subprocess for kind "subprocess".
	Command []string `yaml:"command"`
	Channel byte     `yaml:"channel"`

	// KISSCommands overrides the TNC initialisation handshake; absent
	// means the stock "INT KISS" / "RESET" sequence, an explicit empty
	// list means no handshake at all (e.g. a Direwolf TCP port).
	KISSCommands   *[]string     `yaml:"kiss_commands"`
	SendBlockSize  int           `yaml:"send_block_size"`
	SendBlockDelay Duration      `yaml:"send_block_delay"`
	ResetOnClose   bool          `yaml:"reset_on_close"`
}

// StationConfig describes one local callsign and its link-layer
// parameters.
type StationConfig struct {
	Callsign  string `yaml:"callsign"`
	SSID      uint8  `yaml:"ssid"`
	AX25_2_2  bool   `yaml:"ax25_2_2"`
	FullDuplex bool  `yaml:"full_duplex"`

	MaxIField            int           `yaml:"max_i_field"`
	MaxRetries           int           `yaml:"max_retries"`
	MaxOutstandingMod8   int           `yaml:"max_outstanding_mod8"`
	MaxOutstandingMod128 int           `yaml:"max_outstanding_mod128"`
	IdleTimeout          Duration      `yaml:"idle_timeout"`
	RRDelay              Duration      `yaml:"rr_delay"`
	RRInterval           Duration      `yaml:"rr_interval"`
	RNRInterval          Duration      `yaml:"rnr_interval"`
	AckTimer             Duration      `yaml:"ack_timer"`
	RetryTimer           Duration      `yaml:"retry_timer"`
	SupportModulo128     bool          `yaml:"support_modulo128"`
	SupportREJ           bool          `yaml:"support_rej"`
	SupportSREJ          bool          `yaml:"support_srej"`
}

// APRSConfig tunes the APRS message layer.
type APRSConfig struct {
	RetransmitCount        int           `yaml:"retransmit_count"`
	RetransmitTimeoutBase  Duration `yaml:"retransmit_timeout_base"`
	RetransmitTimeoutRand  Duration `yaml:"retransmit_timeout_rand"`
	RetransmitTimeoutScale float64       `yaml:"retransmit_timeout_scale"`

	// Destination is the outgoing "tocall"; Path the outgoing digipeater
	// path (e.g. [WIDE1-1, WIDE2-1]).
	Destination string   `yaml:"aprs_destination"`
	Path        []string `yaml:"aprs_path"`

	ListenDestinations []string `yaml:"listen_destinations"`
	ListenAltNets      []string `yaml:"listen_altnets"`

	MsgIDModulo         int           `yaml:"msgid_modulo"`
	DeduplicationExpiry Duration      `yaml:"deduplication_expiry"`
}

// DigipeaterConfig enables WIDEn-N digipeating for a station.
type DigipeaterConfig struct {
	Enabled bool     `yaml:"enabled"`
	Aliases []string `yaml:"aliases"`
}

// Config is the top-level YAML document.
type Config struct {
	Station    StationConfig    `yaml:"station"`
	KISS       KISSConfig       `yaml:"kiss"`
	APRS       APRSConfig       `yaml:"aprs"`
	Digipeater DigipeaterConfig `yaml:"digipeater"`
}

// Load reads and parses path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var c Config

	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return c, nil
}

// Address returns the station's configured callsign+SSID.
func (c Config) Address() ax25.Address {
	return ax25.NewAddress(c.Station.Callsign, c.Station.SSID)
}

// PeerConfig translates the YAML station section into a peer.Config,
// leaving zero fields to peer's own defaults.
func (c Config) PeerConfig() peer.Config {
	return peer.Config{
		FullDuplex:           c.Station.FullDuplex,
		MaxIField:            c.Station.MaxIField,
		MaxRetries:           c.Station.MaxRetries,
		MaxOutstandingMod8:   c.Station.MaxOutstandingMod8,
		MaxOutstandingMod128: c.Station.MaxOutstandingMod128,
		IdleTimeout:          c.Station.IdleTimeout.Std(),
		RRDelay:              c.Station.RRDelay.Std(),
		RRInterval:           c.Station.RRInterval.Std(),
		RNRInterval:          c.Station.RNRInterval.Std(),
		AckTimer:             c.Station.AckTimer.Std(),
		RetryTimer:           c.Station.RetryTimer.Std(),
		SupportModulo128:     c.Station.SupportModulo128,
		SupportREJ:           c.Station.SupportREJ,
		SupportSREJ:          c.Station.SupportSREJ,
	}
}

// IfaceConfig returns the CTS scheduling defaults (the YAML schema has no
// per-station override for these yet; callers needing custom timing build
// iface.Config directly).
func (c Config) IfaceConfig() iface.Config {
	return iface.Config{}
}

// DeviceConfig translates the YAML kiss section into a kiss.DeviceConfig.
func (c Config) DeviceConfig() kiss.DeviceConfig {
	dc := kiss.DeviceConfig{
		SendBlockSize:  c.KISS.SendBlockSize,
		SendBlockDelay: c.KISS.SendBlockDelay.Std(),
		ResetOnClose:   c.KISS.ResetOnClose,
	}

	if c.KISS.KISSCommands != nil {
		dc.InitCommands = *c.KISS.KISSCommands
		if dc.InitCommands == nil {
			dc.InitCommands = []string{}
		}
	}

	return dc
}

// OpenTransport opens the byte-pipe the YAML kiss section describes.
func (c Config) OpenTransport() (kiss.Transport, error) {
	switch c.KISS.Kind {
	case "", "serial":
		return kiss.OpenSerial(c.KISS.Device, c.KISS.Baud)
	case "tcp":
		return kiss.DialTCP(c.KISS.Device)
	case "subprocess":
		if len(c.KISS.Command) == 0 {
			return nil, fmt.Errorf("config: subprocess transport needs a command")
		}

		return kiss.OpenSubprocess(exec.Command(c.KISS.Command[0], c.KISS.Command[1:]...))
	default:
		return nil, fmt.Errorf("config: unknown transport kind %q", c.KISS.Kind)
	}
}

// APRSIfaceConfig translates the YAML aprs section into an
// aprsiface.Config. Unparseable destination or path entries are dropped
// (the aprsiface defaults cover the rest).
func (c Config) APRSIfaceConfig() aprsiface.Config {
	cfg := aprsiface.Config{
		DedupeWindow:           c.APRS.DeduplicationExpiry.Std(),
		RetransmitCount:        c.APRS.RetransmitCount,
		RetransmitTimeoutBase:  c.APRS.RetransmitTimeoutBase.Std(),
		RetransmitTimeoutRand:  c.APRS.RetransmitTimeoutRand.Std(),
		RetransmitTimeoutScale: c.APRS.RetransmitTimeoutScale,
		MsgIDModulo:            c.APRS.MsgIDModulo,
		ListenDestinations:     c.APRS.ListenDestinations,
		ListenAltNets:          c.APRS.ListenAltNets,
	}

	if c.APRS.Destination != "" {
		if addr, err := ax25.DecodeAddressString(c.APRS.Destination); err == nil {
			cfg.Destination = addr
		}
	}

	for _, hop := range c.APRS.Path {
		if addr, err := ax25.DecodeAddressString(hop); err == nil {
			cfg.Path = append(cfg.Path, addr)
		}
	}

	return cfg
}

// DigipeaterConfigFor translates the YAML digipeater section, given the
// resolved station address to digipeat as. Aliases are decoded as
// callsign[-SSID] so an SSID-qualified alias matches only that SSID;
// unparseable entries are dropped.
func (c Config) DigipeaterConfigFor(addr ax25.Address) digipeater.Config {
	cfg := digipeater.Config{MyCall: addr}

	for _, alias := range c.Digipeater.Aliases {
		if a, err := ax25.DecodeAddressString(alias); err == nil {
			cfg.Aliases = append(cfg.Aliases, a)
		}
	}

	return cfg
}

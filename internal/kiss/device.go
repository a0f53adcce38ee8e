package kiss

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// DeviceState tracks a KISS device's lifecycle.
type DeviceState int

const (
	DeviceClosed DeviceState = iota
	DeviceOpening
	DeviceOpen
	DeviceClosing
)

func (s DeviceState) String() string {
	switch s {
	case DeviceClosed:
		return "CLOSED"
	case DeviceOpening:
		return "OPENING"
	case DeviceOpen:
		return "OPEN"
	case DeviceClosing:
		return "CLOSING"
	default:
		return "?"
	}
}

// ErrDeviceNotOpen is returned by Write when the device hasn't completed
// its open handshake (or is already closing).
var ErrDeviceNotOpen = errors.New("kiss: device not open")

// DeviceConfig tunes the open handshake and write pacing of a KISS TNC.
type DeviceConfig struct {
	// InitCommands are ASCII command strings sent to the TNC to drop it
	// into KISS mode before any frames flow. Nil selects the default
	// sequence; use an explicit empty slice for a TNC that needs none.
	InitCommands []string
	// InitByteDelay is the pause between consecutive handshake bytes, for
	// TNC firmware that drops characters arriving back-to-back.
	InitByteDelay time.Duration
	// SendBlockSize caps how many bytes a single transport write carries.
	SendBlockSize int
	// SendBlockDelay is the pause between consecutive blocks of one frame.
	SendBlockDelay time.Duration
	// ResetOnClose sends a return-from-KISS frame before releasing the
	// transport, restoring the TNC's command interface.
	ResetOnClose bool
}

// DefaultInitCommands is the handshake most Kantronics-style TNCs need to
// enter KISS mode from their command prompt.
var DefaultInitCommands = []string{"INT KISS\r", "RESET\r"}

func (c DeviceConfig) withDefaults() DeviceConfig {
	if c.InitCommands == nil {
		c.InitCommands = DefaultInitCommands
	}

	if c.InitByteDelay == 0 {
		c.InitByteDelay = 10 * time.Millisecond
	}

	if c.SendBlockSize == 0 {
		c.SendBlockSize = 128
	}

	return c
}

// Device wraps a raw byte-pipe Transport with the KISS TNC lifecycle:
// CLOSED until Open completes the initialisation handshake, OPEN while
// frames flow, CLOSING while the return-from-KISS and final drain happen.
// It satisfies Transport itself, so a Port can sit directly on top of it;
// writes are paced into fixed-size blocks.
type Device struct {
	transport Transport
	cfg       DeviceConfig
	log       *log.Logger

	mu    sync.Mutex
	wmu   sync.Mutex // serialises transport writes, held across block pacing
	state DeviceState
}

// NewDevice wraps transport. The device starts CLOSED; call Open before
// sending frames through it.
func NewDevice(transport Transport, cfg DeviceConfig, logger *log.Logger) *Device {
	return &Device{
		transport: transport,
		cfg:       cfg.withDefaults(),
		log:       logger,
		state:     DeviceClosed,
	}
}

// State returns the device's current lifecycle state.
func (d *Device) State() DeviceState {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.state
}

// Open performs the TNC initialisation handshake: each configured command
// string is written one byte at a time with InitByteDelay between bytes.
// On success the device is OPEN and Write is permitted.
func (d *Device) Open(ctx context.Context) error {
	d.mu.Lock()

	if d.state != DeviceClosed {
		state := d.state
		d.mu.Unlock()

		return fmt.Errorf("kiss: open device in state %s", state)
	}

	d.state = DeviceOpening
	d.mu.Unlock()

	for _, cmd := range d.cfg.InitCommands {
		if d.log != nil {
			d.log.Debug("sending TNC init command", "command", fmt.Sprintf("%q", cmd))
		}

		for i := 0; i < len(cmd); i++ {
			if err := ctx.Err(); err != nil {
				d.setState(DeviceClosed)
				return err
			}

			if _, err := d.transport.Write([]byte{cmd[i]}); err != nil {
				d.setState(DeviceClosed)
				return fmt.Errorf("kiss: init handshake: %w", err)
			}

			time.Sleep(d.cfg.InitByteDelay)
		}
	}

	d.setState(DeviceOpen)

	return nil
}

func (d *Device) setState(s DeviceState) {
	d.mu.Lock()
	old := d.state
	d.state = s
	d.mu.Unlock()

	if old != s && d.log != nil {
		d.log.Debug("device state change", "from", old, "to", s)
	}
}

// Read passes straight through to the underlying transport; frame
// reassembly happens in the Port's decoder, not here.
func (d *Device) Read(p []byte) (int, error) {
	return d.transport.Read(p)
}

// Write sends p to the transport in SendBlockSize chunks separated by
// SendBlockDelay. Only permitted while OPEN.
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	state := d.state
	d.mu.Unlock()

	if state != DeviceOpen {
		return 0, fmt.Errorf("%w (state %s)", ErrDeviceNotOpen, state)
	}

	return d.writeBlocks(p)
}

func (d *Device) writeBlocks(p []byte) (int, error) {
	d.wmu.Lock()
	defer d.wmu.Unlock()

	written := 0

	for written < len(p) {
		end := written + d.cfg.SendBlockSize
		if end > len(p) {
			end = len(p)
		}

		n, err := d.transport.Write(p[written:end])
		written += n

		if err != nil {
			return written, err
		}

		if written < len(p) && d.cfg.SendBlockDelay > 0 {
			time.Sleep(d.cfg.SendBlockDelay)
		}
	}

	return written, nil
}

// Close drains any in-flight write, optionally sends a return-from-KISS
// frame so the TNC drops back to its command interface, then releases the
// transport. Safe to call once from any state.
func (d *Device) Close() error {
	d.mu.Lock()

	if d.state == DeviceClosed || d.state == DeviceClosing {
		d.mu.Unlock()
		return nil
	}

	wasOpen := d.state == DeviceOpen
	d.state = DeviceClosing
	d.mu.Unlock()

	if wasOpen && d.cfg.ResetOnClose {
		// FEND, port 15 / cmd 15 ("return from KISS"), FEND. Taking wmu
		// waits out any frame currently being paced onto the wire.
		frame := []byte{FEND, PortCommand(0x0f, CmdEndKISS), FEND}

		if _, err := d.writeBlocks(frame); err != nil && d.log != nil {
			d.log.Error("return-from-KISS failed", "err", err)
		}
	} else {
		// Still serialise against an in-flight write so the transport
		// isn't yanked out from under it.
		d.wmu.Lock()
		d.wmu.Unlock() //nolint:staticcheck // drain barrier
	}

	err := d.transport.Close()
	d.setState(DeviceClosed)

	return err
}

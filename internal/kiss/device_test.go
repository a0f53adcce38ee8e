package kiss_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk4msl/goax25kiss/internal/kiss"
)

// recorderTransport captures every Write call so tests can assert on both
// content and write granularity.
type recorderTransport struct {
	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func (r *recorderTransport) Read(p []byte) (int, error) {
	select {} // tests never read; block forever
}

func (r *recorderTransport) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.writes = append(r.writes, append([]byte{}, p...))

	return len(p), nil
}

func (r *recorderTransport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true

	return nil
}

func (r *recorderTransport) all() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []byte
	for _, w := range r.writes {
		out = append(out, w...)
	}

	return out
}

func (r *recorderTransport) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.writes)
}

func newTestDevice(tr *recorderTransport, cfg kiss.DeviceConfig) *kiss.Device {
	if cfg.InitByteDelay == 0 {
		cfg.InitByteDelay = time.Microsecond
	}

	return kiss.NewDevice(tr, cfg, nil)
}

func TestDeviceOpenSendsInitCommands(t *testing.T) {
	tr := &recorderTransport{}
	d := newTestDevice(tr, kiss.DeviceConfig{})

	assert.Equal(t, kiss.DeviceClosed, d.State())

	require.NoError(t, d.Open(context.Background()))
	assert.Equal(t, kiss.DeviceOpen, d.State())

	assert.Equal(t, []byte("INT KISS\rRESET\r"), tr.all())
}

func TestDeviceOpenCustomCommands(t *testing.T) {
	tr := &recorderTransport{}
	d := newTestDevice(tr, kiss.DeviceConfig{InitCommands: []string{"KISS ON\r"}})

	require.NoError(t, d.Open(context.Background()))
	assert.Equal(t, []byte("KISS ON\r"), tr.all())
}

func TestDeviceWriteRefusedWhileClosed(t *testing.T) {
	tr := &recorderTransport{}
	d := newTestDevice(tr, kiss.DeviceConfig{})

	_, err := d.Write([]byte{0x01})
	assert.ErrorIs(t, err, kiss.ErrDeviceNotOpen)
	assert.Zero(t, tr.writeCount())
}

func TestDeviceWritePacesBlocks(t *testing.T) {
	tr := &recorderTransport{}
	d := newTestDevice(tr, kiss.DeviceConfig{
		InitCommands:  []string{},
		SendBlockSize: 4,
	})

	require.NoError(t, d.Open(context.Background()))

	payload := make([]byte, 10)
	n, err := d.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	// 10 bytes in 4-byte blocks: 4 + 4 + 2.
	require.Equal(t, 3, tr.writeCount())
	assert.Len(t, tr.writes[0], 4)
	assert.Len(t, tr.writes[1], 4)
	assert.Len(t, tr.writes[2], 2)
}

func TestDeviceCloseSendsReturnFromKISS(t *testing.T) {
	tr := &recorderTransport{}
	d := newTestDevice(tr, kiss.DeviceConfig{
		InitCommands: []string{},
		ResetOnClose: true,
	})

	require.NoError(t, d.Open(context.Background()))
	require.NoError(t, d.Close())

	assert.Equal(t, []byte{kiss.FEND, 0xff, kiss.FEND}, tr.all())
	assert.True(t, tr.closed)
	assert.Equal(t, kiss.DeviceClosed, d.State())
}

func TestDeviceCloseWithoutResetJustCloses(t *testing.T) {
	tr := &recorderTransport{}
	d := newTestDevice(tr, kiss.DeviceConfig{InitCommands: []string{}})

	require.NoError(t, d.Open(context.Background()))
	require.NoError(t, d.Close())

	assert.Zero(t, tr.writeCount())
	assert.True(t, tr.closed)

	// A second Close is a no-op.
	require.NoError(t, d.Close())
}

package iface_test

import (
	"net"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk4msl/goax25kiss/internal/ax25"
	"github.com/vk4msl/goax25kiss/internal/iface"
	"github.com/vk4msl/goax25kiss/internal/kiss"
)

func newLoopbackInterface(t *testing.T) (*iface.Interface, net.Conn) {
	t.Helper()

	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })

	port := kiss.NewPort(server, nil)
	ifc := iface.New(port, 0, iface.Config{CTSDelay: time.Millisecond, CTSRand: time.Millisecond}, nil, nil)

	go func() { _ = port.Run(t.Context()) }()

	return ifc, client
}

func uiFrameWire(dest, src string) []byte {
	f := &ax25.UIFrame{
		Header: ax25.Header{
			Destination: ax25.NewAddress(dest, 0),
			Source:      ax25.NewAddress(src, 0),
			DestCR:      true,
		},
		PID:     0xf0,
		Payload: []byte("hi"),
	}

	return kiss.Encode(append([]byte{kiss.PortCommand(0, kiss.CmdDataFrame)}, f.Encode()...))
}

func TestSubscribeLiteralFilterMatches(t *testing.T) {
	ifc, client := newLoopbackInterface(t)

	got := make(chan ax25.Frame, 1)
	ifc.Subscribe(iface.LiteralFilter(ax25.NewAddress("VK4MSL", 0)), func(f ax25.Frame) { got <- f })

	_, err := client.Write(uiFrameWire("VK4MSL", "VK4BWI"))
	require.NoError(t, err)

	select {
	case f := <-got:
		assert.Equal(t, "VK4MSL", f.GetHeader().Destination.Callsign)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched frame")
	}
}

func TestSubscribeLiteralFilterIgnoresMismatch(t *testing.T) {
	ifc, client := newLoopbackInterface(t)

	got := make(chan ax25.Frame, 1)
	ifc.Subscribe(iface.LiteralFilter(ax25.NewAddress("VK4XYZ", 0)), func(f ax25.Frame) { got <- f })

	_, err := client.Write(uiFrameWire("VK4MSL", "VK4BWI"))
	require.NoError(t, err)

	select {
	case <-got:
		t.Fatal("subscriber should not have matched")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRegexFilterMatchesCallsignPrefix(t *testing.T) {
	ifc, client := newLoopbackInterface(t)

	got := make(chan ax25.Frame, 1)
	ifc.Subscribe(iface.RegexFilter(regexp.MustCompile(`^VK4`), nil), func(f ax25.Frame) { got <- f })

	_, err := client.Write(uiFrameWire("VK4MSL", "VK4BWI"))
	require.NoError(t, err)

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched frame")
	}
}

func TestTransmitWritesEncodedFrame(t *testing.T) {
	ifc, client := newLoopbackInterface(t)

	f := &ax25.UIFrame{
		Header: ax25.Header{
			Destination: ax25.NewAddress("VK4BWI", 0),
			Source:      ax25.NewAddress("VK4MSL", 0),
		},
		PID:     0xf0,
		Payload: []byte("test"),
	}

	done := make(chan error, 1)
	ifc.Transmit(f, nil, func(err error) { done <- err })

	buf := make([]byte, 128)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := client.Read(buf)
	require.NoError(t, err)

	dec := kiss.NewDecoder()
	frames := dec.FeedBytes(buf[:n])
	require.Len(t, frames, 1)
	assert.Equal(t, byte(0), frames[0].Port)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transmit callback")
	}
}

func TestTransmitDropsPastDeadline(t *testing.T) {
	ifc, _ := newLoopbackInterface(t)

	f := &ax25.UAFrame{Header: ax25.Header{
		Destination: ax25.NewAddress("VK4BWI", 0),
		Source:      ax25.NewAddress("VK4MSL", 0),
	}}

	past := time.Now().Add(-time.Hour)

	done := make(chan error, 1)
	ifc.Transmit(f, &past, func(err error) { done <- err })

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for drop callback")
	}
}

func TestCancelTransmitRemovesQueuedFrame(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	port := kiss.NewPort(server, nil)
	go func() { _ = port.Run(t.Context()) }()

	ifc := iface.New(port, 0, iface.Config{CTSDelay: time.Hour, CTSRand: 0}, nil, nil)

	f := &ax25.UAFrame{Header: ax25.Header{
		Destination: ax25.NewAddress("VK4BWI", 0),
		Source:      ax25.NewAddress("VK4MSL", 0),
	}}

	h := ifc.Transmit(f, nil, nil)

	assert.True(t, ifc.CancelTransmit(h))
	assert.False(t, ifc.CancelTransmit(h))
}

package station_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk4msl/goax25kiss/internal/ax25"
	"github.com/vk4msl/goax25kiss/internal/iface"
	"github.com/vk4msl/goax25kiss/internal/kiss"
	"github.com/vk4msl/goax25kiss/internal/peer"
	"github.com/vk4msl/goax25kiss/internal/station"
)

func newLoopbackStation(t *testing.T, address ax25.Address) (*station.Station, net.Conn) {
	t.Helper()

	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })

	port := kiss.NewPort(server, nil)
	ifc := iface.New(port, 0, iface.Config{CTSDelay: time.Millisecond, CTSRand: time.Millisecond}, nil, nil)

	go func() { _ = port.Run(t.Context()) }()

	cfg := peer.Config{RetryTimer: 20 * time.Millisecond, AckTimer: 20 * time.Millisecond, IdleTimeout: time.Hour}
	s := station.New(address, peer.ProtocolAX25_20, cfg, ifc, nil)

	return s, client
}

func encodeFrame(f ax25.Frame) []byte {
	return kiss.Encode(append([]byte{kiss.PortCommand(0, kiss.CmdDataFrame)}, f.Encode()...))
}

func TestStationAnswersTESTCommand(t *testing.T) {
	me := ax25.NewAddress("VK4MSL", 5)
	s, client := newLoopbackStation(t, me)

	f := &ax25.TESTFrame{
		Header: ax25.Header{
			Destination: me,
			Source:      ax25.NewAddress("VK4BWI", 0),
			DestCR:      true,
		},
		Payload: []byte("123456789"),
	}

	_, err := client.Write(encodeFrame(f))
	require.NoError(t, err)

	buf := make([]byte, 256)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := client.Read(buf)
	require.NoError(t, err)

	dec := kiss.NewDecoder()
	frames := dec.FeedBytes(buf[:n])
	require.Len(t, frames, 1)

	decoded, err := ax25.Decode(frames[0].Payload, nil)
	require.NoError(t, err)

	reply, ok := decoded.(*ax25.TESTFrame)
	require.True(t, ok, "expected TEST reply, got %T", decoded)
	assert.False(t, reply.DestCR)
	assert.Equal(t, []byte("123456789"), reply.Payload)
	assert.Equal(t, "VK4BWI", reply.Destination.Callsign)

	assert.Empty(t, s.Peers(), "answering a TEST command must not create a peer")
}

func TestStationRoutesSABMToPeerAndEmitsConnectionRequest(t *testing.T) {
	me := ax25.NewAddress("VK4MSL", 5)
	s, client := newLoopbackStation(t, me)

	got := make(chan *peer.Peer, 1)
	s.ConnectionRequest.Connect(func(e station.ConnectionRequest) { got <- e.Peer })

	remote := ax25.NewAddress("VK4BWI", 0)
	f := &ax25.SABMFrame{Header: ax25.Header{Destination: me, Source: remote, DestCR: true}}

	_, err := client.Write(encodeFrame(f))
	require.NoError(t, err)

	select {
	case p := <-got:
		assert.Equal(t, remote.Key(), p.Address.Key())
		assert.Equal(t, peer.StateConnected, p.State())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection request")
	}

	require.Len(t, s.Peers(), 1)
}

func TestStationReusesExistingPeer(t *testing.T) {
	me := ax25.NewAddress("VK4MSL", 5)
	s, client := newLoopbackStation(t, me)

	remote := ax25.NewAddress("VK4BWI", 0)
	sabm := &ax25.SABMFrame{Header: ax25.Header{Destination: me, Source: remote, DestCR: true}}

	_, err := client.Write(encodeFrame(sabm))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(s.Peers()) == 1 }, 2*time.Second, 5*time.Millisecond)

	first := s.GetPeer(remote)

	disc := &ax25.DISCFrame{Header: ax25.Header{Destination: me, Source: remote, DestCR: true}}
	_, err = client.Write(encodeFrame(disc))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return first.State() == peer.StateDisconnected }, 2*time.Second, 5*time.Millisecond)

	second := s.GetPeer(remote)
	assert.Same(t, first, second, "the same remote callsign must reuse its existing peer")
}

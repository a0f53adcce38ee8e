// Package station owns the set of peers a local AX.25 callsign has
// conversed with, answers unsolicited TEST frames, and routes inbound
// traffic to the matching peer state machine.
package station

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/vk4msl/goax25kiss/internal/ax25"
	"github.com/vk4msl/goax25kiss/internal/iface"
	"github.com/vk4msl/goax25kiss/internal/peer"
	"github.com/vk4msl/goax25kiss/internal/xsignal"
)

// ConnectionRequest is published when a peer enters CONNECTED via an
// inbound SABM(E).
type ConnectionRequest struct {
	Peer *peer.Peer
}

// Station owns a peer map keyed by normalised address and binds to an
// interface for frames destined for its own callsign+SSID.
type Station struct {
	address  ax25.Address
	protocol peer.Protocol
	cfg      peer.Config
	ifc      *iface.Interface
	log      *log.Logger

	mu    sync.Mutex
	peers map[string]*peer.Peer

	ConnectionRequest *xsignal.Signal[ConnectionRequest]

	subHandle iface.Handle
}

// New creates a station bound to ifc, answering frames destined for
// address. protocol selects whether this station will negotiate AX.25 2.2
// XID or strictly speak AX.25 2.0.
func New(address ax25.Address, protocol peer.Protocol, cfg peer.Config, ifc *iface.Interface, logger *log.Logger) *Station {
	s := &Station{
		address:           address,
		protocol:          protocol,
		cfg:               cfg,
		ifc:               ifc,
		log:               logger,
		peers:             map[string]*peer.Peer{},
		ConnectionRequest: xsignal.New[ConnectionRequest](logger),
	}

	s.subHandle = ifc.Subscribe(iface.LiteralFilter(address), s.onReceive)

	return s
}

// Address returns the station's own callsign+SSID (satisfies
// peer.Station).
func (s *Station) Address() ax25.Address { return s.address }

// Protocol returns the station's configured AX.25 revision (satisfies
// peer.Station).
func (s *Station) Protocol() peer.Protocol { return s.protocol }

// Transmit hands frame to the underlying interface scheduler (satisfies
// peer.Station).
func (s *Station) Transmit(frame ax25.Frame) {
	s.ifc.Transmit(frame, nil, nil)
}

// DropPeer removes the peer keyed by key from the peer map (satisfies
// peer.Station; called by a peer's own idle-timeout cleanup).
func (s *Station) DropPeer(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.peers, key)
}

// Close unsubscribes this station from its interface.
func (s *Station) Close() {
	s.ifc.Unsubscribe(s.subHandle)
}

func (s *Station) onReceive(frame ax25.Frame) {
	if t, ok := frame.(*ax25.TESTFrame); ok {
		s.replyToTest(t)
		return
	}

	p, _ := s.getOrCreatePeer(frame.GetHeader().Source, frame.GetHeader().Repeaters)
	wasConnected := p.State() == peer.StateConnected

	p.Receive(frame)

	_, isSABM := frame.(*ax25.SABMFrame)
	_, isSABME := frame.(*ax25.SABMEFrame)

	if !wasConnected && (isSABM || isSABME) && p.State() == peer.StateConnected {
		s.ConnectionRequest.Emit(ConnectionRequest{Peer: p})
	}
}

// replyToTest answers a TEST command immediately with the same payload and
// C bit cleared; no peer is created or consulted (§4.7: "connection
// context not required").
func (s *Station) replyToTest(t *ax25.TESTFrame) {
	if !t.DestCR {
		// This is itself a reply (or a peer-directed frame); station only
		// answers commands.
		return
	}

	hdr := ax25.Header{
		Destination: t.Source,
		Source:      s.address,
		Repeaters:   t.Repeaters.Reply(),
		DestCR:      false,
	}

	s.ifc.Transmit(&ax25.TESTFrame{Header: hdr, PF: t.PF, Payload: t.Payload}, nil, nil)
}

// GetPeer returns the peer for address, creating one lazily (with an empty
// learned path) if this is the first interaction with it.
func (s *Station) GetPeer(address ax25.Address) *peer.Peer {
	p, _ := s.getOrCreatePeer(address, nil)
	return p
}

func (s *Station) getOrCreatePeer(address ax25.Address, repeaters ax25.Path) (*peer.Peer, bool) {
	key := address.Normalised().Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.peers[key]; ok {
		return p, false
	}

	p := peer.New(s, address, repeaters, false, s.cfg, s.log)
	s.peers[key] = p

	return p, true
}

// Peers returns a snapshot of the currently known peers.
func (s *Station) Peers() []*peer.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*peer.Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}

	return out
}

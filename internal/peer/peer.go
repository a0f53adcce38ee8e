// Package peer implements the per-remote-station AX.25 connection
// lifecycle: SABM(E)/UA/DISC/DM/FRMR/XID negotiation, I-frame windowing
// with acknowledgement and retransmission, reject handling, and idle
// expiry. One Peer exists per remote callsign a Station has conversed
// with.
package peer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vk4msl/goax25kiss/internal/ax25"
	"github.com/vk4msl/goax25kiss/internal/xsignal"
)

// Protocol is the AX.25 revision a station or peer is known (or assumed)
// to speak.
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	ProtocolAX25_20
	ProtocolAX25_22
)

// State is the connection-lifecycle enum of §3.
type State int

const (
	StateDisconnected State = iota
	StateNegotiating
	StateConnecting
	StateConnected
	StateDisconnecting
	StateFRMR
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateNegotiating:
		return "NEGOTIATING"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnecting:
		return "DISCONNECTING"
	case StateFRMR:
		return "FRMR"
	default:
		return "?"
	}
}

// RejectMode is the reject discipline chosen at XID time (§4.6).
type RejectMode int

const (
	RejectImplicit RejectMode = iota
	RejectREJ
	RejectSREJ
	RejectSREJREJ
)

// ErrPeerTimeout is reported to the caller of Connect/Disconnect when the
// retry budget is exhausted without a reply. It is never returned
// synchronously; it always arrives via a supplied callback.
var ErrPeerTimeout = errors.New("peer: timed out awaiting reply")

// Station is the narrow, non-owning view of the owning station a Peer
// needs. Stations own peers; a Peer never owns its station back (see
// DESIGN.md's back-reference note) — it only ever reaches the station
// through this interface, addressed by the peer's own map key rather than
// a shared pointer cycle.
type Station interface {
	Address() ax25.Address
	Protocol() Protocol
	Transmit(frame ax25.Frame)
	DropPeer(key string)
}

// Config tunes one peer's timers and negotiation defaults; see spec.md §6
// for the option names this mirrors.
type Config struct {
	MaxIField            int
	MaxRetries            int
	MaxOutstandingMod8    int
	MaxOutstandingMod128  int
	IdleTimeout           time.Duration
	RRDelay               time.Duration
	RRInterval            time.Duration
	RNRInterval           time.Duration
	AckTimer              time.Duration
	RetryTimer            time.Duration
	SupportREJ            bool
	SupportSREJ           bool
	SupportModulo128      bool
	FullDuplex            bool
}

func (c Config) withDefaults() Config {
	if c.MaxIField == 0 {
		c.MaxIField = 256
	}

	if c.MaxRetries == 0 {
		c.MaxRetries = 10
	}

	if c.MaxOutstandingMod8 == 0 {
		c.MaxOutstandingMod8 = 7
	}

	if c.MaxOutstandingMod128 == 0 {
		c.MaxOutstandingMod128 = 127
	}

	if c.IdleTimeout == 0 {
		c.IdleTimeout = 15 * time.Minute
	}

	if c.RRDelay == 0 {
		c.RRDelay = 10 * time.Second
	}

	if c.RRInterval == 0 {
		c.RRInterval = 30 * time.Second
	}

	if c.RNRInterval == 0 {
		c.RNRInterval = 10 * time.Second
	}

	if c.AckTimer == 0 {
		c.AckTimer = 3 * time.Second
	}

	if c.RetryTimer == 0 {
		c.RetryTimer = c.AckTimer
	}

	return c
}

type pendingPayload struct {
	pid     byte
	payload []byte
}

// InformationEvent is published on ReceivedInformation for every accepted
// I-frame payload.
type InformationEvent struct {
	Peer    *Peer
	PID     byte
	Payload []byte
}

// ConnectStateChange is published on ConnectStateChanged whenever the
// connection-lifecycle state transitions.
type ConnectStateChange struct {
	Peer  *Peer
	State State
}

type retryKind int

const (
	retryNone retryKind = iota
	retryXID
	retrySABM
	retryDISC
)

// Peer is the per-remote-station connection context: one per callsign a
// station has conversed with, created lazily and self-destructing after an
// idle timeout.
type Peer struct {
	mu sync.Mutex

	station Station
	Key     string // normalised callsign-ssid, the station's peer map key
	Address ax25.Address
	cfg     Config
	log     *log.Logger

	locked    bool
	repeaters ax25.Path // configured/learned outbound path

	protocol Protocol

	state          State
	modulo         int
	maxOutstanding int
	sendState      uint8 // V(S)
	recvState      uint8 // V(R)
	ackState       uint8 // V(A)
	localBusy      bool
	peerBusy       bool
	lastRNRSent    time.Time

	rejectMode RejectMode
	xidDone    bool

	// Negotiated overrides from a successful XID exchange; nil means "use
	// the configured default".
	negotiatedWindow    *int
	negotiatedMaxIField *int
	negotiatedAckTimer  *time.Duration
	negotiatedRetries   *int

	pendingIframes map[uint8]pendingPayload
	pendingData    []pendingPayload

	reply       ax25.Path
	rxPathCount map[string]int
	rxPaths     map[string]ax25.Path
	txPathScore map[string]int
	txPaths     map[string]ax25.Path

	idleTimer  *time.Timer
	rrTimer    *time.Timer
	ackTimer   *time.Timer
	retryTimer *time.Timer
	retryCount int
	retryKind  retryKind
	lastFRMR   *ax25.FRMRFrame

	connectDone    func(error)
	disconnectDone func(error)

	ReceivedInformation *xsignal.Signal[InformationEvent]
	ConnectStateChanged *xsignal.Signal[ConnectStateChange]
}

// New creates a peer context for the station reachable at address via
// repeaters (the path it was first heard on, or a configured digipeater
// path for an outbound connection). The idle timer starts immediately.
func New(station Station, address ax25.Address, repeaters ax25.Path, locked bool, cfg Config, logger *log.Logger) *Peer {
	p := &Peer{
		station:        station,
		Key:            address.Normalised().Key(),
		Address:        address,
		cfg:            cfg.withDefaults(),
		log:            logger,
		locked:         locked,
		repeaters:      repeaters.Clone(),
		protocol:       ProtocolUnknown,
		state:          StateDisconnected,
		pendingIframes: map[uint8]pendingPayload{},
		rxPathCount:    map[string]int{},
		rxPaths:        map[string]ax25.Path{},
		txPathScore:    map[string]int{},
		txPaths:        map[string]ax25.Path{},

		ReceivedInformation: xsignal.New[InformationEvent](logger),
		ConnectStateChanged: xsignal.New[ConnectStateChange](logger),
	}

	p.resetIdleTimeoutLocked()

	return p
}

// State returns the current connection state.
func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

func (p *Peer) setState(s State) {
	if p.state == s {
		return
	}

	if p.log != nil {
		p.log.Info("connection state change", "peer", p.Address, "from", p.state, "to", s)
	}

	p.state = s
	p.ConnectStateChanged.Emit(ConnectStateChange{Peer: p, State: s})
}

func (p *Peer) transmit(f ax25.Frame) {
	p.resetIdleTimeoutLocked()
	p.station.Transmit(f)
}

// --- idle timeout -----------------------------------------------------

func (p *Peer) cancelIdleTimeoutLocked() {
	if p.idleTimer != nil {
		p.idleTimer.Stop()
		p.idleTimer = nil
	}
}

func (p *Peer) resetIdleTimeoutLocked() {
	p.cancelIdleTimeoutLocked()
	p.idleTimer = time.AfterFunc(p.cfg.IdleTimeout, p.onIdleExpired)
}

func (p *Peer) onIdleExpired() {
	p.mu.Lock()

	if p.state != StateDisconnected {
		if p.log != nil {
			p.log.Warn("disconnecting peer due to inactivity", "peer", p.Address)
		}

		p.sendDMLocked()
	}

	p.cancelRRNotificationLocked()
	p.cancelAckTimerLocked()
	p.cancelRetryTimerLocked()
	p.mu.Unlock()

	p.station.DropPeer(p.Key)
}

// --- frame header helpers ---------------------------------------------

func (p *Peer) header() ax25.Header {
	return ax25.Header{
		Destination: p.Address,
		Source:      p.station.Address(),
		Repeaters:   p.replyPathLocked(),
		Created:     time.Now(),
	}
}

// --- top-level receive dispatch ----------------------------------------

// Receive handles one inbound frame addressed to this peer's station from
// this peer. Undetermined-width I/S frames (ax25.RawFrame) are re-decoded
// here now that the peer's modulo is known.
func (p *Peer) Receive(frame ax25.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resetIdleTimeoutLocked()
	p.learnRXPathLocked(frame.GetHeader().Repeaters)

	// AX.25 2.2 §6.3.1: while awaiting SABM(E) UA, only SABM/SABME/DISC/UA/DM
	// are processed.
	if p.state == StateConnecting {
		switch frame.(type) {
		case *ax25.SABMFrame, *ax25.SABMEFrame, *ax25.DISCFrame, *ax25.UAFrame, *ax25.DMFrame:
		default:
			if p.log != nil {
				p.log.Debug("dropping frame, pending SABM UA", "peer", p.Address)
			}

			return
		}
	}

	// AX.25 2.0 §2.4.5: FRMR condition clears only on SABM, DISC, or DM.
	if p.state == StateFRMR {
		switch frame.(type) {
		case *ax25.SABMFrame, *ax25.DISCFrame, *ax25.DMFrame:
		default:
			if p.log != nil {
				p.log.Debug("dropping frame, FRMR condition active", "peer", p.Address)
			}

			p.retransmitFRMRLocked()

			return
		}
	}

	switch f := frame.(type) {
	case *ax25.TESTFrame:
		p.onReceiveTestLocked(f)
	case *ax25.SABMFrame:
		p.onReceiveSABMLocked(f.PF, false)
	case *ax25.SABMEFrame:
		p.onReceiveSABMLocked(f.PF, true)
	case *ax25.DISCFrame:
		p.onReceiveDISCLocked()
	case *ax25.DMFrame:
		p.onReceiveDMLocked()
	case *ax25.UAFrame:
		p.onReceiveUALocked()
	case *ax25.XIDFrame:
		p.onReceiveXIDLocked(f)
	case *ax25.FRMRFrame:
		p.onReceiveFRMRLocked(f)
	case *ax25.RawFrame:
		p.onReceiveRawLocked(f)
	case *ax25.IFrame:
		p.onReceiveIFrameLocked(f)
	case *ax25.SFrame:
		p.onReceiveSFrameLocked(f)
	default:
		if p.log != nil {
			p.log.Warn("dropping unrecognised frame", "peer", p.Address, "frame", fmt.Sprintf("%T", frame))
		}
	}
}

// onReceiveRawLocked handles an I/S frame that arrived before the peer's
// modulo was known to the interface decoder; now that CONNECTED implies a
// known modulo, it is re-decoded with that context.
func (p *Peer) onReceiveRawLocked(raw *ax25.RawFrame) {
	if p.state != StateConnected {
		p.sendDMLocked()

		return
	}

	modulo128 := p.modulo == 128
	decoded, err := ax25.Decode(raw.Encode(), &modulo128)

	if err != nil {
		if p.log != nil {
			p.log.Debug("failed to re-decode raw frame with known modulo", "peer", p.Address, "err", err)
		}

		return
	}

	switch f := decoded.(type) {
	case *ax25.IFrame:
		p.onReceiveIFrameLocked(f)
	case *ax25.SFrame:
		p.onReceiveSFrameLocked(f)
	default:
		if p.log != nil {
			p.log.Warn("re-decoded raw frame is neither I nor S", "peer", p.Address)
		}
	}
}

func (p *Peer) onReceiveTestLocked(f *ax25.TESTFrame) {
	if p.log != nil {
		p.log.Debug("received TEST response", "peer", p.Address)
	}
}

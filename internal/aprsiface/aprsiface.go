// Package aprsiface layers APRS message delivery semantics on top of a
// connectionless AX.25 interface: duplicate suppression, addressee
// routing, and confirmable-message retry handling.
package aprsiface

import (
	"hash/fnv"
	"math/rand"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vk4msl/goax25kiss/internal/aprs"
	"github.com/vk4msl/goax25kiss/internal/ax25"
	"github.com/vk4msl/goax25kiss/internal/iface"
	"github.com/vk4msl/goax25kiss/internal/xsignal"
)

// DefaultListenDestinations are the broadcast destination patterns from
// APRS 1.0.1 §13 ("generic APRS destinations") every APRS station should
// hear in addition to its own call.
var DefaultListenDestinations = []string{
	"^AIR", "^ALL", "^AP", "^BEACON", "^CQ", "^GPS", "^DF", "^DGPS",
	"^DRILL", "^ID", "^JAVA", "^MAIL", "^MICE", "^QST", "^QTH", "^RTCM",
	"^SKY", "^SPACE", "^SPC", "^SYM", "^TEL", "^TEST", "^TLM", "^WX",
	"^ZIP",
}

// Config tunes deduplication, message identifiers, and retry timing; the
// field names mirror the per-APRS-interface options this stack's YAML
// configuration exposes.
type Config struct {
	// DedupeWindow is how long a frame's digest is remembered before a
	// repeat of it (e.g. relayed by a second digipeater path) is let
	// through again.
	DedupeWindow time.Duration

	// RetransmitCount is the number of retransmissions attempted before a
	// confirmable send times out.
	RetransmitCount int
	// RetransmitTimeoutBase is the fixed part of the first ack wait.
	RetransmitTimeoutBase time.Duration
	// RetransmitTimeoutRand adds uniform random jitter to the first wait.
	RetransmitTimeoutRand time.Duration
	// RetransmitTimeoutScale multiplies the wait after each timeout.
	RetransmitTimeoutScale float64

	// MsgIDModulo bounds the message-ID counter; IDs are rendered as
	// decimal strings 1, 2, ... MsgIDModulo-1, then wrap through 0.
	MsgIDModulo int

	// Destination is the AX.25 destination used on outgoing APRS frames
	// (the "tocall"). Zero value selects aprs.DefaultDestination.
	Destination ax25.Address
	// Path is the digipeater path stamped on outgoing APRS frames.
	Path ax25.Path

	// ListenDestinations are literal callsigns or regex patterns (a
	// leading '^' marks a pattern) this interface receives broadcast
	// traffic for, in addition to its own call. Nil selects
	// DefaultListenDestinations.
	ListenDestinations []string
	// ListenAltNets are additional alt-net destinations, same syntax.
	ListenAltNets []string
}

func (c Config) withDefaults() Config {
	if c.DedupeWindow == 0 {
		c.DedupeWindow = 28 * time.Second
	}

	if c.RetransmitCount == 0 {
		c.RetransmitCount = 4
	}

	if c.RetransmitTimeoutBase == 0 {
		c.RetransmitTimeoutBase = 30 * time.Second
	}

	if c.RetransmitTimeoutRand == 0 {
		c.RetransmitTimeoutRand = 10 * time.Second
	}

	if c.RetransmitTimeoutScale == 0 {
		c.RetransmitTimeoutScale = 1.5
	}

	if c.MsgIDModulo == 0 {
		c.MsgIDModulo = 1000
	}

	if c.Destination.Callsign == "" {
		c.Destination = aprs.DefaultDestination
	}

	if c.ListenDestinations == nil {
		c.ListenDestinations = DefaultListenDestinations
	}

	return c
}

// AddressedMessage is published for every inbound APRS data message (not
// ack/rej) addressed to this station, after any embedded reply-ack has been
// applied to a pending outbound confirmable send.
type AddressedMessage struct {
	From     ax25.Address
	Text     string
	MsgID    string
	WantsAck bool
	// ReplyAckCapable is set when the sender advertised APRS 1.1
	// reply-ack support, inviting the reply to carry the ack inline.
	ReplyAckCapable bool
}

// Interface binds an APRS data-type registry to an AX.25 interface,
// handling duplicate suppression and message acknowledgement.
type Interface struct {
	address ax25.Address
	ifc     *iface.Interface
	cfg     Config
	log     *log.Logger

	mu      sync.Mutex
	seen    map[uint64]time.Time
	pending map[string]*PendingMessage // keyed by addressee key + msgid
	msgSeq  int
	rand    *rand.Rand

	// AddressedMessage fires for data messages addressed to this station.
	AddressedMessage *xsignal.Signal[AddressedMessage]
	// ReceivedFrame fires for every non-duplicate APRS frame that isn't a
	// message for this station: positions, statuses, objects, and
	// messages for third parties heard on broadcast destinations. A
	// digipeater typically hangs off this signal.
	ReceivedFrame *xsignal.Signal[aprs.Frame]

	subHandles []iface.Handle
}

// New binds a new Interface to address, subscribing to frames directed at
// it plus the configured broadcast and alt-net destinations.
func New(address ax25.Address, ifc *iface.Interface, cfg Config, logger *log.Logger) *Interface {
	a := &Interface{
		address:          address,
		ifc:              ifc,
		cfg:              cfg.withDefaults(),
		log:              logger,
		seen:             map[uint64]time.Time{},
		pending:          map[string]*PendingMessage{},
		rand:             rand.New(rand.NewSource(time.Now().UnixNano())),
		AddressedMessage: xsignal.New[AddressedMessage](logger),
		ReceivedFrame:    xsignal.New[aprs.Frame](logger),
	}

	a.subscribe(iface.LiteralFilter(address))

	for _, pattern := range a.cfg.ListenDestinations {
		a.subscribePattern(pattern)
	}

	for _, pattern := range a.cfg.ListenAltNets {
		a.subscribePattern(pattern)
	}

	return a
}

func (a *Interface) subscribe(f iface.Filter) {
	a.subHandles = append(a.subHandles, a.ifc.Subscribe(f, a.onReceive))
}

// subscribePattern accepts either a literal callsign[-SSID] or a regex
// over the callsign (marked by any regex metacharacter, in practice the
// leading '^' the APRS destination tables use).
func (a *Interface) subscribePattern(pattern string) {
	if re, err := regexp.Compile(pattern); err == nil && pattern != regexp.QuoteMeta(pattern) {
		a.subscribe(iface.RegexFilter(re, nil))
		return
	}

	addr, err := ax25.DecodeAddressString(pattern)
	if err != nil {
		if a.log != nil {
			a.log.Warn("ignoring unparseable listen destination", "pattern", pattern, "err", err)
		}

		return
	}

	a.subscribe(iface.LiteralFilter(addr))
}

// Close unsubscribes this interface.
func (a *Interface) Close() {
	for _, h := range a.subHandles {
		a.ifc.Unsubscribe(h)
	}
}

func digest(ui *ax25.UIFrame) uint64 {
	// The digest covers destination, source, control byte, and payload.
	// It deliberately excludes the digipeater path: the same packet
	// relayed via two different paths is still a duplicate.
	h := fnv.New64a()
	h.Write([]byte(ui.Header.Destination.Normalised().Key()))
	h.Write([]byte(ui.Header.Source.Normalised().Key()))
	h.Write([]byte{ui.Control()})
	h.Write(ui.Payload)

	return h.Sum64()
}

// isDuplicate reports whether this frame's digest has been seen within
// the dedupe window, recording it either way.
func (a *Interface) isDuplicate(ui *ax25.UIFrame) bool {
	d := digest(ui)

	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()

	for k, t := range a.seen {
		if now.Sub(t) > a.cfg.DedupeWindow {
			delete(a.seen, k)
		}
	}

	if _, ok := a.seen[d]; ok {
		return true
	}

	a.seen[d] = now

	return false
}

func (a *Interface) onReceive(f ax25.Frame) {
	ui, ok := f.(*ax25.UIFrame)
	if !ok {
		return
	}

	if a.isDuplicate(ui) {
		return
	}

	frame, err := aprs.Decode(ui)
	if err != nil {
		if a.log != nil {
			a.log.Debug("aprs decode error", "err", err, "from", ui.Header.Source)
		}

		return
	}

	msg, ok := frame.(*aprs.MessageFrame)
	if !ok || !msg.Addressee.Normalised().Equal(a.address.Normalised()) {
		a.ReceivedFrame.Emit(frame)
		return
	}

	switch msg.Kind {
	case aprs.MessageAck:
		a.completePending(ui.Header.Source, msg.MsgID, true)
	case aprs.MessageRej:
		a.completePending(ui.Header.Source, msg.MsgID, false)
	case aprs.MessageData:
		if msg.ReplyAck != "" {
			a.completePending(ui.Header.Source, msg.ReplyAck, true)
		}

		if msg.MsgID != "" {
			a.transmit(aprs.EncodeAckFrame(ui.Header.Source, msg.MsgID))
		}

		a.AddressedMessage.Emit(AddressedMessage{
			From:            ui.Header.Source,
			Text:            msg.Text,
			MsgID:           msg.MsgID,
			WantsAck:        msg.MsgID != "",
			ReplyAckCapable: msg.ReplyAckCapable || msg.ReplyAck != "",
		})
	}
}

// transmit stamps the configured destination and digipeater path onto ui
// and queues it on the underlying interface.
func (a *Interface) transmit(ui *ax25.UIFrame) {
	ui.Header.Destination = a.cfg.Destination
	ui.Header.Source = a.address
	ui.Header.Repeaters = a.cfg.Path.Clone()
	a.ifc.Transmit(ui, nil, nil)
}

func pendingKey(addressee ax25.Address, msgid string) string {
	return addressee.Normalised().Key() + "#" + msgid
}

func (a *Interface) completePending(addressee ax25.Address, msgid string, acked bool) {
	key := pendingKey(addressee, msgid)

	a.mu.Lock()
	pm, ok := a.pending[key]
	if ok {
		delete(a.pending, key)
	}
	a.mu.Unlock()

	if ok {
		pm.complete(acked)
	}
}

// nextMsgID returns the next message identifier: a monotonically
// increasing counter modulo MsgIDModulo, rendered as a decimal string.
func (a *Interface) nextMsgID() string {
	a.mu.Lock()
	a.msgSeq = (a.msgSeq + 1) % a.cfg.MsgIDModulo
	n := a.msgSeq
	a.mu.Unlock()

	return strconv.Itoa(n)
}

// firstTimeout returns base + uniform(0, rand) for a fresh confirmable
// send.
func (a *Interface) firstTimeout() time.Duration {
	t := a.cfg.RetransmitTimeoutBase

	if a.cfg.RetransmitTimeoutRand > 0 {
		a.mu.Lock()
		t += time.Duration(a.rand.Int63n(int64(a.cfg.RetransmitTimeoutRand)))
		a.mu.Unlock()
	}

	return t
}

// Send transmits a one-shot (unconfirmed) message: no msgid, no retry,
// and therefore no reply-ack.
func (a *Interface) Send(addressee ax25.Address, text string) {
	a.transmit(aprs.EncodeMessageFrame(addressee, text, "", ""))
}

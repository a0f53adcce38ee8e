// Package iface implements the clear-to-send transmit scheduler and
// destination-filtered receive dispatch sitting between a KISS port and
// the AX.25 protocol layers above it.
package iface

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vk4msl/goax25kiss/internal/ax25"
	"github.com/vk4msl/goax25kiss/internal/kiss"
	"github.com/vk4msl/goax25kiss/internal/xsignal"
)

// Filter decides whether a received frame's header is of interest to a
// subscriber.
type Filter func(ax25.Address) bool

// LiteralFilter matches only the exact callsign+SSID pair.
func LiteralFilter(addr ax25.Address) Filter {
	norm := addr.Normalised()

	return func(a ax25.Address) bool {
		return a.Normalised().Equal(norm)
	}
}

// RegexMatcher is satisfied by *regexp.Regexp; kept as an interface so
// callers don't need to import regexp just to build a Filter.
type RegexMatcher interface {
	MatchString(string) bool
}

// RegexFilter matches any callsign the pattern accepts; when ssid is
// non-nil, the SSID must also match exactly.
func RegexFilter(re RegexMatcher, ssid *uint8) Filter {
	return func(a ax25.Address) bool {
		if !re.MatchString(a.Callsign) {
			return false
		}

		if ssid != nil && a.SSID != *ssid {
			return false
		}

		return true
	}
}

type subscriber struct {
	id     uint64
	filter Filter
	handle func(ax25.Frame)
}

// TxHandle identifies a queued transmission so it can later be cancelled
// with CancelTransmit.
type TxHandle struct {
	id uint64
}

type txItem struct {
	id       uint64
	channel  byte
	frame    ax25.Frame
	deadline *time.Time
	done     func(error)
}

// Config tunes the clear-to-send timing. Zero values fall back to
// reasonable VHF packet defaults.
type Config struct {
	CTSDelay time.Duration
	CTSRand  time.Duration
}

func (c Config) withDefaults() Config {
	if c.CTSDelay == 0 {
		c.CTSDelay = 250 * time.Millisecond
	}

	if c.CTSRand == 0 {
		c.CTSRand = 250 * time.Millisecond
	}

	return c
}

// Interface schedules transmissions over a kiss.Port's channel and fans
// out decoded received frames to destination-filtered subscribers.
type Interface struct {
	port    *kiss.Port
	channel byte
	cfg     Config
	log     *log.Logger

	mu        sync.Mutex
	queue     []*txItem
	nextTxID  uint64
	nextSubID uint64
	subs      []*subscriber
	ctsExpiry time.Time
	timer     *time.Timer
	rand      *rand.Rand
	modulo128 *bool // nil: interface doesn't pin a control-field width
}

// New wraps port's channel as a scheduled interface. modulo128 selects how
// inbound control fields are sized; pass nil when the width is only known
// per-peer (the caller is then responsible for re-decoding RawFrame
// results).
func New(port *kiss.Port, channel byte, cfg Config, modulo128 *bool, logger *log.Logger) *Interface {
	ifc := &Interface{
		port:      port,
		channel:   channel,
		cfg:       cfg.withDefaults(),
		log:       logger,
		rand:      rand.New(rand.NewSource(int64(channel) + 1)),
		modulo128: modulo128,
	}

	port.Received.Connect(ifc.onPortFrame)

	return ifc
}

func (ifc *Interface) onPortFrame(f kiss.Frame) {
	if f.Port != ifc.channel || f.Cmd != kiss.CmdDataFrame {
		return
	}

	ifc.bumpCTS()

	frame, err := ax25.Decode(f.Payload, ifc.modulo128)
	if err != nil {
		if ifc.log != nil {
			ifc.log.Debug("frame decode error", "channel", ifc.channel, "err", err)
		}

		if frame == nil {
			return
		}
	}

	ifc.dispatch(frame)
}

func (ifc *Interface) dispatch(frame ax25.Frame) {
	ifc.mu.Lock()
	subs := make([]*subscriber, len(ifc.subs))
	copy(subs, ifc.subs)
	ifc.mu.Unlock()

	dest := frame.GetHeader().Destination

	for _, s := range subs {
		if s.filter == nil || s.filter(dest) {
			ifc.safeInvoke(s, frame)
		}
	}
}

func (ifc *Interface) safeInvoke(s *subscriber, frame ax25.Frame) {
	defer func() {
		if r := recover(); r != nil && ifc.log != nil {
			ifc.log.Error("panic in interface subscriber", "recovered", r)
		}
	}()

	s.handle(frame)
}

// Subscribe registers handle to be called for every received frame whose
// destination matches filter (nil filter matches everything).
func (ifc *Interface) Subscribe(filter Filter, handle func(ax25.Frame)) Handle {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()

	ifc.nextSubID++
	id := ifc.nextSubID
	ifc.subs = append(ifc.subs, &subscriber{id: id, filter: filter, handle: handle})

	return Handle{id: id}
}

// Handle identifies a receive subscription.
type Handle struct {
	id uint64
}

// Unsubscribe removes a subscription registered with Subscribe.
func (ifc *Interface) Unsubscribe(h Handle) {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()

	for i, s := range ifc.subs {
		if s.id == h.id {
			ifc.subs = append(ifc.subs[:i], ifc.subs[i+1:]...)
			return
		}
	}
}

func (ifc *Interface) bumpCTS() {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()

	candidate := time.Now().Add(ifc.cfg.CTSDelay + ifc.jitter())
	if candidate.After(ifc.ctsExpiry) {
		ifc.ctsExpiry = candidate
	}

	ifc.rearmLocked()
}

func (ifc *Interface) jitter() time.Duration {
	if ifc.cfg.CTSRand <= 0 {
		return 0
	}

	return time.Duration(ifc.rand.Int63n(int64(ifc.cfg.CTSRand)))
}

// Transmit enqueues frame for transmission on this interface's channel. If
// deadline is non-nil, the frame is dropped (and done, if set, is called
// with a deadline-exceeded error) if it is still queued past that time.
// done, if non-nil, is called once after the frame is written to the port
// (with any port error) or dropped.
func (ifc *Interface) Transmit(frame ax25.Frame, deadline *time.Time, done func(error)) TxHandle {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()

	ifc.nextTxID++
	item := &txItem{id: ifc.nextTxID, channel: ifc.channel, frame: frame, deadline: deadline, done: done}
	ifc.queue = append(ifc.queue, item)

	if ifc.ctsExpiry.Before(time.Now()) {
		ifc.ctsExpiry = time.Now().Add(ifc.cfg.CTSDelay + ifc.jitter())
	}

	ifc.rearmLocked()

	return TxHandle{id: item.id}
}

// CancelTransmit removes a queued frame by identity; it has no effect if
// the frame has already been handed to the port.
func (ifc *Interface) CancelTransmit(h TxHandle) bool {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()

	for i, it := range ifc.queue {
		if it.id == h.id {
			ifc.queue = append(ifc.queue[:i], ifc.queue[i+1:]...)
			return true
		}
	}

	return false
}

// rearmLocked must be called with ifc.mu held.
func (ifc *Interface) rearmLocked() {
	if len(ifc.queue) == 0 {
		return
	}

	if ifc.timer != nil {
		return
	}

	delay := time.Until(ifc.ctsExpiry)
	if delay < 0 {
		delay = 0
	}

	ifc.timer = time.AfterFunc(delay, ifc.fire)
}

func (ifc *Interface) fire() {
	ifc.mu.Lock()
	ifc.timer = nil

	if len(ifc.queue) == 0 {
		ifc.mu.Unlock()
		return
	}

	item := ifc.queue[0]
	ifc.queue = ifc.queue[1:]
	ifc.mu.Unlock()

	if item.deadline != nil && time.Now().After(*item.deadline) {
		if ifc.log != nil {
			ifc.log.Info("dropping expired transmit", "channel", item.channel)
		}

		if item.done != nil {
			item.done(fmt.Errorf("iface: deadline exceeded"))
		}
	} else {
		err := ifc.port.Send(item.channel, item.frame.Encode())
		if err != nil && ifc.log != nil {
			ifc.log.Error("transmit failed", "channel", item.channel, "err", err)
		}

		if item.done != nil {
			item.done(err)
		}
	}

	ifc.bumpCTS()
}

// Run starts the port's byte-stream read loop; it blocks until ctx is
// cancelled or the transport errors.
func (ifc *Interface) Run(ctx context.Context) error {
	return ifc.port.Run(ctx)
}

// Received exposes the underlying port's raw signal for callers that want
// every frame regardless of destination (e.g. a digipeater watching all
// traffic).
func (ifc *Interface) Received() *xsignal.Signal[kiss.Frame] {
	return ifc.port.Received
}

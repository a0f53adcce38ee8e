// Package digipeater implements the generic WIDEn-N APRS digipeating
// algorithm: explicit own-call routing, mydigi alias substitution, and
// WIDEn-N hop decrementing, the latter two with duplicate suppression.
package digipeater

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/vk4msl/goax25kiss/internal/ax25"
)

var wideRe = regexp.MustCompile(`^WIDE[0-9]$`)

// Config holds a digipeater's own identity and the mydigi alias set it
// digipeats unconditionally (and only once).
type Config struct {
	MyCall ax25.Address
	// Aliases are mydigi entries (e.g. RELAY, WIDE1-1) answered in
	// addition to MyCall; an SSID-qualified alias matches only that SSID.
	Aliases []ax25.Address
	// DedupeWindow bounds how long a digipeated frame's digest is
	// remembered to suppress re-digipeating the same packet.
	DedupeWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.DedupeWindow == 0 {
		c.DedupeWindow = 30 * time.Second
	}

	return c
}

// Digipeater applies the WIDEn-N algorithm to inbound UI frames.
type Digipeater struct {
	cfg Config

	aliases map[string]struct{} // normalised alias keys

	mu   sync.Mutex
	seen map[string]time.Time
}

// New builds a Digipeater from cfg.
func New(cfg Config) *Digipeater {
	d := &Digipeater{
		cfg:     cfg.withDefaults(),
		aliases: map[string]struct{}{},
		seen:    map[string]time.Time{},
	}

	for _, alias := range cfg.Aliases {
		d.aliases[alias.Normalised().Key()] = struct{}{}
	}

	return d
}

// Process decides whether frame should be retransmitted, returning the
// modified copy and true if so. The frame passed in is never mutated.
func (d *Digipeater) Process(frame *ax25.UIFrame) (*ax25.UIFrame, bool) {
	hdr := frame.Header

	if hdr.Source.Normalised().Equal(d.cfg.MyCall.Normalised()) {
		return nil, false
	}

	r := firstUnrepeated(hdr.Repeaters)
	if r < 0 {
		return nil, false
	}

	repeater := hdr.Repeaters[r]

	if repeater.Normalised().Equal(d.cfg.MyCall.Normalised()) {
		return d.digipeatAt(frame, r), true
	}

	if d.isDuplicate(frame) {
		return nil, false
	}

	if d.matchesAlias(repeater) {
		return d.digipeatAt(frame, r), true
	}

	if wideRe.MatchString(repeater.Callsign) {
		return d.digipeatWide(frame, r, repeater)
	}

	return nil, false
}

func firstUnrepeated(path ax25.Path) int {
	for i, a := range path {
		if !a.CH {
			return i
		}
	}

	return -1
}

func (d *Digipeater) matchesAlias(repeater ax25.Address) bool {
	_, ok := d.aliases[repeater.Normalised().Key()]
	return ok
}

// digipeatAt replaces the repeater at index r with this station's own
// call, marking it used.
func (d *Digipeater) digipeatAt(frame *ax25.UIFrame, r int) *ax25.UIFrame {
	out := cloneUI(frame)

	own := d.cfg.MyCall
	own.CH = true

	out.Header.Repeaters[r] = own

	return out
}

// digipeatWide implements the WIDEn-N hop-decrement rule: N=1 behaves like
// a plain alias substitution; 2<=N<=7 decrements N and, space permitting,
// inserts this station ahead of the WIDEn-(N-1) entry for tracing.
func (d *Digipeater) digipeatWide(frame *ax25.UIFrame, r int, repeater ax25.Address) (*ax25.UIFrame, bool) {
	ssid := repeater.SSID

	switch {
	case ssid == 1:
		out := cloneUI(frame)
		out.Header.Repeaters[r].SSID = 0

		return d.digipeatAt(out, r), true
	case ssid >= 2 && ssid <= 7:
		out := cloneUI(frame)
		out.Header.Repeaters[r].SSID = ssid - 1

		const maxRepeaters = 8
		if len(out.Header.Repeaters) < maxRepeaters {
			own := d.cfg.MyCall
			own.CH = true

			path := make(ax25.Path, 0, len(out.Header.Repeaters)+1)
			path = append(path, out.Header.Repeaters[:r]...)
			path = append(path, own)
			path = append(path, out.Header.Repeaters[r:]...)
			out.Header.Repeaters = path
		}

		return out, true
	default:
		return nil, false
	}
}

func cloneUI(frame *ax25.UIFrame) *ax25.UIFrame {
	out := *frame
	out.Header.Repeaters = frame.Header.Repeaters.Clone()
	out.Payload = append([]byte{}, frame.Payload...)

	return &out
}

func digestKey(frame *ax25.UIFrame) string {
	var b strings.Builder

	b.WriteString(frame.Header.Destination.Normalised().Key())
	b.WriteByte('|')
	b.WriteString(frame.Header.Source.Normalised().Key())
	b.WriteByte('|')
	b.Write(frame.Payload)

	return b.String()
}

func (d *Digipeater) isDuplicate(frame *ax25.UIFrame) bool {
	key := digestKey(frame)

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()

	for k, t := range d.seen {
		if now.Sub(t) > d.cfg.DedupeWindow {
			delete(d.seen, k)
		}
	}

	if _, ok := d.seen[key]; ok {
		return true
	}

	d.seen[key] = now

	return false
}

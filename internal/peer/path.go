package peer

import (
	"strings"

	"github.com/vk4msl/goax25kiss/internal/ax25"
)

// usedPrefix returns the repeaters that actually relayed this frame (the
// H-set prefix, per the header-path invariant that "the used portion of
// the path is a prefix"), with H cleared, in original order. This is the
// source's "reversed(reply)" construction of §4.6 (Path.Reply reverses and
// clears H once; reversing the reject-path invariant-guaranteed prefix a
// second time restores original order).
func usedPrefix(p ax25.Path) ax25.Path {
	var out ax25.Path

	for _, a := range p {
		if !a.CH {
			break
		}

		c := a
		c.CH = false
		out = append(out, c)
	}

	return out
}

func pathKey(p ax25.Path) string {
	var b strings.Builder

	for i, a := range p {
		if i > 0 {
			b.WriteByte(',')
		}

		b.WriteString(a.Normalised().Key())
	}

	return b.String()
}

// learnRXPathLocked increments rx_path_count for the path a received frame
// actually travelled, unless this peer is locked to a configured path.
func (p *Peer) learnRXPathLocked(repeaters ax25.Path) {
	if p.locked {
		return
	}

	used := usedPrefix(repeaters)
	key := pathKey(used)
	p.rxPathCount[key]++
	p.rxPaths[key] = used
}

// WeighPath adjusts the transmit-quality score of a digipeater path used to
// reach this peer. If relative is true, weight is added to the path's
// existing score; otherwise it replaces it outright.
func (p *Peer) WeighPath(path ax25.Path, weight int, relative bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.weighPathWithLocked(path, weight, relative)
}

// weighPathLocked adjusts the score of the path currently in use for this
// peer's outbound header (the cached/computed reply path), used internally
// on ACK (+1) and REJ/SREJ (-1) per §4.6.
func (p *Peer) weighPathLocked(delta int) {
	p.weighPathWithLocked(p.replyPathLocked(), delta, true)
}

func (p *Peer) weighPathWithLocked(path ax25.Path, weight int, relative bool) {
	used := usedPrefix(path)
	key := pathKey(used)

	if relative {
		weight += p.txPathScore[key]
	}

	p.txPathScore[key] = weight
	p.txPaths[key] = used
}

// replyPathLocked computes the digipeater path to use when contacting this
// peer: an explicit override if set, the locked path if locked, otherwise
// the highest-scoring transmit path, falling back to the most-seen receive
// path, falling back to the originally configured path.
func (p *Peer) replyPathLocked() ax25.Path {
	if p.reply != nil {
		return p.reply
	}

	if p.locked {
		return p.repeaters
	}

	if best, ok := bestByScore(p.txPaths, p.txPathScore); ok {
		return reversedForReply(best)
	}

	if best, ok := bestByCount(p.rxPaths, p.rxPathCount); ok {
		return reversedForReply(best)
	}

	return p.repeaters
}

// reversedForReply turns a "path the frame travelled through" (original
// order, H cleared) back into the repeater list an outbound frame carries:
// reversed, with H clear on every entry so each digipeater relays it in
// turn.
func reversedForReply(used ax25.Path) ax25.Path {
	out := make(ax25.Path, len(used))

	for i, a := range used {
		a.CH = false
		out[len(used)-1-i] = a
	}

	return out
}

func bestByScore(paths map[string]ax25.Path, scores map[string]int) (ax25.Path, bool) {
	var (
		bestKey   string
		bestScore int
		found     bool
	)

	for k, s := range scores {
		if !found || s > bestScore {
			bestKey, bestScore, found = k, s, true
		}
	}

	if !found {
		return nil, false
	}

	return paths[bestKey], true
}

func bestByCount(paths map[string]ax25.Path, counts map[string]int) (ax25.Path, bool) {
	var (
		bestKey   string
		bestCount int
		found     bool
	)

	for k, c := range counts {
		if !found || c > bestCount {
			bestKey, bestCount, found = k, c, true
		}
	}

	if !found {
		return nil, false
	}

	return paths[bestKey], true
}

// SetReplyPath pins an explicit outbound digipeater path, overriding path
// learning.
func (p *Peer) SetReplyPath(path ax25.Path) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.reply = path.Clone()
}

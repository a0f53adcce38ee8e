package aprsiface

import (
	"sync"
	"time"

	"github.com/vk4msl/goax25kiss/internal/aprs"
	"github.com/vk4msl/goax25kiss/internal/ax25"
)

// SendState is the lifecycle of a confirmable APRS message send.
type SendState int

const (
	SendInit SendState = iota
	SendSending
	SendRetrying
	SendSuccess
	SendRejected
	SendCancelled
	SendTimedOut
	SendFailed
)

func (s SendState) String() string {
	switch s {
	case SendInit:
		return "INIT"
	case SendSending:
		return "SEND"
	case SendRetrying:
		return "RETRY"
	case SendSuccess:
		return "SUCCESS"
	case SendRejected:
		return "REJECT"
	case SendCancelled:
		return "CANCEL"
	case SendTimedOut:
		return "TIMEOUT"
	case SendFailed:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

func terminal(s SendState) bool {
	switch s {
	case SendSuccess, SendRejected, SendCancelled, SendTimedOut, SendFailed:
		return true
	default:
		return false
	}
}

// PendingMessage tracks one in-flight confirmable APRS message: it
// retransmits on a timeout, scaling the wait each time, until an ack/rej
// arrives or the retry budget is exhausted.
type PendingMessage struct {
	a         *Interface
	addressee ax25.Address
	msgid     string
	text      string
	replyAck  string

	mu      sync.Mutex
	state   SendState
	attempt int
	timeout time.Duration
	timer   *time.Timer

	onDone func(SendState)
}

// SendConfirmed transmits text to addressee with a message ID, retrying on
// the configured schedule until acked, rejected, or exhausted. onDone, if
// non-nil, is called exactly once with the terminal state.
func (a *Interface) SendConfirmed(addressee ax25.Address, text string, onDone func(SendState)) *PendingMessage {
	return a.sendConfirmed(addressee, text, "", onDone)
}

// SendConfirmedReply is SendConfirmed carrying an APRS 1.1 reply-ack: the
// outgoing message also acknowledges replyAck, one of the addressee's own
// message IDs. Only confirmable sends can carry a reply-ack — the grammar
// ties it to a message ID, which one-shot Send never allocates.
func (a *Interface) SendConfirmedReply(addressee ax25.Address, text, replyAck string, onDone func(SendState)) *PendingMessage {
	return a.sendConfirmed(addressee, text, replyAck, onDone)
}

func (a *Interface) sendConfirmed(addressee ax25.Address, text, replyAck string, onDone func(SendState)) *PendingMessage {
	msgid := a.nextMsgID()

	pm := &PendingMessage{
		a:         a,
		addressee: addressee,
		msgid:     msgid,
		text:      text,
		replyAck:  replyAck,
		timeout:   a.firstTimeout(),
		onDone:    onDone,
	}

	key := pendingKey(addressee, msgid)

	a.mu.Lock()
	a.pending[key] = pm
	a.mu.Unlock()

	pm.transmit(SendSending)

	return pm
}

// MsgID returns the message identifier this send used.
func (pm *PendingMessage) MsgID() string { return pm.msgid }

// State returns the current lifecycle state.
func (pm *PendingMessage) State() SendState {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	return pm.state
}

func (pm *PendingMessage) transmit(state SendState) {
	pm.mu.Lock()
	pm.state = state
	ui := aprs.EncodeMessageFrame(pm.addressee, pm.text, pm.msgid, pm.replyAck)
	timeout := pm.timeout
	pm.mu.Unlock()

	pm.a.transmit(ui)

	pm.mu.Lock()
	pm.timer = time.AfterFunc(timeout, pm.onTimeout)
	pm.mu.Unlock()
}

func (pm *PendingMessage) onTimeout() {
	pm.mu.Lock()

	if terminal(pm.state) {
		pm.mu.Unlock()
		return
	}

	pm.attempt++

	if pm.attempt > pm.a.cfg.RetransmitCount {
		pm.state = SendTimedOut
		pm.mu.Unlock()
		pm.removeAndFinish(SendTimedOut)

		return
	}

	pm.timeout = time.Duration(float64(pm.timeout) * pm.a.cfg.RetransmitTimeoutScale)
	pm.mu.Unlock()

	pm.transmit(SendRetrying)
}

// complete is invoked (by the owning Interface) when an ack/rej for this
// message's ID arrives from the addressee.
func (pm *PendingMessage) complete(acked bool) {
	pm.mu.Lock()

	if terminal(pm.state) {
		pm.mu.Unlock()
		return
	}

	if pm.timer != nil {
		pm.timer.Stop()
	}

	state := SendSuccess
	if !acked {
		state = SendRejected
	}

	pm.mu.Unlock()
	pm.finish(state)
}

// Cancel aborts a pending send; onDone, if set, fires with SendCancelled.
func (pm *PendingMessage) Cancel() {
	pm.mu.Lock()

	if terminal(pm.state) {
		pm.mu.Unlock()
		return
	}

	if pm.timer != nil {
		pm.timer.Stop()
	}

	pm.mu.Unlock()
	pm.removeAndFinish(SendCancelled)
}

func (pm *PendingMessage) removeAndFinish(state SendState) {
	key := pendingKey(pm.addressee, pm.msgid)

	pm.a.mu.Lock()
	delete(pm.a.pending, key)
	pm.a.mu.Unlock()

	pm.finish(state)
}

func (pm *PendingMessage) finish(state SendState) {
	pm.mu.Lock()
	pm.state = state
	done := pm.onDone
	pm.mu.Unlock()

	if done != nil {
		done(state)
	}
}

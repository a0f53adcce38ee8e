package peer

import (
	"time"

	"github.com/vk4msl/goax25kiss/internal/ax25"
)

// Send queues a payload for transmission as an I-frame. If the peer is not
// CONNECTED the payload is dropped (callers are expected to check State()
// first, matching the synchronous-or-nothing error policy of §7).
func (p *Peer) Send(pid byte, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateConnected {
		return
	}

	p.pendingData = append(p.pendingData, pendingPayload{pid: pid, payload: payload})
	p.sendNextIFrameLocked()
}

// sendNextIFrameLocked sends the head of pendingData as an I-frame if the
// window allows, per §4.6 "sending an I-frame".
func (p *Peer) sendNextIFrameLocked() {
	if len(p.pendingData) == 0 || len(p.pendingIframes) >= p.maxOutstanding {
		return
	}

	ns := p.sendState
	next := p.pendingData[0]
	p.pendingData = p.pendingData[1:]
	p.pendingIframes[ns] = next

	p.transmitIFrameLocked(ns)

	p.sendState = (p.sendState + 1) % uint8(p.modulo)
	p.armAckTimerLocked()
}

func (p *Peer) transmitIFrameLocked(ns uint8) {
	pp := p.pendingIframes[ns]
	hdr := p.header()
	p.transmit(&ax25.IFrame{
		Header:    hdr,
		Modulo128: p.modulo == 128,
		NR:        p.recvState,
		NS:        ns,
		PF:        false,
		PID:       pp.pid,
		Payload:   pp.payload,
	})
}

// onReceiveIFrameLocked handles an inbound I-frame per §4.6.
func (p *Peer) onReceiveIFrameLocked(f *ax25.IFrame) {
	p.cancelRRNotificationLocked()
	p.advanceAckStateLocked(f.NR)

	if p.localBusy {
		if p.log != nil {
			p.log.Warn("dropping I-frame during busy condition", "peer", p.Address)
		}

		p.sendRNRNotificationLocked()

		return
	}

	if f.NS != p.recvState {
		p.sendRejectLocked(p.recvState)

		return
	}

	p.recvState = (p.recvState + 1) % uint8(p.modulo)

	p.ReceivedInformation.Emit(InformationEvent{Peer: p, PID: f.PID, Payload: f.Payload})

	if len(p.pendingData) > 0 && len(p.pendingIframes) < p.maxOutstanding {
		p.sendNextIFrameLocked()
		return
	}

	p.scheduleRRNotificationLocked()
}

// onReceiveSFrameLocked dispatches RR/RNR/REJ/SREJ per §4.6's reject
// discipline (resolving the source's noted `_on_receive_sframe` stub: all
// four codes update V(A)/retransmission state synchronously here).
func (p *Peer) onReceiveSFrameLocked(f *ax25.SFrame) {
	switch f.Code {
	case ax25.SCodeRR:
		p.peerBusy = false
		p.advanceAckStateLocked(f.NR)

		if f.PF {
			p.sendRRLocked(true)
		}
	case ax25.SCodeRNR:
		p.peerBusy = true
		p.advanceAckStateLocked(f.NR)
	case ax25.SCodeREJ:
		p.peerBusy = false
		p.advanceAckStateLocked(f.NR)
		p.weighPathLocked(-1)
		p.retransmitFromLocked(f.NR)
	case ax25.SCodeSREJ:
		p.advanceAckStateLocked(f.NR)
		p.weighPathLocked(-1)
		p.retransmitOneLocked(f.NR)
	}
}

// advanceAckStateLocked moves V(A) forward to N(R) (mod the active
// modulo), discarding now-acknowledged outstanding I-frames and cancelling
// the ack timer if nothing remains outstanding.
func (p *Peer) advanceAckStateLocked(nr uint8) {
	for p.ackState != nr {
		delete(p.pendingIframes, p.ackState)
		p.weighPathLocked(1)
		p.ackState = (p.ackState + 1) % uint8(p.modulo)
	}

	if len(p.pendingIframes) == 0 {
		p.cancelAckTimerLocked()
	}

	p.sendNextIFrameLocked()
}

// retransmitFromLocked resends every outstanding I-frame with N(S) >= nr
// (mod the active modulo), the REJ/Implicit-Reject semantics of "retransmit
// from the indicated N(R) onward".
func (p *Peer) retransmitFromLocked(nr uint8) {
	ns := nr
	for i := 0; i < p.modulo; i++ {
		if _, ok := p.pendingIframes[ns]; ok {
			p.transmitIFrameLocked(ns)
		}

		ns = (ns + 1) % uint8(p.modulo)
	}

	if len(p.pendingIframes) > 0 {
		p.armAckTimerLocked()
	}
}

// retransmitOneLocked resends exactly the missing frame SREJ asked for.
func (p *Peer) retransmitOneLocked(ns uint8) {
	if _, ok := p.pendingIframes[ns]; ok {
		p.transmitIFrameLocked(ns)
		p.armAckTimerLocked()
	}
}

// sendRejectLocked reacts to an out-of-sequence I-frame per the configured
// reject discipline.
func (p *Peer) sendRejectLocked(expected uint8) {
	switch p.rejectMode {
	case RejectSREJ, RejectSREJREJ:
		p.sendSLocked(ax25.SCodeSREJ, expected, true)
	case RejectREJ:
		p.sendSLocked(ax25.SCodeREJ, expected, true)
	default:
		// Implicit reject: rely on the peer's ack timer to retransmit.
	}
}

func (p *Peer) sendSLocked(code ax25.SCode, nr uint8, pf bool) {
	hdr := p.header()
	p.transmit(&ax25.SFrame{Header: hdr, Modulo128: p.modulo == 128, NR: nr, PF: pf, Code: code})
}

func (p *Peer) sendRRLocked(pf bool) {
	p.sendSLocked(ax25.SCodeRR, p.recvState, pf)
}

// --- RR/RNR notification timers ----------------------------------------

func (p *Peer) cancelRRNotificationLocked() {
	if p.rrTimer != nil {
		p.rrTimer.Stop()
		p.rrTimer = nil
	}
}

// scheduleRRNotificationLocked resolves the source's unsettled
// `_schedule_rr_notification` call (spec.md §9): cancel any prior pending
// RR, then schedule a fresh one for rr_delay.
func (p *Peer) scheduleRRNotificationLocked() {
	p.cancelRRNotificationLocked()
	p.rrTimer = time.AfterFunc(p.cfg.RRDelay, p.onRRNotificationExpired)
}

func (p *Peer) onRRNotificationExpired() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rrTimer = nil
	p.sendRRLocked(false)
}

func (p *Peer) sendRNRNotificationLocked() {
	now := time.Now()
	if now.Sub(p.lastRNRSent) <= p.cfg.RNRInterval {
		return
	}

	p.sendSLocked(ax25.SCodeRNR, p.recvState, false)
	p.lastRNRSent = now
}

// --- ack timer (drives implicit-reject / unacked retransmission) -------

func (p *Peer) ackTimeoutLocked() time.Duration {
	if p.negotiatedAckTimer != nil {
		return *p.negotiatedAckTimer
	}

	return p.cfg.AckTimer
}

func (p *Peer) maxRetriesLocked() int {
	if p.negotiatedRetries != nil {
		return *p.negotiatedRetries
	}

	return p.cfg.MaxRetries
}

func (p *Peer) armAckTimerLocked() {
	if p.ackTimer != nil {
		return
	}

	p.ackTimer = time.AfterFunc(p.ackTimeoutLocked(), p.onAckTimerExpired)
}

func (p *Peer) cancelAckTimerLocked() {
	if p.ackTimer != nil {
		p.ackTimer.Stop()
		p.ackTimer = nil
	}
}

func (p *Peer) onAckTimerExpired() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ackTimer = nil

	if len(p.pendingIframes) == 0 {
		return
	}

	p.retryCount++
	if p.retryCount > p.maxRetriesLocked() {
		if p.log != nil {
			p.log.Warn("peer unresponsive, disconnecting", "peer", p.Address)
		}

		p.onDisconnectLocked()
		p.sendDMLocked()

		return
	}

	p.retransmitFromLocked(p.ackState)
}

// SetLocalBusy toggles the local-busy condition; while busy, inbound
// I-frames are dropped and RNR is sent (throttled to rnr_interval).
func (p *Peer) SetLocalBusy(busy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.localBusy = busy

	if !busy {
		p.sendRRLocked(false)
	}
}

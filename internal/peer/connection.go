package peer

import (
	"time"

	"github.com/vk4msl/goax25kiss/internal/ax25"
)

// Connect initiates an outbound connection. If the station speaks AX.25 2.2
// and no prior XID exchange has succeeded, it enters NEGOTIATING and sends
// an XID command; otherwise it
// enters CONNECTING and sends SABM (modulo 8) or SABME (modulo 128,
// AX.25 2.2 only). done is called exactly once: with nil on CONNECTED,
// with ErrPeerTimeout if max-retries is exhausted without a reply.
func (p *Peer) Connect(done func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateDisconnected {
		if done != nil {
			done(nil)
		}

		return
	}

	p.connectDone = done
	p.retryCount = 0

	if !p.xidDone && p.station.Protocol() == ProtocolAX25_22 {
		p.setState(StateNegotiating)
		p.retryKind = retryXID
		p.sendXIDCommandLocked()
	} else {
		p.setState(StateConnecting)
		p.retryKind = retrySABM
		p.sendSABMLocked()
	}

	p.armRetryTimerLocked()
}

func (p *Peer) sendSABMLocked() {
	hdr := p.header()
	hdr.DestCR = true

	if p.cfg.SupportModulo128 {
		p.transmit(&ax25.SABMEFrame{Header: hdr, PF: false})
	} else {
		p.transmit(&ax25.SABMFrame{Header: hdr, PF: false})
	}
}

func (p *Peer) armRetryTimerLocked() {
	p.cancelRetryTimerLocked()
	p.retryTimer = time.AfterFunc(p.cfg.RetryTimer, p.onRetryExpired)
}

func (p *Peer) cancelRetryTimerLocked() {
	if p.retryTimer != nil {
		p.retryTimer.Stop()
		p.retryTimer = nil
	}
}

func (p *Peer) onRetryExpired() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.retryCount++
	if p.retryCount > p.cfg.MaxRetries {
		kind := p.retryKind
		p.retryKind = retryNone
		p.setState(StateDisconnected)
		p.resetConnectionStateLocked()

		switch kind {
		case retryXID, retrySABM:
			if p.connectDone != nil {
				done := p.connectDone
				p.connectDone = nil
				done(ErrPeerTimeout)
			}
		case retryDISC:
			if p.disconnectDone != nil {
				done := p.disconnectDone
				p.disconnectDone = nil
				done(ErrPeerTimeout)
			}
		}

		return
	}

	switch p.retryKind {
	case retryXID:
		p.sendXIDCommandLocked()
	case retrySABM:
		p.sendSABMLocked()
	case retryDISC:
		p.sendDISCLocked()
	default:
		return
	}

	p.armRetryTimerLocked()
}

// Disconnect sends DISC and awaits UA. done is called exactly once: with
// nil once UA arrives (or immediately if already disconnected), with
// ErrPeerTimeout if max-retries is exhausted.
func (p *Peer) Disconnect(done func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateDisconnected {
		if done != nil {
			done(nil)
		}

		return
	}

	p.disconnectDone = done
	p.retryCount = 0
	p.retryKind = retryDISC
	p.setState(StateDisconnecting)
	p.sendDISCLocked()
	p.armRetryTimerLocked()
}

func (p *Peer) sendDISCLocked() {
	hdr := p.header()
	hdr.DestCR = true
	p.transmit(&ax25.DISCFrame{Header: hdr, PF: false})
}

func (p *Peer) sendDMLocked() {
	hdr := p.header()
	p.transmit(&ax25.DMFrame{Header: hdr, PF: false})
}

func (p *Peer) sendUALocked(pf bool) {
	hdr := p.header()
	p.transmit(&ax25.UAFrame{Header: hdr, PF: pf})
}

// onReceiveSABMLocked handles a peer-initiated SABM(E).
func (p *Peer) onReceiveSABMLocked(pf, modulo128 bool) {
	if modulo128 {
		if p.protocol == ProtocolUnknown {
			p.protocol = ProtocolAX25_22
		}

		if p.station.Protocol() != ProtocolAX25_22 {
			p.sendFRMRLocked(0, true, false, false, false)
			return
		}
	}

	p.initConnectionLocked(modulo128)
	p.setState(StateConnected)
	p.sendUALocked(pf)
}

func (p *Peer) initConnectionLocked(modulo128 bool) {
	if modulo128 {
		p.modulo = 128
		p.maxOutstanding = p.cfg.MaxOutstandingMod128
	} else {
		p.modulo = 8
		p.maxOutstanding = p.cfg.MaxOutstandingMod8
	}

	if p.negotiatedWindow != nil && *p.negotiatedWindow < p.maxOutstanding {
		p.maxOutstanding = *p.negotiatedWindow
	}

	p.resetConnectionStateLocked()
}

// AckTimeout returns the negotiated (or configured default) ack timer.
func (p *Peer) AckTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.negotiatedAckTimer != nil {
		return *p.negotiatedAckTimer
	}

	return p.cfg.AckTimer
}

// MaxRetries returns the negotiated (or configured default) retry count.
func (p *Peer) MaxRetries() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.negotiatedRetries != nil {
		return *p.negotiatedRetries
	}

	return p.cfg.MaxRetries
}

// MaxIField returns the negotiated (or configured default) maximum I-field
// length in octets.
func (p *Peer) MaxIField() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.negotiatedMaxIField != nil {
		return *p.negotiatedMaxIField
	}

	return p.cfg.MaxIField
}

func (p *Peer) resetConnectionStateLocked() {
	p.sendState = 0
	p.recvState = 0
	p.ackState = 0
	p.localBusy = false
	p.peerBusy = false
	p.pendingIframes = map[uint8]pendingPayload{}
	p.pendingData = nil
	p.cancelAckTimerLocked()
	p.cancelRRNotificationLocked()
}

func (p *Peer) onDisconnectLocked() {
	p.setState(StateDisconnected)
	p.resetConnectionStateLocked()
	p.cancelRetryTimerLocked()
}

func (p *Peer) onReceiveDISCLocked() {
	p.onDisconnectLocked()
	p.sendUALocked(false)
}

func (p *Peer) onReceiveDMLocked() {
	wasConnecting := p.state == StateConnecting || p.state == StateNegotiating
	wasDisconnecting := p.state == StateDisconnecting
	p.onDisconnectLocked()

	if wasConnecting && p.connectDone != nil {
		done := p.connectDone
		p.connectDone = nil
		done(nil)
	}

	if wasDisconnecting && p.disconnectDone != nil {
		done := p.disconnectDone
		p.disconnectDone = nil
		done(nil)
	}
}

func (p *Peer) onReceiveUALocked() {
	switch p.state {
	case StateConnecting:
		p.cancelRetryTimerLocked()
		p.initConnectionLocked(p.cfg.SupportModulo128)
		p.setState(StateConnected)

		if p.connectDone != nil {
			done := p.connectDone
			p.connectDone = nil
			done(nil)
		}
	case StateDisconnecting:
		p.cancelRetryTimerLocked()
		p.onDisconnectLocked()

		if p.disconnectDone != nil {
			done := p.disconnectDone
			p.disconnectDone = nil
			done(nil)
		}
	}
}

// sendFRMRLocked enters the FRMR condition and transmits a FRMR diagnostic
// describing the W/X/Y/Z cause bits for the most recent offending frame.
func (p *Peer) sendFRMRLocked(cause byte, w, x, y, z bool) {
	p.setState(StateFRMR)
	p.lastFRMR = &ax25.FRMRFrame{
		Header:        p.header(),
		W:             w,
		X:             x,
		Y:             y,
		Z:             z,
		VR:            p.recvState,
		VS:            p.sendState,
		RejectControl: cause,
	}
	p.transmit(p.lastFRMR)
}

func (p *Peer) retransmitFRMRLocked() {
	if p.lastFRMR == nil {
		return
	}

	p.lastFRMR.Header = p.header()
	p.transmit(p.lastFRMR)
}

func (p *Peer) onReceiveFRMRLocked(f *ax25.FRMRFrame) {
	if p.log != nil {
		p.log.Warn("peer sent FRMR, dropping connection", "peer", p.Address)
	}

	p.onDisconnectLocked()
}

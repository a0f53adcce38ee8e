package peer

import (
	"time"

	"github.com/vk4msl/goax25kiss/internal/ax25"
)

// XID format/group identifiers defined by ISO 8885 / AX.25 2.2 §4.3.3.1.
const (
	xidFI byte = 0x82
	xidGI byte = 0x80
)

const (
	defaultMaxIField = 256
	defaultWindow    = 7
)

// negotiated holds the result of combining our parameters with the
// remote's, per the rules of §4.6's "XID negotiation" paragraph.
type negotiated struct {
	fullDuplex bool
	rejectMode RejectMode
	modulo128  bool
	maxIField  int
	window     int
	ackTimer   time.Duration
	retries    int
}

func (p *Peer) buildXIDParamsLocked() []ax25.XIDParam {
	return []ax25.XIDParam{
		ax25.ClassesOfProcedure(p.cfg.FullDuplex, !p.cfg.FullDuplex),
		ax25.HDLCOptionalFunctions(p.cfg.SupportREJ, p.cfg.SupportSREJ, true, p.cfg.SupportModulo128),
		ax25.BigEndianParam(ax25.PIIFieldLengthReceive, uint64(p.cfg.MaxIField)*8, 2),
		ax25.BigEndianParam(ax25.PIWindowSizeReceive, uint64(windowDefault(p)), 1),
		ax25.BigEndianParam(ax25.PIAcknowledgeTimer, uint64(p.cfg.AckTimer/time.Millisecond), 2),
		ax25.BigEndianParam(ax25.PIRetries, uint64(p.cfg.MaxRetries), 1),
	}
}

func windowDefault(p *Peer) int {
	if p.cfg.SupportModulo128 {
		return p.cfg.MaxOutstandingMod128
	}

	return p.cfg.MaxOutstandingMod8
}

func (p *Peer) sendXIDCommandLocked() {
	hdr := p.header()
	hdr.DestCR = true
	p.transmit(&ax25.XIDFrame{Header: hdr, PF: false, FI: xidFI, GI: xidGI, Params: p.buildXIDParamsLocked()})
}

func (p *Peer) sendXIDResponseLocked(n negotiated) {
	hdr := p.header()
	hdr.DestCR = false
	p.transmit(&ax25.XIDFrame{Header: hdr, PF: false, FI: xidFI, GI: xidGI, Params: p.buildXIDParamsLocked()})
}

// negotiateXIDLocked combines our configuration with the remote's XID
// parameters per §4.6's rules. Malformed or absent remote parameters fall
// back to the documented AX.25 2.2 defaults.
func (p *Peer) negotiateXIDLocked(f *ax25.XIDFrame) negotiated {
	n := negotiated{
		maxIField: defaultMaxIField,
		window:    defaultWindow,
		ackTimer:  3 * time.Second,
		retries:   10,
	}

	remoteFull, remoteHalf := false, false
	remoteREJ, remoteSREJ, remoteModulo8, remoteModulo128 := false, false, true, false

	if cop, ok := f.Param(ax25.PIClassesOfProcedure); ok {
		remoteFull, remoteHalf = ax25.DecodeClassesOfProcedure(cop)
	}

	if hdlc, ok := f.Param(ax25.PIHDLCOptionalFunctions); ok {
		remoteREJ, remoteSREJ, remoteModulo8, remoteModulo128 = ax25.DecodeHDLCOptionalFunctions(hdlc)
	}

	// Classes of Procedure: both sides must agree on full duplex; any
	// disagreement (including malformed both-set/both-clear) yields half
	// duplex.
	localFull := p.cfg.FullDuplex
	n.fullDuplex = localFull && remoteFull && !(remoteFull && remoteHalf)

	// Reject mode: SREJ-REJ if both advertise SREJ and REJ; SREJ if only
	// one side advertises SREJ (with or without REJ); Implicit-Reject
	// otherwise (including malformed states where neither is advertised
	// by both ends).
	agreedSREJ := p.cfg.SupportSREJ && remoteSREJ
	agreedREJ := p.cfg.SupportREJ && remoteREJ

	switch {
	case agreedSREJ && agreedREJ:
		n.rejectMode = RejectSREJREJ
	case agreedSREJ:
		n.rejectMode = RejectSREJ
	case agreedREJ:
		n.rejectMode = RejectREJ
	default:
		n.rejectMode = RejectImplicit
	}

	n.modulo128 = p.cfg.SupportModulo128 && remoteModulo128
	_ = remoteModulo8

	if rx, ok := f.Param(ax25.PIIFieldLengthReceive); ok {
		bits := ax25.DecodeBigEndianParam(rx)
		remoteOctets := int(bits / 8)
		n.maxIField = minInt(p.cfg.MaxIField, remoteOctets)
	} else {
		n.maxIField = minInt(p.cfg.MaxIField, defaultMaxIField)
	}

	if win, ok := f.Param(ax25.PIWindowSizeReceive); ok {
		remoteWin := int(ax25.DecodeBigEndianParam(win))
		n.window = minInt(windowDefault(p), remoteWin)
	} else {
		n.window = minInt(windowDefault(p), defaultWindow)
	}

	if ack, ok := f.Param(ax25.PIAcknowledgeTimer); ok {
		remoteMS := ax25.DecodeBigEndianParam(ack)
		n.ackTimer = maxDuration(p.cfg.AckTimer, time.Duration(remoteMS)*time.Millisecond)
	} else {
		n.ackTimer = maxDuration(p.cfg.AckTimer, 3*time.Second)
	}

	if ret, ok := f.Param(ax25.PIRetries); ok {
		remoteRetries := int(ax25.DecodeBigEndianParam(ret))
		n.retries = maxInt(p.cfg.MaxRetries, remoteRetries)
	} else {
		n.retries = maxInt(p.cfg.MaxRetries, 10)
	}

	return n
}

func (p *Peer) applyNegotiatedLocked(n negotiated) {
	p.rejectMode = n.rejectMode
	window := n.window
	maxIField := n.maxIField
	ackTimer := n.ackTimer
	retries := n.retries
	p.negotiatedWindow = &window
	p.negotiatedMaxIField = &maxIField
	p.negotiatedAckTimer = &ackTimer
	p.negotiatedRetries = &retries
	p.cfg.SupportModulo128 = n.modulo128
}

func (p *Peer) onReceiveXIDLocked(f *ax25.XIDFrame) {
	if p.station.Protocol() != ProtocolAX25_22 {
		p.sendFRMRLocked(0, true, false, false, false)
		return
	}

	isCommand := f.Header.DestCR

	if isCommand && (p.state == StateConnecting || p.state == StateDisconnecting) {
		if p.log != nil {
			p.log.Warn("UA pending, dropping received XID", "peer", p.Address)
		}

		return
	}

	n := p.negotiateXIDLocked(f)

	if isCommand {
		p.applyNegotiatedLocked(n)
		p.xidDone = true
		p.sendXIDResponseLocked(n)

		return
	}

	if p.state != StateNegotiating {
		return
	}

	p.cancelRetryTimerLocked()
	p.applyNegotiatedLocked(n)
	p.xidDone = true
	p.setState(StateConnecting)
	p.retryCount = 0
	p.retryKind = retrySABM
	p.sendSABMLocked()
	p.armRetryTimerLocked()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}

	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}

	return b
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}

	return b
}

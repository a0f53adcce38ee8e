package aprs

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vk4msl/goax25kiss/internal/ax25"
)

// MessageKind distinguishes a plain APRS message from its ack/reject
// sub-variants, which share the same data type but carry only a msgid.
type MessageKind int

const (
	MessageData MessageKind = iota
	MessageAck
	MessageRej
)

const (
	addresseeWidth = 9
	maxMessageText = 67
	maxMsgID       = 5
)

var ackRejRe = regexp.MustCompile(`(?i)^(ack|rej)([A-Za-z0-9]{1,5})$`)

// MessageFrame is a decoded APRS message frame (data type ':'): a
// directed text message, or one of its ack/rej acknowledgements.
type MessageFrame struct {
	ui *ax25.UIFrame

	Addressee ax25.Address
	Kind      MessageKind
	Text      string

	// MsgID is the sender's message identifier, present on data messages
	// that request acknowledgement and always present on ack/rej frames.
	MsgID string

	// ReplyAck is the APRS 1.1 reply-ack: a message identifier from the
	// addressee's own unacknowledged outbound message, piggybacked onto
	// this frame's acknowledgement. Empty if absent.
	ReplyAck string
	// ReplyAckCapable is set when the sender signalled reply-ack support
	// with a bare trailing '}' but isn't piggybacking an ack.
	ReplyAckCapable bool
}

func (m *MessageFrame) UI() *ax25.UIFrame { return m.ui }

func decodeMessage(ui *ax25.UIFrame) (Frame, error) {
	payload := string(ui.Payload)
	if len(payload) < 1+addresseeWidth+1 || payload[1+addresseeWidth] != ':' {
		return nil, fmt.Errorf("aprs: malformed message frame")
	}

	addresseeField := payload[1 : 1+addresseeWidth]
	addressee, err := decodeAddressee(addresseeField)
	if err != nil {
		return nil, err
	}

	body := payload[1+addresseeWidth+1:]

	if m := ackRejRe.FindStringSubmatch(body); m != nil {
		kind := MessageAck
		if strings.EqualFold(m[1], "rej") {
			kind = MessageRej
		}

		return &MessageFrame{ui: ui, Addressee: addressee, Kind: kind, MsgID: m[2]}, nil
	}

	text, msgid, replyAck, replyAckCapable := splitMessageBody(body)

	return &MessageFrame{
		ui:              ui,
		Addressee:       addressee,
		Kind:            MessageData,
		Text:            text,
		MsgID:           msgid,
		ReplyAck:        replyAck,
		ReplyAckCapable: replyAckCapable,
	}, nil
}

// decodeAddressee parses the fixed 9-character addressee field (callsign,
// space padded, optional "-SSID" within the 9 characters).
func decodeAddressee(field string) (ax25.Address, error) {
	return ax25.DecodeAddressString(strings.TrimSpace(field))
}

// splitMessageBody separates message text from the trailing "{msgid" or
// "{msgid}ackid" / "{msgid}" reply-ack grammar.
func splitMessageBody(body string) (text, msgid, replyAck string, replyAckCapable bool) {
	idx := strings.IndexByte(body, '{')
	if idx < 0 {
		return body, "", "", false
	}

	text = body[:idx]
	rest := body[idx+1:]

	closeIdx := strings.IndexByte(rest, '}')
	if closeIdx < 0 {
		msgid = truncate(rest, maxMsgID)
		return text, msgid, "", false
	}

	msgid = truncate(rest[:closeIdx], maxMsgID)
	after := rest[closeIdx+1:]

	if after == "" {
		replyAckCapable = true
		return text, msgid, "", replyAckCapable
	}

	replyAck = truncate(after, maxMsgID)

	return text, msgid, replyAck, false
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}

	return s
}

// EncodeMessageFrame renders a data message, truncating text to the 67
// character APRS limit and the msgid to 5 characters. A non-empty replyAck
// appends the APRS 1.1 "}ackid" suffix, acknowledging one of the
// addressee's own messages inside this reply; it requires a msgid.
func EncodeMessageFrame(addressee ax25.Address, text, msgid, replyAck string) *ax25.UIFrame {
	body := truncate(text, maxMessageText)

	if msgid != "" {
		body += "{" + truncate(msgid, maxMsgID)

		if replyAck != "" {
			body += "}" + truncate(replyAck, maxMsgID)
		}
	}

	return &ax25.UIFrame{
		PID:     PID,
		Payload: append([]byte(":"+padAddressee(addressee)+":"), []byte(body)...),
	}
}

// EncodeAckFrame renders an acknowledgement for msgid.
func EncodeAckFrame(addressee ax25.Address, msgid string) *ax25.UIFrame {
	return encodeAckRej(addressee, "ack", msgid)
}

// EncodeRejFrame renders a rejection for msgid.
func EncodeRejFrame(addressee ax25.Address, msgid string) *ax25.UIFrame {
	return encodeAckRej(addressee, "rej", msgid)
}

func encodeAckRej(addressee ax25.Address, verb, msgid string) *ax25.UIFrame {
	body := verb + truncate(msgid, maxMsgID)

	return &ax25.UIFrame{
		PID:     PID,
		Payload: append([]byte(":"+padAddressee(addressee)+":"), []byte(body)...),
	}
}

func padAddressee(a ax25.Address) string {
	s := a.String()
	s = strings.TrimSuffix(s, "*")

	for len(s) < addresseeWidth {
		s += " "
	}

	return truncate(s, addresseeWidth)
}

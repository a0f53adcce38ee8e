package kiss

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/vk4msl/goax25kiss/internal/xsignal"
)

// Transport is anything that carries a KISS byte stream: a serial line, a
// TNC subprocess's stdio, or a TCP socket. Read/Write/Close behave like
// io.ReadWriteCloser.
type Transport interface {
	io.ReadWriteCloser
}

// Port multiplexes KISS frames over a single Transport, decoding the
// incoming byte stream into Frame values and encoding outgoing ones back
// into FEND-delimited bytes.
//
// A Port owns its Transport's read loop: Run blocks reading bytes and
// firing Received for each decoded frame until the context is cancelled or
// the transport errors.
type Port struct {
	transport Transport
	log       *log.Logger

	Received *xsignal.Signal[Frame]

	mu sync.Mutex
}

// NewPort wraps transport in a Port. A nil logger disables logging.
func NewPort(transport Transport, logger *log.Logger) *Port {
	return &Port{
		transport: transport,
		log:       logger,
		Received:  xsignal.New[Frame](logger),
	}
}

// Send encodes a data frame for the given port/channel and writes it to
// the transport.
func (p *Port) Send(channel byte, payload []byte) error {
	return p.sendCmd(channel, CmdDataFrame, payload)
}

// SendSetHardware writes a TNC-specific "set hardware" command.
func (p *Port) SendSetHardware(channel byte, payload []byte) error {
	return p.sendCmd(channel, CmdSetHardware, payload)
}

func (p *Port) sendCmd(channel, cmd byte, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := append([]byte{PortCommand(channel, cmd)}, payload...)

	_, err := p.transport.Write(Encode(msg))
	if err != nil {
		return fmt.Errorf("kiss: write: %w", err)
	}

	return nil
}

// Run reads from the transport until ctx is done or a read error occurs,
// decoding the byte stream and firing Received for each completed frame.
// CmdEndKISS frames are swallowed rather than delivered, matching the KISS
// convention that "exit KISS mode" is advisory and otherwise ignored.
func (p *Port) Run(ctx context.Context) error {
	r := bufio.NewReaderSize(p.transport, 4096)
	dec := NewDecoder()

	type result struct {
		b   byte
		err error
	}

	next := make(chan result, 1)

	readOne := func() {
		b, err := r.ReadByte()
		next <- result{b: b, err: err}
	}

	go readOne()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-next:
			if res.err != nil {
				return fmt.Errorf("kiss: read: %w", res.err)
			}

			if f, ok := dec.Feed(res.b); ok && f.Cmd != CmdEndKISS {
				p.Received.Emit(f)
			}

			go readOne()
		}
	}
}

// Close shuts down the underlying transport.
func (p *Port) Close() error {
	return p.transport.Close()
}

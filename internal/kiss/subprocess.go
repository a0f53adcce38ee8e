package kiss

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// ptyTransport wraps a pty master so os.File satisfies Transport and so
// Close also waits on and releases the attached subprocess, if any.
type ptyTransport struct {
	master *os.File
	cmd    *exec.Cmd
}

func (t *ptyTransport) Read(p []byte) (int, error)  { return t.master.Read(p) }
func (t *ptyTransport) Write(p []byte) (int, error) { return t.master.Write(p) }

func (t *ptyTransport) Close() error {
	err := t.master.Close()

	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
		_ = t.cmd.Wait()
	}

	return err
}

// OpenPseudoTerminal creates a pty pair for client applications that expect
// a KISS TNC to show up as a serial device; the slave's name (e.g.
// "/dev/pts/4") is returned so it can be reported or symlinked for clients.
func OpenPseudoTerminal() (transport Transport, slaveName string, err error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, "", fmt.Errorf("kiss: open pseudo terminal: %w", err)
	}

	slaveName = slave.Name()
	_ = slave.Close()

	return &ptyTransport{master: master}, slaveName, nil
}

// OpenSubprocess starts cmd attached to a pty and returns the master side
// as a Transport, so a TNC implemented as a child process can be driven
// exactly like a serial KISS device. Closing the Transport kills the
// subprocess.
func OpenSubprocess(cmd *exec.Cmd) (Transport, error) {
	master, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("kiss: start subprocess %s: %w", cmd.Path, err)
	}

	return &ptyTransport{master: master, cmd: cmd}, nil
}

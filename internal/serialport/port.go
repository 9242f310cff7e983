// Package serialport opens the link to the serial peer: either a real
// device through go.bug.st/serial or, for development, a pseudo-terminal
// pair whose far end any terminal program can attach to.
package serialport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/creack/pty"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// ErrPortClosed is returned by writes after Close.
var ErrPortClosed = errors.New("serial port closed")

const (
	DefaultBaudRate = 9600
	DefaultDataBits = 8
)

// Config selects and parameterizes the link.
type Config struct {
	// Name is the device path, e.g. /dev/ttyUSB0. Ignored in loopback mode.
	Name     string
	BaudRate int
	DataBits int
	// Loopback opens a pseudo-terminal instead of a device.
	Loopback bool
}

// Port is an open link. Reads after Close report io.EOF so a blocked
// reader unwinds cleanly.
type Port struct {
	rw     io.ReadWriteCloser
	peer   *os.File
	name   string
	closed atomic.Bool
	once   sync.Once
	logger *log.Logger
}

// Open opens the link described by cfg with 8N1 framing.
func Open(cfg Config, logger *log.Logger) (*Port, error) {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Loopback {
		return openLoopback(logger)
	}
	if cfg.Name == "" {
		return nil, errors.New("serial port name must not be empty")
	}
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if mode.BaudRate <= 0 {
		mode.BaudRate = DefaultBaudRate
	}
	if mode.DataBits <= 0 {
		mode.DataBits = DefaultDataBits
	}
	sp, err := serial.Open(cfg.Name, mode)
	if err != nil {
		var perr *serial.PortError
		if errors.As(err, &perr) && perr.Code() == serial.PortNotFound {
			return nil, fmt.Errorf("open serial port %s: not found (available: %v)", cfg.Name, listPorts())
		}
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Name, err)
	}
	logger.Info("serial port opened", "event", "serial_opened", "port", cfg.Name, "baud", mode.BaudRate, "framing", "8N1")
	return &Port{rw: sp, name: cfg.Name, logger: logger}, nil
}

func openLoopback(logger *log.Logger) (*Port, error) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("open loopback pty: %w", err)
	}
	// Raw mode keeps the line discipline from echoing our output back at us.
	if _, err := term.MakeRaw(int(tty.Fd())); err != nil {
		_ = ptmx.Close()
		_ = tty.Close()
		return nil, fmt.Errorf("set loopback pty raw: %w", err)
	}
	logger.Info("loopback serial ready", "event", "serial_loopback", "peer", tty.Name())
	return &Port{rw: ptmx, peer: tty, name: ptmx.Name(), logger: logger}, nil
}

// Name identifies the local end of the link.
func (p *Port) Name() string { return p.name }

// PeerName is the device a terminal program attaches to in loopback mode.
func (p *Port) PeerName() string {
	if p.peer == nil {
		return ""
	}
	return p.peer.Name()
}

func (p *Port) Read(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, io.EOF
	}
	n, err := p.rw.Read(b)
	if err != nil && p.closed.Load() {
		return n, io.EOF
	}
	if n == 0 && err == nil {
		// go.bug.st/serial returns 0, nil when a read timeout elapses
		// or the device goes away between reads.
		return 0, nil
	}
	return n, err
}

func (p *Port) Write(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrPortClosed
	}
	n, err := p.rw.Write(b)
	if err != nil {
		return n, fmt.Errorf("write serial: %w", err)
	}
	return n, nil
}

// Close releases the link and unblocks any pending Read.
func (p *Port) Close() error {
	var closeErr error
	p.once.Do(func() {
		p.closed.Store(true)
		closeErr = p.rw.Close()
		if p.peer != nil {
			_ = p.peer.Close()
		}
		p.logger.Info("serial port closed", "event", "serial_closed", "port", p.name)
	})
	return closeErr
}

// ListPorts returns the serial devices the OS reports.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

func listPorts() []string {
	ports, err := ListPorts()
	if err != nil {
		return nil
	}
	return ports
}

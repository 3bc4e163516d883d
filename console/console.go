// Package console sets up logging for the node: a logrus logger writing to
// stderr or to a serial port, with colours only on a terminal.
package console

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

const DefaultBaudRate = 115200

// Options describes where and how much to log.
type Options struct {
	// Level is a logrus level name such as "info" or "debug".
	Level string

	// Port is a serial port name. Logs go to stderr when it is empty.
	Port string
	Baud int

	// Raw is set when the terminal is in raw mode, see Configure. Newlines
	// are then written as CRLF.
	Raw bool
}

// New returns a logger for opts. The returned closer releases the serial port
// and must be called when done, also when logging to stderr.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	level := logrus.InfoLevel
	if opts.Level != "" {
		var err error
		level, err = logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, err
		}
	}

	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	color := IsTerminal(os.Stderr)
	if opts.Port != "" {
		baud := opts.Baud
		if baud == 0 {
			baud = DefaultBaudRate
		}
		port, err := serial.Open(opts.Port, &serial.Mode{BaudRate: baud})
		if err != nil {
			return nil, nil, fmt.Errorf("console: open %s: %w", opts.Port, err)
		}
		out, closer = port, port
		// Serial monitors are terminals too.
		opts.Raw = true
		color = false
	}
	if opts.Raw {
		out = NewCRLFWriter(out)
	}

	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(level)
	log.SetFormatter(formatter(color))
	return log, closer, nil
}

func formatter(color bool) logrus.Formatter {
	return &logrus.TextFormatter{
		ForceColors:     color,
		DisableColors:   !color,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	}
}

// Ports lists the serial ports available for logging.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// crlfWriter expands LF to CRLF. Terminals in raw mode and serial monitors
// expect CRLF.
type crlfWriter struct {
	w io.Writer
}

func NewCRLFWriter(w io.Writer) io.Writer {
	return crlfWriter{w}
}

// Write reports len(p) on success, not the expanded length.
func (c crlfWriter) Write(p []byte) (int, error) {
	expanded := bytes.ReplaceAll(p, []byte{'\n'}, []byte{'\r', '\n'})
	if _, err := c.w.Write(expanded); err != nil {
		return 0, err
	}
	return len(p), nil
}

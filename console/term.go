package console

import (
	"context"
	"io"
	"os"

	"golang.org/x/crypto/ssh/terminal"
)

// IsTerminal reports whether f is a terminal.
func IsTerminal(f *os.File) bool {
	return terminal.IsTerminal(int(f.Fd()))
}

// Configure puts stdin in raw mode so that single key presses can be read.
// The returned function restores the previous state. When stdin is not a
// terminal nothing is changed.
//
//	restore, err := console.Configure()
//	if err != nil {
//		return err
//	}
//	defer restore()
func Configure() (restore func(), err error) {
	fd := int(os.Stdin.Fd())
	if !terminal.IsTerminal(fd) {
		return func() {}, nil
	}
	state, err := terminal.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return func() { terminal.Restore(fd, state) }, nil
}

// Keys sends every byte read from r until ctx is done or r fails. CR is
// translated to LF, as terminals send CR for the enter key.
func Keys(ctx context.Context, r io.Reader) <-chan byte {
	ch := make(chan byte)
	go func() {
		defer close(ch)
		var b [1]byte
		for {
			if _, err := r.Read(b[:]); err != nil {
				return
			}
			if b[0] == '\r' {
				b[0] = '\n'
			}
			select {
			case ch <- b[0]:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

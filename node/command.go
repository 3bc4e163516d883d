package node

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// CommandOp is the first byte of a command written to the command
// characteristic.
type CommandOp uint8

const (
	// OpPublishNow samples and publishes immediately.
	OpPublishNow CommandOp = 0x01

	// OpCalibrate recalibrates the ozone sensor.
	OpCalibrate CommandOp = 0x02

	// OpSetInterval sets the publication interval in seconds, given as a
	// big endian uint16 argument.
	OpSetInterval CommandOp = 0x03
)

func (op CommandOp) String() string {
	switch op {
	case OpPublishNow:
		return "publish-now"
	case OpCalibrate:
		return "calibrate"
	case OpSetInterval:
		return "set-interval"
	default:
		return fmt.Sprintf("op(%#02x)", uint8(op))
	}
}

// MaxCommandLen is the largest value the command characteristic accepts.
const MaxCommandLen = 8

var (
	errEmptyCommand   = errors.New("node: empty command")
	errUnknownCommand = errors.New("node: unknown command")
	errCommandLength  = errors.New("node: bad command length")
	errZeroInterval   = errors.New("node: interval must be positive")
)

type Command struct {
	Op  CommandOp
	Arg uint16
}

// ParseCommand decodes a command written by a peer.
func ParseCommand(b []byte) (Command, error) {
	if len(b) == 0 {
		return Command{}, errEmptyCommand
	}
	cmd := Command{Op: CommandOp(b[0])}
	switch cmd.Op {
	case OpPublishNow, OpCalibrate:
		if len(b) != 1 {
			return Command{}, errCommandLength
		}
	case OpSetInterval:
		if len(b) != 3 {
			return Command{}, errCommandLength
		}
		cmd.Arg = binary.BigEndian.Uint16(b[1:])
		if cmd.Arg == 0 {
			return Command{}, errZeroInterval
		}
	default:
		return Command{}, errUnknownCommand
	}
	return cmd, nil
}

// Bytes encodes the command.
func (c Command) Bytes() []byte {
	if c.Op == OpSetInterval {
		return []byte{byte(c.Op), byte(c.Arg >> 8), byte(c.Arg)}
	}
	return []byte{byte(c.Op)}
}

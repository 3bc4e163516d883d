package node

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		raw string
		cmd Command
		err error
	}{
		{"\x01", Command{Op: OpPublishNow}, nil},
		{"\x02", Command{Op: OpCalibrate}, nil},
		{"\x03\x00\x1e", Command{Op: OpSetInterval, Arg: 30}, nil},
		{"", Command{}, errEmptyCommand},
		{"\x01\x00", Command{}, errCommandLength},
		{"\x03\x1e", Command{}, errCommandLength},
		{"\x03\x00\x00", Command{}, errZeroInterval},
		{"\x09", Command{}, errUnknownCommand},
	}
	for _, tc := range tests {
		cmd, err := ParseCommand([]byte(tc.raw))
		if err != tc.err || cmd != tc.cmd {
			t.Errorf("ParseCommand(%q) = %+v, %v; expected %+v, %v", tc.raw, cmd, err, tc.cmd, tc.err)
		}
		if err == nil && string(cmd.Bytes()) != tc.raw {
			t.Errorf("Bytes() = %q, expected %q", cmd.Bytes(), tc.raw)
		}
	}
}

package haptic

import (
	"testing"

	"github.com/qsib-cbie/reader-controller/pkg/fabric"
)

func TestOpModeBytePacking(t *testing.T) {
	cases := []fabric.OpModeBlock{
		{ActCnt8: 5, CmdOp: 0, Command: 0},
		{ActCnt8: 5, CmdOp: 3, Command: 2},
		{ActCnt8: 31, CmdOp: 1, Command: 9},
		{ActCnt8: 0, CmdOp: 2, Command: 255},
	}
	for _, op := range cases {
		want := byte((op.CmdOp << 5) | (op.ActCnt8 & 0x1F))
		if got := OpModeByte(op); got != want {
			t.Errorf("OpModeByte(%+v) = 0x%02x, want 0x%02x", op, got, want)
		}
	}
}

func TestEncoderLengthIsMultipleOf4(t *testing.T) {
	uid := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	cmd := fabric.CommandFields{
		OpMode: &fabric.OpModeBlock{ActCnt8: 5, CmdOp: fabric.CmdOpActuatorsWithConfig, Command: 2},
		ActuatorBlocks: &fabric.ActuatorModeBlocks{
			Blocks: [8]*fabric.ActuatorModeBlock{0: {B0: 0x11, B1: 0x22, B2: 0x44, B3: 0x88}},
		},
		TimerBlock: &fabric.TimerModeBlock{TonHigh: 50, TPeriodHigh: 100},
	}
	out := Encode(uid, cmd)
	db := out[2]
	payload := out[13:]
	if len(payload)%4 != 0 {
		t.Fatalf("protocol message payload length %d not a multiple of 4", len(payload))
	}
	if int(db)*4 != len(payload) {
		t.Errorf("db_n*4 = %d, want %d", int(db)*4, len(payload))
	}
}

func TestBuildTimingBlockPacking(t *testing.T) {
	timing := buildTimingBlock(&fabric.TimerModeBlock{TonHigh: 50, TPeriodHigh: 100})
	want := []byte{0x00, 0x00, 0x00, 0x03, 0x20, 0x64, 0x00, 0x00, 0x00}
	if len(timing) != len(want) {
		t.Fatalf("buildTimingBlock length = %d, want %d", len(timing), len(want))
	}
	for i := range want {
		if timing[i] != want[i] {
			t.Errorf("timing[%d] = 0x%02x, want 0x%02x", i, timing[i], want[i])
		}
	}
}

func TestBuildTimingBlockNilOmitsSection(t *testing.T) {
	if timing := buildTimingBlock(nil); timing != nil {
		t.Errorf("buildTimingBlock(nil) = %v, want nil", timing)
	}
}

func TestBuildActuatorBytesAscendingWithGapPadding(t *testing.T) {
	blocks := &fabric.ActuatorModeBlocks{}
	blocks.Blocks[0] = &fabric.ActuatorModeBlock{B0: 0x11, B1: 0x22, B2: 0x44, B3: 0x88}
	blocks.Blocks[2] = &fabric.ActuatorModeBlock{B0: 0xAA, B1: 0xBB, B2: 0xCC, B3: 0xDD}

	got := buildActuatorBytes(blocks)
	want := []byte{0x11, 0x22, 0x44, 0x88, 0, 0, 0, 0, 0xAA, 0xBB, 0xCC, 0xDD}
	if len(got) != len(want) {
		t.Fatalf("buildActuatorBytes length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d = 0x%02x, want 0x%02x", i, got[i], want[i])
		}
	}
}

func TestEncodeScenarioActuatorPulseProtocolMessage(t *testing.T) {
	cmd := fabric.CommandFields{
		OpMode: &fabric.OpModeBlock{ActCnt8: 5, CmdOp: fabric.CmdOpActuatorsWithConfig, Command: 2},
		ActuatorBlocks: &fabric.ActuatorModeBlocks{
			Blocks: [8]*fabric.ActuatorModeBlock{0: {B0: 0x11, B1: 0x22, B2: 0x44, B3: 0x88}},
		},
		TimerBlock: &fabric.TimerModeBlock{TonHigh: 50, TPeriodHigh: 100},
	}

	message := buildProtocolMessage(cmd)
	// [length, op_mode_byte(0x65), command(2), timing(9 bytes), actuator bytes(4 bytes)]
	if message[1] != 0x65 {
		t.Errorf("op_mode_byte = 0x%02x, want 0x65", message[1])
	}
	if message[2] != 2 {
		t.Errorf("command = %d, want 2", message[2])
	}
	if int(message[0]) != len(message) {
		t.Errorf("length byte = %d, want %d", message[0], len(message))
	}
	timing := message[3:12]
	wantTiming := []byte{0x00, 0x00, 0x00, 0x03, 0x20, 0x64, 0x00, 0x00, 0x00}
	for i, b := range wantTiming {
		if timing[i] != b {
			t.Errorf("timing[%d] = 0x%02x, want 0x%02x", i, timing[i], b)
		}
	}
	actuatorBytes := message[12:]
	wantActuator := []byte{0x11, 0x22, 0x44, 0x88}
	for i, b := range wantActuator {
		if actuatorBytes[i] != b {
			t.Errorf("actuator byte %d = 0x%02x, want 0x%02x", i, actuatorBytes[i], b)
		}
	}
}

func TestEncodeScenarioDiffCompressionOmitsTimingAndActuators(t *testing.T) {
	// After a cache diff keeping only the op-mode block, both ActuatorBlocks
	// and TimerBlock are nil; cmd_op still selects the "with config" data
	// shape, but there is nothing to append for either, and no timing bytes
	// are emitted — sending a zero timing block here would reset the
	// transponder's timers even though nothing about them changed.
	cmd := fabric.CommandFields{
		OpMode: &fabric.OpModeBlock{ActCnt8: 5, CmdOp: fabric.CmdOpActuatorsWithConfig, Command: 2},
	}
	message := buildProtocolMessage(cmd)
	wantLen := 3 // length byte + op-mode byte + command, no timing or actuator bytes
	if len(message) != wantLen {
		t.Fatalf("message length = %d, want %d", len(message), wantLen)
	}
}

package reader

import (
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/qsib-cbie/reader-controller/pkg/channel"
	"github.com/qsib-cbie/reader-controller/pkg/errs"
	"github.com/qsib-cbie/reader-controller/pkg/frame"
)

func responseFrame(addr, control, statusByte byte, payload []byte) []byte {
	length := 1 + 2 + 1 + 1 + 1 + len(payload) + 2
	out := make([]byte, 0, length)
	out = append(out, frame.StartByte, byte(length>>8), byte(length))
	out = append(out, addr, control, statusByte)
	out = append(out, payload...)
	crc := frame.CRC16(out)
	out = append(out, byte(crc), byte(crc>>8))
	return out
}

func TestSendCommandSucceedsOnOk(t *testing.T) {
	ch := channel.NewMockChannel()
	conn := New(ch, NewAntennaState())

	resp, err := conn.SendCommand(frame.Request{Addr: 0xFF, Control: 0xB0, Payload: []byte{0x01, 0x00}}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != 0x00 {
		t.Errorf("expected Ok status, got 0x%02x", resp.Status)
	}
	if len(ch.Writes()) != 1 {
		t.Errorf("expected exactly one write on success, got %d", len(ch.Writes()))
	}
}

func TestSendCommandRetryBoundOnNoTransponder(t *testing.T) {
	ch := channel.NewMockChannel()
	antenna := NewAntennaState()
	antenna.MaxAttempts = 3
	conn := New(ch, antenna)

	for i := 0; i < 10; i++ {
		ch.QueueResponse(responseFrame(0xFF, 0xB0, 0x01, nil))
	}

	_, err := conn.SendCommand(frame.Request{Addr: 0xFF, Control: 0xB0, Payload: []byte{0x01, 0x00}}, true)
	if err == nil {
		t.Fatal("expected NoDeviceAfterRetries error")
	}
	if _, ok := err.(*errs.NoDeviceAfterRetries); !ok {
		t.Fatalf("expected *errs.NoDeviceAfterRetries, got %T: %v", err, err)
	}
	if got := len(ch.Writes()); got != antenna.MaxAttempts {
		t.Errorf("expected %d writes to leave the host, got %d", antenna.MaxAttempts, got)
	}
}

func TestSendCommandRFWarningIsFatal(t *testing.T) {
	ch := channel.NewMockChannel()
	ch.QueueResponse(responseFrame(0xFF, 0xB0, 0x84, nil))
	conn := New(ch, NewAntennaState())

	_, err := conn.SendCommand(frame.Request{Addr: 0xFF, Control: 0xB0, Payload: []byte{0x01, 0x00}}, true)
	if _, ok := err.(*errs.RFWarning); !ok {
		t.Fatalf("expected *errs.RFWarning, got %T: %v", err, err)
	}
	if got := len(ch.Writes()); got != 1 {
		t.Errorf("expected exactly one write before RFWarning abort, got %d", got)
	}
}

func TestDiagnosticsSnapshotEncodesAttemptsAndAntennaState(t *testing.T) {
	ch := channel.NewMockChannel()
	conn := New(ch, NewAntennaState())

	snapshot, err := conn.DiagnosticsSnapshot(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snapshot) == 0 {
		t.Fatal("expected non-empty CBOR-encoded snapshot")
	}
	var decoded diagnosticsSnapshot
	if err := cbor.Unmarshal(snapshot, &decoded); err != nil {
		t.Fatalf("snapshot does not decode: %v", err)
	}
	if decoded.Attempts != 2 {
		t.Errorf("decoded attempts = %d, want 2", decoded.Attempts)
	}
	if decoded.Antenna.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("decoded max_attempts = %d, want %d", decoded.Antenna.MaxAttempts, DefaultMaxAttempts)
	}
}

func TestSendCommandNoTransponderNotRetriedWithoutDeviceRequired(t *testing.T) {
	ch := channel.NewMockChannel()
	ch.QueueResponse(responseFrame(0xFF, 0xB0, 0x01, nil))
	conn := New(ch, NewAntennaState())

	resp, err := conn.SendCommand(frame.Request{Addr: 0xFF, Control: 0xB0, Payload: []byte{0x01, 0x00}}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != 0x01 {
		t.Errorf("expected NoTransponder status passed through, got 0x%02x", resp.Status)
	}
	if got := len(ch.Writes()); got != 1 {
		t.Errorf("expected exactly one write, got %d", got)
	}
}

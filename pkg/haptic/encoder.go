// Package haptic encodes typed actuator/timer/op-mode commands into the
// opaque payload the reader's "write blocks to transponder" operation
// (command id 0x24, control byte 0xB0) expects. It does not emit the outer
// reader frame; that belongs to the frame codec.
package haptic

import "github.com/qsib-cbie/reader-controller/pkg/fabric"

// Fixed fields of the "write blocks" frame layout that precede the
// per-message protocol payload.
const (
	CommandID     byte = 0x24
	ModeAddressed byte = 0x01
	BlockSize     byte = 0x04
	Addr          byte = 0x00
)

// Encode builds the full write-blocks payload for the transponder
// identified by uid: command id, mode, db_n, db_size, addr, the UID, and
// the zero-padded protocol message.
func Encode(uid [8]byte, cmd fabric.CommandFields) []byte {
	message := buildProtocolMessage(cmd)

	padded := message
	if rem := len(padded) % 4; rem != 0 {
		padded = append(padded, make([]byte, 4-rem)...)
	}
	dbN := byte(len(padded) / 4)

	out := make([]byte, 0, 5+8+len(padded))
	out = append(out, CommandID, ModeAddressed, dbN, BlockSize, Addr)
	out = append(out, uid[:]...)
	out = append(out, padded...)
	return out
}

// OpModeByte packs cmd_op and act_cnt8 into the single op-mode byte the
// transponder firmware reads to decide how to parse the rest of the
// message.
func OpModeByte(op fabric.OpModeBlock) byte {
	return (op.CmdOp << 5) | (op.ActCnt8 & 0x1F)
}

func buildProtocolMessage(cmd fabric.CommandFields) []byte {
	opMode := cmd.OpMode
	if opMode == nil {
		d := fabric.DefaultOpModeBlock()
		opMode = &d
	}

	var data []byte
	switch opMode.CmdOp {
	case fabric.CmdOpTimersOnly, fabric.CmdOpPresetAllOff:
		data = buildTimingBlock(cmd.TimerBlock)
	case fabric.CmdOpActuatorsNoConfig:
		data = buildActuatorBytes(cmd.ActuatorBlocks)
	case fabric.CmdOpActuatorsWithConfig:
		data = append(buildTimingBlock(cmd.TimerBlock), buildActuatorBytes(cmd.ActuatorBlocks)...)
	}

	length := 3 + len(data)
	message := make([]byte, 0, length)
	message = append(message, byte(length), OpModeByte(*opMode), opMode.Command)
	message = append(message, data...)
	return message
}

// buildTimingBlock packs the six 12-bit timer fields into the 9-byte
// big-endian layout described by the encoder's frame layout: each pair of
// fields shares a middle byte whose nibbles split between them. A nil t
// means "timing unchanged" (e.g. a cache diff that kept only the op-mode
// block) and is omitted entirely, mirroring buildActuatorBytes(nil) —
// emitting a zero block here would reset the transponder's timers instead
// of leaving them alone.
func buildTimingBlock(t *fabric.TimerModeBlock) []byte {
	if t == nil {
		return nil
	}
	out := make([]byte, 9)
	out[0], out[1], out[2] = packPair(t.TPulse, t.TPause)
	out[3], out[4], out[5] = packPair(t.TonHigh, t.TPeriodHigh)
	out[6], out[7], out[8] = packPair(t.TonLow, t.TPeriodLow)
	return out
}

// packPair packs two 12-bit values (masked, silently dropping any higher
// bits) into three bytes: hi8(a), lo4(a)<<4 | hi4(b), lo8(b).
func packPair(a, b uint16) (byte, byte, byte) {
	a &= 0xFFF
	b &= 0xFFF
	hi8 := byte(a >> 4)
	mid := byte((a&0xF)<<4) | byte(b>>8)
	lo8 := byte(b)
	return hi8, mid, lo8
}

// buildActuatorBytes emits actuator-mode blocks in ascending order up to
// the highest present slot; gaps below that slot are zero-filled, and
// anything past the highest present slot is simply not emitted.
func buildActuatorBytes(blocks *fabric.ActuatorModeBlocks) []byte {
	if blocks == nil {
		return nil
	}
	highest := -1
	for i, b := range blocks.Blocks {
		if b != nil {
			highest = i
		}
	}
	if highest < 0 {
		return nil
	}
	out := make([]byte, (highest+1)*4)
	for i := 0; i <= highest; i++ {
		b := blocks.Blocks[i]
		if b == nil {
			continue
		}
		out[i*4] = b.B0
		out[i*4+1] = b.B1
		out[i*4+2] = b.B2
		out[i*4+3] = b.B3
	}
	return out
}

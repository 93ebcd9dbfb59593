// Package fabric models the reader's notion of a fabric (one or two
// transponders driven as a single haptic unit), the actuator/timer command
// shapes clients send it, and the per-fabric cache used to minimize wire
// traffic between successive commands.
package fabric

import (
	"encoding/json"

	"github.com/qsib-cbie/reader-controller/pkg/errs"
)

// Transponder is an immutable record identifying one device in the antenna
// field.
type Transponder struct {
	UID         [8]byte
	RFTech      uint8 // 2-bit RF technology tag, bits 7-6 of the type byte
	TypeNumber  uint8 // 4-bit type number, bits 3-0 of the type byte
	DSFID       uint8
}

// Fabric is a named logical group of one or two transponders sharing a
// stream of actuator commands.
type Fabric struct {
	Name         string
	Transponders []Transponder
}

// Identifier returns the first transponder's UID. It fails if the fabric
// has no transponders, since a fabric registered with zero transponders is
// illegal.
func (f Fabric) Identifier() ([8]byte, error) {
	if len(f.Transponders) == 0 {
		return [8]byte{}, &errs.FabricIdentifierUnavailable{Name: f.Name}
	}
	return f.Transponders[0].UID, nil
}

// FabricIdentifierUnavailableError reports a fabric with no transponders.
type FabricIdentifierUnavailableError struct {
	Name string
}

func (e *FabricIdentifierUnavailableError) Error() string {
	return "fabric " + e.Name + " has no transponders to identify it"
}

// OpModeBlock selects how the rest of the haptic payload is interpreted by
// the transponder firmware.
type OpModeBlock struct {
	ActCnt8 uint8 `json:"act_cnt8"`
	CmdOp   uint8 `json:"cmd_op"`
	Command uint8 `json:"command"`
}

// DefaultOpModeBlock is used whenever a command omits the op-mode block.
func DefaultOpModeBlock() OpModeBlock {
	return OpModeBlock{ActCnt8: 5, CmdOp: 0, Command: 0}
}

// Operation classes for OpModeBlock.CmdOp.
const (
	CmdOpTimersOnly           uint8 = 0
	CmdOpPresetAllOff         uint8 = 1
	CmdOpActuatorsNoConfig    uint8 = 2
	CmdOpActuatorsWithConfig  uint8 = 3
)

// ActuatorModeBlock encodes 32 actuator enables in four bytes.
type ActuatorModeBlock struct {
	B0 byte `json:"b0"`
	B1 byte `json:"b1"`
	B2 byte `json:"b2"`
	B3 byte `json:"b3"`
}

// ActuatorBlockCount is the number of actuator-mode block slots, covering
// actuators 0-255 at 32 actuators per block.
const ActuatorBlockCount = 8

// ActuatorModeBlocks holds up to eight optional actuator-mode blocks. Blocks
// are indexed ascending: Blocks[0] covers actuators 0-31, Blocks[7] covers
// actuators 224-255. A nil slot means "leave cache unchanged."
type ActuatorModeBlocks struct {
	Blocks [ActuatorBlockCount]*ActuatorModeBlock
}

func equalActuatorBlock(a, b *ActuatorModeBlock) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Equal reports whether two ActuatorModeBlocks sets have identical slots,
// treating nil pointers on either side as equal only when both are nil.
func (a *ActuatorModeBlocks) Equal(b *ActuatorModeBlocks) bool {
	if a == nil || b == nil {
		return a == b
	}
	for i := range a.Blocks {
		if !equalActuatorBlock(a.Blocks[i], b.Blocks[i]) {
			return false
		}
	}
	return true
}

// actuatorModeBlocksJSON names each slot the way a client addresses it:
// the actuator-index range it covers rather than an array position.
type actuatorModeBlocksJSON struct {
	Block0_31    *ActuatorModeBlock `json:"block0_31,omitempty"`
	Block32_63   *ActuatorModeBlock `json:"block32_63,omitempty"`
	Block64_95   *ActuatorModeBlock `json:"block64_95,omitempty"`
	Block96_127  *ActuatorModeBlock `json:"block96_127,omitempty"`
	Block128_159 *ActuatorModeBlock `json:"block128_159,omitempty"`
	Block160_191 *ActuatorModeBlock `json:"block160_191,omitempty"`
	Block192_223 *ActuatorModeBlock `json:"block192_223,omitempty"`
	Block224_255 *ActuatorModeBlock `json:"block224_255,omitempty"`
}

// MarshalJSON renders the blocks array as named actuator-range keys.
func (a ActuatorModeBlocks) MarshalJSON() ([]byte, error) {
	j := actuatorModeBlocksJSON{
		Block0_31: a.Blocks[0], Block32_63: a.Blocks[1], Block64_95: a.Blocks[2], Block96_127: a.Blocks[3],
		Block128_159: a.Blocks[4], Block160_191: a.Blocks[5], Block192_223: a.Blocks[6], Block224_255: a.Blocks[7],
	}
	return json.Marshal(j)
}

// UnmarshalJSON reads named actuator-range keys back into the blocks array.
func (a *ActuatorModeBlocks) UnmarshalJSON(data []byte) error {
	var j actuatorModeBlocksJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	a.Blocks = [ActuatorBlockCount]*ActuatorModeBlock{
		j.Block0_31, j.Block32_63, j.Block64_95, j.Block96_127,
		j.Block128_159, j.Block160_191, j.Block192_223, j.Block224_255,
	}
	return nil
}

// TimerModeBlock holds six 12-bit timing fields (each stored in a uint16),
// all in milliseconds. Values exceeding 12 bits are silently masked by the
// encoder.
type TimerModeBlock struct {
	TPulse      uint16 `json:"t_pulse"`
	TPause      uint16 `json:"t_pause"`
	TonHigh     uint16 `json:"ton_high"`
	TPeriodHigh uint16 `json:"tperiod_high"`
	TonLow      uint16 `json:"ton_low"`
	TPeriodLow  uint16 `json:"tperiod_low"`
}

func equalTimerBlock(a, b *TimerModeBlock) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// CommandFields is the mutable part of an ActuatorsCommand shared by the
// per-fabric cache: the op-mode block, the actuator-mode blocks, and the
// timer-mode block, each independently optional.
type CommandFields struct {
	OpMode         *OpModeBlock
	ActuatorBlocks *ActuatorModeBlocks
	TimerBlock     *TimerModeBlock
}

// ActuatorsCommand is the client-facing command: a fabric name, the mutable
// command fields, and an optional cache-bypass flag.
type ActuatorsCommand struct {
	FabricName string
	CommandFields
	UseCache *bool
}

// Package message defines the client bus protocol's tagged-union payload:
// a single JSON object whose one key names the variant, matching the
// externally-tagged shape a Rust serde enum produces (`{"Stop":{}}`,
// `{"SetRadioFreqPower":{"power_level":1}}`).
package message

import (
	"encoding/json"
	"fmt"

	"github.com/qsib-cbie/reader-controller/pkg/fabric"
)

// Kind names a CommandMessage variant; it doubles as the JSON object's sole
// key.
type Kind string

const (
	KindFailure           Kind = "Failure"
	KindSuccess           Kind = "Success"
	KindStop              Kind = "Stop"
	KindSystemReset       Kind = "SystemReset"
	KindSetRadioFreqPower Kind = "SetRadioFreqPower"
	KindCustomCommand     Kind = "CustomCommand"
	KindRfFieldState      Kind = "RfFieldState"
	KindAddFabric         Kind = "AddFabric"
	KindRemoveFabric      Kind = "RemoveFabric"
	KindActuatorsCommand  Kind = "ActuatorsCommand"
)

// CommandMessage is the closed tagged union exchanged over the client bus.
// Only the fields relevant to Kind are meaningful; the rest are zero.
type CommandMessage struct {
	Kind Kind

	// Failure
	FailureMessage string

	// SetRadioFreqPower
	PowerLevel uint8

	// CustomCommand
	ControlByte    uint8
	Data           string
	DeviceRequired bool

	// RfFieldState
	State uint8

	// AddFabric / RemoveFabric
	FabricName string

	// ActuatorsCommand
	TimerModeBlock     *fabric.TimerModeBlock
	ActuatorModeBlocks *fabric.ActuatorModeBlocks
	OpModeBlock        *fabric.OpModeBlock
	UseCache           *bool
}

func Success() CommandMessage { return CommandMessage{Kind: KindSuccess} }

func Failure(err error) CommandMessage {
	return CommandMessage{Kind: KindFailure, FailureMessage: err.Error()}
}

// Variant payload shapes, mirroring the JSON field names a client sends.
type failurePayload struct {
	Message string `json:"message"`
}

type setRadioFreqPowerPayload struct {
	PowerLevel uint8 `json:"power_level"`
}

type customCommandPayload struct {
	ControlByte    uint8  `json:"control_byte"`
	Data           string `json:"data"`
	DeviceRequired bool   `json:"device_required"`
}

type rfFieldStatePayload struct {
	State uint8 `json:"state"`
}

type fabricNamePayload struct {
	FabricName string `json:"fabric_name"`
}

type actuatorsCommandPayload struct {
	FabricName         string                      `json:"fabric_name"`
	TimerModeBlock     *fabric.TimerModeBlock      `json:"timer_mode_block,omitempty"`
	ActuatorModeBlocks *fabric.ActuatorModeBlocks  `json:"actuator_mode_blocks,omitempty"`
	OpModeBlock        *fabric.OpModeBlock         `json:"op_mode_block,omitempty"`
	UseCache           *bool                       `json:"use_cache,omitempty"`
}

// MarshalJSON renders the externally-tagged single-key object for msg.Kind.
func (msg CommandMessage) MarshalJSON() ([]byte, error) {
	var payload interface{}
	switch msg.Kind {
	case KindFailure:
		payload = failurePayload{Message: msg.FailureMessage}
	case KindSuccess, KindStop, KindSystemReset:
		payload = struct{}{}
	case KindSetRadioFreqPower:
		payload = setRadioFreqPowerPayload{PowerLevel: msg.PowerLevel}
	case KindCustomCommand:
		payload = customCommandPayload{ControlByte: msg.ControlByte, Data: msg.Data, DeviceRequired: msg.DeviceRequired}
	case KindRfFieldState:
		payload = rfFieldStatePayload{State: msg.State}
	case KindAddFabric, KindRemoveFabric:
		payload = fabricNamePayload{FabricName: msg.FabricName}
	case KindActuatorsCommand:
		payload = actuatorsCommandPayload{
			FabricName:         msg.FabricName,
			TimerModeBlock:     msg.TimerModeBlock,
			ActuatorModeBlocks: msg.ActuatorModeBlocks,
			OpModeBlock:        msg.OpModeBlock,
			UseCache:           msg.UseCache,
		}
	default:
		return nil, fmt.Errorf("message: unknown kind %q", msg.Kind)
	}
	return json.Marshal(map[string]interface{}{string(msg.Kind): payload})
}

// UnmarshalJSON reads the externally-tagged single-key object back into msg.
func (msg *CommandMessage) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if len(obj) != 1 {
		return fmt.Errorf("message: expected exactly one variant key, got %d", len(obj))
	}
	for key, raw := range obj {
		kind := Kind(key)
		switch kind {
		case KindFailure:
			var p failurePayload
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			*msg = CommandMessage{Kind: kind, FailureMessage: p.Message}
		case KindSuccess, KindStop, KindSystemReset:
			*msg = CommandMessage{Kind: kind}
		case KindSetRadioFreqPower:
			var p setRadioFreqPowerPayload
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			*msg = CommandMessage{Kind: kind, PowerLevel: p.PowerLevel}
		case KindCustomCommand:
			var p customCommandPayload
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			*msg = CommandMessage{Kind: kind, ControlByte: p.ControlByte, Data: p.Data, DeviceRequired: p.DeviceRequired}
		case KindRfFieldState:
			var p rfFieldStatePayload
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			*msg = CommandMessage{Kind: kind, State: p.State}
		case KindAddFabric, KindRemoveFabric:
			var p fabricNamePayload
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			*msg = CommandMessage{Kind: kind, FabricName: p.FabricName}
		case KindActuatorsCommand:
			var p actuatorsCommandPayload
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			*msg = CommandMessage{
				Kind:               kind,
				FabricName:         p.FabricName,
				TimerModeBlock:     p.TimerModeBlock,
				ActuatorModeBlocks: p.ActuatorModeBlocks,
				OpModeBlock:        p.OpModeBlock,
				UseCache:           p.UseCache,
			}
		default:
			return fmt.Errorf("message: unknown variant %q", key)
		}
	}
	return nil
}

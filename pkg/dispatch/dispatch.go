// Package dispatch implements the request dispatcher ("Protocol"): it owns
// the fabric registry, the per-fabric cached state, and a reader
// connection, and translates semantic command messages into reader frames.
package dispatch

import (
	"encoding/hex"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/qsib-cbie/reader-controller/pkg/errs"
	"github.com/qsib-cbie/reader-controller/pkg/fabric"
	"github.com/qsib-cbie/reader-controller/pkg/frame"
	"github.com/qsib-cbie/reader-controller/pkg/haptic"
	"github.com/qsib-cbie/reader-controller/pkg/message"
	"github.com/qsib-cbie/reader-controller/pkg/reader"
	"github.com/qsib-cbie/reader-controller/pkg/status"
)

// Control-byte opcodes the dispatcher issues against the reader.
const (
	ctlSystemReset    byte = 0x64
	ctlRfFieldState   byte = 0x6A
	ctlWriteConfig    byte = 0x8B
	ctlTransponderOp  byte = 0xB0
)

var inventorySubOp = []byte{0x01, 0x00}

// Protocol is the capability set the bus façade drives: handle one decoded
// CommandMessage and report success or a descriptive error.
type Protocol interface {
	Handle(msg message.CommandMessage) error
}

// HapticDispatcher is the full dispatcher: it owns the fabric and state
// registries and a reader connection, and implements every message kind in
// the dispatcher's capability table.
type HapticDispatcher struct {
	conn    *reader.Connection
	fabrics map[string]*fabric.Fabric
	states  map[string]*fabric.State
	log     *logrus.Entry
}

// NewHapticDispatcher returns a dispatcher with empty fabric and state
// registries, exclusively owning conn.
func NewHapticDispatcher(conn *reader.Connection) *HapticDispatcher {
	return &HapticDispatcher{
		conn:    conn,
		fabrics: make(map[string]*fabric.Fabric),
		states:  make(map[string]*fabric.State),
		log:     logrus.WithField("component", "dispatcher"),
	}
}

// Handle routes msg to the matching handler.
func (d *HapticDispatcher) Handle(msg message.CommandMessage) error {
	switch msg.Kind {
	case message.KindAddFabric:
		return d.handleAddFabric(msg.FabricName)
	case message.KindRemoveFabric:
		return d.handleRemoveFabric(msg.FabricName)
	case message.KindSystemReset:
		return d.handleSystemReset()
	case message.KindSetRadioFreqPower:
		return d.handleSetRadioFreqPower(msg.PowerLevel)
	case message.KindCustomCommand:
		return d.handleCustomCommand(msg.ControlByte, msg.Data, msg.DeviceRequired)
	case message.KindRfFieldState:
		return d.handleRfFieldState(msg.State)
	case message.KindActuatorsCommand:
		return d.handleActuatorsCommand(msg)
	case message.KindStop:
		// The bus façade handles the "do not re-serve" exit itself.
		return nil
	default:
		return fmt.Errorf("dispatch: unsupported message kind %q", msg.Kind)
	}
}

func (d *HapticDispatcher) handleAddFabric(name string) error {
	resp, err := d.conn.SendCommand(frame.Request{Addr: 0xFF, Control: ctlTransponderOp, Payload: inventorySubOp}, true)
	if err != nil {
		return err
	}

	transponders, err := parseInventory(resp)
	if err != nil {
		return err
	}
	if len(transponders) == 0 {
		return &errs.NoDeviceAfterRetries{}
	}

	d.fabrics[name] = &fabric.Fabric{Name: name, Transponders: transponders}
	d.states[name] = fabric.NewState()
	d.log.WithField("fabric", name).WithField("transponders", len(transponders)).Info("fabric added")
	return nil
}

func parseInventory(resp frame.Response) ([]fabric.Transponder, error) {
	if status.FromByte(resp.Status) != status.Ok || len(resp.Payload) == 0 {
		return nil, nil
	}
	count := int(resp.Payload[0])
	if count == 0 {
		return nil, nil
	}
	if len(resp.Payload) != 1+count*10 {
		return nil, &errs.FramingError{Reason: "inventory response length does not match transponder count"}
	}

	transponders := make([]fabric.Transponder, 0, count)
	for i := 0; i < count; i++ {
		off := 1 + i*10
		typeByte := resp.Payload[off]
		dsfid := resp.Payload[off+1]
		var uid [8]byte
		copy(uid[:], resp.Payload[off+2:off+10])
		transponders = append(transponders, fabric.Transponder{
			UID:        uid,
			RFTech:     (typeByte >> 6) & 0x03,
			TypeNumber: typeByte & 0x0F,
			DSFID:      dsfid,
		})
	}
	return transponders, nil
}

func (d *HapticDispatcher) handleRemoveFabric(name string) error {
	if _, ok := d.fabrics[name]; !ok {
		return &errs.FabricNotFound{Name: name}
	}
	delete(d.fabrics, name)
	delete(d.states, name)
	d.log.WithField("fabric", name).Info("fabric removed")
	return nil
}

func (d *HapticDispatcher) handleSystemReset() error {
	resp, err := d.conn.SendCommand(frame.Request{Addr: 0xFF, Control: ctlSystemReset, Payload: []byte{0x00}}, false)
	if err != nil {
		return err
	}
	if kind := status.FromByte(resp.Status); kind != status.Ok {
		return &errs.ReaderStatusError{StatusByte: resp.Status, StatusName: kind.String()}
	}
	return nil
}

func (d *HapticDispatcher) handleSetRadioFreqPower(level uint8) error {
	if !(level == 0 || (level >= 2 && level <= 12)) {
		return &errs.ParameterRangeError{
			Message: fmt.Sprintf("Value for power level (%d) is outside acceptable range Low Power (0) or [2,12].", level),
		}
	}

	var encoded byte
	if level == 0 {
		encoded = 0x80 | 0x04
	} else {
		encoded = 0x80 | (0x3F & (level * 4))
	}

	payload := []byte{
		0x02, 0x01, 0x01, 0x01, 30, 0x00, 0x03, 0x00, 0x08, encoded,
		0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x81,
	}
	resp, err := d.conn.SendCommand(frame.Request{Addr: 0xFF, Control: ctlWriteConfig, Payload: payload}, false)
	if err != nil {
		return err
	}
	if kind := status.FromByte(resp.Status); kind != status.Ok {
		return &errs.ReaderStatusError{StatusByte: resp.Status, StatusName: kind.String()}
	}
	return nil
}

func (d *HapticDispatcher) handleCustomCommand(controlByte uint8, data string, deviceRequired bool) error {
	raw, err := hex.DecodeString(data)
	if err != nil {
		return &errs.DecodeError{Err: err}
	}
	resp, err := d.conn.SendCommand(frame.Request{Addr: 0xFF, Control: controlByte, Payload: raw}, deviceRequired)
	if err != nil {
		return err
	}
	if kind := status.FromByte(resp.Status); kind != status.Ok {
		return &errs.ReaderStatusError{StatusByte: resp.Status, StatusName: kind.String()}
	}
	return nil
}

func (d *HapticDispatcher) handleRfFieldState(state uint8) error {
	resp, err := d.conn.SendCommand(frame.Request{Addr: 0xFF, Control: ctlRfFieldState, Payload: []byte{state}}, false)
	if err != nil {
		return err
	}
	if kind := status.FromByte(resp.Status); kind != status.Ok {
		return &errs.ReaderStatusError{StatusByte: resp.Status, StatusName: kind.String()}
	}
	return nil
}

func (d *HapticDispatcher) handleActuatorsCommand(msg message.CommandMessage) error {
	fab, ok := d.fabrics[msg.FabricName]
	if !ok {
		return &errs.FabricNotFound{Name: msg.FabricName}
	}
	state := d.states[msg.FabricName]

	uid, err := fab.Identifier()
	if err != nil {
		return err
	}

	cmd := fabric.ActuatorsCommand{
		FabricName: msg.FabricName,
		CommandFields: fabric.CommandFields{
			OpMode:         msg.OpModeBlock,
			ActuatorBlocks: msg.ActuatorModeBlocks,
			TimerBlock:     msg.TimerModeBlock,
		},
		UseCache: msg.UseCache,
	}

	toSend := fabric.SelectPayload(state, cmd)
	payload := haptic.Encode(uid, toSend)

	resp, err := d.conn.SendCommand(frame.Request{Addr: 0xFF, Control: ctlTransponderOp, Payload: payload}, true)
	if err != nil {
		return err
	}
	if kind := status.FromByte(resp.Status); kind != status.Ok {
		return &errs.ReaderStatusError{StatusByte: resp.Status, StatusName: kind.String()}
	}

	fabric.Apply(state, cmd.CommandFields)
	return nil
}

// MockDispatcher accepts every message and reports success, for exercising
// the bus façade in isolation from real hardware.
type MockDispatcher struct {
	log *logrus.Entry
}

// NewMockDispatcher returns a dispatcher that never fails.
func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{log: logrus.WithField("component", "mock-dispatcher")}
}

// Handle logs msg and always succeeds.
func (d *MockDispatcher) Handle(msg message.CommandMessage) error {
	d.log.WithField("kind", msg.Kind).Debug("mock dispatcher accepting message")
	return nil
}

// Package reader wraps a byte channel with the reader's retry/backoff
// policy and exposes the single send_command operation the dispatcher uses
// to talk to the hardware.
package reader

import (
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/sirupsen/logrus"

	"github.com/qsib-cbie/reader-controller/pkg/channel"
	"github.com/qsib-cbie/reader-controller/pkg/errs"
	"github.com/qsib-cbie/reader-controller/pkg/frame"
	"github.com/qsib-cbie/reader-controller/pkg/status"
)

// DefaultMaxAttempts is the retry budget used when AntennaState.MaxAttempts
// is left at zero.
const DefaultMaxAttempts = 5

// AntennaState holds the reader connection's tunables. Only MaxAttempts
// feeds the retry policy directly; the rest are read-back diagnostics a
// caller may inspect but which are never transmitted automatically.
type AntennaState struct {
	AntennaID        *uint8 `cbor:"antenna_id,omitempty"`
	PulseMode        *uint8 `cbor:"pulse_mode,omitempty"`
	HFModulation     *uint8 `cbor:"hf_modulation,omitempty"`
	LFModulation     *uint8 `cbor:"lf_modulation,omitempty"`
	ActiveBlockCount *uint8 `cbor:"active_block_count,omitempty"`
	MaxAttempts      int    `cbor:"max_attempts"`
}

// NewAntennaState returns an AntennaState with the default retry budget and
// every tunable unset.
func NewAntennaState() AntennaState {
	return AntennaState{MaxAttempts: DefaultMaxAttempts}
}

// Connection owns a byte channel and the antenna-state record, and
// implements the retry/backoff policy around a single reader request.
type Connection struct {
	ch      channel.Channel
	antenna AntennaState
	log     *logrus.Entry
}

// New wraps ch with the reader's retry policy. If antenna.MaxAttempts is
// zero, DefaultMaxAttempts is used.
func New(ch channel.Channel, antenna AntennaState) *Connection {
	if antenna.MaxAttempts <= 0 {
		antenna.MaxAttempts = DefaultMaxAttempts
	}
	return &Connection{ch: ch, antenna: antenna, log: logrus.WithField("component", "reader-connection")}
}

// Antenna returns the connection's antenna-state tunables, for diagnostics.
func (c *Connection) Antenna() AntennaState { return c.antenna }

// diagnosticsSnapshot is the CBOR-encoded record emitted to the debug log
// sink: the antenna-state tunables plus how many retry attempts the most
// recent no-transponder backoff needed.
type diagnosticsSnapshot struct {
	Antenna  AntennaState `cbor:"antenna"`
	Attempts int          `cbor:"attempts"`
}

// DiagnosticsSnapshot CBOR-encodes the connection's current antenna-state
// tunables alongside attempts, the retry count of the in-flight or most
// recently completed SendCommand call. This is a read-back-only debug hook;
// it is never sent to the reader and never influences protocol framing.
func (c *Connection) DiagnosticsSnapshot(attempts int) ([]byte, error) {
	return cbor.Marshal(diagnosticsSnapshot{Antenna: c.antenna, Attempts: attempts})
}

// SendCommand serializes req, writes it, and retries per the reader's
// policy: read errors are retried silently without consuming an attempt;
// RFWarning is fatal; NoTransponder is retried up to MaxAttempts only when
// deviceRequired is set; every other status is returned as-is for the
// caller to judge.
func (c *Connection) SendCommand(req frame.Request, deviceRequired bool) (frame.Response, error) {
	encoded := frame.Serialize(req)
	attempts := 0

	for {
		if err := c.ch.Write(encoded); err != nil {
			c.log.WithError(err).Warn("write failed, aborting request")
			return frame.Response{}, err
		}

		raw, err := c.ch.Read()
		if err != nil {
			c.log.WithError(err).Debug("read failed, retrying write without consuming an attempt")
			continue
		}

		resp, err := frame.DeserializeResponse(raw)
		if err != nil {
			c.log.WithError(err).Warn("framing error, aborting request")
			return frame.Response{}, err
		}

		kind := status.FromByte(resp.Status)
		if kind.IsRFWarning() {
			c.log.Warn("reader reported RF warning")
			return frame.Response{}, &errs.RFWarning{}
		}

		if kind.IsNoTransponder() && deviceRequired {
			attempts++
			if attempts >= c.antenna.MaxAttempts {
				c.log.WithField("attempts", attempts).Warn("no transponder after retry budget")
				return frame.Response{}, &errs.NoDeviceAfterRetries{Attempts: attempts}
			}
			backoff := time.Duration(8*attempts) * time.Millisecond
			entry := c.log.WithField("attempts", attempts).WithField("backoff", backoff)
			if snapshot, err := c.DiagnosticsSnapshot(attempts); err == nil {
				entry = entry.WithField("diagnostics_cbor", snapshot)
			}
			entry.Debug("no transponder, retrying")
			time.Sleep(backoff)
			continue
		}

		return resp, nil
	}
}

// Close releases the underlying byte channel.
func (c *Connection) Close() error {
	return c.ch.Close()
}

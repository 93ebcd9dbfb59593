package channel

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/qsib-cbie/reader-controller/pkg/errs"
)

// SerialChannel models the USB bulk variant: most Feig LR-series readers
// attach as a USB-CDC serial device, so the bulk endpoint 0x02 write /
// endpoint 0x81 read pair described by the reader's USB descriptor is, from
// the host's point of view, a serial port opened with go.bug.st/serial. The
// channel enforces the mandatory inter-frame delay and the write/read
// timeouts regardless of what the port looks like underneath.
type SerialChannel struct {
	port        serial.Port
	lastWriteAt time.Time
	log         *logrus.Entry
}

// OpenSerial opens devicePath at baud, configuring 8N1 framing the way the
// reader's UART expects it.
func OpenSerial(devicePath string, baud int) (*SerialChannel, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(devicePath, mode)
	if err != nil {
		return nil, &errs.TransportError{Op: "open " + devicePath, Err: err}
	}
	if err := port.SetReadTimeout(ReadTimeout); err != nil {
		port.Close()
		return nil, &errs.TransportError{Op: "set read timeout", Err: err}
	}
	return &SerialChannel{
		port: port,
		log:  logrus.WithField("channel", "serial").WithField("device", devicePath),
	}, nil
}

// Write enforces the minimum inter-frame delay since the previous write,
// then writes data with the serial variant's write timeout.
func (c *SerialChannel) Write(data []byte) error {
	if since := time.Since(c.lastWriteAt); !c.lastWriteAt.IsZero() && since < MinInterFrameDelay {
		time.Sleep(MinInterFrameDelay - since)
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.port.Write(data)
		done <- err
	}()

	select {
	case err := <-done:
		c.lastWriteAt = time.Now()
		if err != nil {
			return &errs.TransportError{Op: "write", Err: err}
		}
		return nil
	case <-time.After(WriteTimeout):
		return &errs.TransportError{Op: "write", Err: fmt.Errorf("timed out after %s", WriteTimeout)}
	}
}

// Read blocks until the port's configured read timeout elapses or data
// arrives.
func (c *SerialChannel) Read() ([]byte, error) {
	buf := make([]byte, 4096)
	n, err := c.port.Read(buf)
	if err != nil {
		return nil, &errs.TransportError{Op: "read", Err: err}
	}
	if n == 0 {
		return nil, &errs.TransportError{Op: "read", Err: fmt.Errorf("timed out after %s", ReadTimeout)}
	}
	return buf[:n], nil
}

// Close releases the serial port.
func (c *SerialChannel) Close() error {
	return c.port.Close()
}

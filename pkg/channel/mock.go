package channel

import (
	"fmt"
	"sync"

	"github.com/qsib-cbie/reader-controller/pkg/frame"
)

// MockChannel loops a request frame back as a response, for tests that
// drive the reader connection without real hardware. By default it
// synthesizes an Ok-status response carrying the request's own payload; a
// caller may queue specific response frames (e.g. to simulate NoTransponder
// or RFWarning) ahead of time with QueueResponse.
type MockChannel struct {
	mu        sync.Mutex
	writes    [][]byte
	responses [][]byte
	closed    bool
}

// NewMockChannel returns a ready-to-use loopback channel.
func NewMockChannel() *MockChannel {
	return &MockChannel{}
}

// QueueResponse appends a canned response frame to be returned by the next
// Read call(s), in FIFO order.
func (m *MockChannel) QueueResponse(resp []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
}

// Writes returns every frame written so far, for test assertions.
func (m *MockChannel) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.writes...)
}

// Write records the request frame.
func (m *MockChannel) Write(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("write on closed mock channel")
	}
	m.writes = append(m.writes, append([]byte(nil), data...))
	return nil
}

// Read returns the next queued response, or synthesizes an Ok-status
// loopback of the most recent request if none was queued.
func (m *MockChannel) Read() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("read on closed mock channel")
	}
	if len(m.responses) > 0 {
		resp := m.responses[0]
		m.responses = m.responses[1:]
		return resp, nil
	}
	if len(m.writes) == 0 {
		return nil, fmt.Errorf("no request to loop back")
	}
	req, err := frame.DeserializeRequest(m.writes[len(m.writes)-1])
	if err != nil {
		return nil, err
	}
	return buildOkResponse(req), nil
}

// Close marks the mock channel closed; further operations fail.
func (m *MockChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func buildOkResponse(req frame.Request) []byte {
	length := 1 + 2 + 1 + 1 + 1 + len(req.Payload) + 2
	out := make([]byte, 0, length)
	out = append(out, frame.StartByte, byte(length>>8), byte(length))
	out = append(out, req.Addr, req.Control, 0x00)
	out = append(out, req.Payload...)
	crc := frame.CRC16(out)
	out = append(out, byte(crc), byte(crc>>8))
	return out
}

// Package frame implements the reader's advanced-protocol wire framing:
// length-prefixed, address/control-tagged frames closed with a CRC-16.
package frame

import (
	"github.com/qsib-cbie/reader-controller/pkg/errs"
)

// StartByte is the literal start-of-text marker that opens every frame.
const StartByte byte = 0x02

// Request is a host-to-reader frame before CRC and length are attached.
type Request struct {
	Addr    byte
	Control byte
	Payload []byte
}

// Response is a reader-to-host frame with its status byte already separated
// from the payload.
type Response struct {
	Addr    byte
	Control byte
	Status  byte
	Payload []byte
}

// CRC16 computes the frame checksum: polynomial 0x8408, initial value
// 0xFFFF, reflected, no final XOR, processed byte-at-a-time LSB-first.
func CRC16(data []byte) uint16 {
	var crc uint16 = 0xFFFF
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0x8408
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// Serialize lays out a request frame: start byte, big-endian length, addr,
// control, payload, little-endian CRC-16 over everything preceding it.
func Serialize(r Request) []byte {
	length := 1 + 2 + 1 + 1 + len(r.Payload) + 2
	out := make([]byte, 0, length)
	out = append(out, StartByte, byte(length>>8), byte(length))
	out = append(out, r.Addr, r.Control)
	out = append(out, r.Payload...)

	crc := CRC16(out)
	out = append(out, byte(crc), byte(crc>>8))
	return out
}

// DeserializeResponse validates and parses a reader-to-host frame: start
// byte, length, addr, control, status, payload, CRC.
func DeserializeResponse(data []byte) (Response, error) {
	if len(data) < 8 {
		return Response{}, &errs.FramingError{Reason: "response frame shorter than 8 bytes"}
	}

	body := data[:len(data)-2]
	wantCRC := CRC16(body)
	gotCRC := uint16(data[len(data)-2]) | uint16(data[len(data)-1])<<8
	if wantCRC != gotCRC {
		return Response{}, &errs.FramingError{Reason: "CRC mismatch"}
	}

	length := int(data[1])<<8 | int(data[2])
	if length != len(data) {
		return Response{}, &errs.FramingError{Reason: "declared length does not match frame size"}
	}

	return Response{
		Addr:    data[3],
		Control: data[4],
		Status:  data[5],
		Payload: append([]byte(nil), data[6:len(data)-2]...),
	}, nil
}

// DeserializeRequest validates and parses a host-to-reader frame, mirroring
// DeserializeResponse but without the status byte. Used by round-trip tests
// and by any collaborator that needs to decode what was actually written to
// the wire.
func DeserializeRequest(data []byte) (Request, error) {
	if len(data) < 7 {
		return Request{}, &errs.FramingError{Reason: "request frame shorter than 7 bytes"}
	}

	body := data[:len(data)-2]
	wantCRC := CRC16(body)
	gotCRC := uint16(data[len(data)-2]) | uint16(data[len(data)-1])<<8
	if wantCRC != gotCRC {
		return Request{}, &errs.FramingError{Reason: "CRC mismatch"}
	}

	length := int(data[1])<<8 | int(data[2])
	if length != len(data) {
		return Request{}, &errs.FramingError{Reason: "declared length does not match frame size"}
	}

	return Request{
		Addr:    data[3],
		Control: data[4],
		Payload: append([]byte(nil), data[5:len(data)-2]...),
	}, nil
}

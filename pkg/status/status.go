// Package status maps the reader's raw status byte to a closed set of
// semantic kinds and carries the two retry predicates the connection
// layer needs.
package status

// Status is the semantic classification of a reader response's status byte.
type Status byte

const (
	Ok                         Status = 0x00
	NoTransponder              Status = 0x01
	DataFalse                  Status = 0x02
	WriteError                 Status = 0x03
	AddressError               Status = 0x04
	WrongTransponderType       Status = 0x05
	EepromFailure              Status = 0x10
	ParameterRangeError        Status = 0x11
	LoginRequest               Status = 0x13
	LoginError                 Status = 0x14
	ReadProtect                Status = 0x15
	WriteProtect               Status = 0x16
	FirmwareActivationRequired Status = 0x17
	WrongFirmware              Status = 0x18
	UnknownCommand             Status = 0x80
	LengthError                Status = 0x81
	CommandNotAvailable        Status = 0x82
	RFCommError                Status = 0x83
	RFWarning                  Status = 0x84
	NoValidData                Status = 0x92
	DataBufferOverflow         Status = 0x93
	MoreData                   Status = 0x94
	TagError                   Status = 0x95
	Busy                       Status = 0x0F
	HardwareWarning            Status = 0xF1
	InitializationWarning      Status = 0xF2

	// Invalid is the sentinel for any byte outside the 26-code table above.
	Invalid Status = 0xFF
)

var names = map[Status]string{
	Ok:                         "Ok",
	Busy:                       "Busy",
	HardwareWarning:            "HardwareWarning",
	InitializationWarning:      "InitializationWarning",
	NoTransponder:              "NoTransponder",
	DataFalse:                  "DataFalse",
	WriteError:                 "WriteError",
	AddressError:               "AddressError",
	WrongTransponderType:       "WrongTransponderType",
	EepromFailure:              "EepromFailure",
	ParameterRangeError:        "ParameterRangeError",
	LoginRequest:               "LoginRequest",
	LoginError:                 "LoginError",
	ReadProtect:                "ReadProtect",
	WriteProtect:               "WriteProtect",
	FirmwareActivationRequired: "FirmwareActivationRequired",
	WrongFirmware:              "WrongFirmware",
	UnknownCommand:             "UnknownCommand",
	LengthError:                "LengthError",
	CommandNotAvailable:        "CommandNotAvailable",
	RFCommError:                "RFCommError",
	RFWarning:                  "RFWarning",
	NoValidData:                "NoValidData",
	DataBufferOverflow:         "DataBufferOverflow",
	MoreData:                   "MoreData",
	TagError:                   "TagError",
	Invalid:                    "Invalid",
}

// FromByte maps a raw reader status byte to its semantic kind. Any byte not
// in the 26-code table maps to Invalid.
func FromByte(b byte) Status {
	s := Status(b)
	if _, ok := names[s]; !ok {
		return Invalid
	}
	return s
}

// String renders the status kind's name, matching the table in the data model.
func (s Status) String() string {
	if name, ok := names[s]; ok {
		return name
	}
	return "Invalid"
}

// IsRFWarning reports whether s is the fatal, never-retried RF warning status.
func (s Status) IsRFWarning() bool { return s == RFWarning }

// IsNoTransponder reports whether s is the retryable-when-device-required status.
func (s Status) IsNoTransponder() bool { return s == NoTransponder }

// internal/driver/zvt/apdu.go
package zvt

import (
	"context"
	"fmt"

	"pos-device-service/internal/transport"
	"pos-device-service/pkg/driver"
)

// Command identifies an APDU by class and instruction
type Command [2]byte

// ECR to terminal
var (
	CmdRegistration  = Command{0x06, 0x00}
	CmdAuthorization = Command{0x06, 0x01}
	CmdPreAuth       = Command{0x06, 0x22}
	CmdBookTotal     = Command{0x06, 0x24}
	CmdReversal      = Command{0x06, 0x30}
	CmdRefund        = Command{0x06, 0x31}
	CmdEndOfDay      = Command{0x06, 0x50}
	CmdStatusEnquiry = Command{0x05, 0x01}
	CmdAbort         = Command{0x06, 0xB0}
	CmdAck           = Command{0x80, 0x00}
)

// Terminal to ECR
var (
	ReplyStatusInfo   = Command{0x04, 0x0F}
	ReplyIntermediate = Command{0x04, 0xFF}
	ReplyPrintLine    = Command{0x06, 0xD1}
	ReplyCompletion   = Command{0x06, 0x0F}
	ReplyAbort        = Command{0x06, 0x1E}
)

// classNegative is the class of a terminal refusal (84 xx)
const classNegative = 0x84

// APDU is one ZVT application data unit
type APDU struct {
	Command Command
	Data    []byte
}

// Encode renders CLASS INSTR LEN DATA, switching to 0xFF lo hi for long data
func (a APDU) Encode() []byte {
	out := []byte{a.Command[0], a.Command[1]}
	if n := len(a.Data); n < 0xFF {
		out = append(out, byte(n))
	} else {
		out = append(out, 0xFF, byte(n), byte(n>>8))
	}
	return append(out, a.Data...)
}

func (a APDU) String() string {
	return fmt.Sprintf("%02X %02X (%d bytes)", a.Command[0], a.Command[1], len(a.Data))
}

var ackAPDU = APDU{Command: CmdAck}.Encode()

func readAPDU(ctx context.Context, t transport.Transport) (APDU, error) {
	header, err := transport.ReadExact(ctx, t, 3)
	if err != nil {
		return APDU{}, err
	}

	n := int(header[2])
	if n == 0xFF {
		ext, err := transport.ReadExact(ctx, t, 2)
		if err != nil {
			return APDU{}, err
		}
		n = int(ext[0]) | int(ext[1])<<8
	}

	data, err := transport.ReadExact(ctx, t, n)
	if err != nil {
		return APDU{}, err
	}
	return APDU{Command: Command{header[0], header[1]}, Data: data}, nil
}

// BMP numbers used by the adapter
const (
	bmpAmount      = 0x04
	bmpTrace       = 0x0B
	bmpTime        = 0x0C
	bmpDate        = 0x0D
	bmpExpiry      = 0x0E
	bmpPAN         = 0x22
	bmpResultCode  = 0x27
	bmpTerminalID  = 0x29
	bmpAuthCode    = 0x3B
	bmpCurrency    = 0x49
	bmpTotals      = 0x60
	bmpReceiptNo   = 0x87
	bmpCardType    = 0x8A
	bmpCardName    = 0x8B
	bmpTLVEnvelope = 0x06
)

type bmpFormat int

const (
	llvar  bmpFormat = -2
	lllvar bmpFormat = -3
)

// bmpFormats maps a BMP to its fixed length, or to llvar / lllvar
var bmpFormats = map[byte]bmpFormat{
	0x01: 1, 0x02: 1, 0x03: 1, 0x04: 6, 0x05: 1,
	0x0B: 3, 0x0C: 3, 0x0D: 2, 0x0E: 2,
	0x17: 2, 0x19: 1,
	0x22: llvar, 0x23: llvar, 0x24: lllvar,
	0x27: 1, 0x29: 4, 0x2A: 15, 0x2D: llvar,
	0x37: 3, 0x3A: 2, 0x3B: 8, 0x3C: lllvar, 0x3D: 3,
	0x49: 2, 0x60: lllvar,
	0x87: 2, 0x88: 3, 0x8A: 1, 0x8B: llvar, 0x8C: 1,
	0x92: lllvar, 0x9A: lllvar,
	0xA0: 1, 0xA7: llvar, 0xAF: lllvar, 0xBA: 5,
}

// ParseBMPs decodes a sequence of BMP fields. Parsing stops at the first
// unknown BMP; fields decoded up to that point are returned.
func ParseBMPs(data []byte) (map[byte][]byte, error) {
	fields := make(map[byte][]byte)
	for i := 0; i < len(data); {
		bmp := data[i]
		i++

		var n int
		if bmp == bmpTLVEnvelope {
			length, size, err := berLength(data[i:])
			if err != nil {
				return fields, err
			}
			i += size
			n = length
		} else {
			format, known := bmpFormats[bmp]
			if !known {
				return fields, nil
			}
			switch format {
			case llvar, lllvar:
				digits := 2
				if format == lllvar {
					digits = 3
				}
				length, err := varLength(data[i:], digits)
				if err != nil {
					return fields, fmt.Errorf("bmp %02X: %w", bmp, err)
				}
				i += digits
				n = length
			default:
				n = int(format)
			}
		}

		if i+n > len(data) {
			return fields, &driver.ProtocolError{Reason: fmt.Sprintf("bmp %02X truncated", bmp)}
		}
		fields[bmp] = data[i : i+n]
		i += n
	}
	return fields, nil
}

// varLength decodes LLVAR/LLLVAR lengths sent as F-prefixed nibbles (F1 F2 = 12)
func varLength(data []byte, digits int) (int, error) {
	if len(data) < digits {
		return 0, &driver.ProtocolError{Reason: "variable length truncated"}
	}
	n := 0
	for _, b := range data[:digits] {
		if b>>4 != 0x0F || b&0x0F > 9 {
			return 0, &driver.ProtocolError{Reason: fmt.Sprintf("invalid length byte %02X", b)}
		}
		n = n*10 + int(b&0x0F)
	}
	return n, nil
}

func berLength(data []byte) (length, size int, err error) {
	if len(data) == 0 {
		return 0, 0, &driver.ProtocolError{Reason: "TLV length missing"}
	}
	switch {
	case data[0] < 0x80:
		return int(data[0]), 1, nil
	case data[0] == 0x81 && len(data) >= 2:
		return int(data[1]), 2, nil
	case data[0] == 0x82 && len(data) >= 3:
		return int(data[1])<<8 | int(data[2]), 3, nil
	}
	return 0, 0, &driver.ProtocolError{Reason: fmt.Sprintf("unsupported TLV length %02X", data[0])}
}

// EncodeVarLength renders n as F-prefixed length nibbles
func EncodeVarLength(n, digits int) []byte {
	out := make([]byte, digits)
	for i := digits - 1; i >= 0; i-- {
		out[i] = 0xF0 | byte(n%10)
		n /= 10
	}
	return out
}

// internal/driver/wire/wire.go
package wire

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Control characters shared by the framed protocols
const (
	STX = 0x02
	ETX = 0x03
	EOT = 0x04
	ENQ = 0x05
	ACK = 0x06
	NAK = 0x15
	FS  = 0x1C
	US  = 0x1F
)

// LRC is the XOR of all bytes
func LRC(data []byte) byte {
	var lrc byte
	for _, b := range data {
		lrc ^= b
	}
	return lrc
}

// EncodeBCD packs a non-negative value into length bytes of big-endian BCD
func EncodeBCD(value int64, length int) ([]byte, error) {
	if value < 0 {
		return nil, fmt.Errorf("bcd: negative value %d", value)
	}
	out := make([]byte, length)
	for i := length - 1; i >= 0; i-- {
		lo := value % 10
		value /= 10
		hi := value % 10
		value /= 10
		out[i] = byte(hi<<4 | lo)
	}
	if value != 0 {
		return nil, fmt.Errorf("bcd: value does not fit in %d bytes", length)
	}
	return out, nil
}

// DecodeBCD unpacks big-endian BCD into an integer
func DecodeBCD(data []byte) (int64, error) {
	var value int64
	for _, b := range data {
		hi, lo := b>>4, b&0x0F
		if hi > 9 || lo > 9 {
			return 0, fmt.Errorf("bcd: invalid byte 0x%02X", b)
		}
		value = value*100 + int64(hi)*10 + int64(lo)
	}
	return value, nil
}

// EncodeDigits packs a digit string into BCD, left padding with zeros
func EncodeDigits(digits string, length int) ([]byte, error) {
	if len(digits) > length*2 {
		return nil, fmt.Errorf("bcd: %q longer than %d digits", digits, length*2)
	}
	digits = strings.Repeat("0", length*2-len(digits)) + digits
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		hi, lo := digits[2*i]-'0', digits[2*i+1]-'0'
		if hi > 9 || lo > 9 {
			return nil, fmt.Errorf("bcd: %q is not numeric", digits)
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

// DecodeDigits unpacks BCD nibbles into text. 0xE renders as '*' (masked
// digit) and 0xF terminates padding.
func DecodeDigits(data []byte) string {
	var sb strings.Builder
	for _, b := range data {
		for _, n := range []byte{b >> 4, b & 0x0F} {
			switch {
			case n <= 9:
				sb.WriteByte('0' + n)
			case n == 0x0E:
				sb.WriteByte('*')
			}
		}
	}
	return sb.String()
}

// CodePage pairs a character map with its ESC/POS table number
type CodePage struct {
	Name    string
	Charmap *charmap.Charmap
	Table   byte // ESC t n
}

var (
	CodePagePC437   = CodePage{Name: "cp437", Charmap: charmap.CodePage437, Table: 0}
	CodePagePC858   = CodePage{Name: "cp858", Charmap: charmap.CodePage858, Table: 19}
	CodePageGreek   = CodePage{Name: "iso8859-7", Charmap: charmap.ISO8859_7, Table: 15}
	CodePageWestern = CodePage{Name: "windows-1252", Charmap: charmap.Windows1252, Table: 16}
)

// LookupCodePage finds a code page by name, defaulting to CP437
func LookupCodePage(name string) CodePage {
	switch strings.ToLower(name) {
	case "cp858", "pc858":
		return CodePagePC858
	case "iso8859-7", "greek", "el":
		return CodePageGreek
	case "windows-1252", "cp1252":
		return CodePageWestern
	default:
		return CodePagePC437
	}
}

// Encode converts text to the code page; unmappable runes become '?'
func (cp CodePage) Encode(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r < 0x80 {
			out = append(out, byte(r))
			continue
		}
		if b, ok := cp.Charmap.EncodeRune(r); ok {
			out = append(out, b)
		} else {
			out = append(out, '?')
		}
	}
	return out
}

// Decode converts code page bytes to text
func (cp CodePage) Decode(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		sb.WriteRune(cp.Charmap.DecodeByte(c))
	}
	return sb.String()
}

package zvt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-device-service/pkg/driver"
)

func TestAPDUEncode(t *testing.T) {
	assert.Equal(t, []byte{0x80, 0x00, 0x00}, APDU{Command: CmdAck}.Encode())
	assert.Equal(t, []byte{0x06, 0xB0, 0x00}, APDU{Command: CmdAbort}.Encode())

	long := APDU{Command: ReplyStatusInfo, Data: bytes.Repeat([]byte{0x01}, 300)}.Encode()
	assert.Equal(t, []byte{0x04, 0x0F, 0xFF, 0x2C, 0x01}, long[:5])
	assert.Len(t, long, 305)
}

func TestParseBMPs(t *testing.T) {
	data := []byte{
		0x27, 0x00,
		0x04, 0x00, 0x00, 0x00, 0x00, 0x12, 0x50,
		0x22, 0xF0, 0xF3, 0x67, 0xEE, 0x34,
		0x8B, 0xF0, 0xF4, 'V', 'I', 'S', 'A',
	}

	fields, err := ParseBMPs(data)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, fields[bmpResultCode])
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00, 0x12, 0x50}, fields[bmpAmount])
	assert.Equal(t, []byte{0x67, 0xEE, 0x34}, fields[bmpPAN])
	assert.Equal(t, "VISA", string(fields[bmpCardName]))
}

func TestParseBMPsStopsAtUnknownField(t *testing.T) {
	fields, err := ParseBMPs([]byte{0x27, 0x05, 0xFE, 0x01, 0x02})
	require.NoError(t, err)
	assert.Len(t, fields, 1)
	assert.Equal(t, []byte{0x05}, fields[bmpResultCode])
}

func TestParseBMPsTruncated(t *testing.T) {
	_, err := ParseBMPs([]byte{0x04, 0x00, 0x00})
	var protoErr *driver.ProtocolError
	assert.ErrorAs(t, err, &protoErr)

	_, err = ParseBMPs([]byte{0x22, 0x01, 0x02})
	assert.Error(t, err)
}

func TestParseBMPsTLVEnvelope(t *testing.T) {
	fields, err := ParseBMPs([]byte{0x06, 0x81, 0x02, 0xAA, 0xBB, 0x27, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB}, fields[bmpTLVEnvelope])
	assert.Equal(t, []byte{0x00}, fields[bmpResultCode])
}

func TestVarLength(t *testing.T) {
	assert.Equal(t, []byte{0xF1, 0xF2}, EncodeVarLength(12, 2))
	assert.Equal(t, []byte{0xF1, 0xF0, 0xF5}, EncodeVarLength(105, 3))

	n, err := varLength([]byte{0xF1, 0xF0, 0xF5}, 3)
	require.NoError(t, err)
	assert.Equal(t, 105, n)
}

func TestParseTotals(t *testing.T) {
	data := []byte{
		0x00, 0x01, 0x00, 0x12,
		0x03, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00,
		0x02, 0x00, 0x00, 0x00, 0x00, 0x05, 0x50,
	}
	count, total, err := parseTotals(data)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
	assert.Equal(t, int64(1550), total)

	_, _, err = parseTotals([]byte{0x00, 0x01, 0x00})
	assert.Error(t, err)
}

package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBCDAmount(t *testing.T) {
	b, err := EncodeBCD(1250, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00, 0x12, 0x50}, b)

	v, err := DecodeBCD(b)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), v)

	_, err = EncodeBCD(1000, 1)
	assert.Error(t, err)
	_, err = EncodeBCD(-1, 6)
	assert.Error(t, err)
	_, err = DecodeBCD([]byte{0x1A})
	assert.Error(t, err)
}

func TestDigits(t *testing.T) {
	b, err := EncodeDigits("978", 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x09, 0x78}, b)

	assert.Equal(t, "6712****1234", DecodeDigits([]byte{0x67, 0x12, 0xEE, 0xEE, 0x12, 0x34}))
	assert.Equal(t, "123", DecodeDigits([]byte{0x12, 0x3F}))
}

func TestLRC(t *testing.T) {
	assert.Equal(t, byte(0x00), LRC(nil))
	assert.Equal(t, byte(0x01^0x02^0x03), LRC([]byte{0x01, 0x02, 0x03}))
}

func TestCodePageEncode(t *testing.T) {
	greek := LookupCodePage("greek")
	assert.Equal(t, byte(15), greek.Table)

	encoded := greek.Encode("Καφές")
	assert.Len(t, encoded, 5)
	assert.Equal(t, "Καφές", greek.Decode(encoded))

	assert.Equal(t, []byte("caf?"), CodePagePC437.Encode("caf☃"))
}

package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	in := Metadata{
		KeyName:        "Coop Token",
		KeyDescription: "Кооперативный токен",
		KeyImage:       "https://example.org/token.png",
		KeyDecimals:    "9",
		KeySymbol:      "COOP",
	}

	blob, err := Encode(in)
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), blob[0], "on-chain layout marker")

	out, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEncode_IsDeterministic(t *testing.T) {
	m := Metadata{KeySymbol: "A", KeyName: "B", KeyDecimals: "9"}
	first := MustEncode(m)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, MustEncode(m))
	}
}

func TestEncode_OmitsEmptyValues(t *testing.T) {
	blob, err := Encode(Metadata{KeyName: "X", KeyDescription: ""})
	require.NoError(t, err)

	out, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, Metadata{KeyName: "X"}, out)
}

func TestEncode_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   Metadata
		want error
	}{
		{name: "unsupported key", in: Metadata{"uri": "x"}, want: ErrUnsupportedKey},
		{name: "non-ascii image", in: Metadata{KeyImage: "https://пример.рф/a.png"}, want: ErrInvalidValue},
		{name: "invalid utf8", in: Metadata{KeyName: string([]byte{0xff, 0xfe})}, want: ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	valid := MustEncode(Metadata{KeyName: "Token", KeySymbol: "TKN"})

	tests := []struct {
		name string
		blob []byte
	}{
		{name: "empty", blob: nil},
		{name: "off-chain layout", blob: []byte{0x01}},
		{name: "truncated key", blob: valid[:10]},
		{name: "truncated value", blob: valid[:len(valid)-1]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.blob)
			assert.ErrorIs(t, err, ErrMalformedBlob)
		})
	}
}

func TestDecode_EmptyDictionary(t *testing.T) {
	out, err := Decode([]byte{0x00})
	require.NoError(t, err)
	assert.Empty(t, out)
}

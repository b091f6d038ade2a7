package ieee754

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFloat32RoundTrip(t *testing.T) {
	for _, v := range []float32{0, 1.0, -1.5, math.MaxFloat32, math.SmallestNonzeroFloat32, float32(math.Inf(1))} {
		encoded := EncodeFloat32(nil, v)
		require.Equal(t, 4, len(encoded))
		decoded, err := DecodeFloat32(bytes.NewReader(encoded))
		require.NoError(t, err)
		require.Equal(t, v, decoded)
	}
}

func TestFloat32_NaN(t *testing.T) {
	encoded := EncodeFloat32(nil, float32(math.NaN()))
	decoded, err := DecodeFloat32(bytes.NewReader(encoded))
	require.NoError(t, err)
	require.True(t, math.IsNaN(float64(decoded)))
}

func TestFloat64RoundTrip(t *testing.T) {
	for _, v := range []float64{0, 1.0, -1.5, math.MaxFloat64, math.SmallestNonzeroFloat64, math.Inf(-1)} {
		encoded := EncodeFloat64(nil, v)
		require.Equal(t, 8, len(encoded))
		decoded, err := DecodeFloat64(bytes.NewReader(encoded))
		require.NoError(t, err)
		require.Equal(t, v, decoded)
	}
}

func TestDecode_ShortInput(t *testing.T) {
	_, err := DecodeFloat32(bytes.NewReader([]byte{1, 2}))
	require.Error(t, err)
	_, err = DecodeFloat64(bytes.NewReader([]byte{1, 2, 3, 4}))
	require.Error(t, err)
}

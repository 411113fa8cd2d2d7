package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/rdbe/format"
)

// samplePayload mimics a snapshot image: mostly zeroed page frames with a
// few runs of record bytes.
func samplePayload() []byte {
	payload := make([]byte, 64*1024)
	for i := 0; i < len(payload); i += 997 {
		payload[i] = byte(i)
	}
	copy(payload[1000:], bytes.Repeat([]byte("record data "), 50))

	return payload
}

func TestCodecs_RoundTrip(t *testing.T) {
	types := []format.CompressionType{
		format.CompressionNone,
		format.CompressionZstd,
		format.CompressionS2,
		format.CompressionLZ4,
	}

	payload := samplePayload()

	for _, typ := range types {
		t.Run(typ.String(), func(t *testing.T) {
			codec, err := GetCodec(typ)
			require.NoError(t, err)

			compressed, err := codec.Compress(payload)
			require.NoError(t, err)

			restored, err := codec.Decompress(compressed)
			require.NoError(t, err)
			require.Equal(t, payload, restored)
		})
	}
}

func TestCodecs_CompressibleDataShrinks(t *testing.T) {
	payload := samplePayload()

	for _, typ := range []format.CompressionType{format.CompressionZstd, format.CompressionS2, format.CompressionLZ4} {
		codec, err := GetCodec(typ)
		require.NoError(t, err)

		compressed, err := codec.Compress(payload)
		require.NoError(t, err)
		require.Less(t, len(compressed), len(payload), "%s should shrink sparse pages", typ)
	}
}

func TestGetCodec_Unknown(t *testing.T) {
	_, err := GetCodec(format.CompressionType(0x42))
	require.Error(t, err)
}

func TestCodecs_CorruptInputFails(t *testing.T) {
	for _, typ := range []format.CompressionType{format.CompressionZstd, format.CompressionLZ4} {
		codec, err := GetCodec(typ)
		require.NoError(t, err)

		_, err = codec.Decompress([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02})
		require.Error(t, err, "%s must reject garbage", typ)
	}
}

package bytesutil_test

import (
	"testing"

	"github.com/SeungheonOh/xreserve-relay/encoding/bytesutil"
	"github.com/SeungheonOh/xreserve-relay/testing/assert"
)

func TestUint64RoundTripBigEndian(t *testing.T) {
	tests := []uint64{0, 1, 255, 256, 1<<32 - 1, 1 << 32, 1<<64 - 1}
	for _, tt := range tests {
		b := bytesutil.Uint64ToBytesBigEndian(tt)
		assert.Equal(t, 8, len(b))
		assert.Equal(t, tt, bytesutil.BytesToUint64BigEndian(b))
	}
	assert.Equal(t, uint64(0), bytesutil.BytesToUint64BigEndian([]byte{1, 2}))
}

func TestUint32RoundTripBigEndian(t *testing.T) {
	tests := []uint32{0, 1, 7, 1<<16 + 3, 1<<32 - 1}
	for _, tt := range tests {
		b := bytesutil.Uint32ToBytes4(tt)
		assert.Equal(t, tt, bytesutil.BytesToUint32BigEndian(b[:]))
	}
	assert.Equal(t, uint32(0), bytesutil.BytesToUint32BigEndian([]byte{9}))
}

func TestToBytes32(t *testing.T) {
	b := bytesutil.ToBytes32([]byte{1, 2, 3})
	assert.Equal(t, byte(1), b[0])
	assert.Equal(t, byte(3), b[2])
	assert.Equal(t, byte(0), b[31])

	long := make([]byte, 40)
	long[39] = 9
	truncated := bytesutil.ToBytes32(long)
	assert.Equal(t, byte(0), truncated[31], "input should be truncated at 32 bytes")
}

func TestSafeCopyBytes(t *testing.T) {
	src := []byte{1, 2, 3}
	cp := bytesutil.SafeCopyBytes(src)
	src[0] = 9
	assert.Equal(t, byte(1), cp[0])
	if bytesutil.SafeCopyBytes(nil) != nil {
		t.Error("expected nil copy for nil input")
	}
}

// Package bytesutil defines helper methods for converting integers to byte
// slices and back.
package bytesutil

import "encoding/binary"

// Uint64ToBytesBigEndian conversion.
func Uint64ToBytesBigEndian(i uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, i)
	return buf
}

// BytesToUint64BigEndian conversion. Returns 0 if empty bytes or byte slice
// with length less than 8.
func BytesToUint64BigEndian(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// Uint32ToBytes4 is a convenience method for converting uint32 to a fixed
// size 4 byte array in big endian order.
func Uint32ToBytes4(i uint32) [4]byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], i)
	return buf
}

// BytesToUint32BigEndian conversion. Returns 0 if the byte slice has length
// less than 4.
func BytesToUint32BigEndian(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

package bytesutil

// ToBytes32 is a convenience method for converting a byte slice to a fix
// sized 32 byte array. This method will truncate the input if it is larger
// than 32 bytes.
func ToBytes32(a []byte) [32]byte {
	var b [32]byte
	copy(b[:], a)
	return b
}

// SafeCopyBytes will copy and return a non-nil byte slice, otherwise it
// returns nil.
func SafeCopyBytes(cp []byte) []byte {
	if cp != nil {
		copied := make([]byte, len(cp))
		copy(copied, cp)
		return copied
	}
	return nil
}

package internal

// Mask XORs src with key into dst starting at key position offset%4 and
// returns the key position following the last byte. dst and src may be the
// same slice; dst must be at least len(src) long.
func Mask(dst, src []byte, key [4]byte, offset int) int {
	for i, b := range src {
		dst[i] = b ^ key[(i+offset)%4]
	}

	return (offset + len(src)) % 4
}

// MaskCopy returns a masked copy of src, leaving src untouched.
func MaskCopy(src []byte, key [4]byte) []byte {
	dst := make([]byte, len(src))
	Mask(dst, src, key, 0)
	return dst
}

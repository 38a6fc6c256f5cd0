package slmp

// MAC is a 6-octet hardware address in normal (non-reversed) byte order,
// e.g. {0x00, 0x1B, 0x19, 0x12, 0x34, 0x56}.
type MAC [6]byte

// putMACReversed writes mac into dst (which must be 6 bytes) in the
// byte-reversed order the wire format uses for every MAC field.
func putMACReversed(dst []byte, mac MAC) {
	for i := 0; i < 6; i++ {
		dst[i] = mac[5-i]
	}
}

// macFromReversed reads a byte-reversed MAC field back into normal order.
func macFromReversed(src []byte) MAC {
	var mac MAC
	for i := 0; i < 6; i++ {
		mac[i] = src[5-i]
	}
	return mac
}

package binutil

// ParseUint16 big-endian
func ParseUint16(buf []byte) uint16 {
	return uint16(buf[0])<<8 + uint16(buf[1])
}

// ParseUint16LittleEndian 解析
func ParseUint16LittleEndian(buf []byte) uint16 {
	return uint16(buf[1])<<8 + uint16(buf[0])
}

// ParseUint16Slice decodes consecutive big-endian words.
func ParseUint16Slice(buf []byte) []uint16 {
	words := make([]uint16, len(buf)/2)
	for i := range words {
		words[i] = ParseUint16(buf[i*2:])
	}
	return words
}

// WriteUint16 big-endian
func WriteUint16(buf []byte, value uint16) {
	buf[0] = byte(value >> 8)
	buf[1] = byte(value)
}

// WriteUint16LittleEndian 编码
func WriteUint16LittleEndian(buf []byte, value uint16) {
	buf[0] = byte(value)
	buf[1] = byte(value >> 8)
}

func Dup(buf []byte) []byte {
	b := make([]byte, len(buf))
	copy(b, buf)
	return b
}

// ExpandBool unpacks LSB-first coil bits, stopping after count bits.
func ExpandBool(buf []byte, count int) []bool {
	if count > len(buf)<<3 {
		count = len(buf) << 3
	}
	b := make([]bool, count)
	for i := 0; i < count; i++ {
		b[i] = buf[i>>3]&(1<<(i&0x07)) > 0
	}
	return b
}

// ShrinkBool packs bools LSB-first, the inverse of ExpandBool.
func ShrinkBool(bits []bool) []byte {
	b := make([]byte, (len(bits)+7)/8)
	for i, v := range bits {
		if v {
			b[i>>3] |= 1 << (i & 0x07)
		}
	}
	return b
}

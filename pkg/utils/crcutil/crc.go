package crcutil

// CheckCrc16sum computes the Modbus RTU CRC16 (poly 0xA001, init 0xFFFF).
func CheckCrc16sum(data []byte) uint16 {
	var crc uint16 = 0xFFFF
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

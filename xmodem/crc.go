package xmodem

// crcPoly is the CRC-16/CCITT generator used by XMODEM-CRC.
const crcPoly = 0x1021

// UpdateCRC16 folds one byte into a running XMODEM CRC.
// Initial value 0, no reflection, no final XOR.
func UpdateCRC16(crc uint16, b byte) uint16 {
	crc ^= uint16(b) << 8
	for i := 0; i < 8; i++ {
		if crc&0x8000 != 0 {
			crc = crc<<1 ^ crcPoly
		} else {
			crc <<= 1
		}
	}
	return crc
}

// CRC16 returns the XMODEM CRC of data.
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = UpdateCRC16(crc, b)
	}
	return crc
}

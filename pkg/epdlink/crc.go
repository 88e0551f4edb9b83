// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package epdlink

// CalculateCRC32 computes the reflected CRC-32 (IEEE) checksum of data.
// It is evaluated bit by bit and matches hash/crc32.ChecksumIEEE.
func CalculateCRC32(data []byte) uint32 {
	crc := uint32(crc32Initial)
	for _, b := range data {
		crc ^= uint32(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ crc32Polynomial
			} else {
				crc >>= 1
			}
		}
	}
	return ^crc
}

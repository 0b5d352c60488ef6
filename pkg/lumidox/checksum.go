// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lumidox

// CalculateChecksum computes the frame checksum: the sum of the ASCII
// bytes between the start byte and the checksum field, modulo 256.
func CalculateChecksum(data []byte) uint8 {
	var sum uint8
	for _, b := range data {
		sum += b
	}
	return sum
}

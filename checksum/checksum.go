// Package checksum implements the CRC-32 checksum used by the container
// format, with an incremental state suitable for streamed entry bodies.
package checksum

// Polynomial is the reversed CRC-32 polynomial (IEEE 802.3).
const Polynomial = 0xEDB88320

// table holds the precomputed remainders for every byte value.
var table = makeTable()

func makeTable() [256]uint32 {
	var t [256]uint32
	for i := range t {
		crc := uint32(i)
		for k := 0; k < 8; k++ {
			if crc&1 == 1 {
				crc = (crc >> 1) ^ Polynomial
			} else {
				crc >>= 1
			}
		}
		t[i] = crc
	}
	return t
}

// State is the running checksum state. The zero State is not valid; use New.
type State uint32

// New returns the initial state (all bits set).
func New() State {
	return State(0xFFFFFFFF)
}

// Update folds p into the state and returns the new state. Updating with
// several slices is equivalent to updating once with their concatenation.
func (s State) Update(p []byte) State {
	crc := uint32(s)
	for _, b := range p {
		crc = table[byte(crc)^b] ^ (crc >> 8)
	}
	return State(crc)
}

// Sum32 finalizes the state and returns the checksum value.
func (s State) Sum32() uint32 {
	return uint32(s) ^ 0xFFFFFFFF
}

// Checksum returns the CRC-32 of p.
func Checksum(p []byte) uint32 {
	return New().Update(p).Sum32()
}

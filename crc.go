package arqsim

import (
	"fmt"
	"math/bits"
)

const (
	// CRC3Divisor is the textbook divisor x^3 + x + 1.  Three check bits let
	// about one corrupted frame in eight through
	CRC3Divisor uint64 = 0xB

	// CRC16Divisor is x^16 + x^15 + x^2 + 1 (CRC-16/ARC).  It catches every
	// odd number of flipped bits and every burst up to 16 bits
	CRC16Divisor uint64 = 0x18005

	// DefaultDivisor is the divisor of a default configuration
	DefaultDivisor = CRC16Divisor
)

// A Codec adds integrity bits to a frame and checks them
type Codec interface {
	// Encode returns the coded value and its length
	Encode(value uint64, bitLen int) (uint64, int)

	// Decode recovers the original value and length, and reports whether the check passed
	Decode(coded uint64, codedLen int) (uint64, int, bool)

	// Overhead is the number of bits Encode adds
	Overhead() int
}

// CRC is a cyclic redundancy check computed by modulo-2 division
type CRC struct {
	divisor uint64
	degree  int
}

// CreateCRC is a constructor.  The divisor must have degree at least 1
func CreateCRC(divisor uint64) (*CRC, error) {
	if divisor < 2 {
		return nil, fmt.Errorf("%w: CRC divisor %#x has degree 0", ErrConfig, divisor)
	}
	crc := new(CRC)
	crc.divisor = divisor
	crc.degree = bits.Len64(divisor) - 1
	return crc, nil
}

// Overhead returns the degree of the divisor, the number of check bits
func (crc *CRC) Overhead() int {
	return crc.degree
}

// Encode appends degree zero bits to value, and replaces them by the
// remainder of the division by the divisor
func (crc *CRC) Encode(value uint64, bitLen int) (uint64, int) {
	num := value << uint(crc.degree)
	rem := crc.remainder(num, bitLen+crc.degree)
	return num | rem, bitLen + crc.degree
}

// Decode checks that coded is a multiple of the divisor.  If it is the check bits
// are stripped and the data returned, if not the return is (0, 0, false)
func (crc *CRC) Decode(coded uint64, codedLen int) (uint64, int, bool) {
	if codedLen < crc.degree {
		return 0, 0, false
	}
	if crc.remainder(coded, codedLen) != 0 {
		return 0, 0, false
	}
	return coded >> uint(crc.degree), codedLen - crc.degree, true
}

// remainder divides the numLen-bit num by the divisor in modulo-2 arithmetic
func (crc *CRC) remainder(num uint64, numLen int) uint64 {
	num &= lowBits(numLen)
	for idx := numLen - 1; idx >= crc.degree; idx-- {
		if num&(uint64(1)<<uint(idx)) == 0 {
			continue
		}
		num ^= crc.divisor << uint(idx-crc.degree)
	}
	return num & lowBits(crc.degree)
}

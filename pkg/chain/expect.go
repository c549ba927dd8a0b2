package chain

import (
	"fmt"
	"strconv"
	"strings"
)

// Expectation is an IDCODE to verify. Bits clear in Mask are not checked; a
// zero Mask checks all 32 bits.
type Expectation struct {
	IDCode uint32
	Mask   uint32
}

func (e Expectation) mask() uint32 {
	if e.Mask == 0 {
		return 0xFFFFFFFF
	}
	return e.Mask
}

func (e Expectation) String() string {
	if e.mask() == 0xFFFFFFFF {
		return fmt.Sprintf("0x%08X", e.IDCode)
	}
	return fmt.Sprintf("0x%08X/0x%08X", e.IDCode, e.mask())
}

// ParseExpectation accepts a hex IDCODE ("0x0362D093"), a hex IDCODE with a
// mask ("0x0362D093/0x0FFFFFFF"), or 32 binary digits MSB first where X marks
// a don't-care bit ("XXXX 0011 0110 0010 1101 0000 1001 0011").
func ParseExpectation(s string) (Expectation, error) {
	s = strings.TrimSpace(s)
	if value, mask, ok := strings.Cut(s, "/"); ok {
		id, err := parseHex32(value)
		if err != nil {
			return Expectation{}, err
		}
		m, err := parseHex32(mask)
		if err != nil {
			return Expectation{}, err
		}
		if m == 0 {
			return Expectation{}, fmt.Errorf("chain: IDCODE mask is zero")
		}
		return Expectation{IDCode: id & m, Mask: m}, nil
	}
	if countBinaryDigits(s) == 32 && !strings.HasPrefix(strings.ToLower(s), "0x") {
		return parseBinary(s)
	}
	id, err := parseHex32(s)
	if err != nil {
		return Expectation{}, err
	}
	return Expectation{IDCode: id}, nil
}

func parseHex32(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("chain: invalid IDCODE %q: %w", s, err)
	}
	return uint32(v), nil
}

func parseBinary(s string) (Expectation, error) {
	var e Expectation
	for _, r := range s {
		switch r {
		case '0', '1':
			e.IDCode = e.IDCode<<1 | uint32(r-'0')
			e.Mask = e.Mask<<1 | 1
		case 'X', 'x':
			e.IDCode <<= 1
			e.Mask <<= 1
		case ' ', '_':
		default:
			return Expectation{}, fmt.Errorf("chain: invalid IDCODE digit %q", r)
		}
	}
	if e.Mask == 0 {
		return Expectation{}, fmt.Errorf("chain: IDCODE mask is zero")
	}
	return e, nil
}

func countBinaryDigits(s string) int {
	count := 0
	for _, r := range s {
		switch r {
		case '0', '1', 'X', 'x':
			count++
		}
	}
	return count
}

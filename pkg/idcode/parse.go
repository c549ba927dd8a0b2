package idcode

import "fmt"

// ParseIDCode parses a raw 32-bit IDCODE into its component fields
func ParseIDCode(raw uint32) IDCode {
	return IDCode{
		Raw:              raw,
		Version:          uint8((raw >> 28) & 0xF),
		PartNumber:       uint16((raw >> 12) & 0xFFFF),
		ManufacturerCode: uint16((raw >> 1) & 0x7FF),
		HasIDCode:        (raw & 0x1) == 0x1,
	}
}

// Describe renders an IDCODE the way device reports print it, including the
// manufacturer and part name when known.
func Describe(raw uint32) string {
	id := ParseIDCode(raw)
	m, _ := LookupManufacturer(id.ManufacturerCode)
	s := fmt.Sprintf("idcode=0x%08x, revision=0x%01x, part=0x%04x, manufacturer=0x%03x (%s)",
		id.Raw, id.Version, id.PartNumber, id.ManufacturerCode, m.Name)
	if dev, ok := LookupDevice(id); ok {
		s += " " + dev.Name
	}
	return s
}

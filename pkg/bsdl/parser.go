// Package bsdl reads the identification attributes of Boundary Scan
// Description Language files: entity name, instruction length, instruction
// opcodes and the IDCODE register pattern.
package bsdl

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
)

var parser = participle.MustBuild[file](
	participle.Lexer(bsdlLexer),
	participle.Elide("Comment", "Whitespace"),
	participle.UseLookahead(2),
)

// Device is the identification data of one BSDL entity.
type Device struct {
	Entity            string
	InstructionLength int
	// IDCode is the IDCODE_REGISTER pattern, MSB first, X for don't care.
	IDCode       string
	Instructions map[string]string // name -> opcode bits, MSB first
}

// Parse reads a BSDL entity from r.
func Parse(name string, r io.Reader) (*Device, error) {
	f, err := parser.Parse(name, r)
	if err != nil {
		return nil, fmt.Errorf("bsdl: %w", err)
	}
	return newDevice(f)
}

// ParseFile reads a BSDL entity from path.
func ParseFile(path string) (*Device, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bsdl: %w", err)
	}
	defer fh.Close()
	return Parse(path, fh)
}

func newDevice(f *file) (*Device, error) {
	d := &Device{Entity: f.Entity, Instructions: map[string]string{}}
	for _, decl := range f.Decls {
		attr := decl.Attribute
		if attr == nil || !strings.EqualFold(attr.Of, f.Entity) {
			continue
		}
		switch strings.ToUpper(attr.Name) {
		case "INSTRUCTION_LENGTH":
			s, ok := attr.Value.number()
			if !ok {
				return nil, fmt.Errorf("bsdl: %s: INSTRUCTION_LENGTH is not a number", f.Entity)
			}
			n, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("bsdl: %s: INSTRUCTION_LENGTH: %w", f.Entity, err)
			}
			d.InstructionLength = n
		case "INSTRUCTION_OPCODE":
			for name, opcode := range parseOpcodes(attr.Value.text()) {
				d.Instructions[name] = opcode
			}
		case "IDCODE_REGISTER":
			d.IDCode = strings.Join(strings.Fields(attr.Value.text()), "")
		}
	}
	if d.InstructionLength == 0 {
		return nil, fmt.Errorf("bsdl: %s: missing INSTRUCTION_LENGTH", f.Entity)
	}
	return d, nil
}

// parseOpcodes splits "IDCODE (001001), BYPASS (111111, 011111)" into the
// first opcode of every instruction.
func parseOpcodes(s string) map[string]string {
	out := map[string]string{}
	for {
		lp := strings.IndexByte(s, '(')
		rp := strings.IndexByte(s, ')')
		if lp < 0 || rp < lp {
			return out
		}
		name := strings.ToUpper(strings.TrimSpace(strings.Trim(strings.TrimSpace(s[:lp]), ",")))
		codes := strings.Split(s[lp+1:rp], ",")
		if name != "" {
			out[name] = strings.TrimSpace(codes[0])
		}
		s = s[rp+1:]
	}
}

// IDCodePattern returns the IDCODE value and the mask of bits that are not
// don't-care.
func (d *Device) IDCodePattern() (value, mask uint32, err error) {
	if len(d.IDCode) != 32 {
		return 0, 0, fmt.Errorf("bsdl: %s: IDCODE_REGISTER has %d bits, want 32", d.Entity, len(d.IDCode))
	}
	for _, ch := range d.IDCode {
		value <<= 1
		mask <<= 1
		switch ch {
		case '1':
			value |= 1
			mask |= 1
		case '0':
			mask |= 1
		case 'X', 'x':
		default:
			return 0, 0, fmt.Errorf("bsdl: %s: invalid IDCODE digit %q", d.Entity, ch)
		}
	}
	return value, mask, nil
}

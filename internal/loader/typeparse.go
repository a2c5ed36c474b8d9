package loader

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"

	"tvmc/internal/types"
)

// opaqueTypes are accepted in descriptors but have no wire encoding.
var opaqueTypes = map[string]bool{
	"function":   true,
	"TvmSlice":   true,
	"TvmBuilder": true,
}

// StructLookup resolves a struct name used in a type expression.
type StructLookup func(name string) *types.StructType

// ParseType parses a type expression such as "uint32", "Point[]",
// "mapping(uint256 => Point)" or "tuple(bool,address)".
func ParseType(s string, lookup StructLookup) (types.Type, error) {
	p := &typeParser{src: s, lookup: lookup}
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, errors.Newf("unexpected %q at offset %d in type %q", p.src[p.pos:], p.pos, s)
	}
	return t, nil
}

type typeParser struct {
	src    string
	pos    int
	lookup StructLookup
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *typeParser) accept(tok string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.src[p.pos:], tok) {
		p.pos += len(tok)
		return true
	}
	return false
}

func (p *typeParser) expect(tok string) error {
	if !p.accept(tok) {
		return errors.Newf("expected %q at offset %d in type %q", tok, p.pos, p.src)
	}
	return nil
}

func (p *typeParser) ident() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		r := rune(p.src[p.pos])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *typeParser) parseType() (types.Type, error) {
	t, err := p.parseBase()
	if err != nil {
		return nil, err
	}
	for p.accept("[") {
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		t = types.Array(t)
	}
	return t, nil
}

func (p *typeParser) parseBase() (types.Type, error) {
	name := p.ident()
	switch name {
	case "":
		return nil, errors.Newf("expected a type at offset %d in %q", p.pos, p.src)
	case "mapping":
		return p.parseMapping()
	case "tuple":
		return p.parseTuple()
	case "struct":
		return p.parseStruct(p.ident())
	case "bool":
		return types.Bool(), nil
	case "address":
		return types.Address(), nil
	case "TvmCell", "cell":
		return types.Cell(), nil
	case "bytes":
		return types.Bytes(), nil
	case "string":
		return types.String(), nil
	}
	if opaqueTypes[name] {
		return &types.OtherType{Name: name}, nil
	}
	if t, ok, err := parseInteger(name); ok {
		return t, err
	}
	return p.parseStruct(name)
}

func (p *typeParser) parseMapping() (types.Type, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	key, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if err := p.expect("=>"); err != nil {
		return nil, err
	}
	value, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	return types.Mapping(key, value), nil
}

func (p *typeParser) parseTuple() (types.Type, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	var comps []types.Type
	if p.accept(")") {
		return types.Tuple(), nil
	}
	for {
		c, err := p.parseType()
		if err != nil {
			return nil, err
		}
		comps = append(comps, c)
		if p.accept(")") {
			return types.Tuple(comps...), nil
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
	}
}

func (p *typeParser) parseStruct(name string) (types.Type, error) {
	if p.lookup != nil {
		if st := p.lookup(name); st != nil {
			return st, nil
		}
	}
	return nil, errors.Newf("unknown type %q", name)
}

// parseInteger recognizes uint<M>/int<M>; a bare uint or int is 256 bits.
func parseInteger(name string) (types.Type, bool, error) {
	var signed bool
	var digits string
	switch {
	case strings.HasPrefix(name, "uint"):
		digits = name[len("uint"):]
	case strings.HasPrefix(name, "int"):
		signed = true
		digits = name[len("int"):]
	default:
		return nil, false, nil
	}
	bits := 256
	if digits != "" {
		n, err := strconv.Atoi(digits)
		if err != nil {
			return nil, false, nil
		}
		bits = n
	}
	if bits < 1 || bits > 256 {
		return nil, true, errors.Newf("integer width %d out of range in %q", bits, name)
	}
	if signed {
		return types.Int(bits), true, nil
	}
	return types.Uint(bits), true, nil
}

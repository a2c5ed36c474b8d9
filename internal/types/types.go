package types

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Category
// ---------------------------------------------------------------------------

// Category is the tag of the closed Type variant.
type Category int

const (
	CategoryInteger Category = iota
	CategoryBool
	CategoryMapping
	CategoryArray
	CategoryStruct
	CategoryTuple
	CategoryCell
	CategoryAddress
	CategoryOther
)

func (c Category) String() string {
	switch c {
	case CategoryInteger:
		return "integer"
	case CategoryBool:
		return "bool"
	case CategoryMapping:
		return "mapping"
	case CategoryArray:
		return "array"
	case CategoryStruct:
		return "struct"
	case CategoryTuple:
		return "tuple"
	case CategoryCell:
		return "cell"
	case CategoryAddress:
		return "address"
	case CategoryOther:
		return "other"
	default:
		return "unknown"
	}
}

// ---------------------------------------------------------------------------
// Type
// ---------------------------------------------------------------------------

// Type is a resolved type handed over by the front end. Values are immutable;
// the backend only inspects them. The set of implementations is closed: every
// switch over a Type lists all of them.
type Type interface {
	Category() Category
	String() string
	isType()
}

// IntegerType is int<Bits> or uint<Bits>.
type IntegerType struct {
	Bits   int
	Signed bool
}

// BoolType is the one-bit boolean.
type BoolType struct{}

// MappingType is mapping(Key => Value).
type MappingType struct {
	Key   Type
	Value Type
}

// ArrayType is a dynamic array T[]. Byte arrays (bytes, string) live in a
// separate cell chain; every other array is a dictionary index => element.
type ArrayType struct {
	Elem        Type
	IsByteArray bool
	Name        string // "bytes" or "string" for byte arrays
}

// Member is one named slot of a struct or tuple.
type Member struct {
	Name string
	Type Type
}

// StructType is a declared struct with members in declaration order.
type StructType struct {
	Name    string
	Members []Member
}

// TupleType is an anonymous ordered group of values.
type TupleType struct {
	Components []Type
}

// CellType is TvmCell.
type CellType struct{}

// AddressType is a standard internal message address.
type AddressType struct{}

// OtherType is any type the backend has no wire policy for.
type OtherType struct {
	Name string
}

func (*IntegerType) Category() Category { return CategoryInteger }
func (*BoolType) Category() Category    { return CategoryBool }
func (*MappingType) Category() Category { return CategoryMapping }
func (*ArrayType) Category() Category   { return CategoryArray }
func (*StructType) Category() Category  { return CategoryStruct }
func (*TupleType) Category() Category   { return CategoryTuple }
func (*CellType) Category() Category    { return CategoryCell }
func (*AddressType) Category() Category { return CategoryAddress }
func (*OtherType) Category() Category   { return CategoryOther }

func (*IntegerType) isType() {}
func (*BoolType) isType()    {}
func (*MappingType) isType() {}
func (*ArrayType) isType()   {}
func (*StructType) isType()  {}
func (*TupleType) isType()   {}
func (*CellType) isType()    {}
func (*AddressType) isType() {}
func (*OtherType) isType()   {}

func (t *IntegerType) String() string {
	if t.Signed {
		return fmt.Sprintf("int%d", t.Bits)
	}
	return fmt.Sprintf("uint%d", t.Bits)
}

func (*BoolType) String() string { return "bool" }

func (t *MappingType) String() string {
	return fmt.Sprintf("mapping(%s => %s)", t.Key, t.Value)
}

func (t *ArrayType) String() string {
	if t.IsByteArray {
		if t.Name != "" {
			return t.Name
		}
		return "bytes"
	}
	return t.Elem.String() + "[]"
}

func (t *StructType) String() string { return "struct " + t.Name }

func (t *TupleType) String() string {
	parts := make([]string, len(t.Components))
	for i, c := range t.Components {
		parts[i] = c.String()
	}
	return "tuple(" + strings.Join(parts, ",") + ")"
}

func (*CellType) String() string    { return "TvmCell" }
func (*AddressType) String() string { return "address" }
func (t *OtherType) String() string { return t.Name }

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// Uint returns uint<bits>.
func Uint(bits int) *IntegerType { return &IntegerType{Bits: bits} }

// Int returns int<bits>.
func Int(bits int) *IntegerType { return &IntegerType{Bits: bits, Signed: true} }

// Bool returns the boolean type.
func Bool() *BoolType { return &BoolType{} }

// Cell returns TvmCell.
func Cell() *CellType { return &CellType{} }

// Address returns address.
func Address() *AddressType { return &AddressType{} }

// Mapping returns mapping(key => value).
func Mapping(key, value Type) *MappingType { return &MappingType{Key: key, Value: value} }

// Array returns elem[].
func Array(elem Type) *ArrayType { return &ArrayType{Elem: elem} }

// Bytes returns the byte array type.
func Bytes() *ArrayType { return &ArrayType{Elem: Uint(8), IsByteArray: true, Name: "bytes"} }

// String returns the string type (a byte array on the wire).
func String() *ArrayType { return &ArrayType{Elem: Uint(8), IsByteArray: true, Name: "string"} }

// Struct builds a struct type with members in declaration order.
func Struct(name string, members ...Member) *StructType {
	return &StructType{Name: name, Members: members}
}

// Tuple returns tuple(components...).
func Tuple(components ...Type) *TupleType { return &TupleType{Components: components} }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// IntegerKey reports the bit width of t when t is usable as a mapping key,
// i.e. an int<M>/uint<M> with M in [8, 256].
func IntegerKey(t Type) (int, bool) {
	it, ok := t.(*IntegerType)
	if !ok || it.Bits < 8 || it.Bits > 256 {
		return 0, false
	}
	return it.Bits, true
}

// IsUint32 reports whether t is exactly uint32.
func IsUint32(t Type) bool {
	it, ok := t.(*IntegerType)
	return ok && !it.Signed && it.Bits == 32
}

// Equal reports structural equality. Structs compare by name.
func Equal(a, b Type) bool {
	switch x := a.(type) {
	case *IntegerType:
		y, ok := b.(*IntegerType)
		return ok && *x == *y
	case *BoolType:
		_, ok := b.(*BoolType)
		return ok
	case *MappingType:
		y, ok := b.(*MappingType)
		return ok && Equal(x.Key, y.Key) && Equal(x.Value, y.Value)
	case *ArrayType:
		y, ok := b.(*ArrayType)
		if !ok || x.IsByteArray != y.IsByteArray {
			return false
		}
		return x.IsByteArray || Equal(x.Elem, y.Elem)
	case *StructType:
		y, ok := b.(*StructType)
		return ok && x.Name == y.Name
	case *TupleType:
		y, ok := b.(*TupleType)
		if !ok || len(x.Components) != len(y.Components) {
			return false
		}
		for i := range x.Components {
			if !Equal(x.Components[i], y.Components[i]) {
				return false
			}
		}
		return true
	case *CellType:
		_, ok := b.(*CellType)
		return ok
	case *AddressType:
		_, ok := b.(*AddressType)
		return ok
	case *OtherType:
		y, ok := b.(*OtherType)
		return ok && x.Name == y.Name
	}
	return false
}

// CanonicalName is the ABI spelling used in function signatures.
func CanonicalName(t Type) string {
	switch x := t.(type) {
	case *StructType:
		parts := make([]string, len(x.Members))
		for i, m := range x.Members {
			parts[i] = CanonicalName(m.Type)
		}
		return "(" + strings.Join(parts, ",") + ")"
	case *TupleType:
		parts := make([]string, len(x.Components))
		for i, c := range x.Components {
			parts[i] = CanonicalName(c)
		}
		return "(" + strings.Join(parts, ",") + ")"
	case *MappingType:
		return fmt.Sprintf("map(%s,%s)", CanonicalName(x.Key), CanonicalName(x.Value))
	case *ArrayType:
		if x.IsByteArray {
			return "bytes"
		}
		return CanonicalName(x.Elem) + "[]"
	case *CellType:
		return "cell"
	default:
		return t.String()
	}
}

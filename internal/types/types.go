package types

import (
	"fmt"
	"strings"
)

// Kind enumerates the value categories the backend can type.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindVoid
	KindBool
	KindChar
	KindInt8
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat32
	KindFloat64
	KindDecimal
	KindString
	KindObject
	// KindClass is a locally defined or external reference type identified by name.
	KindClass
)

func (k Kind) String() string {
	if int(k) < len(primitives) && primitives[k].kind == k && primitives[k].lang != "" {
		return primitives[k].lang
	}
	switch k {
	case KindUnknown:
		return "unknown"
	case KindClass:
		return "class"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Type is a compact descriptor of an inferred or declared type.
// Name is only meaningful for KindClass.
type Type struct {
	Kind Kind
	Name string
}

var (
	Unknown = Type{}
	Void    = Type{Kind: KindVoid}
	Bool    = Type{Kind: KindBool}
	Int32   = Type{Kind: KindInt32}
	Int64   = Type{Kind: KindInt64}
	Float32 = Type{Kind: KindFloat32}
	Float64 = Type{Kind: KindFloat64}
	Decimal = Type{Kind: KindDecimal}
	String  = Type{Kind: KindString}
	Object  = Type{Kind: KindObject}
)

// Class builds a class type descriptor.
func Class(name string) Type {
	return Type{Kind: KindClass, Name: name}
}

func (t Type) Known() bool { return t.Kind != KindUnknown }

func (t Type) IsVoid() bool { return t.Kind == KindVoid }

func (t Type) String() string {
	if t.Kind == KindClass {
		return t.Name
	}
	return t.Kind.String()
}

// CLRName returns the fully qualified runtime name ("System.Int32", or the class name).
func (t Type) CLRName() string {
	if t.Kind == KindClass {
		return t.Name
	}
	if p, ok := primitiveOf(t.Kind); ok {
		return "System." + p.clr
	}
	return ""
}

// IsNumeric reports whether k takes part in arithmetic promotion.
func (k Kind) IsNumeric() bool {
	switch k {
	case KindInt8, KindUint8, KindInt16, KindUint16, KindInt32, KindUint32,
		KindInt64, KindUint64, KindFloat32, KindFloat64, KindDecimal, KindChar:
		return true
	}
	return false
}

// IsIntegerLike reports kinds that travel as int32/int64 on the evaluation stack.
func (k Kind) IsIntegerLike() bool {
	switch k {
	case KindBool, KindChar, KindInt8, KindUint8, KindInt16, KindUint16,
		KindInt32, KindUint32, KindInt64, KindUint64:
		return true
	}
	return false
}

func (k Kind) IsFloating() bool {
	return k == KindFloat32 || k == KindFloat64
}

// IsReference reports kinds represented by an object reference.
func (k Kind) IsReference() bool {
	return k == KindString || k == KindObject || k == KindClass
}

// Parse maps a language or runtime type name to a Type. Names that are not
// primitive become class types; the empty name is Unknown.
func Parse(name string) Type {
	name = strings.TrimSpace(name)
	if name == "" {
		return Unknown
	}
	if k, ok := Lookup(name); ok {
		return Type{Kind: k}
	}
	return Class(name)
}

package types

import "strings"

// GeneratedNamespace hosts type names that are neither primitive nor qualified.
const GeneratedNamespace = "CilForge.Generated"

type primitive struct {
	kind    Kind
	lang    string   // canonical language spelling
	aliases []string // extra language spellings
	clr     string   // runtime name without the System. prefix
	il      string   // ilasm keyword
	sig     byte     // ELEMENT_TYPE_* code
}

// Indexed by Kind.
var primitives = [...]primitive{
	KindUnknown: {},
	KindVoid:    {kind: KindVoid, lang: "void", clr: "Void", il: "void", sig: 0x01},
	KindBool:    {kind: KindBool, lang: "bool", aliases: []string{"boolean"}, clr: "Boolean", il: "bool", sig: 0x02},
	KindChar:    {kind: KindChar, lang: "char", clr: "Char", il: "char", sig: 0x03},
	KindInt8:    {kind: KindInt8, lang: "sbyte", aliases: []string{"int8"}, clr: "SByte", il: "int8", sig: 0x04},
	KindUint8:   {kind: KindUint8, lang: "byte", aliases: []string{"uint8"}, clr: "Byte", il: "uint8", sig: 0x05},
	KindInt16:   {kind: KindInt16, lang: "short", aliases: []string{"int16"}, clr: "Int16", il: "int16", sig: 0x06},
	KindUint16:  {kind: KindUint16, lang: "ushort", aliases: []string{"uint16"}, clr: "UInt16", il: "uint16", sig: 0x07},
	KindInt32:   {kind: KindInt32, lang: "int", aliases: []string{"int32"}, clr: "Int32", il: "int32", sig: 0x08},
	KindUint32:  {kind: KindUint32, lang: "uint", aliases: []string{"uint32"}, clr: "UInt32", il: "uint32", sig: 0x09},
	KindInt64:   {kind: KindInt64, lang: "long", aliases: []string{"int64"}, clr: "Int64", il: "int64", sig: 0x0a},
	KindUint64:  {kind: KindUint64, lang: "ulong", aliases: []string{"uint64"}, clr: "UInt64", il: "uint64", sig: 0x0b},
	KindFloat32: {kind: KindFloat32, lang: "float", aliases: []string{"float32"}, clr: "Single", il: "float32", sig: 0x0c},
	KindFloat64: {kind: KindFloat64, lang: "double", aliases: []string{"float64"}, clr: "Double", il: "float64", sig: 0x0d},
	KindDecimal: {kind: KindDecimal, lang: "decimal", clr: "Decimal", il: "valuetype [System.Runtime]System.Decimal"},
	KindString:  {kind: KindString, lang: "string", clr: "String", il: "string", sig: 0x0e},
	KindObject:  {kind: KindObject, lang: "object", clr: "Object", il: "object", sig: 0x1c},
}

var byName = func() map[string]Kind {
	m := make(map[string]Kind, len(primitives)*3)
	for _, p := range primitives {
		if p.lang == "" {
			continue
		}
		m[p.lang] = p.kind
		for _, a := range p.aliases {
			m[a] = p.kind
		}
		m[p.clr] = p.kind
		m["System."+p.clr] = p.kind
	}
	return m
}()

func primitiveOf(k Kind) (primitive, bool) {
	if int(k) >= len(primitives) || primitives[k].lang == "" {
		return primitive{}, false
	}
	return primitives[k], true
}

// Lookup resolves a primitive by language name ("int"), runtime name ("Int32")
// or qualified runtime name ("System.Int32").
func Lookup(name string) (Kind, bool) {
	k, ok := byName[name]
	return k, ok
}

// Primitives returns the canonical language names of all primitive kinds.
func Primitives() []string {
	out := make([]string, 0, len(primitives))
	for _, p := range primitives {
		if p.lang != "" {
			out = append(out, p.lang)
		}
	}
	return out
}

// MapName maps a source-level type name to a (namespace, name) runtime pair.
// Unknown unqualified names land in GeneratedNamespace; qualified names are split
// at the last dot.
func MapName(name string) (namespace, typeName string) {
	name = strings.TrimSpace(name)
	if k, ok := Lookup(name); ok {
		return "System", primitives[k].clr
	}
	if name == "" {
		return "System", "Object"
	}
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[:i], name[i+1:]
	}
	return GeneratedNamespace, name
}

// LangName maps a runtime (namespace, name) pair back to the canonical language
// spelling. It is the inverse of MapName for every primitive.
func LangName(namespace, typeName string) (string, bool) {
	if namespace != "System" {
		return "", false
	}
	k, ok := Lookup(typeName)
	if !ok {
		return "", false
	}
	return primitives[k].lang, true
}

// ILName returns the ilasm spelling of a primitive kind.
func (k Kind) ILName() string {
	if p, ok := primitiveOf(k); ok {
		return p.il
	}
	return ""
}

// SigCode returns the ELEMENT_TYPE_* byte of a primitive, or 0 when the kind has
// no single-byte encoding (decimal, classes).
func (k Kind) SigCode() byte {
	if p, ok := primitiveOf(k); ok {
		return p.sig
	}
	return 0
}

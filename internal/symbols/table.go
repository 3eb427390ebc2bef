// Package symbols describes the external method surface as static data. The
// table replaces introspection of a live runtime: every type, method and
// signature the backend may call into is listed here.
package symbols

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed extern.toml
var defaultTable []byte

// TypeID indexes Table.types; 0 is invalid.
type TypeID uint32

// Method is one external method overload.
type Method struct {
	Name    string   `toml:"name"`
	Params  []string `toml:"params"`
	Returns string   `toml:"returns"`
	// Static defaults to true when omitted.
	Static *bool `toml:"static"`
	// Optional is the count of trailing parameters that may be omitted.
	Optional  int  `toml:"optional"`
	Generic   bool `toml:"generic"`
	Extension bool `toml:"extension"`
}

// IsStatic reports the calling convention; methods are static unless stated.
func (m Method) IsStatic() bool {
	return m.Static == nil || *m.Static
}

// Type is an external type and its known methods.
type Type struct {
	Assembly    string   `toml:"assembly"`
	Namespace   string   `toml:"namespace"`
	Name        string   `toml:"name"`
	DefaultCtor bool     `toml:"default_ctor"`
	Methods     []Method `toml:"methods"`
}

// QualifiedName is Namespace.Name.
func (t *Type) QualifiedName() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// Overloads returns the methods named name, in declaration order.
func (t *Type) Overloads(name string) []Method {
	var out []Method
	for _, m := range t.Methods {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// Builtin aliases a bare function name to an external type method.
type Builtin struct {
	Name   string `toml:"name"`
	Type   string `toml:"type"`
	Method string `toml:"method"`
}

type document struct {
	Builtins []Builtin `toml:"builtin"`
	Types    []Type    `toml:"type"`
}

// Table is the loaded symbol surface.
type Table struct {
	types    []Type // types[0] is the invalid sentinel
	index    map[string]TypeID
	short    map[string][]TypeID
	builtins map[string]Builtin
	digest   []byte
}

func newTable() *Table {
	return &Table{
		types:    []Type{{}},
		index:    make(map[string]TypeID),
		short:    make(map[string][]TypeID),
		builtins: make(map[string]Builtin),
	}
}

// Default returns a table holding only the embedded surface.
func Default() *Table {
	t := newTable()
	if err := t.Merge("extern.toml", defaultTable); err != nil {
		panic(fmt.Errorf("embedded symbol table: %w", err))
	}
	return t
}

// Load returns the embedded surface extended by the given TOML files.
func Load(paths ...string) (*Table, error) {
	t := Default()
	for _, p := range paths {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read symbols %q: %w", p, err)
		}
		if err := t.Merge(p, data); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Merge decodes a TOML document into the table. A type that already exists
// gains the new methods; builtins are replaced by name.
func (t *Table) Merge(name string, data []byte) error {
	var doc document
	meta, err := toml.Decode(string(data), &doc)
	if err != nil {
		return fmt.Errorf("parse symbols %s: %w", name, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("parse symbols %s: unknown keys %s", name, strings.Join(keys, ", "))
	}
	for i := range doc.Types {
		typ := doc.Types[i]
		if typ.Name == "" {
			return fmt.Errorf("parse symbols %s: type #%d has no name", name, i)
		}
		if typ.Assembly == "" {
			typ.Assembly = "System.Runtime"
		}
		t.addType(typ)
	}
	for _, b := range doc.Builtins {
		if b.Name == "" || b.Type == "" || b.Method == "" {
			return fmt.Errorf("parse symbols %s: incomplete builtin %q", name, b.Name)
		}
		t.builtins[b.Name] = b
	}
	h := sha256.New()
	h.Write(t.digest)
	h.Write(data)
	t.digest = h.Sum(nil)
	return nil
}

func (t *Table) addType(typ Type) {
	q := typ.QualifiedName()
	if id, ok := t.index[q]; ok {
		existing := &t.types[id]
		existing.Methods = append(existing.Methods, typ.Methods...)
		existing.DefaultCtor = existing.DefaultCtor || typ.DefaultCtor
		return
	}
	id := TypeID(len(t.types))
	t.types = append(t.types, typ)
	t.index[q] = id
	t.short[typ.Name] = append(t.short[typ.Name], id)
}

// Type returns the type for id.
func (t *Table) Type(id TypeID) *Type {
	if id == 0 || int(id) >= len(t.types) {
		return nil
	}
	return &t.types[id]
}

// LookupType resolves a qualified ("System.Console") or short ("Console")
// name. Short names resolve only when unambiguous.
func (t *Table) LookupType(name string) (*Type, bool) {
	if t == nil {
		return nil, false
	}
	if id, ok := t.index[name]; ok {
		return &t.types[id], true
	}
	if ids := t.short[name]; len(ids) == 1 {
		return &t.types[ids[0]], true
	}
	return nil, false
}

// Builtin resolves a bare function alias.
func (t *Table) Builtin(name string) (Builtin, bool) {
	if t == nil {
		return Builtin{}, false
	}
	b, ok := t.builtins[name]
	return b, ok
}

// Extensions returns every method named name that is marked as an extension,
// with its declaring type, in table order.
func (t *Table) Extensions(name string) []Member {
	if t == nil {
		return nil
	}
	var out []Member
	for i := 1; i < len(t.types); i++ {
		typ := &t.types[i]
		for _, m := range typ.Methods {
			if m.Extension && m.Name == name {
				out = append(out, Member{Type: typ, Method: m})
			}
		}
	}
	return out
}

// Member pairs a method with its declaring type.
type Member struct {
	Type   *Type
	Method Method
}

// Types lists qualified names of all known types, sorted.
func (t *Table) Types() []string {
	out := make([]string, 0, len(t.index))
	for q := range t.index {
		out = append(out, q)
	}
	sort.Strings(out)
	return out
}

// Fingerprint identifies the table content; it changes whenever a merged
// document changes.
func (t *Table) Fingerprint() string {
	return hex.EncodeToString(t.digest)
}

// Package il holds the IL metamodel: declarations produced by lowering and the
// flat instruction form consumed by the emitters.
package il

import (
	"fmt"
	"strconv"
	"strings"

	"cilforge/internal/ast"
	"cilforge/internal/types"
)

// Version is a four-part assembly version.
type Version struct {
	Major, Minor, Build, Revision uint16
}

// ParseVersion accepts "a", "a.b", "a.b.c" or "a.b.c.d"; missing parts are zero.
func ParseVersion(s string) (Version, error) {
	var v Version
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{Major: 1}, nil
	}
	parts := strings.Split(s, ".")
	if len(parts) > 4 {
		return v, fmt.Errorf("invalid version %q", s)
	}
	dst := []*uint16{&v.Major, &v.Minor, &v.Build, &v.Revision}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		*dst[i] = uint16(n)
	}
	return v, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

// ILString renders the ilasm form "a:b:c:d".
func (v Version) ILString() string {
	return fmt.Sprintf("%d:%d:%d:%d", v.Major, v.Minor, v.Build, v.Revision)
}

// AssemblyRef is an external assembly reference.
type AssemblyRef struct {
	Name           string
	Version        Version
	PublicKeyToken []byte
}

// AssemblyDeclaration is the root of the metamodel.
type AssemblyDeclaration struct {
	Name       string
	Version    Version
	ExternRefs []AssemblyRef
	Module     *ModuleDeclaration
}

type ModuleDeclaration struct {
	FileName  string
	Classes   []*ClassDefinition
	Functions []*MethodDefinition
}

// Visibility mirrors the member access flags the emitters understand.
type Visibility uint8

const (
	VisPublic Visibility = iota
	VisPrivate
	VisAssembly
)

func (v Visibility) String() string {
	switch v {
	case VisPrivate:
		return "private"
	case VisAssembly:
		return "assembly"
	default:
		return "public"
	}
}

type ClassDefinition struct {
	Name       string
	Namespace  string
	Visibility Visibility
	// Assembly is a non-owning back-reference.
	Assembly *AssemblyDeclaration
	Fields   []*FieldDefinition
	Methods  []*MethodDefinition
}

// FullName is Namespace.Name, or Name when no namespace is set.
func (c *ClassDefinition) FullName() string {
	if c.Namespace == "" {
		return c.Name
	}
	return c.Namespace + "." + c.Name
}

type FieldDefinition struct {
	Name       string
	Type       TypeReference
	Parent     *ClassDefinition
	Static     bool
	Visibility Visibility
}

// CallingConvention flags of a method signature.
type CallingConvention uint8

const (
	CallDefault CallingConvention = 0x00
	CallHasThis CallingConvention = 0x20
)

type InOutFlag uint8

const (
	ParamIn InOutFlag = iota
	ParamOut
)

type ParameterSignature struct {
	Name  string
	Type  TypeReference
	InOut InOutFlag
}

type MethodSignature struct {
	CallConv CallingConvention
	Return   TypeReference
	Params   []ParameterSignature
}

// MethodDefinition carries the still-unlowered body; emitters lower it
// statement by statement.
type MethodDefinition struct {
	Name       string
	Static     bool
	EntryPoint bool
	Visibility Visibility
	Signature  MethodSignature
	Body       []*ast.Stmt
	Parent     *ClassDefinition
}

// TypeReference is a namespace-qualified type name.
type TypeReference struct {
	Namespace string
	Name      string
}

// RefOf maps a source-level type name to a TypeReference.
func RefOf(name string) TypeReference {
	ns, n := types.MapName(name)
	return TypeReference{Namespace: ns, Name: n}
}

func (r TypeReference) FullName() string {
	if r.Namespace == "" {
		return r.Name
	}
	return r.Namespace + "." + r.Name
}

// Type resolves the reference to a types.Type. Generated classes are
// identified by their short name, every other class by its full name.
func (r TypeReference) Type() types.Type {
	if r.Name == "" {
		return types.Unknown
	}
	if r.Namespace == "System" {
		if k, ok := types.Lookup(r.Name); ok {
			return types.Type{Kind: k}
		}
	}
	if r.Namespace == types.GeneratedNamespace || r.Namespace == "" {
		return types.Class(r.Name)
	}
	return types.Class(r.FullName())
}

func (r TypeReference) IsVoid() bool {
	return r.Namespace == "System" && r.Name == "Void"
}

// Arity is the number of values a method with this return type leaves on the
// stack when it returns.
func (r TypeReference) Arity() int {
	if r.IsVoid() || r.Name == "" {
		return 0
	}
	return 1
}

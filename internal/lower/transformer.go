// Package lower turns the input syntax tree into the IL metamodel and lowers
// statement bodies into flat instruction sequences.
package lower

import (
	"encoding/hex"
	"fmt"
	"strings"

	"cilforge/internal/ast"
	"cilforge/internal/diag"
	"cilforge/internal/il"
	"cilforge/internal/symbols"
	"cilforge/internal/types"
)

// EntryPointName is the user function wrapped by the synthesized entry point.
const EntryPointName = "main"

// FrameworkToken is the public key token of the runtime reference assemblies.
var FrameworkToken = []byte{0xb0, 0x3f, 0x5f, 0x7f, 0x11, 0xd5, 0x0a, 0x3a}

// FrameworkVersion pins the fixed assembly references.
var FrameworkVersion = il.Version{Major: 8}

// StandardRefs are always referenced: core types and the console.
func StandardRefs() []il.AssemblyRef {
	return []il.AssemblyRef{
		{Name: "System.Runtime", Version: FrameworkVersion, PublicKeyToken: FrameworkToken},
		{Name: "System.Console", Version: FrameworkVersion, PublicKeyToken: FrameworkToken},
	}
}

// Transformer lowers one assembly. Label numbering is scoped to the instance,
// so two fresh transformers produce identical output for the same input.
type Transformer struct {
	syms   *symbols.Table
	scope  *Scope
	rep    diag.Reporter
	unit   string
	labels int
}

// New creates a transformer resolving external calls against syms; a nil
// table means the embedded default surface.
func New(syms *symbols.Table) *Transformer {
	if syms == nil {
		syms = symbols.Default()
	}
	return &Transformer{syms: syms, scope: NewScope(nil), rep: diag.NopReporter{}}
}

// WithReporter routes lowering diagnostics to r.
func (t *Transformer) WithReporter(r diag.Reporter) *Transformer {
	if r != nil {
		t.rep = r
	}
	return t
}

// Symbols returns the external symbol table in use.
func (t *Transformer) Symbols() *symbols.Table { return t.syms }

// Scope returns the declarations bound by Transform or Bind.
func (t *Transformer) Scope() *Scope { return t.scope }

// Bind makes decl's functions and classes visible to statement lowering.
// Transform calls it; emitters that receive a finished metamodel call it
// themselves.
func (t *Transformer) Bind(decl *il.AssemblyDeclaration) {
	t.scope = NewScope(decl)
	if decl != nil {
		t.unit = decl.Name
	}
	for _, name := range t.scope.Collisions() {
		diag.ReportWarning(t.rep, diag.LowNameCollision, diag.At(t.unit, name),
			fmt.Sprintf("'%s' is declared more than once; the first declaration is used", name)).Emit()
	}
}

// Transform builds the metamodel for a. Bodies stay as syntax; they are
// lowered by the emitters through GenerateStatement.
func (t *Transformer) Transform(a *ast.Assembly) (*il.AssemblyDeclaration, error) {
	if a == nil {
		return nil, fmt.Errorf("nil assembly")
	}
	name := a.Name
	if name == "" {
		name = "DefaultAssembly"
	}
	version, err := il.ParseVersion(a.Version)
	if err != nil {
		return nil, fmt.Errorf("assembly %s: %w", name, err)
	}
	refs, err := externRefs(a.Refs)
	if err != nil {
		return nil, fmt.Errorf("assembly %s: %w", name, err)
	}
	decl := &il.AssemblyDeclaration{
		Name:       name,
		Version:    version,
		ExternRefs: refs,
	}
	mod := &il.ModuleDeclaration{FileName: a.Module.FileName}
	if mod.FileName == "" {
		mod.FileName = name + ".dll"
	}
	decl.Module = mod

	for _, c := range a.Module.Classes {
		if c == nil {
			continue
		}
		mod.Classes = append(mod.Classes, t.transformClass(decl, c))
	}
	for _, f := range a.Module.Functions {
		if f == nil {
			continue
		}
		m := transformFunction(f, nil)
		m.Static = true
		m.Signature.CallConv = il.CallDefault
		m.EntryPoint = f.Name == EntryPointName
		mod.Functions = append(mod.Functions, m)
	}
	t.Bind(decl)
	return decl, nil
}

// externRefs merges the fixed references with the ones the tree declares;
// the fixed ones win on name clashes.
func externRefs(extra []ast.AssemblyRef) ([]il.AssemblyRef, error) {
	refs := StandardRefs()
	seen := make(map[string]bool, len(refs)+len(extra))
	for _, r := range refs {
		seen[r.Name] = true
	}
	for _, r := range extra {
		if r.Name == "" || seen[r.Name] {
			continue
		}
		v, err := il.ParseVersion(r.Version)
		if err != nil {
			return nil, fmt.Errorf("reference %s: %w", r.Name, err)
		}
		var token []byte
		if r.PublicKeyToken != "" {
			token, err = hex.DecodeString(strings.TrimSpace(r.PublicKeyToken))
			if err != nil {
				return nil, fmt.Errorf("reference %s: public key token: %w", r.Name, err)
			}
		}
		seen[r.Name] = true
		refs = append(refs, il.AssemblyRef{Name: r.Name, Version: v, PublicKeyToken: token})
	}
	return refs, nil
}

func (t *Transformer) transformClass(decl *il.AssemblyDeclaration, c *ast.Class) *il.ClassDefinition {
	ns := c.Namespace
	if ns == "" {
		ns = types.GeneratedNamespace
	}
	cls := &il.ClassDefinition{
		Name:       c.Name,
		Namespace:  ns,
		Visibility: il.VisPublic,
		Assembly:   decl,
	}
	for _, f := range c.Fields {
		if f == nil {
			continue
		}
		typ := f.Type
		if typ == "" {
			typ = "object"
		}
		cls.Fields = append(cls.Fields, &il.FieldDefinition{
			Name:       f.Name,
			Type:       il.RefOf(typ),
			Parent:     cls,
			Static:     f.Static,
			Visibility: il.VisPublic,
		})
	}
	for _, m := range c.Methods {
		if m == nil {
			continue
		}
		cls.Methods = append(cls.Methods, transformFunction(m, cls))
	}
	return cls
}

func transformFunction(f *ast.Function, parent *il.ClassDefinition) *il.MethodDefinition {
	ret := f.ReturnType
	if ret == "" {
		ret = "void"
	}
	m := &il.MethodDefinition{
		Name:       f.Name,
		Static:     parent == nil || f.Static,
		Visibility: il.VisPublic,
		Body:       f.Body,
		Parent:     parent,
		Signature: il.MethodSignature{
			CallConv: il.CallDefault,
			Return:   il.RefOf(ret),
		},
	}
	if !m.Static {
		m.Signature.CallConv = il.CallHasThis
	}
	for _, p := range f.Params {
		if p == nil {
			continue
		}
		typ := p.Type
		if typ == "" {
			typ = "object"
		}
		inout := il.ParamIn
		if p.Out {
			inout = il.ParamOut
		}
		m.Signature.Params = append(m.Signature.Params, il.ParameterSignature{
			Name:  p.Name,
			Type:  il.RefOf(typ),
			InOut: inout,
		})
	}
	return m
}

func (t *Transformer) nextLabel(prefix string) string {
	l := fmt.Sprintf("IL_%s_%d", prefix, t.labels)
	t.labels++
	return l
}

func (t *Transformer) warn(ctx *MethodContext, code diag.Code, msg string) {
	loc := diag.At(t.unit, "")
	if ctx != nil {
		loc = diag.At(ctx.Unit, ctx.Method).Stmt(ctx.Statement)
	}
	diag.ReportWarning(t.rep, code, loc, msg).Emit()
}

// Package pe writes runnable CLI executables directly: metadata tables,
// method bodies and the PE/COFF container, without an external assembler.
//
// Construction follows the row order the metadata tables require. Classes
// and their constructors come first, then the Program type with every
// top-level function, then the synthesized entry point. Row numbers of all
// types, fields and functions are planned before any body is lowered, so
// calls and field accesses can target rows that are not written yet.
package pe

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"fortio.org/safecast"

	"cilforge/internal/diag"
	"cilforge/internal/il"
	"cilforge/internal/lower"
	"cilforge/internal/metadata"
	"cilforge/internal/symbols"
	"cilforge/internal/trace"
	"cilforge/internal/types"
)

const (
	programName = "Program"
	entryName   = "Main"
	ctorName    = ".ctor"
	runtimeAsm  = "System.Runtime"
	consoleAsm  = "System.Console"
)

const (
	classFlags   = metadata.TypeAttrPublic | metadata.TypeAttrBeforeFieldInit
	programFlags = classFlags | metadata.TypeAttrAbstract | metadata.TypeAttrSealed
	staticFlags  = metadata.MethodAttrPublic | metadata.MethodAttrStatic | metadata.MethodAttrHideBySig
	ctorFlags    = metadata.MethodAttrPublic | metadata.MethodAttrHideBySig |
		metadata.MethodAttrSpecialName | metadata.MethodAttrRTSpecialName
)

// Options configures one emission.
type Options struct {
	// Transformer lowers bodies. When nil a fresh one is created from Symbols.
	Transformer *lower.Transformer
	Symbols     *symbols.Table
	Reporter    diag.Reporter
	Tracer      trace.Tracer
	// TraceParent is the span the unit span hangs off, 0 for a root.
	TraceParent uint64
	// Optimize and DebugInfo are accepted from configuration and ignored.
	Optimize  bool
	DebugInfo bool
}

// Image is a complete executable held in memory.
type Image struct {
	Bytes      []byte
	EntryPoint metadata.Token
	MVID       [16]byte
	// Methods counts the MethodDef rows, entry point included.
	Methods int
}

type classInfo struct {
	def        *il.ClassDefinition
	token      metadata.Token // TypeDef
	ctor       metadata.Token // MethodDef
	firstField uint32
	fields     []*fieldInfo
}

func (c *classInfo) field(name string) (*fieldInfo, bool) {
	for _, f := range c.fields {
		if f.def.Name == name {
			return f, true
		}
	}
	return nil, false
}

type fieldInfo struct {
	def   *il.FieldDefinition
	owner *classInfo
	token metadata.Token
	typ   types.Type
}

type funcInfo struct {
	def   *il.MethodDefinition
	token metadata.Token
}

// Emitter holds the state of one emission. It is not reused.
type Emitter struct {
	decl   *il.AssemblyDeclaration
	tr     *lower.Transformer
	scope  *lower.Scope
	syms   *symbols.Table
	rep    diag.Reporter
	tracer trace.Tracer
	span   *trace.Span

	b    *metadata.Builder
	refs *metadata.RefCache

	object     metadata.Token
	objectCtor metadata.Token

	classes []*classInfo
	byDef   map[*il.ClassDefinition]*classInfo
	funcs   []*funcInfo
	byName  map[string]*funcInfo

	bodies []byte
	err    error
}

func newEmitter(decl *il.AssemblyDeclaration, opt Options) *Emitter {
	rep := opt.Reporter
	if rep == nil {
		rep = diag.NopReporter{}
	}
	tracer := opt.Tracer
	if tracer == nil {
		tracer = trace.Nop
	}
	tr := opt.Transformer
	if tr == nil {
		tr = lower.New(opt.Symbols).WithReporter(rep)
		tr.Bind(decl)
	}
	b := metadata.NewBuilder()
	return &Emitter{
		decl:   decl,
		tr:     tr,
		scope:  tr.Scope(),
		syms:   tr.Symbols(),
		rep:    rep,
		tracer: tracer,
		b:      b,
		refs:   metadata.NewRefCache(b),
		byDef:  make(map[*il.ClassDefinition]*classInfo),
		byName: make(map[string]*funcInfo),
	}
}

// Build produces the image for decl in memory. Any failure, including a
// panic inside construction, is returned as an error and no image.
func Build(decl *il.AssemblyDeclaration, opt Options) (img *Image, err error) {
	if decl == nil || decl.Module == nil {
		return nil, errors.New("pe: assembly without module")
	}
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("pe: emitting %s: %v", decl.Name, r)
		}
	}()
	e := newEmitter(decl, opt)
	e.span = trace.BeginUnit(e.tracer, decl.Name, "pe", opt.TraceParent)
	defer e.span.End("")

	img, err = e.build()
	if err != nil {
		return nil, fmt.Errorf("pe: %s: %w", decl.Name, err)
	}
	return img, nil
}

func (e *Emitter) build() (*Image, error) {
	e.defineModule()
	if err := e.coreRefs(); err != nil {
		return nil, err
	}
	e.plan()
	if err := e.defineClasses(); err != nil {
		return nil, err
	}
	if err := e.defineFunctions(); err != nil {
		return nil, err
	}
	entry, err := e.defineEntryPoint()
	if err != nil {
		return nil, err
	}
	return e.finish(entry)
}

func (e *Emitter) fail(err error) {
	if err != nil && e.err == nil {
		e.err = err
	}
}

// row narrows a slice position to a table row number.
func (e *Emitter) row(n int) uint32 {
	v, err := safecast.Conv[uint32](n)
	e.fail(err)
	return v
}

func (e *Emitter) warn(code diag.Code, loc diag.Location, msg string) {
	diag.ReportWarning(e.rep, code, loc, msg).Emit()
	e.span.Point(trace.ScopeMethod, code.ID(), loc.String()+": "+msg)
}

// defineModule writes the module row, the <Module> type, the declared
// assembly references and the assembly row. The MVID is patched in finish.
func (e *Emitter) defineModule() {
	e.b.AddModule(e.decl.Module.FileName, [16]byte{})
	e.b.AddTypeDef(0, "", "<Module>", 0, 1, 1)
	for _, r := range e.decl.ExternRefs {
		e.refs.Assembly(r.Name, metadata.Version(r.Version), r.PublicKeyToken)
	}
	e.b.AddAssembly(e.decl.Name, metadata.Version(e.decl.Version))
}

// coreRefs caches the external types nearly every image touches.
func (e *Emitter) coreRefs() error {
	rt := e.assemblyRef(runtimeAsm)
	e.object = e.refs.Type(rt, "System", "Object")
	sig, err := metadata.MethodSig(true, metadata.Prim(metadata.ElemVoid), nil)
	if err != nil {
		return err
	}
	e.objectCtor = e.refs.Member(e.object, ctorName, sig)
	e.refs.Type(e.assemblyRef(consoleAsm), "System", "Console")
	e.refs.Type(rt, "System", "Int32")
	return nil
}

// assemblyRef returns the reference row for name, adding one on first use.
// Framework assemblies get the pinned version and token.
func (e *Emitter) assemblyRef(name string) metadata.Token {
	if name == "" {
		name = runtimeAsm
	}
	if t, ok := e.refs.LookupAssembly(name); ok {
		return t
	}
	var (
		v     metadata.Version
		token []byte
	)
	if name == "System" || strings.HasPrefix(name, "System.") {
		v, token = metadata.Version(lower.FrameworkVersion), lower.FrameworkToken
	}
	return e.refs.Assembly(name, v, token)
}

// plan assigns TypeDef, Field and MethodDef rows. Duplicate names were
// already reported by the transformer; only the first declaration is
// emitted.
func (e *Emitter) plan() {
	mod := e.decl.Module
	for _, c := range mod.Classes {
		if bound, ok := e.scope.Class(c.Name); !ok || bound != c {
			continue
		}
		e.classes = append(e.classes, &classInfo{def: c})
	}
	field := uint32(1)
	for i, ci := range e.classes {
		ci.token = metadata.MakeToken(metadata.TableTypeDef, e.row(i+2))
		ci.ctor = metadata.MakeToken(metadata.TableMethodDef, e.row(i+1))
		ci.firstField = field
		for _, f := range ci.def.Fields {
			ci.fields = append(ci.fields, &fieldInfo{
				def:   f,
				owner: ci,
				token: metadata.MakeToken(metadata.TableField, field),
				typ:   f.Type.Type(),
			})
			field++
		}
		e.byDef[ci.def] = ci
	}
	next := len(e.classes) + 1
	for _, f := range e.scope.Functions() {
		if bound, ok := e.scope.Function(f.Name); !ok || bound != f {
			continue
		}
		fi := &funcInfo{def: f, token: metadata.MakeToken(metadata.TableMethodDef, e.row(next))}
		e.funcs = append(e.funcs, fi)
		e.byName[f.Name] = fi
		next++
	}
}

func (e *Emitter) classOf(t types.Type) (*classInfo, bool) {
	c, ok := e.scope.ClassOf(t)
	if !ok {
		return nil, false
	}
	ci, ok := e.byDef[c]
	return ci, ok
}

func (e *Emitter) defineClasses() error {
	for _, ci := range e.classes {
		c := ci.def
		flags := classFlags
		if c.Visibility != il.VisPublic {
			flags &^= metadata.TypeAttrPublic
		}
		e.b.AddTypeDef(flags, c.Namespace, c.Name, e.object, ci.firstField, ci.ctor.Row())
		for _, f := range ci.fields {
			sig, err := metadata.FieldSig(e.sigType(f.typ))
			if err != nil {
				return fmt.Errorf("field %s.%s: %w", c.Name, f.def.Name, err)
			}
			attrs := metadata.FieldAttrPublic
			if f.def.Static {
				attrs |= metadata.FieldAttrStatic
			}
			e.b.AddField(attrs, f.def.Name, sig)
		}
		for _, m := range c.Methods {
			e.warn(diag.EmitClassMethodSkipped, diag.At(e.decl.Name, c.Name+"::"+m.Name),
				"class methods are only written to the IL listing")
		}
		rva, err := e.addBody(e.ctorBody(ci), 2, 0)
		if err != nil {
			return fmt.Errorf("constructor of %s: %w", c.Name, err)
		}
		sig, err := metadata.MethodSig(true, metadata.Prim(metadata.ElemVoid), nil)
		if err != nil {
			return err
		}
		e.b.AddMethodDef(rva, 0, ctorFlags, ctorName, sig, e.b.NextRow(metadata.TableParam))
	}
	return nil
}

// ctorBody calls the base constructor and stores a fresh instance into every
// instance field typed with a local class. Fields whose class would lead
// back to the class being constructed are left null.
func (e *Emitter) ctorBody(ci *classInfo) []byte {
	enc := newEncoder()
	e.fail(enc.ldarg(0))
	enc.token(opCall, e.objectCtor)
	for _, f := range ci.fields {
		if f.def.Static {
			continue
		}
		nested, ok := e.classOf(f.typ)
		if !ok || e.reaches(nested, ci, map[*classInfo]bool{}) {
			continue
		}
		e.fail(enc.ldarg(0))
		enc.token(opNewobj, nested.ctor)
		enc.token(opStfld, f.token)
	}
	enc.op(opRet)
	return enc.code
}

// reaches reports whether constructing from eventually constructs target.
func (e *Emitter) reaches(from, target *classInfo, seen map[*classInfo]bool) bool {
	if from == target {
		return true
	}
	if seen[from] {
		return false
	}
	seen[from] = true
	for _, f := range from.fields {
		if f.def.Static {
			continue
		}
		if next, ok := e.classOf(f.typ); ok && e.reaches(next, target, seen) {
			return true
		}
	}
	return false
}

// defineFunctions lowers every function body, then numbers parameters
// across all of them, then writes the MethodDef rows.
func (e *Emitter) defineFunctions() error {
	first := e.row(len(e.classes) + 1)
	e.b.AddTypeDef(programFlags, "", programName, e.object, e.b.NextRow(metadata.TableField), first)

	rvas := make([]uint32, len(e.funcs))
	for i, fi := range e.funcs {
		rva, err := e.methodBody(fi.def)
		if err != nil {
			return err
		}
		rvas[i] = rva
	}
	params := make([]uint32, len(e.funcs))
	for i, fi := range e.funcs {
		params[i] = e.b.NextRow(metadata.TableParam)
		for j, p := range fi.def.Signature.Params {
			var flags uint16
			if p.InOut == il.ParamOut {
				flags = metadata.ParamAttrOut
			}
			seq, err := safecast.Conv[uint16](j + 1)
			if err != nil {
				return fmt.Errorf("function %s: too many parameters", fi.def.Name)
			}
			e.b.AddParam(flags, seq, p.Name)
		}
	}
	for i, fi := range e.funcs {
		sig, err := e.methodSig(fi.def)
		if err != nil {
			return fmt.Errorf("function %s: %w", fi.def.Name, err)
		}
		e.b.AddMethodDef(rvas[i], 0, staticFlags, fi.def.Name, sig, params[i])
	}
	return nil
}

func (e *Emitter) methodSig(m *il.MethodDefinition) ([]byte, error) {
	params := make([]metadata.SigType, len(m.Signature.Params))
	for i, p := range m.Signature.Params {
		params[i] = e.sigType(p.Type.Type())
	}
	return metadata.MethodSig(!m.Static, e.returnSig(m.Signature.Return), params)
}

func (e *Emitter) returnSig(r il.TypeReference) metadata.SigType {
	if r.Arity() == 0 {
		return metadata.Prim(metadata.ElemVoid)
	}
	return e.sigType(r.Type())
}

// addBody appends a method body and returns its RVA.
func (e *Emitter) addBody(code []byte, maxStack int, locals metadata.Token) (uint32, error) {
	bodies, at, err := appendBody(e.bodies, code, maxStack, locals)
	if err != nil {
		return 0, err
	}
	e.bodies = bodies
	off, err := safecast.Conv[uint32](at)
	if err != nil {
		return 0, err
	}
	return bodiesRVA + off, nil
}

func (e *Emitter) finish(entry metadata.Token) (*Image, error) {
	if e.err != nil {
		return nil, e.err
	}
	mvid := e.mvid()
	if err := e.b.GUIDs.Set(1, mvid); err != nil {
		return nil, err
	}
	md, err := e.b.Serialize()
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	data, err := writeImage(e.bodies, md, entry)
	if err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	return &Image{
		Bytes:      data,
		EntryPoint: entry,
		MVID:       mvid,
		Methods:    e.b.RowCount(metadata.TableMethodDef),
	}, nil
}

// mvid derives the module id from the image contents so equal inputs give
// byte-identical output.
func (e *Emitter) mvid() [16]byte {
	h := sha256.New()
	h.Write([]byte(e.decl.Name))
	h.Write(e.bodies)
	h.Write(e.b.Strings.Bytes())
	h.Write(e.b.UserStrings.Bytes())
	h.Write(e.b.Blobs.Bytes())
	var g [16]byte
	copy(g[:], h.Sum(nil))
	g[6] = g[6]&0x0f | 0x40
	g[8] = g[8]&0x3f | 0x80
	return g
}

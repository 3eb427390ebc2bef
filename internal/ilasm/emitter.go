// Package ilasm renders the IL metamodel as an assembler listing. The
// listing is a diagnostic backend: it mirrors what the binary emitter builds
// but is never assembled by the toolchain itself.
package ilasm

import (
	"fmt"
	"strings"
	"time"

	"cilforge/internal/diag"
	"cilforge/internal/il"
	"cilforge/internal/lower"
	"cilforge/internal/symbols"
)

// ProgramClass hosts top-level functions.
const ProgramClass = "Program"

type Options struct {
	// Now stamps the header; nil means time.Now.
	Now func() time.Time
	// Transformer lowers bodies. When nil a fresh one is created from Symbols.
	Transformer *lower.Transformer
	Symbols     *symbols.Table
	Reporter    diag.Reporter
	IndentWidth int
}

type emitter struct {
	opt   Options
	tr    *lower.Transformer
	scope *lower.Scope
	syms  *symbols.Table
	rep   diag.Reporter
	decl  *il.AssemblyDeclaration
	w     *writer
}

// Emit returns the complete listing for decl.
func Emit(decl *il.AssemblyDeclaration, opt Options) (string, error) {
	if decl == nil {
		return "", fmt.Errorf("ilasm: nil assembly")
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	rep := opt.Reporter
	if rep == nil {
		rep = diag.NopReporter{}
	}
	tr := opt.Transformer
	if tr == nil {
		tr = lower.New(opt.Symbols).WithReporter(rep)
		tr.Bind(decl)
	}
	e := &emitter{
		opt:   opt,
		tr:    tr,
		scope: tr.Scope(),
		syms:  tr.Symbols(),
		rep:   rep,
		decl:  decl,
		w:     newWriter(opt.IndentWidth),
	}
	e.header()
	if decl.Module != nil {
		e.module(decl.Module)
	}
	return e.w.String(), nil
}

func (e *emitter) header() {
	e.w.line("// Generated IL for assembly: " + e.decl.Name)
	e.w.line("// Generated at: " + e.opt.Now().UTC().Format("2006-01-02 15:04:05") + " UTC")
	e.w.line("")
	for _, r := range e.decl.ExternRefs {
		e.w.open(".assembly extern " + r.Name)
		if len(r.PublicKeyToken) > 0 {
			e.w.line(".publickeytoken = (" + hexBytes(r.PublicKeyToken) + ")")
		}
		e.w.line(".ver " + r.Version.ILString())
		e.w.close()
		e.w.line("")
	}
	name := e.decl.Name
	if name == "" {
		name = "DefaultAssembly"
	}
	e.w.open(".assembly " + name)
	e.w.line(".ver " + e.decl.Version.ILString())
	e.w.close()
	e.w.line("")
}

func hexBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02X", c)
	}
	return strings.Join(parts, " ")
}

func (e *emitter) module(m *il.ModuleDeclaration) {
	e.w.line(".module " + m.FileName)
	e.w.line("")
	for _, c := range m.Classes {
		e.class(c)
	}
	if len(m.Functions) == 0 {
		return
	}
	e.w.open(".class public auto ansi abstract sealed beforefieldinit " + ProgramClass + " extends " + bareObject)
	for _, f := range m.Functions {
		e.method(f)
	}
	e.w.close()
}

const bareObject = "[System.Runtime]System.Object"

func (e *emitter) class(c *il.ClassDefinition) {
	e.w.open(fmt.Sprintf(".class %s auto ansi beforefieldinit %s extends %s", c.Visibility, c.FullName(), bareObject))
	for _, f := range c.Fields {
		static := ""
		if f.Static {
			static = " static"
		}
		e.w.line(fmt.Sprintf(".field %s%s %s %s", f.Visibility, static, e.refName(f.Type), f.Name))
	}
	if len(c.Fields) > 0 {
		e.w.line("")
	}
	e.ctor(c)
	for _, m := range c.Methods {
		e.method(m)
	}
	e.w.close()
	e.w.line("")
}

// ctor writes the default constructor: base call, then a fresh instance for
// every instance field typed with a local class.
func (e *emitter) ctor(c *il.ClassDefinition) {
	e.w.open(".method public hidebysig specialname rtspecialname instance void .ctor() cil managed")
	e.w.line(".maxstack 8")
	e.w.line("ldarg.0")
	e.w.line("call instance void " + bareObject + "::.ctor()")
	for _, f := range c.Fields {
		if f.Static {
			continue
		}
		nested, ok := e.scope.ClassOf(f.Type.Type())
		if !ok {
			continue
		}
		e.w.line("ldarg.0")
		e.w.line("newobj instance void " + nested.FullName() + "::.ctor()")
		e.w.line(fmt.Sprintf("stfld %s %s::%s", e.refName(f.Type), c.FullName(), f.Name))
	}
	e.w.line("ret")
	e.w.close()
	e.w.line("")
}

func (e *emitter) signature(m *il.MethodDefinition) string {
	params := make([]string, len(m.Signature.Params))
	for i, p := range m.Signature.Params {
		out := ""
		if p.InOut == il.ParamOut {
			out = "[out] "
		}
		params[i] = out + e.refName(p.Type) + " " + p.Name
	}
	return strings.Join(params, ", ")
}

func (e *emitter) method(m *il.MethodDefinition) {
	kind := "static"
	if !m.Static {
		kind = "hidebysig instance"
	}
	e.w.open(fmt.Sprintf(".method %s %s %s %s(%s) cil managed",
		m.Visibility, kind, e.refName(m.Signature.Return), m.Name, e.signature(m)))
	if m.EntryPoint {
		e.w.line(".entrypoint")
	}
	e.body(m)
	e.w.close()
	e.w.line("")
}

func (e *emitter) body(m *il.MethodDefinition) {
	ctx := e.tr.NewContext(m)
	seqs := make([]il.Sequence, 0, len(m.Body))
	for i, s := range m.Body {
		ctx.Statement = i
		seqs = append(seqs, e.tr.GenerateStatement(ctx, s))
	}
	ctx.Statement = -1

	e.w.line(".maxstack 8")
	locals := il.Locals(seqs)
	slots := make(map[string]int, len(locals))
	if len(locals) > 0 {
		decls := make([]string, len(locals))
		for i, name := range locals {
			slots[name] = i
			t, _ := ctx.Local(name)
			decls[i] = fmt.Sprintf("[%d] %s %s", i, e.typeName(t), name)
		}
		e.w.line(".locals init (" + strings.Join(decls, ", ") + ")")
	}

	b := &bodyWriter{e: e, ctx: ctx, slots: slots}
	var last il.Instr
	for _, seq := range seqs {
		for _, in := range seq.Instrs {
			b.instr(in)
			last = in
		}
	}
	if last.Kind != il.KindReturn {
		if !ctx.Return.IsVoid() {
			b.instr(il.DefaultValue(ctx.Return))
		}
		e.w.line("ret")
	}
}

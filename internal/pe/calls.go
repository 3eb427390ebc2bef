package pe

import (
	"fmt"
	"strings"

	"cilforge/internal/diag"
	"cilforge/internal/il"
	"cilforge/internal/metadata"
	"cilforge/internal/types"
)

const objectToken = "System.Object"

// tokenType maps a return or parameter token to a type; "" is unknown.
func tokenType(tok string) types.Type {
	name, _ := il.SplitTypeToken(tok)
	return types.Parse(name)
}

func (mb *methodBuilder) call(in il.Instr) error {
	if il.IsExtCall(in.Name) {
		return mb.extCall(in)
	}
	owner, name := il.SplitMember(in.Name)
	if owner == "" || owner == programName {
		if fi, ok := mb.function(name); ok {
			return mb.localCall(in, fi)
		}
	}
	mb.unresolvedCall(in, "unresolved call "+in.Name)
	return nil
}

// function finds a top-level function by name, falling back to the first
// function whose name contains it.
func (mb *methodBuilder) function(name string) (*funcInfo, bool) {
	if fi, ok := mb.e.byName[name]; ok {
		return fi, true
	}
	if name == "" {
		return nil, false
	}
	for _, fi := range mb.e.funcs {
		if strings.Contains(fi.def.Name, name) {
			mb.warn(diag.EmitFuzzyMethodMatch, fmt.Sprintf("call to %s bound to %s", name, fi.def.Name))
			return fi, true
		}
	}
	return nil, false
}

// localCall emits a call to a function of this module. The stack shape the
// call site was simulated with is kept even when the callee disagrees about
// returning a value.
func (mb *methodBuilder) localCall(in il.Instr, fi *funcInfo) error {
	sig := fi.def.Signature
	if n := len(sig.Params); n != in.Argc {
		mb.warn(diag.EmitArgCountMismatch, fmt.Sprintf("%s takes %d arguments, call passes %d", fi.def.Name, n, in.Argc))
	}
	mb.enc.token(opCall, fi.token)
	returns := sig.Return.Arity() > 0
	switch {
	case returns && in.Void:
		mb.enc.op(opPop)
	case !returns && !in.Void:
		mb.enc.op(opLdnull)
	case returns:
		mb.inf.top = sig.Return.Type()
	}
	return nil
}

// unresolvedCall consumes the arguments and, unless the call site expects
// nothing, pushes a default of the expected return type.
func (mb *methodBuilder) unresolvedCall(in il.Instr, msg string) {
	mb.warn(diag.EmitUnresolvedMethod, msg)
	for range in.Argc {
		mb.enc.op(opPop)
	}
	if !in.Void {
		mb.emitDefault(tokenType(in.Ret))
	}
}

// extParams picks the parameter tokens of an external call: the token's own
// list, else the symbol table's overload of matching arity, padded with
// object up to the argument count.
func (mb *methodBuilder) extParams(ext il.ExtCall, argc int) []string {
	want := argc
	if ext.Instance {
		want--
	}
	params := ext.Params
	if len(params) == 0 && want > 0 {
		if typ, ok := mb.e.syms.LookupType(ext.QualifiedType()); ok {
			for _, m := range typ.Overloads(ext.Method) {
				if len(m.Params) == want && m.IsStatic() != ext.Instance {
					params = m.Params
					break
				}
			}
		}
	}
	params = append([]string(nil), params...)
	for len(params) < want {
		params = append(params, objectToken)
	}
	return params
}

func (mb *methodBuilder) extCall(in il.Instr) error {
	ext, err := il.ParseExtCall(in.Name)
	if err != nil {
		mb.unresolvedCall(in, err.Error())
		return nil
	}
	params := mb.extParams(ext, in.Argc)
	if n := len(params) + boolInt(ext.Instance); n != in.Argc {
		mb.warn(diag.EmitArgCountMismatch,
			fmt.Sprintf("%s::%s takes %d arguments, call passes %d", ext.QualifiedType(), ext.Method, n, in.Argc))
	}
	sigs := make([]metadata.SigType, len(params))
	for i, p := range params {
		sigs[i] = mb.e.tokenSig(p)
	}
	ret := metadata.Prim(metadata.ElemVoid)
	if ext.Return != "System.Void" {
		ret = mb.e.tokenSig(ext.Return)
	}
	sig, err := metadata.MethodSig(ext.Instance, ret, sigs)
	if err != nil {
		return fmt.Errorf("signature of %s::%s: %w", ext.QualifiedType(), ext.Method, err)
	}
	parent := mb.e.refs.Type(mb.e.assemblyRef(ext.Asm), ext.Ns, ext.Type)
	op := opCall
	if in.Op == il.OpCallvirt {
		op = opCallvirt
	}
	mb.enc.token(op, mb.e.refs.Member(parent, ext.Method, sig))
	if !ret.IsVoid() {
		mb.inf.top = tokenType(ext.Return)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newobj constructs a local class through its planned constructor, or an
// external type through a parameterless constructor reference. Anything
// else pushes null.
func (mb *methodBuilder) newobj(name string) error {
	e := mb.e
	if c, ok := e.scope.Class(name); ok {
		if ci, ok := e.byDef[c]; ok {
			mb.enc.token(opNewobj, ci.ctor)
			mb.inf.top = types.Class(c.Name)
			return nil
		}
	}
	parent, ok := e.externalType(name)
	if !ok {
		mb.warn(diag.EmitUnresolvedCtor, "no constructor for "+name)
		mb.enc.op(opLdnull)
		return nil
	}
	sig, err := metadata.MethodSig(true, metadata.Prim(metadata.ElemVoid), nil)
	if err != nil {
		return err
	}
	mb.enc.token(opNewobj, e.refs.Member(parent, ctorName, sig))
	mb.inf.top = types.Class(name)
	return nil
}

// externalType returns a TypeRef for a type known to the symbol table or
// given by a namespace-qualified name.
func (e *Emitter) externalType(name string) (metadata.Token, bool) {
	if typ, ok := e.syms.LookupType(name); ok {
		return e.refs.Type(e.assemblyRef(typ.Assembly), typ.Namespace, typ.Name), true
	}
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return 0, false
	}
	return e.refs.Type(e.assemblyRef(runtimeAsm), name[:i], name[i+1:]), true
}

// sigType encodes a type for a signature. Unknown types become object.
func (e *Emitter) sigType(t types.Type) metadata.SigType {
	switch t.Kind {
	case types.KindDecimal:
		return metadata.ValueTypeOf(e.refs.Type(e.assemblyRef(runtimeAsm), "System", "Decimal"))
	case types.KindClass:
		if ci, ok := e.classOf(t); ok {
			return metadata.ClassOf(ci.token)
		}
		if ref, ok := e.externalType(t.Name); ok {
			return metadata.ClassOf(ref)
		}
		e.warn(diag.EmitUnresolvedType, diag.At(e.decl.Name, ""), "unknown type "+t.Name+" encoded as object")
		return metadata.Prim(metadata.ElemObject)
	}
	if code := t.Kind.SigCode(); code != 0 {
		return metadata.Prim(code)
	}
	return metadata.Prim(metadata.ElemObject)
}

// tokenSig encodes a type token; "Ns.Type@Asm" names a class in Asm.
func (e *Emitter) tokenSig(tok string) metadata.SigType {
	name, asm := il.SplitTypeToken(tok)
	t := types.Parse(name)
	if asm == "" || t.Kind != types.KindClass {
		return e.sigType(t)
	}
	ns, n := types.MapName(name)
	return metadata.ClassOf(e.refs.Type(e.assemblyRef(asm), ns, n))
}

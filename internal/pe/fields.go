package pe

import (
	"fmt"

	"cilforge/internal/diag"
	"cilforge/internal/il"
	"cilforge/internal/types"
)

// inference is the per-method knowledge used to pick field owners and type
// local slots. top describes the value pushed by the previous instruction
// only; lastLocal and lastParam live until the end of the statement.
type inference struct {
	top       types.Type
	lastLocal string
	lastParam string
	// locals records the first known type stored into each local; a class
	// type replaces an earlier non-class one.
	locals map[string]types.Type
}

func newInference() inference {
	return inference{locals: make(map[string]types.Type)}
}

// take returns and clears the type left by the previous instruction.
func (f *inference) take() types.Type {
	t := f.top
	f.top = types.Unknown
	return t
}

func (f *inference) statement() {
	f.top = types.Unknown
	f.lastLocal = ""
	f.lastParam = ""
}

func (f *inference) stored(local string, t types.Type) {
	if !t.Known() {
		return
	}
	prev, ok := f.locals[local]
	if !ok || prev.Kind != types.KindClass && t.Kind == types.KindClass {
		f.locals[local] = t
	}
}

var fieldOps = map[il.Opcode]byte{
	il.OpLdfld:  opLdfld,
	il.OpStfld:  opStfld,
	il.OpLdsfld: opLdsfld,
	il.OpStsfld: opStsfld,
}

// field encodes a field access. When no owner can be found, or the access
// kind does not match the field, the operands are popped and a load pushes
// null instead.
func (mb *methodBuilder) field(in il.Instr, top types.Type) error {
	static := in.Op == il.OpLdsfld || in.Op == il.OpStsfld
	fi, ok := mb.resolveField(in.Name, top)
	if ok && fi.def.Static != static {
		mb.warn(diag.EmitUnresolvedField, fmt.Sprintf("%s used with %s", fi.owner.def.Name+"::"+fi.def.Name, in.Op))
		ok = false
	} else if !ok {
		mb.warn(diag.EmitUnresolvedField, "unresolved field "+in.Name)
	}
	if !ok {
		pop, push := Effect(in)
		for range pop {
			mb.enc.op(opPop)
		}
		if push > 0 {
			mb.enc.op(opLdnull)
		}
		return nil
	}
	mb.enc.token(fieldOps[in.Op], fi.token)
	if in.Op == il.OpLdfld || in.Op == il.OpLdsfld {
		mb.inf.top = fi.typ
	}
	return nil
}

// resolveField finds the field a name refers to. Qualified names name their
// owner. For bare names the owner is, in order: the class of the value just
// pushed, the class of the last loaded local, the class of the last loaded
// parameter, and finally the first class declaring a field of that name.
func (mb *methodBuilder) resolveField(name string, top types.Type) (*fieldInfo, bool) {
	e := mb.e
	owner, member := il.SplitMember(name)
	if owner != "" {
		c, ok := e.scope.Class(owner)
		if !ok {
			return nil, false
		}
		ci, ok := e.byDef[c]
		if !ok {
			return nil, false
		}
		return ci.field(member)
	}

	candidates := []types.Type{top}
	if mb.inf.lastLocal != "" {
		candidates = append(candidates, mb.localType(mb.inf.lastLocal))
	}
	if mb.inf.lastParam != "" {
		if _, t, ok := mb.arg(mb.inf.lastParam); ok {
			candidates = append(candidates, t)
		}
	}
	for _, t := range candidates {
		if ci, ok := e.classOf(t); ok {
			if fi, ok := ci.field(member); ok {
				return fi, true
			}
		}
	}
	for _, ci := range e.classes {
		if fi, ok := ci.field(member); ok {
			return fi, true
		}
	}
	return nil, false
}

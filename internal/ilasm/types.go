package ilasm

import (
	"cilforge/internal/il"
	"cilforge/internal/types"
)

const objectClass = "class [System.Runtime]System.Object"

// typeName renders t in ilasm syntax. Local classes are referenced by their
// full name, known external classes through their assembly.
func (e *emitter) typeName(t types.Type) string {
	switch t.Kind {
	case types.KindUnknown:
		return "object"
	case types.KindClass:
		if c, ok := e.scope.Class(t.Name); ok {
			return "class " + c.FullName()
		}
		if typ, ok := e.syms.LookupType(t.Name); ok {
			return "class [" + typ.Assembly + "]" + typ.QualifiedName()
		}
		return "class " + t.Name
	}
	if n := t.Kind.ILName(); n != "" {
		return n
	}
	return "object"
}

func (e *emitter) refName(r il.TypeReference) string {
	return e.typeName(r.Type())
}

// tokenName renders an extcall type token ("System.Int32", "Acme.Graph@Acme").
func (e *emitter) tokenName(tok string) string {
	if tok == "" {
		return "void"
	}
	name, asm := il.SplitTypeToken(tok)
	t := types.Parse(name)
	if t.Kind == types.KindClass && asm != "" {
		return "class [" + asm + "]" + name
	}
	if t.Kind == types.KindObject {
		return objectClass
	}
	return e.typeName(t)
}

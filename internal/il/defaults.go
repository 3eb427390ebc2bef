package il

import "cilforge/internal/types"

// DefaultValue returns the instruction pushing the zero value of t: integer
// and bool families push 0 at their width, floating kinds push a zero of the
// matching width, references and unknown types push null.
func DefaultValue(t types.Type) Instr {
	switch t.Kind {
	case types.KindInt64, types.KindUint64:
		return LdcI8(0)
	case types.KindFloat32:
		return LdcR4(0)
	case types.KindFloat64:
		return LdcR8(0)
	case types.KindUnknown, types.KindString, types.KindObject, types.KindClass:
		return Ldnull()
	}
	if t.Kind.IsIntegerLike() {
		return LdcI4(0)
	}
	// decimal has no constant form in the modelled subset
	return LdcI4(0)
}

// DefaultForToken is DefaultValue for a runtime type token ("System.Double",
// "Acme.Graph@Acme.Runtime"); the empty token is unknown.
func DefaultForToken(tok string) Instr {
	name, _ := SplitTypeToken(tok)
	return DefaultValue(types.Parse(name))
}

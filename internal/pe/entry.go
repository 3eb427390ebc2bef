package pe

import (
	"cilforge/internal/il"
	"cilforge/internal/lower"
	"cilforge/internal/metadata"
	"cilforge/internal/types"
)

// defineEntryPoint adds the static int32 Main() the runtime starts in. It
// calls the user's main when there is one: an int main() without parameters
// supplies the exit code, any other shape is called with default arguments
// and the process exits with 0.
func (e *Emitter) defineEntryPoint() (metadata.Token, error) {
	enc := newEncoder()
	maxStack := 1
	main, ok := e.byName[lower.EntryPointName]
	if ok {
		sig := main.def.Signature
		for _, p := range sig.Params {
			emitConst(enc, il.DefaultValue(p.Type.Type()))
		}
		maxStack = max(len(sig.Params), 1)
		enc.token(opCall, main.token)
		direct := len(sig.Params) == 0 && sig.Return.Arity() > 0 && sig.Return.Type().Kind == types.KindInt32
		if !direct {
			if sig.Return.Arity() > 0 {
				enc.op(opPop)
			}
			enc.ldcI4(0)
		}
	} else {
		enc.ldcI4(0)
	}
	enc.op(opRet)

	rva, err := e.addBody(enc.code, maxStack, 0)
	if err != nil {
		return 0, err
	}
	sig, err := metadata.MethodSig(false, metadata.Prim(types.KindInt32.SigCode()), nil)
	if err != nil {
		return 0, err
	}
	name := entryName
	if _, taken := e.byName[name]; taken {
		name = "<" + entryName + ">$"
	}
	return e.b.AddMethodDef(rva, 0, staticFlags, name, sig, e.b.NextRow(metadata.TableParam)), nil
}

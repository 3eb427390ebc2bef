package buildpipeline

import (
	"fmt"

	"cilforge/internal/diag"
	"cilforge/internal/il"
	"cilforge/internal/types"
)

// CheckEntrypoint tells the user how the synthesized entry point will start
// the program. Nothing here is an error: a unit without main still produces
// an image that exits with 0.
func CheckEntrypoint(decl *il.AssemblyDeclaration, r diag.Reporter) {
	if decl == nil || decl.Module == nil {
		return
	}
	var main *il.MethodDefinition
	for _, f := range decl.Module.Functions {
		if f.EntryPoint {
			main = f
			break
		}
	}
	loc := diag.At(decl.Name, "")
	if main == nil {
		diag.ReportInfo(r, diag.PipeInfo, loc, "no main function; the program exits with 0").Emit()
		return
	}
	loc = diag.At(decl.Name, main.Name)
	sig := main.Signature
	if n := len(sig.Params); n > 0 {
		diag.ReportInfo(r, diag.PipeInfo, loc,
			fmt.Sprintf("main takes %d parameter(s); it is started with default arguments", n)).Emit()
	}
	if sig.Return.Arity() > 0 && sig.Return.Type().Kind != types.KindInt32 {
		diag.ReportInfo(r, diag.PipeInfo, loc,
			fmt.Sprintf("main returns %s; the value is discarded and the program exits with 0", sig.Return.FullName())).Emit()
	}
}

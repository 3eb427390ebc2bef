package diag

import "fmt"

type Code uint16

const (
	UnknownCode Code = 0

	// Lowering
	LowInfo              Code = 1000
	LowUnsupportedExpr   Code = 1001
	LowUnsupportedStmt   Code = 1002
	LowUnresolvedCall    Code = 1003
	LowAmbiguousOverload Code = 1004
	LowNameCollision     Code = 1005
	LowInvalidVersion    Code = 1006

	// Emission, degraded: code is still produced but semantics may be wrong
	EmitInfo               Code = 2000
	EmitUnresolvedField    Code = 2001
	EmitUnresolvedMethod   Code = 2002
	EmitUnresolvedCtor     Code = 2003
	EmitArgCountMismatch   Code = 2004
	EmitUnresolvedType     Code = 2005
	EmitFuzzyMethodMatch   Code = 2006
	EmitClassMethodSkipped Code = 2007
	EmitUnknownLocalType   Code = 2008
	EmitUnknownLabel       Code = 2009

	// Stack simulation, fatal
	StackInfo             Code = 3000
	StackUnderflow        Code = 3001
	StackArityMismatch    Code = 3002
	StackReturnRepaired   Code = 3003
	StackEpilogueRepaired Code = 3004

	// Pipeline and configuration
	PipeInfo            Code = 4000
	PipeDecodeFailed    Code = 4001
	PipeInvalidAST      Code = 4002
	PipeManifestInvalid Code = 4003
	PipeSymbolsInvalid  Code = 4004
	PipeWriteFailed     Code = 4005
	PipeValidateFailed  Code = 4006
	PipeCacheFailed     Code = 4007
	PipeEmitFailed      Code = 4008
)

var codeDescription = map[Code]string{
	UnknownCode:            "Unknown error",
	LowInfo:                "Lowering information",
	LowUnsupportedExpr:     "Unsupported expression",
	LowUnsupportedStmt:     "Unsupported statement",
	LowUnresolvedCall:      "Unresolved call target",
	LowAmbiguousOverload:   "No applicable overload",
	LowNameCollision:       "Name collision",
	LowInvalidVersion:      "Invalid version",
	EmitInfo:               "Emission information",
	EmitUnresolvedField:    "Unresolved field",
	EmitUnresolvedMethod:   "Unresolved method",
	EmitUnresolvedCtor:     "Unresolved constructor",
	EmitArgCountMismatch:   "Argument count mismatch",
	EmitUnresolvedType:     "Unresolved external type",
	EmitFuzzyMethodMatch:   "Method matched by base name",
	EmitClassMethodSkipped: "Class method not emitted",
	EmitUnknownLocalType:   "Local type defaulted to int32",
	EmitUnknownLabel:       "Branch to unknown label",
	StackInfo:              "Stack information",
	StackUnderflow:         "Stack underflow",
	StackArityMismatch:     "Stack does not match return arity",
	StackReturnRepaired:    "Default value inserted before return",
	StackEpilogueRepaired:  "Method epilogue repaired",
	PipeInfo:               "Pipeline information",
	PipeDecodeFailed:       "Cannot decode input",
	PipeInvalidAST:         "Malformed syntax tree",
	PipeManifestInvalid:    "Invalid project manifest",
	PipeSymbolsInvalid:     "Invalid symbol table",
	PipeWriteFailed:        "Cannot write output",
	PipeValidateFailed:     "Output validation failed",
	PipeCacheFailed:        "Artifact cache failure",
	PipeEmitFailed:         "Emission failed",
}

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("LOW%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("EMT%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("STK%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("PIP%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	if d, ok := codeDescription[c]; ok {
		return d
	}
	return codeDescription[UnknownCode]
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}

package il

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the instruction family. The stack simulator and emitters dispatch on it.
type Kind uint8

const (
	KindLoad Kind = iota + 1
	KindStore
	KindArith
	KindBranch
	KindCall
	KindReturn
	KindLabel
	KindPop
)

func (k Kind) String() string {
	switch k {
	case KindLoad:
		return "load"
	case KindStore:
		return "store"
	case KindArith:
		return "arith"
	case KindBranch:
		return "branch"
	case KindCall:
		return "call"
	case KindReturn:
		return "return"
	case KindLabel:
		return "label"
	case KindPop:
		return "pop"
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Opcode selects the concrete operation within a Kind.
type Opcode uint8

const (
	OpNop Opcode = iota

	// loads
	OpLdcI4
	OpLdcI8
	OpLdcR4
	OpLdcR8
	OpLdstr
	OpLdnull
	OpLdloc
	OpLdarg
	OpLdfld
	OpLdsfld
	OpDup
	OpNewobj

	// stores
	OpStloc
	OpStarg
	OpStfld
	OpStsfld
	OpStelem

	// binary arithmetic / comparison
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpCeq
	OpCne
	OpClt
	OpCgt
	OpCle
	OpCge

	// unary
	OpNeg
	OpNot

	// branches
	OpBr
	OpBrfalse
	OpBrtrue

	OpCall
	OpCallvirt
	OpRet
	OpLabel
	OpPop
)

var opcodeNames = [...]string{
	OpNop:      "nop",
	OpLdcI4:    "ldc.i4",
	OpLdcI8:    "ldc.i8",
	OpLdcR4:    "ldc.r4",
	OpLdcR8:    "ldc.r8",
	OpLdstr:    "ldstr",
	OpLdnull:   "ldnull",
	OpLdloc:    "ldloc",
	OpLdarg:    "ldarg",
	OpLdfld:    "ldfld",
	OpLdsfld:   "ldsfld",
	OpDup:      "dup",
	OpNewobj:   "newobj",
	OpStloc:    "stloc",
	OpStarg:    "starg",
	OpStfld:    "stfld",
	OpStsfld:   "stsfld",
	OpStelem:   "stelem.ref",
	OpAdd:      "add",
	OpSub:      "sub",
	OpMul:      "mul",
	OpDiv:      "div",
	OpRem:      "rem",
	OpAnd:      "and",
	OpOr:       "or",
	OpCeq:      "ceq",
	OpCne:      "cne",
	OpClt:      "clt",
	OpCgt:      "cgt",
	OpCle:      "cle",
	OpCge:      "cge",
	OpNeg:      "neg",
	OpNot:      "not",
	OpBr:       "br",
	OpBrfalse:  "brfalse",
	OpBrtrue:   "brtrue",
	OpCall:     "call",
	OpCallvirt: "callvirt",
	OpRet:      "ret",
	OpLabel:    "label",
	OpPop:      "pop",
}

func (o Opcode) String() string {
	if int(o) < len(opcodeNames) && opcodeNames[o] != "" {
		return opcodeNames[o]
	}
	return fmt.Sprintf("Opcode(%d)", o)
}

// IsUnary reports arithmetic opcodes that consume one operand.
func (o Opcode) IsUnary() bool { return o == OpNeg || o == OpNot }

// Instr is one IL instruction. Kind picks the family, Op the operation; the
// remaining fields are operands whose meaning depends on Op:
//
//   - Int / Float / Str: constant operands (ldc.*, ldstr)
//   - Name: local, argument, field ("Class::field" or bare), type (newobj),
//     label, or call target
//   - Argc / Void / Ret: call shape; Ret is the return type token
type Instr struct {
	Kind  Kind
	Op    Opcode
	Int   int64
	Float float64
	Str   string
	Name  string
	Argc  int
	Void  bool
	Ret   string
}

func Load(op Opcode, name string) Instr { return Instr{Kind: KindLoad, Op: op, Name: name} }

func LdcI4(v int32) Instr { return Instr{Kind: KindLoad, Op: OpLdcI4, Int: int64(v)} }

func LdcI8(v int64) Instr { return Instr{Kind: KindLoad, Op: OpLdcI8, Int: v} }

func LdcR4(v float32) Instr { return Instr{Kind: KindLoad, Op: OpLdcR4, Float: float64(v)} }

func LdcR8(v float64) Instr { return Instr{Kind: KindLoad, Op: OpLdcR8, Float: v} }

func Ldstr(s string) Instr { return Instr{Kind: KindLoad, Op: OpLdstr, Str: s} }

func Ldnull() Instr { return Instr{Kind: KindLoad, Op: OpLdnull} }

func Newobj(typeName string) Instr { return Instr{Kind: KindLoad, Op: OpNewobj, Name: typeName} }

func Store(op Opcode, name string) Instr { return Instr{Kind: KindStore, Op: op, Name: name} }

func Arith(op Opcode) Instr { return Instr{Kind: KindArith, Op: op} }

func Branch(op Opcode, label string) Instr { return Instr{Kind: KindBranch, Op: op, Name: label} }

func Label(name string) Instr { return Instr{Kind: KindLabel, Op: OpLabel, Name: name} }

func Ret() Instr { return Instr{Kind: KindReturn, Op: OpRet} }

func Pop() Instr { return Instr{Kind: KindPop, Op: OpPop} }

// Call builds a static call; ret is the return type token ("" when unknown,
// "System.Void" for void callees).
func Call(target string, argc int, ret string) Instr {
	return Instr{Kind: KindCall, Op: OpCall, Name: target, Argc: argc, Ret: ret, Void: ret == "System.Void"}
}

// String renders the instruction in a compact assembler-like form used by
// diagnostics and tests.
func (in Instr) String() string {
	switch in.Kind {
	case KindLabel:
		return in.Name + ":"
	case KindCall:
		return fmt.Sprintf("%s %s/%d", in.Op, in.Name, in.Argc)
	}
	switch in.Op {
	case OpLdcI4, OpLdcI8:
		return in.Op.String() + " " + strconv.FormatInt(in.Int, 10)
	case OpLdcR4:
		return in.Op.String() + " " + strconv.FormatFloat(in.Float, 'g', -1, 32)
	case OpLdcR8:
		return in.Op.String() + " " + strconv.FormatFloat(in.Float, 'g', -1, 64)
	case OpLdstr:
		return in.Op.String() + " " + Quote(in.Str)
	}
	if in.Name != "" {
		return in.Op.String() + " " + in.Name
	}
	return in.Op.String()
}

// Quote renders s as an ilasm string literal.
func Quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// SplitMember splits "Owner::member" into its parts; a bare name has no owner.
func SplitMember(name string) (owner, member string) {
	if i := strings.LastIndex(name, "::"); i >= 0 {
		return name[:i], name[i+2:]
	}
	return "", name
}

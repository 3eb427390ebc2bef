package ast

import "fmt"

// ExprKind enumerates expression node kinds.
type ExprKind uint8

const (
	ExprInvalid ExprKind = iota
	ExprLiteral
	ExprVarRef
	ExprBinary
	ExprUnary
	ExprCall
	ExprMember
	ExprNew
)

var exprKindNames = [...]string{
	ExprInvalid: "invalid",
	ExprLiteral: "literal",
	ExprVarRef:  "var",
	ExprBinary:  "binary",
	ExprUnary:   "unary",
	ExprCall:    "call",
	ExprMember:  "member",
	ExprNew:     "new",
}

func (k ExprKind) String() string {
	if int(k) < len(exprKindNames) {
		return exprKindNames[k]
	}
	return fmt.Sprintf("ExprKind(%d)", k)
}

func (k ExprKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ExprKind) UnmarshalText(b []byte) error {
	return unmarshalKind(b, exprKindNames[:], (*uint8)(k), "expression")
}

// StmtKind enumerates statement node kinds.
type StmtKind uint8

const (
	StmtInvalid StmtKind = iota
	StmtVarDecl
	StmtExpr
	StmtAssign
	StmtReturn
	StmtIf
	StmtWhile
)

var stmtKindNames = [...]string{
	StmtInvalid: "invalid",
	StmtVarDecl: "var",
	StmtExpr:    "expr",
	StmtAssign:  "assign",
	StmtReturn:  "return",
	StmtIf:      "if",
	StmtWhile:   "while",
}

func (k StmtKind) String() string {
	if int(k) < len(stmtKindNames) {
		return stmtKindNames[k]
	}
	return fmt.Sprintf("StmtKind(%d)", k)
}

func (k StmtKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *StmtKind) UnmarshalText(b []byte) error {
	return unmarshalKind(b, stmtKindNames[:], (*uint8)(k), "statement")
}

// LitKind enumerates literal kinds.
type LitKind uint8

const (
	LitInvalid LitKind = iota
	LitInt32
	LitInt64
	LitFloat32
	LitFloat64
	LitString
	LitBool
	LitNull
)

var litKindNames = [...]string{
	LitInvalid: "invalid",
	LitInt32:   "int",
	LitInt64:   "long",
	LitFloat32: "float",
	LitFloat64: "double",
	LitString:  "string",
	LitBool:    "bool",
	LitNull:    "null",
}

func (k LitKind) String() string {
	if int(k) < len(litKindNames) {
		return litKindNames[k]
	}
	return fmt.Sprintf("LitKind(%d)", k)
}

func (k LitKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *LitKind) UnmarshalText(b []byte) error {
	return unmarshalKind(b, litKindNames[:], (*uint8)(k), "literal")
}

// Op is a unary or binary operator tag.
type Op uint8

const (
	OpInvalid Op = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpEq
	OpNe
	OpLt
	OpGt
	OpLe
	OpGe
	OpAnd
	OpOr
	OpNeg
	OpNot
)

var opNames = [...]string{
	OpInvalid: "invalid",
	OpAdd:     "+",
	OpSub:     "-",
	OpMul:     "*",
	OpDiv:     "/",
	OpRem:     "%",
	OpEq:      "==",
	OpNe:      "!=",
	OpLt:      "<",
	OpGt:      ">",
	OpLe:      "<=",
	OpGe:      ">=",
	OpAnd:     "&&",
	OpOr:      "||",
	OpNeg:     "neg",
	OpNot:     "!",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", o)
}

func (o Op) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Op) UnmarshalText(b []byte) error {
	return unmarshalKind(b, opNames[:], (*uint8)(o), "operator")
}

// IsComparison reports operators producing bool from two operands.
func (o Op) IsComparison() bool {
	switch o {
	case OpEq, OpNe, OpLt, OpGt, OpLe, OpGe:
		return true
	}
	return false
}

// IsLogical reports short-circuit style boolean operators.
func (o Op) IsLogical() bool {
	return o == OpAnd || o == OpOr || o == OpNot
}

func unmarshalKind(b []byte, names []string, dst *uint8, what string) error {
	s := string(b)
	for i, n := range names {
		if n == s {
			*dst = uint8(i)
			return nil
		}
	}
	return fmt.Errorf("unknown %s kind %q", what, s)
}

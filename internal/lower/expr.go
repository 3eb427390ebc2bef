package lower

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"cilforge/internal/ast"
	"cilforge/internal/diag"
	"cilforge/internal/il"
	"cilforge/internal/types"
)

// concatFallback is used when the symbol table has no String.Concat.
var concatFallback = il.ExtCall{
	Asm:    "System.Runtime",
	Ns:     "System",
	Type:   "String",
	Method: "Concat",
	Params: []string{"System.String", "System.String"},
	Return: "System.String",
}

// GenerateExpression lowers e to a sequence leaving its value on the stack.
// Unsupported or malformed nodes produce an empty sequence; the stack
// simulator downstream turns that into a hard failure if it matters.
func (t *Transformer) GenerateExpression(ctx *MethodContext, e *ast.Expr) il.Sequence {
	var seq il.Sequence
	if e == nil {
		return seq
	}
	if ctx == nil {
		ctx = t.detachedContext()
	}
	switch e.Kind {
	case ast.ExprLiteral:
		if e.Lit != nil {
			if in, ok := literal(e.Lit); ok {
				seq.Add(in)
				return seq
			}
		}
	case ast.ExprVarRef:
		if e.Var != nil {
			seq.Add(t.loadVar(ctx, e.Var.Name))
			return seq
		}
	case ast.ExprBinary:
		if e.Binary != nil {
			t.binary(ctx, &seq, e.Binary)
			return seq
		}
	case ast.ExprUnary:
		if e.Unary != nil {
			seq.Append(t.GenerateExpression(ctx, e.Unary.Operand))
			switch e.Unary.Op {
			case ast.OpNeg, ast.OpSub:
				seq.Add(il.Arith(il.OpNeg))
			case ast.OpNot:
				seq.Add(il.Arith(il.OpNot))
			default:
				t.warn(ctx, diag.LowUnsupportedExpr, fmt.Sprintf("unsupported unary operator %s", e.Unary.Op))
				return il.Sequence{}
			}
			return seq
		}
	case ast.ExprCall:
		if e.Call != nil {
			t.call(ctx, &seq, e.Call)
			return seq
		}
	case ast.ExprMember:
		if e.Member != nil {
			t.memberLoad(ctx, &seq, e.Member)
			return seq
		}
	case ast.ExprNew:
		if e.New != nil {
			name := e.New.Type
			if c, ok := t.scope.Class(name); ok {
				name = c.Name
			}
			seq.Add(il.Newobj(name))
			return seq
		}
	}
	t.warn(ctx, diag.LowUnsupportedExpr, fmt.Sprintf("cannot lower %s expression", e.Kind))
	return il.Sequence{}
}

func literal(l *ast.Literal) (il.Instr, bool) {
	switch l.Kind {
	case ast.LitInt32:
		return il.LdcI4(int32(l.Int)), true
	case ast.LitInt64:
		return il.LdcI8(l.Int), true
	case ast.LitFloat32:
		return il.LdcR4(float32(l.Float)), true
	case ast.LitFloat64:
		return il.LdcR8(l.Float), true
	case ast.LitString:
		return il.Ldstr(l.Str), true
	case ast.LitBool:
		if l.Bool {
			return il.LdcI4(1), true
		}
		return il.LdcI4(0), true
	case ast.LitNull:
		return il.Ldnull(), true
	}
	return il.Instr{}, false
}

func (t *Transformer) loadVar(ctx *MethodContext, name string) il.Instr {
	if ctx != nil {
		if ctx.IsThis(name) {
			return il.Load(il.OpLdarg, "this")
		}
		if !ctx.HasLocal(name) {
			if _, _, ok := ctx.Param(name); ok {
				return il.Load(il.OpLdarg, name)
			}
		}
	}
	return il.Load(il.OpLdloc, name)
}

var binaryOps = map[ast.Op]il.Opcode{
	ast.OpAdd: il.OpAdd,
	ast.OpSub: il.OpSub,
	ast.OpMul: il.OpMul,
	ast.OpDiv: il.OpDiv,
	ast.OpRem: il.OpRem,
	ast.OpEq:  il.OpCeq,
	ast.OpNe:  il.OpCne,
	ast.OpLt:  il.OpClt,
	ast.OpGt:  il.OpCgt,
	ast.OpLe:  il.OpCle,
	ast.OpGe:  il.OpCge,
	ast.OpAnd: il.OpAnd,
	ast.OpOr:  il.OpOr,
}

func (t *Transformer) binary(ctx *MethodContext, seq *il.Sequence, b *ast.BinaryExpr) {
	op, ok := binaryOps[b.Op]
	if !ok {
		t.warn(ctx, diag.LowUnsupportedExpr, fmt.Sprintf("unsupported binary operator %s", b.Op))
		return
	}
	seq.Append(t.GenerateExpression(ctx, b.Left))
	seq.Append(t.GenerateExpression(ctx, b.Right))
	if b.Op == ast.OpAdd {
		l, r := t.InferType(ctx, b.Left), t.InferType(ctx, b.Right)
		if l.Kind == types.KindString || r.Kind == types.KindString {
			seq.Add(t.concat(l, r))
			return
		}
	}
	seq.Add(il.Arith(op))
}

// concat picks a String.Concat overload for the operand types. Value-type
// operands are not boxed.
func (t *Transformer) concat(l, r types.Type) il.Instr {
	call := concatFallback
	if typ, ok := t.syms.LookupType("System.String"); ok {
		cands := candidates(overloadsOf(typ, "Concat"))
		if i, ok := Resolve(cands, []types.Type{l, r}, nil); ok {
			call = extCallOf(cands[i].Source)
		}
	}
	return il.Call(call.String(), 2, call.Return)
}

// typeQualifier reports whether e names a type rather than a value: an
// unbound identifier that is a local class, a known external type or looks
// like a type name, or a dotted chain of such identifiers.
func (t *Transformer) typeQualifier(ctx *MethodContext, e *ast.Expr) (string, bool) {
	if e == nil {
		return "", false
	}
	switch e.Kind {
	case ast.ExprVarRef:
		if e.Var == nil || e.Var.Name == "" {
			return "", false
		}
		name := e.Var.Name
		if ctx != nil && ctx.Bound(name) {
			return "", false
		}
		if _, ok := t.scope.Class(name); ok {
			return name, true
		}
		if _, ok := t.syms.LookupType(name); ok {
			return name, true
		}
		r, _ := utf8.DecodeRuneInString(name)
		return name, unicode.IsUpper(r)
	case ast.ExprMember:
		if e.Member == nil {
			return "", false
		}
		if _, _, ok := t.resolveMember(ctx, e.Member); ok {
			return "", false
		}
		if q, ok := t.typeQualifier(ctx, e.Member.Object); ok {
			return q + "." + e.Member.Name, true
		}
	}
	return "", false
}

// resolveMember finds the field a member expression denotes, and whether it
// is accessed statically.
func (t *Transformer) resolveMember(ctx *MethodContext, m *ast.MemberExpr) (*il.FieldDefinition, bool, bool) {
	if m.Object != nil && m.Object.Kind == ast.ExprVarRef && m.Object.Var != nil &&
		(ctx == nil || !ctx.Bound(m.Object.Var.Name)) {
		if cls, ok := t.scope.Class(m.Object.Var.Name); ok {
			if f, ok := t.scope.Field(cls, m.Name); ok && f.Static {
				return f, true, true
			}
		}
	}
	objT := t.InferType(ctx, m.Object)
	if cls, ok := t.scope.ClassOf(objT); ok {
		if f, ok := t.scope.Field(cls, m.Name); ok {
			return f, f.Static, true
		}
	}
	return nil, false, false
}

func (t *Transformer) memberLoad(ctx *MethodContext, seq *il.Sequence, m *ast.MemberExpr) {
	if f, static, ok := t.resolveMember(ctx, m); ok {
		if static {
			seq.Add(il.Load(il.OpLdsfld, f.Parent.Name+"::"+f.Name))
			return
		}
		seq.Append(t.GenerateExpression(ctx, m.Object))
		seq.Add(il.Load(il.OpLdfld, f.Parent.Name+"::"+f.Name))
		return
	}
	if q, ok := t.typeQualifier(ctx, m.Object); ok {
		seq.Add(il.Load(il.OpLdsfld, q+"::"+m.Name))
		return
	}
	// owner unknown here; the binary emitter tracks it from the stack
	seq.Append(t.GenerateExpression(ctx, m.Object))
	seq.Add(il.Load(il.OpLdfld, m.Name))
}

package lower

import (
	"strings"

	"cilforge/internal/ast"
	"cilforge/internal/types"
)

// InferType computes the static type of e bottom-up from its structure. The
// optional annotation on the node is consulted only when the structure says
// nothing.
func (t *Transformer) InferType(ctx *MethodContext, e *ast.Expr) types.Type {
	if e == nil {
		return types.Unknown
	}
	out := t.inferStructural(ctx, e)
	if !out.Known() && e.Type != "" {
		out = types.Parse(e.Type)
	}
	return out
}

func (t *Transformer) inferStructural(ctx *MethodContext, e *ast.Expr) types.Type {
	switch e.Kind {
	case ast.ExprLiteral:
		if e.Lit == nil {
			return types.Unknown
		}
		return literalType(e.Lit.Kind)
	case ast.ExprVarRef:
		if e.Var == nil {
			return types.Unknown
		}
		return t.varType(ctx, e.Var.Name)
	case ast.ExprBinary:
		if e.Binary == nil {
			return types.Unknown
		}
		return t.binaryType(ctx, e.Binary)
	case ast.ExprUnary:
		if e.Unary == nil {
			return types.Unknown
		}
		if e.Unary.Op == ast.OpNot {
			return types.Bool
		}
		return t.InferType(ctx, e.Unary.Operand)
	case ast.ExprCall:
		if e.Call == nil {
			return types.Unknown
		}
		return t.callType(ctx, e.Call)
	case ast.ExprMember:
		if e.Member == nil {
			return types.Unknown
		}
		if f, _, ok := t.resolveMember(ctx, e.Member); ok {
			return f.Type.Type()
		}
		return types.Unknown
	case ast.ExprNew:
		if e.New == nil {
			return types.Unknown
		}
		if c, ok := t.scope.Class(e.New.Type); ok {
			return types.Class(c.Name)
		}
		return types.Parse(e.New.Type)
	}
	return types.Unknown
}

func literalType(k ast.LitKind) types.Type {
	switch k {
	case ast.LitInt32:
		return types.Int32
	case ast.LitInt64:
		return types.Int64
	case ast.LitFloat32:
		return types.Float32
	case ast.LitFloat64:
		return types.Float64
	case ast.LitString:
		return types.String
	case ast.LitBool:
		return types.Bool
	case ast.LitNull:
		return types.Object
	}
	return types.Unknown
}

// varType looks at locals first, then parameters.
func (t *Transformer) varType(ctx *MethodContext, name string) types.Type {
	if ctx == nil {
		return types.Unknown
	}
	if ctx.IsThis(name) {
		return types.Class(ctx.Class.Name)
	}
	if lt, ok := ctx.Local(name); ok {
		return lt
	}
	if _, pt, ok := ctx.Param(name); ok {
		return pt
	}
	return types.Unknown
}

func (t *Transformer) binaryType(ctx *MethodContext, b *ast.BinaryExpr) types.Type {
	if b.Op.IsComparison() || b.Op.IsLogical() {
		return types.Bool
	}
	l, r := t.InferType(ctx, b.Left), t.InferType(ctx, b.Right)
	if b.Op == ast.OpAdd && (l.Kind == types.KindString || r.Kind == types.KindString) {
		return types.String
	}
	return types.Promote(l, r)
}

// callType mirrors the call resolution of lowering without emitting anything.
func (t *Transformer) callType(ctx *MethodContext, c *ast.CallExpr) types.Type {
	if c.Receiver == nil {
		if f, ok := t.scope.Function(c.Name); ok {
			return f.Signature.Return.Type()
		}
	}
	if r, ok := t.resolveExternal(ctx, c); ok {
		return typeOfToken(r.member.Method.Returns)
	}
	if c.Receiver != nil {
		recv := t.InferType(ctx, c.Receiver)
		if cls, ok := t.scope.ClassOf(recv); ok {
			if m, ok := t.scope.Method(cls, c.Name); ok {
				return m.Signature.Return.Type()
			}
		}
		if name, ok := t.typeQualifier(ctx, c.Receiver); ok {
			if cls, ok := t.scope.Class(name); ok {
				if m, ok := t.scope.Method(cls, c.Name); ok {
					return m.Signature.Return.Type()
				}
			}
		}
	}
	return types.Unknown
}

func typeOfToken(tok string) types.Type {
	if tok == "" {
		return types.Void
	}
	name, _, _ := strings.Cut(tok, "@")
	return types.Parse(name)
}

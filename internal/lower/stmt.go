package lower

import (
	"fmt"

	"cilforge/internal/ast"
	"cilforge/internal/diag"
	"cilforge/internal/il"
	"cilforge/internal/types"
)

// GenerateStatement lowers one statement. A lowered statement leaves nothing
// on the stack unless it returns. Unsupported shapes lower to an empty
// sequence.
func (t *Transformer) GenerateStatement(ctx *MethodContext, s *ast.Stmt) il.Sequence {
	var seq il.Sequence
	if s == nil {
		return seq
	}
	if ctx == nil {
		ctx = t.detachedContext()
	}
	switch s.Kind {
	case ast.StmtVarDecl:
		if d := s.VarDecl; d != nil {
			declared := types.Parse(d.Type)
			if d.Init != nil {
				seq.Append(t.GenerateExpression(ctx, d.Init))
				seq.Add(il.Store(il.OpStloc, d.Name))
				if !declared.Known() {
					declared = t.InferType(ctx, d.Init)
				}
			}
			ctx.DeclareLocal(d.Name, declared)
			return seq
		}
	case ast.StmtExpr:
		if x := s.Expr; x != nil && x.Value != nil {
			seq.Append(t.GenerateExpression(ctx, x.Value))
			if producesValue(seq) {
				seq.Add(il.Pop())
			}
			return seq
		}
	case ast.StmtAssign:
		if a := s.Assign; a != nil && a.Target != nil {
			if t.assign(ctx, &seq, a) {
				return seq
			}
		}
	case ast.StmtReturn:
		if r := s.Return; r != nil {
			if r.Value != nil {
				seq.Append(t.GenerateExpression(ctx, r.Value))
			}
			seq.Add(il.Ret())
			return seq
		}
	case ast.StmtIf:
		if i := s.If; i != nil && i.Cond != nil {
			t.ifElse(ctx, &seq, i)
			return seq
		}
	case ast.StmtWhile:
		if w := s.While; w != nil && w.Cond != nil {
			t.while(ctx, &seq, w)
			return seq
		}
	}
	t.warn(ctx, diag.LowUnsupportedStmt, fmt.Sprintf("cannot lower %s statement", s.Kind))
	return il.Sequence{}
}

// producesValue reports whether a lowered expression leaves a value: every
// expression does except a call to a void method.
func producesValue(seq il.Sequence) bool {
	if seq.Empty() {
		return false
	}
	last := seq.Instrs[len(seq.Instrs)-1]
	return last.Kind != il.KindCall || !last.Void
}

func (t *Transformer) assign(ctx *MethodContext, seq *il.Sequence, a *ast.AssignStmt) bool {
	target := a.Target
	switch target.Kind {
	case ast.ExprVarRef:
		if target.Var == nil {
			return false
		}
		name := target.Var.Name
		seq.Append(t.GenerateExpression(ctx, a.Value))
		if !ctx.HasLocal(name) {
			if _, _, ok := ctx.Param(name); ok {
				seq.Add(il.Store(il.OpStarg, name))
				return true
			}
		}
		seq.Add(il.Store(il.OpStloc, name))
		ctx.DeclareLocal(name, t.InferType(ctx, a.Value))
		return true
	case ast.ExprMember:
		m := target.Member
		if m == nil {
			return false
		}
		if f, static, ok := t.resolveMember(ctx, m); ok {
			if static {
				seq.Append(t.GenerateExpression(ctx, a.Value))
				seq.Add(il.Store(il.OpStsfld, f.Parent.Name+"::"+f.Name))
				return true
			}
			seq.Append(t.GenerateExpression(ctx, m.Object))
			seq.Append(t.GenerateExpression(ctx, a.Value))
			seq.Add(il.Store(il.OpStfld, f.Parent.Name+"::"+f.Name))
			return true
		}
		if q, ok := t.typeQualifier(ctx, m.Object); ok {
			seq.Append(t.GenerateExpression(ctx, a.Value))
			seq.Add(il.Store(il.OpStsfld, q+"::"+m.Name))
			return true
		}
		seq.Append(t.GenerateExpression(ctx, m.Object))
		seq.Append(t.GenerateExpression(ctx, a.Value))
		seq.Add(il.Store(il.OpStfld, m.Name))
		return true
	}
	return false
}

// ifElse: cond; brfalse F; then; br E; F:; else; E:
func (t *Transformer) ifElse(ctx *MethodContext, seq *il.Sequence, s *ast.IfStmt) {
	falseLabel := t.nextLabel("false")
	endLabel := t.nextLabel("end")
	seq.Append(t.GenerateExpression(ctx, s.Cond))
	seq.Add(il.Branch(il.OpBrfalse, falseLabel))
	for _, st := range s.Then {
		seq.Append(t.GenerateStatement(ctx, st))
	}
	seq.Add(il.Branch(il.OpBr, endLabel))
	seq.Add(il.Label(falseLabel))
	for _, st := range s.Else {
		seq.Append(t.GenerateStatement(ctx, st))
	}
	seq.Add(il.Label(endLabel))
}

// while: L:; cond; brfalse E; body; br L; E:
func (t *Transformer) while(ctx *MethodContext, seq *il.Sequence, s *ast.WhileStmt) {
	loopLabel := t.nextLabel("loop")
	endLabel := t.nextLabel("end")
	seq.Add(il.Label(loopLabel))
	seq.Append(t.GenerateExpression(ctx, s.Cond))
	seq.Add(il.Branch(il.OpBrfalse, endLabel))
	for _, st := range s.Body {
		seq.Append(t.GenerateStatement(ctx, st))
	}
	seq.Add(il.Branch(il.OpBr, loopLabel))
	seq.Add(il.Label(endLabel))
}

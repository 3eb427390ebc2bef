package lower

import (
	"fmt"

	"cilforge/internal/ast"
	"cilforge/internal/diag"
	"cilforge/internal/il"
	"cilforge/internal/symbols"
	"cilforge/internal/types"
)

// extResolution is a call bound to the external symbol table.
type extResolution struct {
	member symbols.Member
	params []types.Type
	// receiverArg marks calls whose qualifier value is passed as the first
	// operand: instance methods and extension methods.
	receiverArg bool
}

// resolveExternal binds c to an external method: a builtin alias, a static
// method on a type qualifier, an instance method of the receiver's type or
// an extension method taking the receiver first.
func (t *Transformer) resolveExternal(ctx *MethodContext, c *ast.CallExpr) (extResolution, bool) {
	args := make([]types.Type, len(c.Args))
	for i, a := range c.Args {
		args[i] = t.InferType(ctx, a)
	}
	pick := func(members []symbols.Member, receiver *types.Type, receiverArg bool) (extResolution, bool) {
		cands := candidates(members)
		i, ok := Resolve(cands, args, receiver)
		if !ok {
			return extResolution{}, false
		}
		return extResolution{member: cands[i].Source, params: cands[i].Params, receiverArg: receiverArg}, true
	}

	if c.Receiver == nil {
		if _, local := t.scope.Function(c.Name); local {
			return extResolution{}, false
		}
		b, ok := t.syms.Builtin(c.Name)
		if !ok {
			return extResolution{}, false
		}
		typ, ok := t.syms.LookupType(b.Type)
		if !ok {
			return extResolution{}, false
		}
		return pick(staticOnly(overloadsOf(typ, b.Method)), nil, false)
	}

	if q, ok := t.typeQualifier(ctx, c.Receiver); ok {
		if _, local := t.scope.Class(q); local {
			return extResolution{}, false
		}
		typ, ok := t.syms.LookupType(q)
		if !ok {
			return extResolution{}, false
		}
		return pick(staticOnly(overloadsOf(typ, c.Name)), nil, false)
	}

	recv := t.InferType(ctx, c.Receiver)
	if name := recv.CLRName(); name != "" {
		if typ, ok := t.syms.LookupType(name); ok {
			if r, ok := pick(instanceOnly(overloadsOf(typ, c.Name)), nil, true); ok {
				return r, true
			}
		}
	}
	return pick(t.syms.Extensions(c.Name), &recv, true)
}

func staticOnly(ms []symbols.Member) []symbols.Member {
	out := ms[:0:0]
	for _, m := range ms {
		if m.Method.IsStatic() {
			out = append(out, m)
		}
	}
	return out
}

func instanceOnly(ms []symbols.Member) []symbols.Member {
	out := ms[:0:0]
	for _, m := range ms {
		if !m.Method.IsStatic() {
			out = append(out, m)
		}
	}
	return out
}

func (t *Transformer) call(ctx *MethodContext, seq *il.Sequence, c *ast.CallExpr) {
	if c.Receiver == nil {
		if f, ok := t.scope.Function(c.Name); ok {
			t.args(ctx, seq, c.Args)
			seq.Add(il.Call(f.Name, len(c.Args), f.Signature.Return.FullName()))
			return
		}
	}

	if r, ok := t.resolveExternal(ctx, c); ok {
		t.externalCall(ctx, seq, c, r)
		return
	}

	// local class methods
	if c.Receiver != nil {
		if q, ok := t.typeQualifier(ctx, c.Receiver); ok {
			if cls, ok := t.scope.Class(q); ok {
				if m, ok := t.scope.Method(cls, c.Name); ok && m.Static {
					t.args(ctx, seq, c.Args)
					seq.Add(il.Call(cls.Name+"::"+m.Name, len(c.Args), m.Signature.Return.FullName()))
					return
				}
			}
			if typ, ok := t.syms.LookupType(q); ok {
				t.looseExternalCall(ctx, seq, c, typ)
				return
			}
			t.warn(ctx, diag.LowUnresolvedCall, fmt.Sprintf("call to unknown %s.%s", q, c.Name))
			t.args(ctx, seq, c.Args)
			seq.Add(il.Call(q+"::"+c.Name, len(c.Args), ""))
			return
		}
		recv := t.InferType(ctx, c.Receiver)
		if cls, ok := t.scope.ClassOf(recv); ok {
			if m, ok := t.scope.Method(cls, c.Name); ok && !m.Static {
				seq.Append(t.GenerateExpression(ctx, c.Receiver))
				t.args(ctx, seq, c.Args)
				in := il.Call(cls.Name+"::"+m.Name, len(c.Args)+1, m.Signature.Return.FullName())
				in.Op = il.OpCallvirt
				seq.Add(in)
				return
			}
		}
		target := c.Name
		if recv.Known() {
			target = recv.String() + "::" + c.Name
		}
		t.warn(ctx, diag.LowUnresolvedCall, fmt.Sprintf("call to unknown method %s", target))
		seq.Append(t.GenerateExpression(ctx, c.Receiver))
		t.args(ctx, seq, c.Args)
		in := il.Call(target, len(c.Args)+1, "")
		in.Op = il.OpCallvirt
		seq.Add(in)
		return
	}

	t.warn(ctx, diag.LowUnresolvedCall, fmt.Sprintf("call to unknown function %s", c.Name))
	t.args(ctx, seq, c.Args)
	seq.Add(il.Call(c.Name, len(c.Args), ""))
}

func (t *Transformer) args(ctx *MethodContext, seq *il.Sequence, args []*ast.Expr) {
	for _, a := range args {
		seq.Append(t.GenerateExpression(ctx, a))
	}
}

// externalCall emits receiver, supplied arguments and defaults for omitted
// optional parameters, then the call itself.
func (t *Transformer) externalCall(ctx *MethodContext, seq *il.Sequence, c *ast.CallExpr, r extResolution) {
	argc := 0
	if r.receiverArg {
		seq.Append(t.GenerateExpression(ctx, c.Receiver))
		argc++
	}
	t.args(ctx, seq, c.Args)
	argc += len(c.Args)

	declared := r.member.Method.Params
	supplied := len(c.Args)
	if r.member.Method.Extension {
		supplied++
	}
	for i := supplied; i < len(declared); i++ {
		seq.Add(il.DefaultForToken(declared[i]))
		argc++
	}

	ext := extCallOf(r.member)
	in := il.Call(ext.String(), argc, ext.Return)
	if ext.Instance {
		in.Op = il.OpCallvirt
	}
	seq.Add(in)
}

// looseExternalCall targets a known external type whose overloads do not fit
// the arguments. The token carries no parameter list; the binary emitter pads
// it with object-typed placeholders.
func (t *Transformer) looseExternalCall(ctx *MethodContext, seq *il.Sequence, c *ast.CallExpr, typ *symbols.Type) {
	t.warn(ctx, diag.LowAmbiguousOverload,
		fmt.Sprintf("no overload of %s.%s fits %d argument(s)", typ.QualifiedName(), c.Name, len(c.Args)))
	t.args(ctx, seq, c.Args)
	ext := il.ExtCall{
		Asm:    typ.Assembly,
		Ns:     typ.Namespace,
		Type:   typ.Name,
		Method: c.Name,
		Return: "System.Object",
	}
	seq.Add(il.Call(ext.String(), len(c.Args), ext.Return))
}

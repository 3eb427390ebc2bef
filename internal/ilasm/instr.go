package ilasm

import (
	"fmt"
	"strconv"
	"strings"

	"cilforge/internal/diag"
	"cilforge/internal/il"
	"cilforge/internal/lower"
)

// bodyWriter renders the instructions of one method.
type bodyWriter struct {
	e     *emitter
	ctx   *lower.MethodContext
	slots map[string]int
}

func (b *bodyWriter) line(s string) { b.e.w.line(s) }

func (b *bodyWriter) warn(code diag.Code, msg string) {
	diag.ReportWarning(b.e.rep, code, diag.At(b.ctx.Unit, b.ctx.Method), msg).Emit()
}

func (b *bodyWriter) instr(in il.Instr) {
	switch in.Kind {
	case il.KindLabel:
		b.line(in.Name + ":")
		return
	case il.KindCall:
		b.line(b.call(in))
		return
	case il.KindBranch:
		b.line(in.Op.String() + " " + in.Name)
		return
	case il.KindArith:
		for _, op := range expand(in.Op) {
			b.line(op)
		}
		return
	}

	switch in.Op {
	case il.OpLdcI4:
		b.line(ldcI4(in.Int))
	case il.OpLdcI8:
		b.line("ldc.i8 " + strconv.FormatInt(in.Int, 10))
	case il.OpLdcR4:
		b.line("ldc.r4 " + floatLit(in.Float, 32))
	case il.OpLdcR8:
		b.line("ldc.r8 " + floatLit(in.Float, 64))
	case il.OpLdstr:
		b.line("ldstr " + il.Quote(in.Str))
	case il.OpLdloc, il.OpStloc:
		b.line(shortForm(in.Op.String(), b.slots[in.Name]))
	case il.OpLdarg:
		b.line(shortForm("ldarg", b.arg(in.Name)))
	case il.OpStarg:
		b.line(fmt.Sprintf("starg.s %d", b.arg(in.Name)))
	case il.OpLdfld, il.OpLdsfld, il.OpStfld, il.OpStsfld:
		b.line(in.Op.String() + " " + b.field(in.Name))
	case il.OpNewobj:
		b.line("newobj instance void " + b.ctorOwner(in.Name) + "::.ctor()")
	default:
		b.line(in.Op.String())
	}
}

// expand spells comparison shapes the runtime lacks as ceq sequences.
func expand(op il.Opcode) []string {
	switch op {
	case il.OpCne:
		return []string{"ceq", "ldc.i4.0", "ceq"}
	case il.OpCle:
		return []string{"cgt", "ldc.i4.0", "ceq"}
	case il.OpCge:
		return []string{"clt", "ldc.i4.0", "ceq"}
	case il.OpNot:
		return []string{"ldc.i4.0", "ceq"}
	}
	return []string{op.String()}
}

func ldcI4(v int64) string {
	switch {
	case v == -1:
		return "ldc.i4.m1"
	case v >= 0 && v <= 8:
		return "ldc.i4." + strconv.FormatInt(v, 10)
	case v >= -128 && v <= 127:
		return "ldc.i4.s " + strconv.FormatInt(v, 10)
	}
	return "ldc.i4 " + strconv.FormatInt(v, 10)
}

func floatLit(f float64, bits int) string {
	s := strconv.FormatFloat(f, 'g', -1, bits)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}

// shortForm picks op.N for slots 0..3 and op.s N above.
func shortForm(op string, slot int) string {
	if slot >= 0 && slot <= 3 {
		return fmt.Sprintf("%s.%d", op, slot)
	}
	if slot <= 255 {
		return fmt.Sprintf("%s.s %d", op, slot)
	}
	return fmt.Sprintf("%s %d", op, slot)
}

// arg maps a parameter name to its argument slot; the receiver is slot 0 of
// instance methods.
func (b *bodyWriter) arg(name string) int {
	if b.ctx.IsThis(name) {
		return 0
	}
	i, _, ok := b.ctx.Param(name)
	if !ok {
		b.warn(diag.EmitUnresolvedField, fmt.Sprintf("unknown argument %s", name))
		return 0
	}
	if !b.ctx.Static {
		i++
	}
	return i
}

// field renders "type Owner::name" for a qualified or bare field reference.
func (b *bodyWriter) field(name string) string {
	owner, member := il.SplitMember(name)
	if owner != "" {
		if c, ok := b.e.scope.Class(owner); ok {
			if f, ok := b.e.scope.Field(c, member); ok {
				return fmt.Sprintf("%s %s::%s", b.e.refName(f.Type), c.FullName(), f.Name)
			}
		}
		if typ, ok := b.e.syms.LookupType(owner); ok {
			return fmt.Sprintf("%s [%s]%s::%s", objectClass, typ.Assembly, typ.QualifiedName(), member)
		}
	} else if b.e.decl.Module != nil {
		for _, c := range b.e.decl.Module.Classes {
			if f, ok := b.e.scope.Field(c, member); ok {
				return fmt.Sprintf("%s %s::%s", b.e.refName(f.Type), c.FullName(), f.Name)
			}
		}
	}
	b.warn(diag.EmitUnresolvedField, fmt.Sprintf("unresolved field %s", name))
	return objectClass + " " + name
}

func (b *bodyWriter) ctorOwner(name string) string {
	if c, ok := b.e.scope.Class(name); ok {
		return c.FullName()
	}
	if typ, ok := b.e.syms.LookupType(name); ok {
		return "[" + typ.Assembly + "]" + typ.QualifiedName()
	}
	return name
}

func (b *bodyWriter) call(in il.Instr) string {
	op := in.Op.String()
	if il.IsExtCall(in.Name) {
		ext, err := il.ParseExtCall(in.Name)
		if err != nil {
			b.warn(diag.EmitUnresolvedMethod, err.Error())
			return op + " " + in.Name
		}
		params := make([]string, len(ext.Params))
		for i, p := range ext.Params {
			params[i] = b.e.tokenName(p)
		}
		argc := in.Argc
		if ext.Instance {
			argc--
		}
		for len(params) < argc {
			params = append(params, objectClass)
		}
		inst := ""
		if ext.Instance {
			inst = "instance "
		}
		owner := ext.QualifiedType()
		if ext.Asm != "" {
			owner = "[" + ext.Asm + "]" + owner
		}
		return fmt.Sprintf("%s %s%s %s::%s(%s)", op, inst, b.e.tokenName(ext.Return), owner, ext.Method, strings.Join(params, ", "))
	}

	owner, name := il.SplitMember(in.Name)
	if owner == "" {
		if f, ok := b.e.scope.Function(name); ok {
			return fmt.Sprintf("%s %s %s::%s(%s)", op, b.e.refName(f.Signature.Return), ProgramClass, f.Name, b.paramTypes(f))
		}
	} else if c, ok := b.e.scope.Class(owner); ok {
		if m, ok := b.e.scope.Method(c, name); ok {
			inst := ""
			if !m.Static {
				inst = "instance "
			}
			return fmt.Sprintf("%s %s%s %s::%s(%s)", op, inst, b.e.refName(m.Signature.Return), c.FullName(), m.Name, b.paramTypes(m))
		}
	}
	b.warn(diag.EmitUnresolvedMethod, fmt.Sprintf("unresolved call %s", in.Name))
	return op + " " + in.Name
}

func (b *bodyWriter) paramTypes(m *il.MethodDefinition) string {
	parts := make([]string, len(m.Signature.Params))
	for i, p := range m.Signature.Params {
		parts[i] = b.e.refName(p.Type)
	}
	return strings.Join(parts, ", ")
}

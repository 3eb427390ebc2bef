package pe

import (
	"errors"
	"fmt"
	"strings"

	"fortio.org/safecast"

	"cilforge/internal/diag"
	"cilforge/internal/il"
	"cilforge/internal/lower"
	"cilforge/internal/metadata"
	"cilforge/internal/trace"
	"cilforge/internal/types"
)

// historyLen is how many per-statement depths a StackError carries.
const historyLen = 10

// StackError is a fatal stack-simulation failure. It aborts emission of the
// whole assembly.
type StackError struct {
	Code   diag.Code
	Method string
	// Statement is the statement index, or -1 for the method epilogue.
	Statement int
	Instrs    string
	// History holds the cumulative depth after each of the last statements.
	History []int
	Err     error
}

func (e *StackError) Error() string {
	where := "epilogue"
	if e.Statement >= 0 {
		where = fmt.Sprintf("statement %d", e.Statement)
	}
	return fmt.Sprintf("%s: method %s, %s: %v\n  instructions: %s\n  depth history: %v",
		e.Code.ID(), e.Method, where, e.Err, e.Instrs, e.History)
}

func (e *StackError) Unwrap() error { return e.Err }

// ArityError is a ret reached with more values than the method returns.
type ArityError struct {
	Have, Want int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("ret with %d values on the stack, method returns %d", e.Have, e.Want)
}

func stackCode(err error) diag.Code {
	var under *UnderflowError
	if errors.As(err, &under) {
		return diag.StackUnderflow
	}
	return diag.StackArityMismatch
}

// methodBuilder lowers and encodes one method body.
type methodBuilder struct {
	e       *Emitter
	span    *trace.Span
	ctx     *lower.MethodContext
	enc     *encoder
	locals  []string
	slots   map[string]int
	inf     inference
	last    il.Instr
	history []int
}

func (mb *methodBuilder) loc() diag.Location {
	return diag.At(mb.ctx.Unit, mb.ctx.Method).Stmt(mb.ctx.Statement)
}

func (mb *methodBuilder) warn(code diag.Code, msg string) {
	mb.e.warn(code, mb.loc(), msg)
}

func (mb *methodBuilder) stackError(stmt int, seq il.Sequence, err error) *StackError {
	h := mb.history
	if len(h) > historyLen {
		h = h[len(h)-historyLen:]
	}
	return &StackError{
		Code:      stackCode(err),
		Method:    mb.ctx.Method,
		Statement: stmt,
		Instrs:    seq.String(),
		History:   append([]int(nil), h...),
		Err:       err,
	}
}

// methodBody lowers m, checks every statement against the simulator and
// appends the encoded body. It returns the body RVA.
func (e *Emitter) methodBody(m *il.MethodDefinition) (uint32, error) {
	span := e.span.Child(trace.ScopeMethod, "method:"+m.Name)
	defer span.End("")

	ctx := e.tr.NewContext(m)
	seqs := make([]il.Sequence, len(m.Body))
	for i, s := range m.Body {
		ctx.Statement = i
		seqs[i] = e.tr.GenerateStatement(ctx, s)
	}

	mb := &methodBuilder{
		e:      e,
		span:   span,
		ctx:    ctx,
		enc:    newEncoder(),
		locals: il.Locals(seqs),
		inf:    newInference(),
	}
	mb.slots = make(map[string]int, len(mb.locals))
	for i, name := range mb.locals {
		mb.slots[name] = i
	}

	arity := m.Signature.Return.Arity()
	sim := NewSimulator()
	for i, seq := range seqs {
		ctx.Statement = i
		fixed, repaired, err := fitReturns(sim, seq, ctx.Return, arity)
		if err != nil {
			return 0, mb.stackError(i, seq, err)
		}
		if repaired {
			diag.ReportInfo(e.rep, diag.StackReturnRepaired, mb.loc(),
				"return without a value; the default value is returned").Emit()
		}
		if _, err := sim.Run(fixed); err != nil {
			return 0, mb.stackError(i, fixed, err)
		}
		mb.history = append(mb.history, sim.Depth())
		mb.inf.statement()
		for _, in := range fixed.Instrs {
			if err := mb.emit(in); err != nil {
				return 0, fmt.Errorf("method %s, statement %d: %w", m.Name, i, err)
			}
		}
	}
	ctx.Statement = -1
	if err := mb.epilogue(sim, arity); err != nil {
		return 0, err
	}
	for _, l := range mb.enc.resolve() {
		mb.warn(diag.EmitUnknownLabel, "branch to undefined label "+l)
	}

	localSig, err := mb.localsSig()
	if err != nil {
		return 0, fmt.Errorf("method %s: locals: %w", m.Name, err)
	}
	maxStack := max(sim.Peak()+2, tinyMaxStack)
	span.WithExtra("locals", fmt.Sprint(len(mb.locals)))
	return e.addBody(mb.enc.code, maxStack, localSig)
}

// fitReturns simulates seq on a copy of sim. A reachable ret that leaves no
// value in a method returning one gets the default value pushed in front of
// it; the sequence is simulated again after every insertion.
func fitReturns(sim *Simulator, seq il.Sequence, ret types.Type, arity int) (il.Sequence, bool, error) {
	repaired := false
	for range len(seq.Instrs) + 1 {
		rets, err := sim.Clone().Run(seq)
		if err != nil {
			return seq, repaired, err
		}
		insert := -1
		for _, r := range rets {
			if r.Depth > arity {
				return seq, repaired, &ArityError{Have: r.Depth, Want: arity}
			}
			if r.Depth < arity {
				insert = r.Index
				break
			}
		}
		if insert < 0 {
			return seq, repaired, nil
		}
		seq = seq.Clone()
		seq.Insert(insert, il.DefaultValue(ret))
		repaired = true
	}
	return seq, repaired, errors.New("return repair did not settle")
}

// epilogue terminates a body whose last instruction is not a ret. The stack
// is brought to the return arity by popping or pushing a default first.
func (mb *methodBuilder) epilogue(sim *Simulator, arity int) error {
	if mb.last.Kind == il.KindReturn {
		return nil
	}
	var seq il.Sequence
	depth := sim.Depth()
	for ; depth > arity; depth-- {
		seq.Add(il.Pop())
	}
	for ; depth < arity; depth++ {
		seq.Add(il.DefaultValue(mb.ctx.Return))
	}
	seq.Add(il.Ret())
	if seq.Len() > 1 {
		diag.ReportInfo(mb.e.rep, diag.StackEpilogueRepaired, mb.loc(),
			fmt.Sprintf("end of method reached with depth %d, expected %d", sim.Depth(), arity)).Emit()
	}
	rets, err := sim.Run(seq)
	if err != nil {
		return mb.stackError(-1, seq, err)
	}
	for _, r := range rets {
		if r.Depth != arity {
			return mb.stackError(-1, seq, &ArityError{Have: r.Depth, Want: arity})
		}
	}
	mb.history = append(mb.history, sim.Depth())
	for _, in := range seq.Instrs {
		if err := mb.emit(in); err != nil {
			return err
		}
	}
	return nil
}

func (mb *methodBuilder) emit(in il.Instr) error {
	mb.last = in
	top := mb.inf.take()
	enc := mb.enc
	switch in.Kind {
	case il.KindLabel:
		enc.label(in.Name)
		return nil
	case il.KindBranch:
		return enc.branch(in.Op, in.Name)
	case il.KindArith:
		return enc.arith(in.Op)
	case il.KindReturn:
		enc.op(opRet)
		return nil
	case il.KindPop:
		enc.op(opPop)
		return nil
	case il.KindCall:
		return mb.call(in)
	}

	switch in.Op {
	case il.OpLdcI4:
		v, err := safecast.Conv[int32](in.Int)
		if err != nil {
			return err
		}
		enc.ldcI4(v)
		mb.inf.top = types.Int32
	case il.OpLdcI8:
		enc.ldcI8(in.Int)
		mb.inf.top = types.Int64
	case il.OpLdcR4:
		enc.ldcR4(float32(in.Float))
		mb.inf.top = types.Float32
	case il.OpLdcR8:
		enc.ldcR8(in.Float)
		mb.inf.top = types.Float64
	case il.OpLdstr:
		enc.token(opLdstr, mb.e.b.UserString(in.Str))
		mb.inf.top = types.String
	case il.OpLdnull:
		enc.op(opLdnull)
	case il.OpDup:
		enc.op(opDup)
		mb.inf.top = top
	case il.OpLdloc:
		if err := enc.ldloc(mb.slots[in.Name]); err != nil {
			return err
		}
		mb.inf.lastLocal = in.Name
		mb.inf.top = mb.localType(in.Name)
	case il.OpStloc:
		mb.inf.stored(in.Name, top)
		return enc.stloc(mb.slots[in.Name])
	case il.OpLdarg:
		return mb.ldarg(in.Name)
	case il.OpStarg:
		return mb.starg(in.Name)
	case il.OpLdfld, il.OpLdsfld, il.OpStfld, il.OpStsfld:
		return mb.field(in, top)
	case il.OpNewobj:
		return mb.newobj(in.Name)
	case il.OpStelem:
		enc.op(opStelemRef)
	default:
		return fmt.Errorf("cannot encode %s", in)
	}
	return nil
}

// arg maps a parameter name to its argument slot; the receiver of an
// instance method is slot 0.
func (mb *methodBuilder) arg(name string) (int, types.Type, bool) {
	if mb.ctx.IsThis(name) {
		if mb.ctx.Class == nil {
			return 0, types.Unknown, true
		}
		return 0, types.Class(mb.ctx.Class.Name), true
	}
	i, t, ok := mb.ctx.Param(name)
	if !ok {
		return 0, types.Unknown, false
	}
	if !mb.ctx.Static {
		i++
	}
	return i, t, true
}

func (mb *methodBuilder) ldarg(name string) error {
	slot, t, ok := mb.arg(name)
	if !ok {
		mb.warn(diag.EmitUnresolvedField, "unknown argument "+name)
		mb.enc.op(opLdnull)
		return nil
	}
	mb.inf.lastParam = name
	mb.inf.top = t
	return mb.enc.ldarg(slot)
}

func (mb *methodBuilder) starg(name string) error {
	slot, _, ok := mb.arg(name)
	if !ok {
		mb.warn(diag.EmitUnresolvedField, "unknown argument "+name)
		mb.enc.op(opPop)
		return nil
	}
	return mb.enc.starg(slot)
}

// emitDefault pushes the zero value of t.
func (mb *methodBuilder) emitDefault(t types.Type) {
	emitConst(mb.enc, il.DefaultValue(t))
}

func emitConst(enc *encoder, in il.Instr) {
	switch in.Op {
	case il.OpLdcI4:
		enc.ldcI4(int32(in.Int))
	case il.OpLdcI8:
		enc.ldcI8(in.Int)
	case il.OpLdcR4:
		enc.ldcR4(float32(in.Float))
	case il.OpLdcR8:
		enc.ldcR8(in.Float)
	default:
		enc.op(opLdnull)
	}
}

// localType is the best known type of a local: a class observed flowing
// into it, then its declared type, then any other observed type.
func (mb *methodBuilder) localType(name string) types.Type {
	observed := mb.inf.locals[name]
	if observed.Kind == types.KindClass {
		return observed
	}
	if t, ok := mb.ctx.Local(name); ok && t.Known() {
		return t
	}
	return observed
}

// localsSig adds the StandAloneSig row for the method's locals. Locals with
// nothing known about them are int32.
func (mb *methodBuilder) localsSig() (metadata.Token, error) {
	if len(mb.locals) == 0 {
		return 0, nil
	}
	sigs := make([]metadata.SigType, len(mb.locals))
	var unknown []string
	for i, name := range mb.locals {
		t := mb.localType(name)
		if !t.Known() || t.IsVoid() {
			unknown = append(unknown, name)
			t = types.Int32
		}
		sigs[i] = mb.e.sigType(t)
	}
	if len(unknown) > 0 {
		mb.span.Point(trace.ScopeMethod, diag.EmitUnknownLocalType.ID(),
			mb.ctx.Method+": int32 slots for "+strings.Join(unknown, ", "))
	}
	blob, err := metadata.LocalsSig(sigs)
	if err != nil {
		return 0, err
	}
	return mb.e.b.AddStandAloneSig(blob), nil
}

package pe

import (
	"encoding/binary"
	"fmt"
	"math"

	"fortio.org/safecast"

	"cilforge/internal/il"
	"cilforge/internal/metadata"
)

// Single-byte opcodes; two-byte forms are prefixed with opPrefix.
const (
	opLdarg0    byte = 0x02
	opLdloc0    byte = 0x06
	opStloc0    byte = 0x0A
	opLdargS    byte = 0x0E
	opStargS    byte = 0x10
	opLdlocS    byte = 0x11
	opStlocS    byte = 0x13
	opLdnull    byte = 0x14
	opLdcI4M1   byte = 0x15
	opLdcI40    byte = 0x16
	opLdcI4S    byte = 0x1F
	opLdcI4     byte = 0x20
	opLdcI8     byte = 0x21
	opLdcR4     byte = 0x22
	opLdcR8     byte = 0x23
	opDup       byte = 0x25
	opPop       byte = 0x26
	opCall      byte = 0x28
	opRet       byte = 0x2A
	opBr        byte = 0x38
	opBrfalse   byte = 0x39
	opBrtrue    byte = 0x3A
	opAdd       byte = 0x58
	opSub       byte = 0x59
	opMul       byte = 0x5A
	opDiv       byte = 0x5B
	opRem       byte = 0x5D
	opAnd       byte = 0x5F
	opOr        byte = 0x60
	opNeg       byte = 0x65
	opCallvirt  byte = 0x6F
	opLdstr     byte = 0x72
	opNewobj    byte = 0x73
	opLdfld     byte = 0x7B
	opStfld     byte = 0x7D
	opLdsfld    byte = 0x7E
	opStsfld    byte = 0x80
	opStelemRef byte = 0xA2

	opPrefix byte = 0xFE
	opCeq    byte = 0x01
	opCgt    byte = 0x02
	opClt    byte = 0x04
	opLdarg  byte = 0x09
	opStarg  byte = 0x0B
	opLdloc  byte = 0x0C
	opStloc  byte = 0x0E
)

type fixup struct {
	at    int // offset of the 4-byte operand
	next  int // offset of the following instruction
	label string
}

// encoder writes one method's instruction stream. Branches always use the
// long form and are patched once every label is placed.
type encoder struct {
	code   []byte
	labels map[string]int
	fixups []fixup
}

func newEncoder() *encoder {
	return &encoder{labels: make(map[string]int)}
}

func (e *encoder) op(b ...byte) { e.code = append(e.code, b...) }

func (e *encoder) u16(v uint16) { e.code = binary.LittleEndian.AppendUint16(e.code, v) }

func (e *encoder) u32(v uint32) { e.code = binary.LittleEndian.AppendUint32(e.code, v) }

func (e *encoder) token(op byte, t metadata.Token) {
	e.op(op)
	e.u32(uint32(t))
}

func (e *encoder) ldcI4(v int32) {
	switch {
	case v >= -1 && v <= 8:
		e.op(byte(int32(opLdcI40) + v))
	case v >= math.MinInt8 && v <= math.MaxInt8:
		e.op(opLdcI4S, byte(int8(v)))
	default:
		e.op(opLdcI4)
		e.u32(uint32(v))
	}
}

func (e *encoder) ldcI8(v int64) {
	e.op(opLdcI8)
	e.code = binary.LittleEndian.AppendUint64(e.code, uint64(v))
}

func (e *encoder) ldcR4(v float32) {
	e.op(opLdcR4)
	e.u32(math.Float32bits(v))
}

func (e *encoder) ldcR8(v float64) {
	e.op(opLdcR8)
	e.code = binary.LittleEndian.AppendUint64(e.code, math.Float64bits(v))
}

// slot emits the short, .s or long form of a local or argument access.
func (e *encoder) slot(short byte, hasShort bool, sForm, long byte, n int) error {
	switch {
	case hasShort && n >= 0 && n <= 3:
		e.op(short + byte(n))
	case n >= 0 && n <= math.MaxUint8:
		e.op(sForm, byte(n))
	default:
		v, err := safecast.Conv[uint16](n)
		if err != nil {
			return fmt.Errorf("slot %d out of range", n)
		}
		e.op(opPrefix, long)
		e.u16(v)
	}
	return nil
}

func (e *encoder) ldloc(n int) error { return e.slot(opLdloc0, true, opLdlocS, opLdloc, n) }

func (e *encoder) stloc(n int) error { return e.slot(opStloc0, true, opStlocS, opStloc, n) }

func (e *encoder) ldarg(n int) error { return e.slot(opLdarg0, true, opLdargS, opLdarg, n) }

func (e *encoder) starg(n int) error { return e.slot(0, false, opStargS, opStarg, n) }

var arithCodes = map[il.Opcode][]byte{
	il.OpAdd: {opAdd},
	il.OpSub: {opSub},
	il.OpMul: {opMul},
	il.OpDiv: {opDiv},
	il.OpRem: {opRem},
	il.OpAnd: {opAnd},
	il.OpOr:  {opOr},
	il.OpNeg: {opNeg},
	il.OpCeq: {opPrefix, opCeq},
	il.OpClt: {opPrefix, opClt},
	il.OpCgt: {opPrefix, opCgt},
	// no single-opcode forms in the runtime
	il.OpCne: {opPrefix, opCeq, opLdcI40, opPrefix, opCeq},
	il.OpCle: {opPrefix, opCgt, opLdcI40, opPrefix, opCeq},
	il.OpCge: {opPrefix, opClt, opLdcI40, opPrefix, opCeq},
	il.OpNot: {opLdcI40, opPrefix, opCeq},
}

func (e *encoder) arith(op il.Opcode) error {
	b, ok := arithCodes[op]
	if !ok {
		return fmt.Errorf("no encoding for %s", op)
	}
	e.op(b...)
	return nil
}

func (e *encoder) branch(op il.Opcode, label string) error {
	switch op {
	case il.OpBr:
		e.op(opBr)
	case il.OpBrfalse:
		e.op(opBrfalse)
	case il.OpBrtrue:
		e.op(opBrtrue)
	default:
		return fmt.Errorf("no encoding for branch %s", op)
	}
	at := len(e.code)
	e.u32(0)
	e.fixups = append(e.fixups, fixup{at: at, next: len(e.code), label: label})
	return nil
}

func (e *encoder) label(name string) { e.labels[name] = len(e.code) }

// resolve patches branch offsets and returns the labels that were never
// placed; their branches fall through to the next instruction.
func (e *encoder) resolve() []string {
	var missing []string
	for _, f := range e.fixups {
		target, ok := e.labels[f.label]
		if !ok {
			missing = append(missing, f.label)
			continue
		}
		binary.LittleEndian.PutUint32(e.code[f.at:], uint32(int32(target-f.next)))
	}
	return missing
}

// Method header limits for the tiny format.
const (
	tinyMaxCode  = 64
	tinyMaxStack = 8
	fatFlags     = 0x3003 // fat format, header size 3 dwords
	initLocals   = 0x0010
)

// appendBody appends a method header and code to dst and returns the offset
// of the header. The tiny header is used when the body has no locals, fits in
// 63 bytes and needs at most 8 slots; fat bodies start on a 4-byte boundary.
func appendBody(dst, code []byte, maxStack int, locals metadata.Token) ([]byte, int, error) {
	size, err := safecast.Conv[uint32](len(code))
	if err != nil {
		return nil, 0, err
	}
	if locals.IsNil() && len(code) < tinyMaxCode && maxStack <= tinyMaxStack {
		at := len(dst)
		dst = append(dst, byte(size<<2|0x02))
		return append(dst, code...), at, nil
	}
	for len(dst)%4 != 0 {
		dst = append(dst, 0)
	}
	stack, err := safecast.Conv[uint16](maxStack)
	if err != nil {
		return nil, 0, err
	}
	flags := uint16(fatFlags)
	if !locals.IsNil() {
		flags |= initLocals
	}
	at := len(dst)
	dst = binary.LittleEndian.AppendUint16(dst, flags)
	dst = binary.LittleEndian.AppendUint16(dst, stack)
	dst = binary.LittleEndian.AppendUint32(dst, size)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(locals))
	return append(dst, code...), at, nil
}

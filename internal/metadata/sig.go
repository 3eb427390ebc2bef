package metadata

import (
	"fmt"

	"fortio.org/safecast"
)

// Element type codes used in signatures.
const (
	ElemVoid      byte = 0x01
	ElemString    byte = 0x0e
	ElemValueType byte = 0x11
	ElemClass     byte = 0x12
	ElemObject    byte = 0x1c

	sigDefault byte = 0x00
	sigHasThis byte = 0x20
	sigField   byte = 0x06
	sigLocals  byte = 0x07
)

// SigType is one type inside a signature: a primitive element code, or
// CLASS / VALUETYPE followed by a TypeDefOrRef token.
type SigType struct {
	Code byte
	Ref  Token
}

func Prim(code byte) SigType { return SigType{Code: code} }

func ClassOf(ref Token) SigType { return SigType{Code: ElemClass, Ref: ref} }

func ValueTypeOf(ref Token) SigType { return SigType{Code: ElemValueType, Ref: ref} }

func (s SigType) IsVoid() bool { return s.Code == ElemVoid }

func (s SigType) appendTo(dst []byte) ([]byte, error) {
	dst = append(dst, s.Code)
	if s.Code != ElemClass && s.Code != ElemValueType {
		return dst, nil
	}
	coded, err := EncodeTypeDefOrRef(s.Ref)
	if err != nil {
		return dst, err
	}
	return AppendCompressed(dst, coded)
}

func appendTypes(dst []byte, ts []SigType) ([]byte, error) {
	n, err := safecast.Conv[uint32](len(ts))
	if err != nil {
		return nil, err
	}
	if dst, err = AppendCompressed(dst, n); err != nil {
		return nil, err
	}
	for _, t := range ts {
		if dst, err = t.appendTo(dst); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

// MethodSig encodes a method definition or reference signature.
func MethodSig(hasThis bool, ret SigType, params []SigType) ([]byte, error) {
	conv := sigDefault
	if hasThis {
		conv = sigHasThis
	}
	n, err := safecast.Conv[uint32](len(params))
	if err != nil {
		return nil, err
	}
	b, err := AppendCompressed([]byte{conv}, n)
	if err != nil {
		return nil, err
	}
	if b, err = ret.appendTo(b); err != nil {
		return nil, fmt.Errorf("return type: %w", err)
	}
	for i, p := range params {
		if b, err = p.appendTo(b); err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
	}
	return b, nil
}

func FieldSig(t SigType) ([]byte, error) {
	return t.appendTo([]byte{sigField})
}

func LocalsSig(locals []SigType) ([]byte, error) {
	return appendTypes([]byte{sigLocals}, locals)
}

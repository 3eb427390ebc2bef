package metadata

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"
)

// Stream is one stream header of a metadata root.
type Stream struct {
	Name   string
	Offset uint32
	Size   uint32
}

// Metadata is a decoded metadata root, limited to the tables Builder writes.
type Metadata struct {
	Version   string
	HeapSizes byte
	Streams   []Stream
	Rows      map[TableID]uint32

	Module        []ModuleRow
	TypeRef       []TypeRefRow
	TypeDef       []TypeDefRow
	Field         []FieldRow
	MethodDef     []MethodDefRow
	Param         []ParamRow
	MemberRef     []MemberRefRow
	StandAloneSig []uint32
	Assembly      []AssemblyRow
	AssemblyRef   []AssemblyRefRow

	strings, us, guids, blobs []byte
}

var errTruncated = errors.New("metadata truncated")

type in struct {
	b   []byte
	pos int
	err error
}

func (r *in) take(n int) []byte {
	if r.err != nil || r.pos+n > len(r.b) {
		r.err = errTruncated
		return make([]byte, n)
	}
	p := r.b[r.pos : r.pos+n]
	r.pos += n
	return p
}

func (r *in) u8() byte    { return r.take(1)[0] }
func (r *in) u16() uint16 { return binary.LittleEndian.Uint16(r.take(2)) }
func (r *in) u32() uint32 { return binary.LittleEndian.Uint32(r.take(4)) }
func (r *in) u64() uint64 { return binary.LittleEndian.Uint64(r.take(8)) }

func (r *in) idx(wide bool) uint32 {
	if wide {
		return r.u32()
	}
	return uint32(r.u16())
}

// Read decodes a metadata root as produced by Serialize.
func Read(root []byte) (*Metadata, error) {
	r := &in{b: root}
	if sig := r.u32(); sig != metadataSignature {
		return nil, fmt.Errorf("bad metadata signature %#x", sig)
	}
	r.take(8)
	n := int(r.u32())
	ver := r.take(n)
	m := &Metadata{Rows: make(map[TableID]uint32)}
	for i, c := range ver {
		if c == 0 {
			ver = ver[:i]
			break
		}
	}
	m.Version = string(ver)
	r.u16()
	count := int(r.u16())
	data := make(map[string][]byte, count)
	for range count {
		s := Stream{Offset: r.u32(), Size: r.u32()}
		start := r.pos
		for r.err == nil && r.u8() != 0 {
		}
		s.Name = string(root[start : r.pos-1])
		r.take((4 - (r.pos-start)%4) % 4)
		if r.err != nil {
			return nil, r.err
		}
		end := int(s.Offset) + int(s.Size)
		if end > len(root) {
			return nil, fmt.Errorf("stream %s: %w", s.Name, errTruncated)
		}
		data[s.Name] = root[s.Offset:end]
		m.Streams = append(m.Streams, s)
	}
	m.strings, m.us, m.guids, m.blobs = data["#Strings"], data["#US"], data["#GUID"], data["#Blob"]
	tables, ok := data["#~"]
	if !ok {
		return nil, errors.New("no #~ stream")
	}
	if err := m.readTables(tables); err != nil {
		return nil, err
	}
	return m, nil
}

// RowCount mirrors Builder.RowCount for the decoded tables.
func (m *Metadata) RowCount(t TableID) int { return int(m.Rows[t]) }

func (m *Metadata) readTables(data []byte) error {
	r := &in{b: data}
	r.take(6)
	m.HeapSizes = r.u8()
	r.u8()
	valid := r.u64()
	r.u64()
	for t := range 64 {
		if valid&(1<<t) == 0 {
			continue
		}
		id := TableID(t)
		known := false
		for _, k := range tableOrder {
			known = known || k == id
		}
		if !known {
			return fmt.Errorf("unsupported table %s", id)
		}
		m.Rows[id] = r.u32()
	}
	if r.err != nil {
		return r.err
	}

	wideStr, wideGUID, wideBlob := m.HeapSizes&0x01 != 0, m.HeapSizes&0x02 != 0, m.HeapSizes&0x04 != 0
	wideTable := func(t TableID) bool { return m.Rows[t] >= 1<<16 }
	coded := func(k codedKind) Token {
		wide := false
		for _, t := range k.tables {
			wide = wide || m.Rows[t] >= 1<<(16-k.bits)
		}
		v := r.idx(wide)
		tag := v & (1<<k.bits - 1)
		if int(tag) >= len(k.tables) || v>>k.bits == 0 {
			return 0
		}
		return MakeToken(k.tables[tag], v>>k.bits)
	}

	for range m.Rows[TableModule] {
		r.u16()
		row := ModuleRow{Name: r.idx(wideStr), Mvid: r.idx(wideGUID)}
		r.idx(wideGUID)
		r.idx(wideGUID)
		m.Module = append(m.Module, row)
	}
	for range m.Rows[TableTypeRef] {
		m.TypeRef = append(m.TypeRef, TypeRefRow{Scope: coded(resolutionScope), Name: r.idx(wideStr), Namespace: r.idx(wideStr)})
	}
	for range m.Rows[TableTypeDef] {
		m.TypeDef = append(m.TypeDef, TypeDefRow{
			Flags:      r.u32(),
			Name:       r.idx(wideStr),
			Namespace:  r.idx(wideStr),
			Extends:    coded(typeDefOrRef),
			FieldList:  r.idx(wideTable(TableField)),
			MethodList: r.idx(wideTable(TableMethodDef)),
		})
	}
	for range m.Rows[TableField] {
		m.Field = append(m.Field, FieldRow{Flags: r.u16(), Name: r.idx(wideStr), Signature: r.idx(wideBlob)})
	}
	for range m.Rows[TableMethodDef] {
		m.MethodDef = append(m.MethodDef, MethodDefRow{
			RVA:       r.u32(),
			ImplFlags: r.u16(),
			Flags:     r.u16(),
			Name:      r.idx(wideStr),
			Signature: r.idx(wideBlob),
			ParamList: r.idx(wideTable(TableParam)),
		})
	}
	for range m.Rows[TableParam] {
		m.Param = append(m.Param, ParamRow{Flags: r.u16(), Sequence: r.u16(), Name: r.idx(wideStr)})
	}
	for range m.Rows[TableMemberRef] {
		m.MemberRef = append(m.MemberRef, MemberRefRow{Parent: coded(memberRefParent), Name: r.idx(wideStr), Signature: r.idx(wideBlob)})
	}
	for range m.Rows[TableStandAloneSig] {
		m.StandAloneSig = append(m.StandAloneSig, r.idx(wideBlob))
	}
	if m.Rows[TableModuleRef] > 0 || m.Rows[TableTypeSpec] > 0 {
		return errors.New("ModuleRef and TypeSpec rows are not decoded")
	}
	readVersion := func() Version {
		return Version{Major: r.u16(), Minor: r.u16(), Build: r.u16(), Revision: r.u16()}
	}
	for range m.Rows[TableAssembly] {
		m.Assembly = append(m.Assembly, AssemblyRow{
			HashAlgID: r.u32(),
			Version:   readVersion(),
			Flags:     r.u32(),
			PublicKey: r.idx(wideBlob),
			Name:      r.idx(wideStr),
			Culture:   r.idx(wideStr),
		})
	}
	for range m.Rows[TableAssemblyRef] {
		m.AssemblyRef = append(m.AssemblyRef, AssemblyRefRow{
			Version:   readVersion(),
			Flags:     r.u32(),
			Token:     r.idx(wideBlob),
			Name:      r.idx(wideStr),
			Culture:   r.idx(wideStr),
			HashValue: r.idx(wideBlob),
		})
	}
	return r.err
}

// String returns the #Strings entry at off.
func (m *Metadata) String(off uint32) string {
	if int(off) >= len(m.strings) {
		return ""
	}
	s := m.strings[off:]
	for i, c := range s {
		if c == 0 {
			return string(s[:i])
		}
	}
	return string(s)
}

// Blob returns the #Blob entry at off.
func (m *Metadata) Blob(off uint32) ([]byte, error) {
	if int(off) >= len(m.blobs) {
		return nil, fmt.Errorf("blob offset %#x out of range", off)
	}
	n, k, err := ReadCompressed(m.blobs[off:])
	if err != nil {
		return nil, err
	}
	start := int(off) + k
	if start+int(n) > len(m.blobs) {
		return nil, fmt.Errorf("blob at %#x: %w", off, errTruncated)
	}
	return m.blobs[start : start+int(n)], nil
}

// UserString decodes the literal behind an ldstr token.
func (m *Metadata) UserString(tok Token) (string, error) {
	off := tok.Row()
	if int(off) >= len(m.us) {
		return "", fmt.Errorf("user string %#x out of range", off)
	}
	n, k, err := ReadCompressed(m.us[off:])
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	start := int(off) + k
	if start+int(n) > len(m.us) {
		return "", errTruncated
	}
	raw := m.us[start : start+int(n)-1]
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(raw[2*i:])
	}
	return string(utf16.Decode(units)), nil
}

// MethodName is the name of MethodDef row (1-based).
func (m *Metadata) MethodName(row uint32) string {
	if row == 0 || int(row) > len(m.MethodDef) {
		return ""
	}
	return m.String(m.MethodDef[row-1].Name)
}

package metadata

import (
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"
)

// out is a little-endian byte sink.
type out struct {
	b []byte
}

func (o *out) u8(v byte)    { o.b = append(o.b, v) }
func (o *out) u16(v uint16) { o.b = binary.LittleEndian.AppendUint16(o.b, v) }
func (o *out) u32(v uint32) { o.b = binary.LittleEndian.AppendUint32(o.b, v) }
func (o *out) u64(v uint64) { o.b = binary.LittleEndian.AppendUint64(o.b, v) }

// idx writes a heap or table index at the chosen width.
func (o *out) idx(v uint32, wide bool) {
	if wide {
		o.u32(v)
		return
	}
	o.u16(uint16(v))
}

func (o *out) align4() {
	for len(o.b)%4 != 0 {
		o.b = append(o.b, 0)
	}
}

// layout holds the index widths derived from heap sizes and row counts.
type layout struct {
	b *Builder

	wideStr, wideGUID, wideBlob bool
}

func (l layout) wideTable(t TableID) bool {
	return l.b.RowCount(t) >= 1<<16
}

func (l layout) wideCoded(k codedKind) bool {
	limit := 1 << (16 - k.bits)
	for _, t := range k.tables {
		if l.b.RowCount(t) >= limit {
			return true
		}
	}
	return false
}

func (l layout) heapSizes() byte {
	var f byte
	if l.wideStr {
		f |= 0x01
	}
	if l.wideGUID {
		f |= 0x02
	}
	if l.wideBlob {
		f |= 0x04
	}
	return f
}

// Version is the version string stored in every metadata root.
func Version() string { return metadataVersion }

// Serialize writes the metadata root with its five streams.
func (b *Builder) Serialize() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	tables, err := b.tablesStream()
	if err != nil {
		return nil, err
	}
	streams := []struct {
		name string
		data []byte
	}{
		{"#~", tables},
		{"#Strings", b.Strings.Bytes()},
		{"#US", b.UserStrings.Bytes()},
		{"#GUID", b.GUIDs.Bytes()},
		{"#Blob", b.Blobs.Bytes()},
	}

	var o out
	o.u32(metadataSignature)
	o.u16(1)
	o.u16(1)
	o.u32(0)
	ver := []byte(metadataVersion)
	verLen := (len(ver) + 1 + 3) &^ 3
	o.u32(uint32(verLen))
	o.b = append(o.b, ver...)
	o.b = append(o.b, make([]byte, verLen-len(ver))...)
	o.u16(0)
	o.u16(uint16(len(streams)))

	headerSize := len(o.b)
	for _, s := range streams {
		headerSize += 8 + (len(s.name)+1+3)&^3
	}
	offset := headerSize
	for _, s := range streams {
		size := (len(s.data) + 3) &^ 3
		off, err := safecast.Conv[uint32](offset)
		if err != nil {
			return nil, err
		}
		sz, err := safecast.Conv[uint32](size)
		if err != nil {
			return nil, err
		}
		o.u32(off)
		o.u32(sz)
		o.b = append(o.b, s.name...)
		o.u8(0)
		o.align4()
		offset += size
	}
	for _, s := range streams {
		o.b = append(o.b, s.data...)
		o.align4()
	}
	return o.b, nil
}

func (b *Builder) tablesStream() ([]byte, error) {
	l := layout{
		b:        b,
		wideStr:  b.Strings.Len() >= 1<<16,
		wideGUID: b.GUIDs.Len()/16 >= 1<<16,
		wideBlob: b.Blobs.Len() >= 1<<16,
	}
	var valid uint64
	for _, t := range tableOrder {
		if b.RowCount(t) > 0 {
			valid |= 1 << t
		}
	}

	var o out
	o.u32(0)
	o.u8(2)
	o.u8(0)
	o.u8(l.heapSizes())
	o.u8(1)
	o.u64(valid)
	o.u64(sortedTablesMask)
	for _, t := range tableOrder {
		if n := b.RowCount(t); n > 0 {
			rows, err := safecast.Conv[uint32](n)
			if err != nil {
				return nil, err
			}
			o.u32(rows)
		}
	}

	coded := func(k codedKind, t Token) error {
		v, err := k.encode(t)
		if err != nil {
			return err
		}
		o.idx(v, l.wideCoded(k))
		return nil
	}

	for _, r := range b.Module {
		o.u16(0)
		o.idx(r.Name, l.wideStr)
		o.idx(r.Mvid, l.wideGUID)
		o.idx(0, l.wideGUID)
		o.idx(0, l.wideGUID)
	}
	for _, r := range b.TypeRef {
		if err := coded(resolutionScope, r.Scope); err != nil {
			return nil, fmt.Errorf("TypeRef: %w", err)
		}
		o.idx(r.Name, l.wideStr)
		o.idx(r.Namespace, l.wideStr)
	}
	for _, r := range b.TypeDef {
		o.u32(r.Flags)
		o.idx(r.Name, l.wideStr)
		o.idx(r.Namespace, l.wideStr)
		if err := coded(typeDefOrRef, r.Extends); err != nil {
			return nil, fmt.Errorf("TypeDef: %w", err)
		}
		o.idx(r.FieldList, l.wideTable(TableField))
		o.idx(r.MethodList, l.wideTable(TableMethodDef))
	}
	for _, r := range b.Field {
		o.u16(r.Flags)
		o.idx(r.Name, l.wideStr)
		o.idx(r.Signature, l.wideBlob)
	}
	for _, r := range b.MethodDef {
		o.u32(r.RVA)
		o.u16(r.ImplFlags)
		o.u16(r.Flags)
		o.idx(r.Name, l.wideStr)
		o.idx(r.Signature, l.wideBlob)
		o.idx(r.ParamList, l.wideTable(TableParam))
	}
	for _, r := range b.Param {
		o.u16(r.Flags)
		o.u16(r.Sequence)
		o.idx(r.Name, l.wideStr)
	}
	for _, r := range b.MemberRef {
		if err := coded(memberRefParent, r.Parent); err != nil {
			return nil, fmt.Errorf("MemberRef: %w", err)
		}
		o.idx(r.Name, l.wideStr)
		o.idx(r.Signature, l.wideBlob)
	}
	for _, sig := range b.StandAloneSig {
		o.idx(sig, l.wideBlob)
	}
	for _, r := range b.Assembly {
		o.u32(r.HashAlgID)
		o.u16(r.Version.Major)
		o.u16(r.Version.Minor)
		o.u16(r.Version.Build)
		o.u16(r.Version.Revision)
		o.u32(r.Flags)
		o.idx(r.PublicKey, l.wideBlob)
		o.idx(r.Name, l.wideStr)
		o.idx(r.Culture, l.wideStr)
	}
	for _, r := range b.AssemblyRef {
		o.u16(r.Version.Major)
		o.u16(r.Version.Minor)
		o.u16(r.Version.Build)
		o.u16(r.Version.Revision)
		o.u32(r.Flags)
		o.idx(r.Token, l.wideBlob)
		o.idx(r.Name, l.wideStr)
		o.idx(r.Culture, l.wideStr)
		o.idx(r.HashValue, l.wideBlob)
	}
	o.align4()
	return o.b, nil
}

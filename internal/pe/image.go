package pe

import (
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"

	"cilforge/internal/metadata"
)

// Image layout. .text starts with the import address table and the CLI
// header, so method bodies begin at a fixed RVA known before any metadata
// row is written.
const (
	imageBase        = 0x400000
	sectionAlignment = 0x2000
	fileAlignment    = 0x200
	headersSize      = 0x200
	peHeaderOffset   = 0x80

	textRVA       = 0x2000
	iatSize       = 8
	cliHeaderSize = 72
	bodiesRVA     = textRVA + iatSize + cliHeaderSize

	// Runtime version in the CLI header.
	RuntimeMajor = 2
	RuntimeMinor = 5

	optionalHeaderSize = 0xE0
	sectionHeaderSize  = 40
	importDescSize     = 20

	machineI386          = 0x014C
	imageCharacteristics = 0x0102 // executable, 32-bit machine
	magicPE32            = 0x010B
	subsystemConsole     = 3
	dllCharacteristics   = 0x8540 // dynamic base, NX compatible, no SEH, terminal server aware
	textCharacteristics  = 0x60000020
	relocCharacteristics = 0x42000040
	cliFlagsILOnly       = 0x00000001
	relocHighLow         = 3
)

const (
	dirImport    = 1
	dirBaseReloc = 5
	dirIAT       = 12
	dirCLR       = 14
	dirCount     = 16
)

const (
	importedFunc = "_CorExeMain"
	importedDLL  = "mscoree.dll"
	dosMessage   = "This program cannot be run in DOS mode.\r\r\n$"
)

var dosStub = []byte{0x0e, 0x1f, 0xba, 0x0e, 0x00, 0xb4, 0x09, 0xcd, 0x21, 0xb8, 0x01, 0x4c, 0xcd, 0x21}

type buf struct{ b []byte }

func (w *buf) u8(v byte)    { w.b = append(w.b, v) }
func (w *buf) u16(v uint16) { w.b = binary.LittleEndian.AppendUint16(w.b, v) }
func (w *buf) u32(v uint32) { w.b = binary.LittleEndian.AppendUint32(w.b, v) }
func (w *buf) raw(p []byte) { w.b = append(w.b, p...) }
func (w *buf) str(s string) { w.b = append(w.b, s...) }
func (w *buf) pad(to int)   { w.b = append(w.b, make([]byte, max(to-len(w.b), 0))...) }
func (w *buf) align(n int)  { w.pad((len(w.b) + n - 1) / n * n) }

func (w *buf) dir(rva, size uint32) {
	w.u32(rva)
	w.u32(size)
}

func alignUp(v, n uint32) uint32 { return (v + n - 1) / n * n }

// textLayout holds section-relative offsets inside .text.
type textLayout struct {
	metadata, imports, ilt, hintName, dllName, stub, size uint32
}

// writeImage assembles the PE file around the method bodies and the
// serialized metadata root.
func writeImage(bodies, md []byte, entry metadata.Token) ([]byte, error) {
	total, err := safecast.Conv[uint32](iatSize + cliHeaderSize + len(bodies) + len(md) + 0x100)
	if err != nil || total > 0x7FFFFFFF {
		return nil, fmt.Errorf("image too large")
	}

	// .text contents
	var t buf
	t.pad(iatSize + cliHeaderSize)
	t.raw(bodies)
	t.align(4)
	var l textLayout
	l.metadata = uint32(len(t.b))
	t.raw(md)
	t.align(4)
	l.imports = uint32(len(t.b))
	t.pad(len(t.b) + 2*importDescSize)
	l.ilt = uint32(len(t.b))
	t.pad(len(t.b) + 8)
	l.hintName = uint32(len(t.b))
	t.u16(0)
	t.str(importedFunc)
	t.u8(0)
	t.align(2)
	l.dllName = uint32(len(t.b))
	t.str(importedDLL)
	t.u8(0)
	// the jump operand must be 4-byte aligned
	t.align(4)
	t.pad(len(t.b) + 2)
	l.stub = uint32(len(t.b))
	t.u16(0x25FF)
	t.u32(imageBase + textRVA) // IAT slot
	l.size = uint32(len(t.b))

	text := t.b
	rva := func(off uint32) uint32 { return textRVA + off }
	binary.LittleEndian.PutUint32(text[0:], rva(l.hintName))
	binary.LittleEndian.PutUint32(text[l.ilt:], rva(l.hintName))
	imp := text[l.imports:]
	binary.LittleEndian.PutUint32(imp[0:], rva(l.ilt))
	binary.LittleEndian.PutUint32(imp[12:], rva(l.dllName))
	binary.LittleEndian.PutUint32(imp[16:], textRVA)

	var cli buf
	cli.u32(cliHeaderSize)
	cli.u16(RuntimeMajor)
	cli.u16(RuntimeMinor)
	cli.dir(rva(l.metadata), uint32(len(md)))
	cli.u32(cliFlagsILOnly)
	cli.u32(uint32(entry))
	cli.pad(cliHeaderSize)
	copy(text[iatSize:], cli.b)

	// .reloc: one block fixing up the stub's jump operand
	relocRVA := alignUp(textRVA+l.size, sectionAlignment)
	fixAt := rva(l.stub) + 2
	var r buf
	r.u32(fixAt &^ 0xFFF)
	r.u32(12)
	r.u16(relocHighLow<<12 | uint16(fixAt&0xFFF))
	r.u16(0)
	reloc := r.b

	textRaw := alignUp(l.size, fileAlignment)
	relocRaw := alignUp(uint32(len(reloc)), fileAlignment)

	var h buf
	h.raw(dosHeader())
	h.str("PE\x00\x00")
	// COFF header
	h.u16(machineI386)
	h.u16(2)
	h.u32(0) // timestamp, zero for reproducible output
	h.u32(0)
	h.u32(0)
	h.u16(optionalHeaderSize)
	h.u16(imageCharacteristics)
	// optional header
	h.u16(magicPE32)
	h.u8(8)
	h.u8(0)
	h.u32(textRaw)
	h.u32(relocRaw)
	h.u32(0)
	h.u32(rva(l.stub))
	h.u32(textRVA)
	h.u32(relocRVA)
	h.u32(imageBase)
	h.u32(sectionAlignment)
	h.u32(fileAlignment)
	h.u16(4) // OS version
	h.u16(0)
	h.u16(0) // image version
	h.u16(0)
	h.u16(4) // subsystem version
	h.u16(0)
	h.u32(0)
	h.u32(alignUp(relocRVA+uint32(len(reloc)), sectionAlignment))
	h.u32(headersSize)
	h.u32(0) // checksum
	h.u16(subsystemConsole)
	h.u16(dllCharacteristics)
	h.u32(0x100000) // stack reserve
	h.u32(0x1000)
	h.u32(0x100000) // heap reserve
	h.u32(0x1000)
	h.u32(0) // loader flags
	h.u32(dirCount)
	for i := range dirCount {
		switch i {
		case dirImport:
			h.dir(rva(l.imports), 2*importDescSize)
		case dirBaseReloc:
			h.dir(relocRVA, uint32(len(reloc)))
		case dirIAT:
			h.dir(textRVA, iatSize)
		case dirCLR:
			h.dir(textRVA+iatSize, cliHeaderSize)
		default:
			h.dir(0, 0)
		}
	}
	section(&h, ".text", l.size, textRVA, textRaw, headersSize, textCharacteristics)
	section(&h, ".reloc", uint32(len(reloc)), relocRVA, relocRaw, headersSize+textRaw, relocCharacteristics)
	h.pad(headersSize)

	h.raw(text)
	h.pad(int(headersSize + textRaw))
	h.raw(reloc)
	h.pad(int(headersSize + textRaw + relocRaw))
	return h.b, nil
}

func section(h *buf, name string, virtualSize, rva, rawSize, rawPtr, characteristics uint32) {
	var n [8]byte
	copy(n[:], name)
	h.raw(n[:])
	h.u32(virtualSize)
	h.u32(rva)
	h.u32(rawSize)
	h.u32(rawPtr)
	h.u32(0) // relocations
	h.u32(0) // line numbers
	h.u16(0)
	h.u16(0)
	h.u32(characteristics)
}

func dosHeader() []byte {
	d := make([]byte, peHeaderOffset)
	copy(d, "MZ")
	binary.LittleEndian.PutUint16(d[0x02:], 0x90)
	binary.LittleEndian.PutUint16(d[0x04:], 3)
	binary.LittleEndian.PutUint16(d[0x08:], 4)
	binary.LittleEndian.PutUint16(d[0x0C:], 0xFFFF)
	binary.LittleEndian.PutUint16(d[0x10:], 0xB8)
	binary.LittleEndian.PutUint16(d[0x18:], 0x40)
	binary.LittleEndian.PutUint32(d[0x3C:], peHeaderOffset)
	copy(d[0x40:], dosStub)
	copy(d[0x40+len(dosStub):], dosMessage)
	return d
}

package pe

import (
	"bytes"
	pefile "debug/pe"
	"encoding/binary"
	"errors"
	"fmt"

	"cilforge/internal/metadata"
)

// Inspection is what `cilforge inspect` reports about an image.
type Inspection struct {
	Machine    uint16
	ImageBase  uint32
	Sections   []string
	RuntimeMaj uint16
	RuntimeMin uint16
	Flags      uint32
	EntryPoint metadata.Token
	Metadata   *metadata.Metadata
}

// Inspect decodes a PE32 image with a CLI header and its metadata root.
// It accepts images built elsewhere as long as they only use the tables
// the metadata reader knows.
func Inspect(data []byte) (*Inspection, error) {
	f, err := pefile.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("pe: %w", err)
	}
	defer f.Close()
	oh, ok := f.OptionalHeader.(*pefile.OptionalHeader32)
	if !ok {
		return nil, errors.New("pe: not a PE32 image")
	}
	clr := oh.DataDirectory[pefile.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR]
	if clr.VirtualAddress == 0 {
		return nil, errors.New("pe: no CLI header")
	}
	cli, err := readRVA(f, clr.VirtualAddress, clr.Size)
	if err != nil {
		return nil, err
	}
	if len(cli) < cliHeaderSize {
		return nil, fmt.Errorf("pe: CLI header of %d bytes", len(cli))
	}
	ins := &Inspection{
		Machine:    f.Machine,
		ImageBase:  oh.ImageBase,
		RuntimeMaj: binary.LittleEndian.Uint16(cli[4:]),
		RuntimeMin: binary.LittleEndian.Uint16(cli[6:]),
		Flags:      binary.LittleEndian.Uint32(cli[16:]),
		EntryPoint: metadata.Token(binary.LittleEndian.Uint32(cli[20:])),
	}
	for _, s := range f.Sections {
		ins.Sections = append(ins.Sections, s.Name)
	}
	root, err := readRVA(f, binary.LittleEndian.Uint32(cli[8:]), binary.LittleEndian.Uint32(cli[12:]))
	if err != nil {
		return nil, err
	}
	if ins.Metadata, err = metadata.Read(root); err != nil {
		return nil, fmt.Errorf("pe: metadata: %w", err)
	}
	return ins, nil
}

func readRVA(f *pefile.File, rva, size uint32) ([]byte, error) {
	for _, s := range f.Sections {
		if rva < s.VirtualAddress || rva+size > s.VirtualAddress+s.VirtualSize {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return nil, fmt.Errorf("pe: section %s: %w", s.Name, err)
		}
		off := rva - s.VirtualAddress
		if int(off+size) > len(data) {
			return nil, fmt.Errorf("pe: %#x+%d outside section %s", rva, size, s.Name)
		}
		return data[off : off+size], nil
	}
	return nil, fmt.Errorf("pe: rva %#x not mapped", rva)
}

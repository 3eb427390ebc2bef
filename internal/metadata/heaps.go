package metadata

import (
	"fmt"
	"unicode/utf16"

	"fortio.org/safecast"
	"golang.org/x/text/unicode/norm"
)

// StringHeap is the #Strings heap: NUL-terminated UTF-8, deduplicated.
// Offset 0 is the empty string.
type StringHeap struct {
	buf   []byte
	index map[string]uint32
}

func newStringHeap() *StringHeap {
	return &StringHeap{buf: []byte{0}, index: map[string]uint32{"": 0}}
}

// Add returns the offset of s. Names are stored in NFC.
func (h *StringHeap) Add(s string) (uint32, error) {
	s = norm.NFC.String(s)
	if off, ok := h.index[s]; ok {
		return off, nil
	}
	off, err := safecast.Conv[uint32](len(h.buf))
	if err != nil {
		return 0, fmt.Errorf("#Strings heap overflow: %w", err)
	}
	h.buf = append(h.buf, s...)
	h.buf = append(h.buf, 0)
	h.index[s] = off
	return off, nil
}

func (h *StringHeap) Len() int { return len(h.buf) }

func (h *StringHeap) Bytes() []byte { return h.buf }

// UserStringHeap is the #US heap of ldstr literals: compressed length,
// UTF-16LE code units, then a trailing flag byte.
type UserStringHeap struct {
	buf   []byte
	index map[string]uint32
}

func newUserStringHeap() *UserStringHeap {
	return &UserStringHeap{buf: []byte{0}, index: map[string]uint32{}}
}

func (h *UserStringHeap) Add(s string) (uint32, error) {
	s = norm.NFC.String(s)
	if off, ok := h.index[s]; ok {
		return off, nil
	}
	off, err := safecast.Conv[uint32](len(h.buf))
	if err != nil {
		return 0, fmt.Errorf("#US heap overflow: %w", err)
	}
	units := utf16.Encode([]rune(s))
	size, err := safecast.Conv[uint32](len(units)*2 + 1)
	if err != nil {
		return 0, fmt.Errorf("string literal too long: %w", err)
	}
	if h.buf, err = AppendCompressed(h.buf, size); err != nil {
		return 0, err
	}
	var flag byte
	for _, u := range units {
		h.buf = append(h.buf, byte(u), byte(u>>8))
		if needsFlag(u) {
			flag = 1
		}
	}
	h.buf = append(h.buf, flag)
	if off > 0xFFFFFF {
		return 0, fmt.Errorf("#US heap exceeds token range")
	}
	h.index[s] = off
	return off, nil
}

// needsFlag marks code units the runtime cannot treat as plain ASCII.
func needsFlag(u uint16) bool {
	if u>>8 != 0 {
		return true
	}
	switch b := byte(u); {
	case b >= 0x01 && b <= 0x08, b >= 0x0E && b <= 0x1F, b == 0x27, b == 0x2D, b == 0x7F:
		return true
	}
	return false
}

func (h *UserStringHeap) Len() int { return len(h.buf) }

func (h *UserStringHeap) Bytes() []byte { return h.buf }

// GUIDHeap is the #GUID heap; indices are 1-based.
type GUIDHeap struct {
	buf []byte
}

func (h *GUIDHeap) Add(g [16]byte) (uint32, error) {
	h.buf = append(h.buf, g[:]...)
	n, err := safecast.Conv[uint32](len(h.buf) / 16)
	if err != nil {
		return 0, fmt.Errorf("#GUID heap overflow: %w", err)
	}
	return n, nil
}

// Set replaces the GUID at 1-based index i.
func (h *GUIDHeap) Set(i uint32, g [16]byte) error {
	if i == 0 || int(i)*16 > len(h.buf) {
		return fmt.Errorf("#GUID index %d out of range", i)
	}
	copy(h.buf[(i-1)*16:], g[:])
	return nil
}

func (h *GUIDHeap) Len() int { return len(h.buf) }

func (h *GUIDHeap) Bytes() []byte { return h.buf }

// BlobHeap is the #Blob heap: compressed length then raw bytes, deduplicated.
type BlobHeap struct {
	buf   []byte
	index map[string]uint32
}

func newBlobHeap() *BlobHeap {
	return &BlobHeap{buf: []byte{0}, index: map[string]uint32{"": 0}}
}

func (h *BlobHeap) Add(b []byte) (uint32, error) {
	key := string(b)
	if off, ok := h.index[key]; ok {
		return off, nil
	}
	off, err := safecast.Conv[uint32](len(h.buf))
	if err != nil {
		return 0, fmt.Errorf("#Blob heap overflow: %w", err)
	}
	size, err := safecast.Conv[uint32](len(b))
	if err != nil {
		return 0, err
	}
	if h.buf, err = AppendCompressed(h.buf, size); err != nil {
		return 0, err
	}
	h.buf = append(h.buf, b...)
	h.index[key] = off
	return off, nil
}

func (h *BlobHeap) Len() int { return len(h.buf) }

func (h *BlobHeap) Bytes() []byte { return h.buf }

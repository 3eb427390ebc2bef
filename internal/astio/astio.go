// Package astio reads and writes serialized program trees. MessagePack is the
// interchange format; JSON is accepted for hand-written fixtures.
package astio

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"cilforge/internal/ast"
)

// Format selects the wire encoding.
type Format uint8

const (
	FormatMsgpack Format = iota
	FormatJSON
)

func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "msgpack"
}

// FormatOf picks the encoding from the file extension.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatMsgpack
}

// Unit is a decoded input file.
type Unit struct {
	Path     string
	Assembly *ast.Assembly
	// Digest covers the raw bytes and keys the build cache.
	Digest [32]byte
}

// Name is the unit's display name: the assembly name, or the file stem.
func (u *Unit) Name() string {
	if u.Assembly != nil && u.Assembly.Name != "" {
		return u.Assembly.Name
	}
	base := filepath.Base(u.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ReadFile decodes and validates the tree stored at path.
func ReadFile(path string) (*Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	a, err := Decode(bytes.NewReader(data), FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Unit{Path: path, Assembly: a, Digest: sha256.Sum256(data)}, nil
}

// Decode reads one tree and validates it. Unknown fields are rejected.
func Decode(r io.Reader, f Format) (*ast.Assembly, error) {
	a := new(ast.Assembly)
	switch f {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(a); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	default:
		dec := msgpack.NewDecoder(r)
		dec.DisallowUnknownFields(true)
		if err := dec.Decode(a); err != nil {
			return nil, fmt.Errorf("decode msgpack: %w", err)
		}
	}
	if err := ast.Validate(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Encode writes a in the given format.
func Encode(w io.Writer, a *ast.Assembly, f Format) error {
	if f == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	}
	enc := msgpack.NewEncoder(w)
	enc.SetOmitEmpty(true)
	return enc.Encode(a)
}

// WriteFile encodes a to path, choosing the format from its extension. The
// file is replaced atomically.
func WriteFile(path string, a *ast.Assembly) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".ast-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := Encode(f, a, FormatOf(path)); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

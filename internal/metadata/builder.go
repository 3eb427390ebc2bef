package metadata

import (
	"fmt"

	"fortio.org/safecast"
)

// Builder accumulates heaps and table rows for one module. Rows are added in
// their final order; row numbers handed out are never renumbered.
type Builder struct {
	Strings     *StringHeap
	UserStrings *UserStringHeap
	GUIDs       *GUIDHeap
	Blobs       *BlobHeap

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

	// first error from a heap; reported by Serialize
	err error
}

func NewBuilder() *Builder {
	return &Builder{
		Strings:     newStringHeap(),
		UserStrings: newUserStringHeap(),
		GUIDs:       &GUIDHeap{},
		Blobs:       newBlobHeap(),
	}
}

// Err returns the first error recorded while adding rows.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(err error) {
	if err != nil && b.err == nil {
		b.err = err
	}
}

func (b *Builder) str(s string) uint32 {
	off, err := b.Strings.Add(s)
	b.fail(err)
	return off
}

func (b *Builder) blob(p []byte) uint32 {
	off, err := b.Blobs.Add(p)
	b.fail(err)
	return off
}

func (b *Builder) token(t TableID, n int) Token {
	row, err := safecast.Conv[uint32](n)
	if err != nil || row > 0xFFFFFF {
		b.fail(fmt.Errorf("%s table overflow", t))
		return 0
	}
	return MakeToken(t, row)
}

// RowCount returns the number of rows in t.
func (b *Builder) RowCount(t TableID) int {
	switch t {
	case TableModule:
		return len(b.Module)
	case TableTypeRef:
		return len(b.TypeRef)
	case TableTypeDef:
		return len(b.TypeDef)
	case TableField:
		return len(b.Field)
	case TableMethodDef:
		return len(b.MethodDef)
	case TableParam:
		return len(b.Param)
	case TableMemberRef:
		return len(b.MemberRef)
	case TableStandAloneSig:
		return len(b.StandAloneSig)
	case TableAssembly:
		return len(b.Assembly)
	case TableAssemblyRef:
		return len(b.AssemblyRef)
	}
	return 0
}

// NextRow is the row number the next row added to t will get.
func (b *Builder) NextRow(t TableID) uint32 {
	return b.token(t, b.RowCount(t)+1).Row()
}

func (b *Builder) AddModule(name string, mvid [16]byte) Token {
	g, err := b.GUIDs.Add(mvid)
	b.fail(err)
	b.Module = append(b.Module, ModuleRow{Name: b.str(name), Mvid: g})
	return b.token(TableModule, len(b.Module))
}

func (b *Builder) AddTypeRef(scope Token, namespace, name string) Token {
	b.TypeRef = append(b.TypeRef, TypeRefRow{Scope: scope, Name: b.str(name), Namespace: b.str(namespace)})
	return b.token(TableTypeRef, len(b.TypeRef))
}

// AddTypeDef adds a type whose fields and methods start at the given rows.
func (b *Builder) AddTypeDef(flags uint32, namespace, name string, extends Token, fieldList, methodList uint32) Token {
	b.TypeDef = append(b.TypeDef, TypeDefRow{
		Flags:      flags,
		Name:       b.str(name),
		Namespace:  b.str(namespace),
		Extends:    extends,
		FieldList:  fieldList,
		MethodList: methodList,
	})
	return b.token(TableTypeDef, len(b.TypeDef))
}

func (b *Builder) AddField(flags uint16, name string, sig []byte) Token {
	b.Field = append(b.Field, FieldRow{Flags: flags, Name: b.str(name), Signature: b.blob(sig)})
	return b.token(TableField, len(b.Field))
}

func (b *Builder) AddMethodDef(rva uint32, implFlags, flags uint16, name string, sig []byte, paramList uint32) Token {
	b.MethodDef = append(b.MethodDef, MethodDefRow{
		RVA:       rva,
		ImplFlags: implFlags,
		Flags:     flags,
		Name:      b.str(name),
		Signature: b.blob(sig),
		ParamList: paramList,
	})
	return b.token(TableMethodDef, len(b.MethodDef))
}

func (b *Builder) AddParam(flags, sequence uint16, name string) Token {
	b.Param = append(b.Param, ParamRow{Flags: flags, Sequence: sequence, Name: b.str(name)})
	return b.token(TableParam, len(b.Param))
}

func (b *Builder) AddMemberRef(parent Token, name string, sig []byte) Token {
	b.MemberRef = append(b.MemberRef, MemberRefRow{Parent: parent, Name: b.str(name), Signature: b.blob(sig)})
	return b.token(TableMemberRef, len(b.MemberRef))
}

func (b *Builder) AddStandAloneSig(sig []byte) Token {
	b.StandAloneSig = append(b.StandAloneSig, b.blob(sig))
	return b.token(TableStandAloneSig, len(b.StandAloneSig))
}

func (b *Builder) AddAssembly(name string, v Version) Token {
	b.Assembly = append(b.Assembly, AssemblyRow{
		HashAlgID: AssemblyHashSHA1,
		Version:   v,
		Name:      b.str(name),
	})
	return b.token(TableAssembly, len(b.Assembly))
}

func (b *Builder) AddAssemblyRef(name string, v Version, publicKeyToken []byte) Token {
	b.AssemblyRef = append(b.AssemblyRef, AssemblyRefRow{
		Version: v,
		Token:   b.blob(publicKeyToken),
		Name:    b.str(name),
	})
	return b.token(TableAssemblyRef, len(b.AssemblyRef))
}

// UserString returns the ldstr token of s.
func (b *Builder) UserString(s string) Token {
	off, err := b.UserStrings.Add(s)
	b.fail(err)
	return Token(TokenUserString<<24 | off)
}

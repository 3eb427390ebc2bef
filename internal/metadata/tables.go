package metadata

import (
	"fmt"
	"slices"
)

// TableID numbers the metadata tables this builder writes.
type TableID uint8

const (
	TableModule        TableID = 0x00
	TableTypeRef       TableID = 0x01
	TableTypeDef       TableID = 0x02
	TableField         TableID = 0x04
	TableMethodDef     TableID = 0x06
	TableParam         TableID = 0x08
	TableMemberRef     TableID = 0x0A
	TableStandAloneSig TableID = 0x11
	TableModuleRef     TableID = 0x1A
	TableTypeSpec      TableID = 0x1B
	TableAssembly      TableID = 0x20
	TableAssemblyRef   TableID = 0x23
)

// tableOrder is the physical order of the tables in the #~ stream.
var tableOrder = []TableID{
	TableModule, TableTypeRef, TableTypeDef, TableField, TableMethodDef, TableParam,
	TableMemberRef, TableStandAloneSig, TableModuleRef, TableTypeSpec, TableAssembly, TableAssemblyRef,
}

// Tables lists the known tables in stream order.
func Tables() []TableID { return slices.Clone(tableOrder) }

func (t TableID) String() string {
	switch t {
	case TableModule:
		return "Module"
	case TableTypeRef:
		return "TypeRef"
	case TableTypeDef:
		return "TypeDef"
	case TableField:
		return "Field"
	case TableMethodDef:
		return "MethodDef"
	case TableParam:
		return "Param"
	case TableMemberRef:
		return "MemberRef"
	case TableStandAloneSig:
		return "StandAloneSig"
	case TableModuleRef:
		return "ModuleRef"
	case TableTypeSpec:
		return "TypeSpec"
	case TableAssembly:
		return "Assembly"
	case TableAssemblyRef:
		return "AssemblyRef"
	}
	return fmt.Sprintf("Table(%#x)", uint8(t))
}

// Token is a metadata token: table in the high byte, 1-based row below.
// The zero token is the null reference.
type Token uint32

// TokenUserString is the table byte of ldstr tokens.
const TokenUserString = 0x70

func MakeToken(t TableID, row uint32) Token {
	return Token(uint32(t)<<24 | row&0xFFFFFF)
}

func (t Token) Table() TableID { return TableID(t >> 24) }

func (t Token) Row() uint32 { return uint32(t) & 0xFFFFFF }

func (t Token) IsNil() bool { return t.Row() == 0 }

func (t Token) String() string { return fmt.Sprintf("%s#%d(%#08x)", t.Table(), t.Row(), uint32(t)) }

// codedKind describes a coded index: the tag width and the tables by tag.
type codedKind struct {
	name   string
	bits   uint
	tables []TableID
}

var (
	typeDefOrRef    = codedKind{"TypeDefOrRef", 2, []TableID{TableTypeDef, TableTypeRef, TableTypeSpec}}
	resolutionScope = codedKind{"ResolutionScope", 2, []TableID{TableModule, TableModuleRef, TableAssemblyRef, TableTypeRef}}
	memberRefParent = codedKind{"MemberRefParent", 3, []TableID{TableTypeDef, TableTypeRef, TableModuleRef, TableMethodDef, TableTypeSpec}}
)

func (k codedKind) encode(t Token) (uint32, error) {
	if t.IsNil() {
		return 0, nil
	}
	for tag, id := range k.tables {
		if id == t.Table() {
			return t.Row()<<k.bits | uint32(tag), nil
		}
	}
	return 0, fmt.Errorf("%s cannot reference %s", k.name, t)
}

// EncodeTypeDefOrRef is the coded form used inside signatures.
func EncodeTypeDefOrRef(t Token) (uint32, error) {
	return typeDefOrRef.encode(t)
}

// Version is a four-part assembly version.
type Version struct {
	Major, Minor, Build, Revision uint16
}

// Rows. String and blob columns hold heap offsets; coded and table columns
// hold tokens.

type ModuleRow struct {
	Name uint32
	Mvid uint32
}

type TypeRefRow struct {
	Scope     Token
	Name      uint32
	Namespace uint32
}

type TypeDefRow struct {
	Flags      uint32
	Name       uint32
	Namespace  uint32
	Extends    Token
	FieldList  uint32
	MethodList uint32
}

type FieldRow struct {
	Flags     uint16
	Name      uint32
	Signature uint32
}

type MethodDefRow struct {
	RVA       uint32
	ImplFlags uint16
	Flags     uint16
	Name      uint32
	Signature uint32
	ParamList uint32
}

type ParamRow struct {
	Flags    uint16
	Sequence uint16
	Name     uint32
}

type MemberRefRow struct {
	Parent    Token
	Name      uint32
	Signature uint32
}

type AssemblyRow struct {
	HashAlgID uint32
	Version   Version
	Flags     uint32
	PublicKey uint32
	Name      uint32
	Culture   uint32
}

type AssemblyRefRow struct {
	Version   Version
	Flags     uint32
	Token     uint32
	Name      uint32
	Culture   uint32
	HashValue uint32
}

// Flag values used by the emitters.
const (
	TypeAttrPublic          uint32 = 0x00000001
	TypeAttrAbstract        uint32 = 0x00000080
	TypeAttrSealed          uint32 = 0x00000100
	TypeAttrBeforeFieldInit uint32 = 0x00100000
	FieldAttrPublic         uint16 = 0x0006
	FieldAttrStatic         uint16 = 0x0010
	MethodAttrPublic        uint16 = 0x0006
	MethodAttrStatic        uint16 = 0x0010
	MethodAttrHideBySig     uint16 = 0x0080
	MethodAttrSpecialName   uint16 = 0x0800
	MethodAttrRTSpecialName uint16 = 0x1000
	ParamAttrIn             uint16 = 0x0001
	ParamAttrOut            uint16 = 0x0002
	AssemblyHashSHA1        uint32 = 0x8004
	sortedTablesMask        uint64 = 0x000016003301FA00
	metadataSignature       uint32 = 0x424A5342
	metadataVersion                = "v4.0.30319"
)

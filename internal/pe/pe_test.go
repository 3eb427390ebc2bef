package pe

import (
	"bytes"
	pefile "debug/pe"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"cilforge/internal/ast"
	"cilforge/internal/diag"
	"cilforge/internal/il"
	"cilforge/internal/lower"
	"cilforge/internal/metadata"
)

func program(classes []*ast.Class, funcs ...*ast.Function) *ast.Assembly {
	return &ast.Assembly{
		Name:   "app",
		Module: ast.Module{Classes: classes, Functions: funcs},
	}
}

type built struct {
	img  *Image
	text []byte
	base uint32
	md   *metadata.Metadata
	bag  *diag.Bag
}

func build(t *testing.T, a *ast.Assembly) *built {
	t.Helper()
	tr := lower.New(nil)
	decl, err := tr.Transform(a)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	bag := diag.NewBag(0)
	img, err := Build(decl, Options{Transformer: tr, Reporter: diag.BagReporter{Bag: bag}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return open(t, img, bag)
}

// open decodes the PE container and the metadata root it points at.
func open(t *testing.T, img *Image, bag *diag.Bag) *built {
	t.Helper()
	f, err := pefile.NewFile(bytes.NewReader(img.Bytes))
	if err != nil {
		t.Fatalf("pefile.NewFile: %v", err)
	}
	defer f.Close()
	if f.Machine != pefile.IMAGE_FILE_MACHINE_I386 {
		t.Fatalf("machine = %#x", f.Machine)
	}
	oh, ok := f.OptionalHeader.(*pefile.OptionalHeader32)
	if !ok {
		t.Fatalf("optional header is %T, want PE32", f.OptionalHeader)
	}
	if oh.ImageBase != imageBase || oh.Subsystem != subsystemConsole {
		t.Fatalf("image base %#x subsystem %d", oh.ImageBase, oh.Subsystem)
	}
	sec := f.Section(".text")
	if sec == nil {
		t.Fatal("no .text section")
	}
	if f.Section(".reloc") == nil {
		t.Fatal("no .reloc section")
	}
	text, err := sec.Data()
	if err != nil {
		t.Fatal(err)
	}
	clr := oh.DataDirectory[pefile.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR]
	if clr.VirtualAddress != textRVA+iatSize || clr.Size != cliHeaderSize {
		t.Fatalf("CLR directory = %+v", clr)
	}
	cli := text[clr.VirtualAddress-sec.VirtualAddress:]
	if binary.LittleEndian.Uint32(cli) != cliHeaderSize {
		t.Fatalf("CLI header size = %d", binary.LittleEndian.Uint32(cli))
	}
	mdRVA := binary.LittleEndian.Uint32(cli[8:])
	mdSize := binary.LittleEndian.Uint32(cli[12:])
	if flags := binary.LittleEndian.Uint32(cli[16:]); flags&cliFlagsILOnly == 0 {
		t.Fatalf("CLI flags = %#x", flags)
	}
	if entry := metadata.Token(binary.LittleEndian.Uint32(cli[20:])); entry != img.EntryPoint {
		t.Fatalf("entry token %v, image reports %v", entry, img.EntryPoint)
	}
	off := mdRVA - sec.VirtualAddress
	md, err := metadata.Read(text[off : off+mdSize])
	if err != nil {
		t.Fatalf("metadata.Read: %v", err)
	}
	return &built{img: img, text: text, base: sec.VirtualAddress, md: md, bag: bag}
}

// body returns the IL code of MethodDef row.
func (b *built) body(t *testing.T, row uint32) []byte {
	t.Helper()
	rva := b.md.MethodDef[row-1].RVA
	h := b.text[rva-b.base:]
	if h[0]&3 == 2 {
		n := int(h[0] >> 2)
		return h[1 : 1+n]
	}
	if rva%4 != 0 {
		t.Fatalf("fat header at unaligned RVA %#x", rva)
	}
	size := binary.LittleEndian.Uint32(h[4:])
	hdr := int(h[1]>>4) * 4
	return h[hdr : hdr+int(size)]
}

func (b *built) method(t *testing.T, name string) uint32 {
	t.Helper()
	for i := range b.md.MethodDef {
		if b.md.MethodName(uint32(i+1)) == name {
			return uint32(i + 1)
		}
	}
	t.Fatalf("no method %s", name)
	return 0
}

func (b *built) has(code diag.Code) bool {
	for _, d := range b.bag.Items() {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestReturnConstant(t *testing.T) {
	b := build(t, program(nil, ast.Func("main", "int", nil, ast.Return(ast.Int(42)))))

	main := b.method(t, "main")
	if got, want := b.body(t, main), []byte{0x1F, 42, 0x2A}; !bytes.Equal(got, want) {
		t.Errorf("main body = % x, want % x", got, want)
	}
	if b.img.EntryPoint.Table() != metadata.TableMethodDef {
		t.Fatalf("entry point %v", b.img.EntryPoint)
	}
	if name := b.md.MethodName(b.img.EntryPoint.Row()); name != "Main" {
		t.Errorf("entry point name = %q", name)
	}
	// int main() supplies the exit code directly
	entry := b.body(t, b.img.EntryPoint.Row())
	want := binary.LittleEndian.AppendUint32([]byte{opCall}, uint32(metadata.MakeToken(metadata.TableMethodDef, main)))
	want = append(want, opRet)
	if !bytes.Equal(entry, want) {
		t.Errorf("entry body = % x, want % x", entry, want)
	}
}

func TestSumOfLocals(t *testing.T) {
	b := build(t, program(nil, ast.Func("main", "int", nil,
		ast.Decl("x", "int", ast.Int(10)),
		ast.Decl("y", "int", ast.Int(15)),
		ast.Return(ast.Bin(ast.OpAdd, ast.Var("x"), ast.Var("y"))),
	)))
	main := b.method(t, "main")
	want := []byte{0x1F, 10, 0x0A, 0x1F, 15, 0x0B, 0x06, 0x07, opAdd, opRet}
	if got := b.body(t, main); !bytes.Equal(got, want) {
		t.Errorf("main body = % x, want % x", got, want)
	}
	rva := b.md.MethodDef[main-1].RVA
	flags := binary.LittleEndian.Uint16(b.text[rva-b.base:])
	if flags&initLocals == 0 || flags&3 != 3 {
		t.Errorf("fat header flags = %#x", flags)
	}
	if len(b.md.StandAloneSig) != 1 {
		t.Errorf("StandAloneSig rows = %d, want 1", len(b.md.StandAloneSig))
	}
}

func TestIfElseBothReturn(t *testing.T) {
	b := build(t, program(nil, ast.Func("main", "int", nil,
		ast.If(ast.Bool(false),
			ast.Block(ast.Return(ast.Int(1))),
			ast.Block(ast.Return(ast.Int(2)))),
	)))
	code := b.body(t, b.method(t, "main"))
	if code[len(code)-1] != opRet {
		t.Errorf("body does not end in ret: % x", code)
	}
	if !bytes.Contains(code, []byte{0x18, opRet}) {
		t.Errorf("else branch missing: % x", code)
	}
	for _, d := range b.bag.Items() {
		if d.Severity >= diag.SevError {
			t.Errorf("unexpected error %v", d)
		}
	}
}

func TestUnresolvedCallFallback(t *testing.T) {
	b := build(t, program(nil, ast.Func("main", "void", nil,
		ast.Do(ast.Call("mystery", ast.Int(1), ast.Int(2), ast.Int(3))),
	)))
	if !b.has(diag.EmitUnresolvedMethod) {
		t.Fatalf("no unresolved-method diagnostic in %v", b.bag.Items())
	}
	code := b.body(t, b.method(t, "main"))
	want := []byte{0x17, 0x18, 0x19, opPop, opPop, opPop, opLdnull, opPop, opRet}
	if !bytes.Equal(code, want) {
		t.Errorf("main body = % x, want % x", code, want)
	}
}

func TestVoidMainExitsWithZero(t *testing.T) {
	b := build(t, program(nil, ast.Func("main", "void", nil,
		ast.Do(ast.Call("print", ast.Str("hi"))),
	)))
	entry := b.body(t, b.img.EntryPoint.Row())
	if len(entry) < 2 || !bytes.Equal(entry[len(entry)-2:], []byte{0x16, opRet}) {
		t.Errorf("entry body = % x", entry)
	}
	code := b.body(t, b.method(t, "main"))
	if code[0] != opLdstr {
		t.Fatalf("main body = % x", code)
	}
	s, err := b.md.UserString(metadata.Token(binary.LittleEndian.Uint32(code[1:])))
	if err != nil || s != "hi" {
		t.Errorf("ldstr operand = %q, %v", s, err)
	}
	found := false
	for _, r := range b.md.MemberRef {
		if b.md.String(r.Name) == "WriteLine" {
			found = true
		}
	}
	if !found {
		t.Error("no WriteLine member reference")
	}
}

func TestNoMainReturnsZero(t *testing.T) {
	b := build(t, program(nil, ast.Func("helper", "int", nil, ast.Return(ast.Int(7)))))
	if got := b.body(t, b.img.EntryPoint.Row()); !bytes.Equal(got, []byte{0x16, opRet}) {
		t.Errorf("entry body = % x", got)
	}
}

func TestEntryNameCollision(t *testing.T) {
	b := build(t, program(nil,
		ast.Func("Main", "int", nil, ast.Return(ast.Int(1))),
		ast.Func("main", "int", nil, ast.Return(ast.Int(2))),
	))
	if name := b.md.MethodName(b.img.EntryPoint.Row()); name != "<Main>$" {
		t.Errorf("entry point name = %q", name)
	}
}

func TestMissingReturnIsRepaired(t *testing.T) {
	b := build(t, program(nil, ast.Func("f", "int", nil, ast.Do(ast.Int(1)))))
	code := b.body(t, b.method(t, "f"))
	if code[len(code)-1] != opRet {
		t.Errorf("body = % x", code)
	}
	if !b.has(diag.StackEpilogueRepaired) {
		t.Errorf("no epilogue diagnostic in %v", b.bag.Items())
	}
}

func TestClassLayout(t *testing.T) {
	classes := []*ast.Class{
		{Name: "Node", Fields: []*ast.Field{{Name: "value", Type: "int"}}},
		{Name: "Tree", Fields: []*ast.Field{{Name: "root", Type: "Node"}, {Name: "count", Type: "int"}}},
	}
	b := build(t, program(classes, ast.Func("main", "int", nil,
		ast.Decl("t", "Tree", ast.New("Tree")),
		ast.Return(ast.Member(ast.Var("t"), "count")),
	)))

	// <Module>, Node, Tree, Program
	if len(b.md.TypeDef) != 4 {
		t.Fatalf("TypeDef rows = %d", len(b.md.TypeDef))
	}
	tree := b.md.TypeDef[2]
	if b.md.String(tree.Name) != "Tree" || tree.FieldList != 2 || tree.MethodList != 2 {
		t.Errorf("Tree row = %+v", tree)
	}
	if b.md.MethodName(2) != ".ctor" {
		t.Errorf("method 2 = %s", b.md.MethodName(2))
	}
	prog := b.md.TypeDef[3]
	if b.md.String(prog.Name) != "Program" || prog.MethodList != 3 {
		t.Errorf("Program row = %+v", prog)
	}

	ctor := b.body(t, 2)
	nodeCtor := binary.LittleEndian.AppendUint32([]byte{opNewobj}, uint32(metadata.MakeToken(metadata.TableMethodDef, 1)))
	if !bytes.Contains(ctor, nodeCtor) {
		t.Errorf("Tree ctor does not construct root: % x", ctor)
	}
	main := b.body(t, b.method(t, "main"))
	ldfld := binary.LittleEndian.AppendUint32([]byte{opLdfld}, uint32(metadata.MakeToken(metadata.TableField, 3)))
	if !bytes.Contains(main, ldfld) {
		t.Errorf("main does not load Tree::count: % x", main)
	}
}

func TestSelfReferentialFieldLeftNull(t *testing.T) {
	classes := []*ast.Class{{Name: "List", Fields: []*ast.Field{{Name: "next", Type: "List"}}}}
	b := build(t, program(classes, ast.Func("main", "void", nil)))
	ctor := b.body(t, 1)
	if bytes.IndexByte(ctor, opNewobj) >= 0 {
		t.Errorf("ctor constructs its own type: % x", ctor)
	}
}

func TestDeterministicOutput(t *testing.T) {
	a := program(nil, ast.Func("main", "int", nil, ast.Return(ast.Int(3))))
	first := build(t, a)
	second := build(t, a)
	if !bytes.Equal(first.img.Bytes, second.img.Bytes) {
		t.Fatal("two builds of the same input differ")
	}
	if first.img.MVID == [16]byte{} {
		t.Error("zero MVID")
	}
}

func TestBuildRejectsMissingModule(t *testing.T) {
	if _, err := Build(&il.AssemblyDeclaration{Name: "x"}, Options{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestEmitWritesRuntimeConfig(t *testing.T) {
	dir := t.TempDir()
	tr := lower.New(nil)
	decl, err := tr.Transform(program(nil, ast.Func("main", "int", nil, ast.Return(ast.Int(5)))))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "out", "app.dll")
	if _, err := Emit(decl, path, Options{Transformer: tr}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "out", "app.runtimeconfig.json"))
	if err != nil {
		t.Fatal(err)
	}
	var rc runtimeConfig
	if err := json.Unmarshal(data, &rc); err != nil {
		t.Fatal(err)
	}
	if rc.RuntimeOptions.TFM != "net8.0" || rc.RuntimeOptions.Framework.Name != "Microsoft.NETCore.App" {
		t.Errorf("runtime config = %s", data)
	}
}

func TestStackErrorFormat(t *testing.T) {
	err := error(&StackError{
		Code:      diag.StackUnderflow,
		Method:    "f",
		Statement: 2,
		Instrs:    "pop",
		History:   []int{0, 1},
		Err:       &UnderflowError{Index: 0, Instr: il.Pop(), Depth: 0},
	})
	var under *UnderflowError
	if !errors.As(err, &under) {
		t.Fatal("StackError does not unwrap to UnderflowError")
	}
	if msg := err.Error(); !bytes.Contains([]byte(msg), []byte("statement 2")) {
		t.Errorf("message = %q", msg)
	}
}

// TestRunWithDotnet executes the images when a runtime is installed.
func TestRunWithDotnet(t *testing.T) {
	dotnet, err := exec.LookPath("dotnet")
	if err != nil {
		t.Skip("dotnet not installed")
	}
	tests := []struct {
		name string
		body []*ast.Stmt
		want int
	}{
		{"constant", ast.Block(ast.Return(ast.Int(42))), 42},
		{"locals", ast.Block(
			ast.Decl("x", "int", ast.Int(10)),
			ast.Decl("y", "int", ast.Int(15)),
			ast.Return(ast.Bin(ast.OpAdd, ast.Var("x"), ast.Var("y"))),
		), 25},
		{"if else", ast.Block(ast.If(ast.Bool(false),
			ast.Block(ast.Return(ast.Int(1))),
			ast.Block(ast.Return(ast.Int(2))))), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := lower.New(nil)
			decl, err := tr.Transform(program(nil, ast.Func("main", "int", nil, tt.body...)))
			if err != nil {
				t.Fatal(err)
			}
			path := filepath.Join(t.TempDir(), "app.dll")
			if _, err := Emit(decl, path, Options{Transformer: tr}); err != nil {
				t.Fatal(err)
			}
			err = exec.Command(dotnet, path).Run()
			code := 0
			var exit *exec.ExitError
			if errors.As(err, &exit) {
				code = exit.ExitCode()
			} else if err != nil {
				t.Fatal(err)
			}
			if code != tt.want {
				t.Errorf("exit code = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestInspectReadsBackImage(t *testing.T) {
	b := build(t, program(nil, ast.Func("main", "int", nil, ast.Return(ast.Int(3)))))
	ins, err := Inspect(b.img.Bytes)
	if err != nil {
		t.Fatal(err)
	}
	if ins.EntryPoint != b.img.EntryPoint || ins.ImageBase != imageBase {
		t.Errorf("inspection = %+v", ins)
	}
	if ins.RuntimeMaj != 2 || ins.RuntimeMin != 5 || ins.Flags&cliFlagsILOnly == 0 {
		t.Errorf("CLI header %d.%d flags %#x", ins.RuntimeMaj, ins.RuntimeMin, ins.Flags)
	}
	if len(ins.Sections) != 2 || ins.Sections[0] != ".text" || ins.Sections[1] != ".reloc" {
		t.Errorf("sections = %v", ins.Sections)
	}
	if ins.Metadata.MethodName(ins.EntryPoint.Row()) != "Main" {
		t.Errorf("entry point names %q", ins.Metadata.MethodName(ins.EntryPoint.Row()))
	}
	if _, err := Inspect([]byte("MZ")); err == nil {
		t.Error("garbage accepted")
	}
}

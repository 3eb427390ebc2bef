package lower

import (
	"reflect"
	"strings"
	"testing"

	"cilforge/internal/ast"
	"cilforge/internal/diag"
	"cilforge/internal/il"
	"cilforge/internal/types"
)

func program(classes []*ast.Class, funcs ...*ast.Function) *ast.Assembly {
	return &ast.Assembly{
		Name:   "app",
		Module: ast.Module{Classes: classes, Functions: funcs},
	}
}

// lowerBody transforms a and lowers every statement of the named function,
// returning one rendered sequence per statement.
func lowerBody(t *testing.T, tr *Transformer, a *ast.Assembly, fn string) []string {
	t.Helper()
	decl, err := tr.Transform(a)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	m, ok := tr.Scope().Function(fn)
	if !ok {
		t.Fatalf("function %s not found in %s", fn, decl.Name)
	}
	ctx := tr.NewContext(m)
	var out []string
	for i, st := range m.Body {
		ctx.Statement = i
		out = append(out, tr.GenerateStatement(ctx, st).String())
	}
	return out
}

func TestScenarioSequences(t *testing.T) {
	tests := []struct {
		name string
		body []*ast.Stmt
		want []string
	}{
		{
			name: "return constant",
			body: ast.Block(ast.Return(ast.Int(42))),
			want: []string{"ldc.i4 42; ret"},
		},
		{
			name: "sum of locals",
			body: ast.Block(
				ast.Decl("x", "int", ast.Int(10)),
				ast.Decl("y", "int", ast.Int(15)),
				ast.Return(ast.Bin(ast.OpAdd, ast.Var("x"), ast.Var("y"))),
			),
			want: []string{"ldc.i4 10; stloc x", "ldc.i4 15; stloc y", "ldloc x; ldloc y; add; ret"},
		},
		{
			name: "if else",
			body: ast.Block(ast.If(ast.Bool(false),
				ast.Block(ast.Return(ast.Int(1))),
				ast.Block(ast.Return(ast.Int(2))))),
			want: []string{"ldc.i4 0; brfalse IL_false_0; ldc.i4 1; ret; br IL_end_1; IL_false_0:; ldc.i4 2; ret; IL_end_1:"},
		},
		{
			name: "while",
			body: ast.Block(
				ast.Decl("i", "int", ast.Int(0)),
				ast.While(ast.Bin(ast.OpLt, ast.Var("i"), ast.Int(3)),
					ast.Assign(ast.Var("i"), ast.Bin(ast.OpAdd, ast.Var("i"), ast.Int(1)))),
				ast.Return(ast.Var("i")),
			),
			want: []string{
				"ldc.i4 0; stloc i",
				"IL_loop_0:; ldloc i; ldc.i4 3; clt; brfalse IL_end_1; ldloc i; ldc.i4 1; add; stloc i; br IL_loop_0; IL_end_1:",
				"ldloc i; ret",
			},
		},
		{
			name: "comparison shapes",
			body: ast.Block(ast.Return(ast.Bin(ast.OpAnd,
				ast.Bin(ast.OpLe, ast.Int(1), ast.Int(2)),
				ast.Un(ast.OpNot, ast.Bin(ast.OpNe, ast.Int(1), ast.Int(2)))))),
			want: []string{"ldc.i4 1; ldc.i4 2; cle; ldc.i4 1; ldc.i4 2; cne; not; and; ret"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lowerBody(t, New(nil), program(nil, ast.Func("main", "int", nil, tt.body...)), "main")
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("unexpected lowering:\n got %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestReturnConstantEndsWithPushThenRet(t *testing.T) {
	tr := New(nil)
	a := program(nil, ast.Func("main", "int", nil, ast.Return(ast.Int(42))))
	if _, err := tr.Transform(a); err != nil {
		t.Fatal(err)
	}
	m, _ := tr.Scope().Function("main")
	seq := tr.GenerateStatement(tr.NewContext(m), m.Body[0])
	n := seq.Len()
	if n < 2 {
		t.Fatalf("sequence too short: %s", seq)
	}
	push, ret := seq.Instrs[n-2], seq.Instrs[n-1]
	if push.Op != il.OpLdcI4 || push.Int != 42 || ret.Kind != il.KindReturn {
		t.Fatalf("unexpected tail %s; %s", push, ret)
	}
}

func TestCallsAndPops(t *testing.T) {
	add := ast.Func("add", "int", []*ast.Param{ast.P("a", "int"), ast.P("b", "int")},
		ast.Return(ast.Bin(ast.OpAdd, ast.Var("a"), ast.Var("b"))))
	noop := ast.Func("noop", "void", nil)
	main := ast.Func("main", "int", nil,
		ast.Do(ast.Call("add", ast.Int(1), ast.Int(2))),
		ast.Do(ast.Call("noop")),
		ast.Do(ast.Call("print", ast.Str("hi"))),
		ast.Do(ast.Call("mystery", ast.Int(1), ast.Int(2))),
		ast.Return(ast.Call("add", ast.Int(3), ast.Int(4))),
	)
	tr := New(nil)
	got := lowerBody(t, tr, program(nil, add, noop, main), "main")
	want := []string{
		"ldc.i4 1; ldc.i4 2; call add/2; pop",
		"call noop/0",
		`ldstr "hi"; call extcall:Asm=System.Console;Ns=System;Type=Console;Method=WriteLine;Params=System.String;Return=System.Void/1`,
		"ldc.i4 1; ldc.i4 2; call mystery/2; pop",
		"ldc.i4 3; ldc.i4 4; call add/2; ret",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected lowering:\n got %q\nwant %q", got, want)
	}

	body := lowerBody(t, New(nil), program(nil, add, noop, main), "add")
	if body[0] != "ldarg a; ldarg b; add; ret" {
		t.Fatalf("parameters must load with ldarg: %q", body[0])
	}
}

func TestPrintPicksOverloadByArgumentType(t *testing.T) {
	tests := []struct {
		arg    *ast.Expr
		params string
	}{
		{ast.Int(1), "Params=System.Int32;"},
		{ast.Long(1), "Params=System.Int64;"},
		{ast.Double(1.5), "Params=System.Double;"},
		{ast.Bool(true), "Params=System.Boolean;"},
		{ast.Str("s"), "Params=System.String;"},
		{ast.New("Point"), "Params=System.Object;"},
	}
	point := &ast.Class{Name: "Point"}
	for _, tt := range tests {
		main := ast.Func("main", "void", nil, ast.Do(ast.Call("print", tt.arg)))
		got := lowerBody(t, New(nil), program([]*ast.Class{point}, main), "main")
		if !strings.Contains(got[0], "Method=WriteLine;"+tt.params) {
			t.Errorf("print(%s): unexpected call %q", tt.arg.Kind, got[0])
		}
		if strings.HasSuffix(got[0], "pop") {
			t.Errorf("void call must not be popped: %q", got[0])
		}
	}
}

func TestStringConcatenation(t *testing.T) {
	main := ast.Func("main", "void", nil,
		ast.Decl("s", "string", ast.Bin(ast.OpAdd, ast.Str("a"), ast.Str("b"))),
		ast.Decl("n", "", ast.Bin(ast.OpAdd, ast.Int(1), ast.Int(2))),
	)
	got := lowerBody(t, New(nil), program(nil, main), "main")
	if !strings.Contains(got[0], "Method=Concat;Params=System.String,System.String;Return=System.String/2") {
		t.Fatalf("expected String.Concat(string,string), got %q", got[0])
	}
	if got[1] != "ldc.i4 1; ldc.i4 2; add; stloc n" {
		t.Fatalf("numeric add must stay arithmetic: %q", got[1])
	}
}

func TestOptionalAndInstanceExternalCalls(t *testing.T) {
	main := ast.Func("main", "void", nil,
		ast.Decl("r", "", ast.CallOn(ast.Var("Math"), "Round", ast.Double(2.5))),
		ast.Decl("sb", "", ast.New("System.Text.StringBuilder")),
		ast.Do(ast.CallOn(ast.Var("sb"), "Append", ast.Str("x"))),
	)
	tr := New(nil)
	got := lowerBody(t, tr, program(nil, main), "main")

	if !strings.HasPrefix(got[0], "ldc.r8 2.5; ldc.i4 0; call extcall:") || !strings.Contains(got[0], "Method=Round;Params=System.Double,System.Int32;Return=System.Double/2; stloc r") {
		t.Fatalf("optional parameter must be defaulted: %q", got[0])
	}
	if got[1] != "newobj System.Text.StringBuilder; stloc sb" {
		t.Fatalf("unexpected construction %q", got[1])
	}
	if !strings.HasPrefix(got[2], `ldloc sb; ldstr "x"; callvirt extcall:`) ||
		!strings.Contains(got[2], ";This=1/2; pop") {
		t.Fatalf("instance call must pass receiver and pop result: %q", got[2])
	}
}

func TestMemberAccess(t *testing.T) {
	point := &ast.Class{Name: "Point", Fields: []*ast.Field{{Name: "x", Type: "int"}}}
	counter := &ast.Class{Name: "Counter", Fields: []*ast.Field{{Name: "count", Type: "int", Static: true}}}
	main := ast.Func("main", "int", nil,
		ast.Decl("p", "", ast.New("Point")),
		ast.Assign(ast.Member(ast.Var("p"), "x"), ast.Int(3)),
		ast.Assign(ast.Member(ast.Var("Counter"), "count"), ast.Int(1)),
		ast.Return(ast.Bin(ast.OpAdd, ast.Member(ast.Var("p"), "x"), ast.Member(ast.Var("Counter"), "count"))),
	)
	got := lowerBody(t, New(nil), program([]*ast.Class{point, counter}, main), "main")
	want := []string{
		"newobj Point; stloc p",
		"ldloc p; ldc.i4 3; stfld Point::x",
		"ldc.i4 1; stsfld Counter::count",
		"ldloc p; ldfld Point::x; ldsfld Counter::count; add; ret",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected lowering:\n got %q\nwant %q", got, want)
	}
}

func TestUnsupportedShapesLowerToEmpty(t *testing.T) {
	bag := diag.NewBag(10)
	tr := New(nil).WithReporter(diag.BagReporter{Bag: bag})
	main := ast.Func("main", "void", nil,
		&ast.Stmt{Kind: ast.StmtIf},
		ast.Do(&ast.Expr{Kind: ast.ExprBinary}),
	)
	got := lowerBody(t, tr, program(nil, main), "main")
	if got[0] != "" || got[1] != "" {
		t.Fatalf("expected empty sequences, got %q", got)
	}
	codes := map[diag.Code]bool{}
	for _, d := range bag.Items() {
		codes[d.Code] = true
		if d.Primary.Method != "main" {
			t.Errorf("diagnostic without method location: %+v", d.Primary)
		}
	}
	if !codes[diag.LowUnsupportedStmt] || !codes[diag.LowUnsupportedExpr] {
		t.Fatalf("expected lowering warnings, got %v", bag.Items())
	}
}

func TestResolveOverloads(t *testing.T) {
	cands := []Candidate{
		{Params: []types.Type{types.String}},
		{Params: []types.Type{types.Int64}},
		{Params: []types.Type{types.Int32}},
	}
	tests := []struct {
		arg  types.Type
		want int
	}{
		{types.Int32, 2},
		{types.Int64, 1},
		{types.String, 0},
		{types.Unknown, 0},
	}
	for _, tt := range tests {
		got, ok := Resolve(cands, []types.Type{tt.arg}, nil)
		if !ok || got != tt.want {
			t.Errorf("arg %s: got %d (ok=%v), want %d", tt.arg, got, ok, tt.want)
		}
	}
	if _, ok := Resolve(cands, []types.Type{types.Bool}, nil); ok {
		t.Errorf("bool argument must not match any candidate")
	}
	if s := Score(types.Int32, types.Int32); s != ScoreIdentical {
		t.Errorf("identical score %d", s)
	}
	if s := Score(types.Int32, types.Int64); s != ScoreWidening {
		t.Errorf("widening score %d", s)
	}
	if s := Score(types.Int32, types.String); s != 0 {
		t.Errorf("incompatible score %d", s)
	}
}

func TestResolveOrdering(t *testing.T) {
	obj := types.Object
	cands := []Candidate{
		{Params: []types.Type{obj, obj}, Generic: true},
		{Params: []types.Type{obj, obj}},
		{Params: []types.Type{obj, obj, types.Int32}, Optional: 1},
		{Params: []types.Type{types.String, types.String, obj}, Extension: true},
	}
	got, ok := Resolve(cands, []types.Type{types.Int32, types.Int32}, nil)
	if !ok || got != 1 {
		t.Fatalf("expected non-generic two-parameter overload, got %d", got)
	}
	recv := types.String
	got, ok = Resolve(cands[3:], []types.Type{types.String, types.Int32}, &recv)
	if !ok || got != 0 {
		t.Fatalf("extension candidate must accept receiver as first parameter")
	}
}

func TestTransformSkeleton(t *testing.T) {
	a := program(
		[]*ast.Class{{Name: "Node", Fields: []*ast.Field{{Name: "next", Type: "Node"}}}},
		ast.Func("helper", "", []*ast.Param{{Name: "n", Type: "long", Out: true}}),
		ast.Func("main", "int", nil, ast.Return(ast.Int(0))),
	)
	a.Version = "2.1"
	a.Refs = []ast.AssemblyRef{
		{Name: "System.Runtime", Version: "9.0"},
		{Name: "Acme.Runtime", Version: "1.0.0.0", PublicKeyToken: "0011223344556677"},
	}
	decl, err := New(nil).Transform(a)
	if err != nil {
		t.Fatal(err)
	}
	if decl.Version != (il.Version{Major: 2, Minor: 1}) || decl.Module.FileName != "app.dll" {
		t.Fatalf("unexpected header %+v / %s", decl.Version, decl.Module.FileName)
	}
	var names []string
	for _, r := range decl.ExternRefs {
		names = append(names, r.Name+"@"+r.Version.String())
	}
	if strings.Join(names, ",") != "System.Runtime@8.0.0.0,System.Console@8.0.0.0,Acme.Runtime@1.0.0.0" {
		t.Fatalf("unexpected references %v", names)
	}
	cls := decl.Module.Classes[0]
	if cls.Namespace != types.GeneratedNamespace || cls.Assembly != decl || cls.Fields[0].Parent != cls {
		t.Fatalf("class back-references not set")
	}
	if cls.Fields[0].Type.FullName() != "CilForge.Generated.Node" {
		t.Fatalf("unexpected field type %s", cls.Fields[0].Type.FullName())
	}
	helper, main := decl.Module.Functions[0], decl.Module.Functions[1]
	if !helper.Signature.Return.IsVoid() || helper.EntryPoint || !helper.Static {
		t.Fatalf("unexpected helper %+v", helper)
	}
	if helper.Signature.Params[0].InOut != il.ParamOut || helper.Signature.Params[0].Type.FullName() != "System.Int64" {
		t.Fatalf("unexpected helper params %+v", helper.Signature.Params)
	}
	if !main.EntryPoint {
		t.Fatalf("main must be the entry point")
	}

	a.Refs = []ast.AssemblyRef{{Name: "Bad", PublicKeyToken: "zz"}}
	if _, err := New(nil).Transform(a); err == nil {
		t.Fatalf("invalid token must fail")
	}
}

func TestDeterminism(t *testing.T) {
	build := func() *ast.Assembly {
		return program(
			[]*ast.Class{{Name: "Point", Fields: []*ast.Field{{Name: "x", Type: "int"}}}},
			ast.Func("main", "int", nil,
				ast.If(ast.Bool(true), ast.Block(ast.Return(ast.Int(1))), nil),
				ast.While(ast.Bool(false)),
				ast.Return(ast.Int(0)),
			),
		)
	}
	src := build()
	t1, t2 := New(nil), New(nil)
	d1, err1 := t1.Transform(src)
	d2, err2 := t2.Transform(src)
	if err1 != nil || err2 != nil {
		t.Fatalf("transform: %v %v", err1, err2)
	}
	if !reflect.DeepEqual(d1, d2) {
		t.Fatalf("metamodels differ")
	}
	if !reflect.DeepEqual(lowerBody(t, New(nil), build(), "main"), lowerBody(t, New(nil), build(), "main")) {
		t.Fatalf("lowered sequences differ between fresh transformers")
	}
}

func TestNameCollisionIsReported(t *testing.T) {
	bag := diag.NewBag(10)
	tr := New(nil).WithReporter(diag.BagReporter{Bag: bag})
	a := program(nil,
		ast.Func("f", "int", nil, ast.Return(ast.Int(1))),
		ast.Func("f", "int", nil, ast.Return(ast.Int(2))),
	)
	if _, err := tr.Transform(a); err != nil {
		t.Fatal(err)
	}
	f, _ := tr.Scope().Function("f")
	if f != tr.Scope().Functions()[0] {
		t.Fatalf("first declaration must stay bound")
	}
	if bag.Len() != 1 || bag.Items()[0].Code != diag.LowNameCollision {
		t.Fatalf("expected one collision warning, got %v", bag.Items())
	}
}

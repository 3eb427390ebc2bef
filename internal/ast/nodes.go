package ast

// Assembly is the root of a compilation unit handed over by the front end.
type Assembly struct {
	Name    string        `msgpack:"name" json:"name"`
	Version string        `msgpack:"version,omitempty" json:"version,omitempty"`
	Refs    []AssemblyRef `msgpack:"refs,omitempty" json:"refs,omitempty"`
	Module  Module        `msgpack:"module" json:"module"`
}

// AssemblyRef names an external assembly the program depends on.
type AssemblyRef struct {
	Name           string `msgpack:"name" json:"name"`
	Version        string `msgpack:"version,omitempty" json:"version,omitempty"`
	PublicKeyToken string `msgpack:"token,omitempty" json:"token,omitempty"`
}

type Module struct {
	FileName  string      `msgpack:"file,omitempty" json:"file,omitempty"`
	Classes   []*Class    `msgpack:"classes,omitempty" json:"classes,omitempty"`
	Functions []*Function `msgpack:"functions,omitempty" json:"functions,omitempty"`
}

type Class struct {
	Name      string      `msgpack:"name" json:"name"`
	Namespace string      `msgpack:"namespace,omitempty" json:"namespace,omitempty"`
	Fields    []*Field    `msgpack:"fields,omitempty" json:"fields,omitempty"`
	Methods   []*Function `msgpack:"methods,omitempty" json:"methods,omitempty"`
}

type Field struct {
	Name   string `msgpack:"name" json:"name"`
	Type   string `msgpack:"type" json:"type"`
	Static bool   `msgpack:"static,omitempty" json:"static,omitempty"`
}

// Function is a top-level function or a class method. Types are names the
// semantic passes already resolved ("int", "System.String", "Point").
type Function struct {
	Name       string   `msgpack:"name" json:"name"`
	Params     []*Param `msgpack:"params,omitempty" json:"params,omitempty"`
	ReturnType string   `msgpack:"returns,omitempty" json:"returns,omitempty"`
	Body       []*Stmt  `msgpack:"body,omitempty" json:"body,omitempty"`
	Static     bool     `msgpack:"static,omitempty" json:"static,omitempty"`
}

type Param struct {
	Name string `msgpack:"name" json:"name"`
	Type string `msgpack:"type" json:"type"`
	Out  bool   `msgpack:"out,omitempty" json:"out,omitempty"`
}

// Expr is a closed tagged union: Kind selects the populated payload.
type Expr struct {
	Kind ExprKind `msgpack:"kind" json:"kind"`
	// Type is an optional annotation from the semantic passes.
	Type string `msgpack:"type,omitempty" json:"type,omitempty"`

	Lit    *Literal    `msgpack:"lit,omitempty" json:"lit,omitempty"`
	Var    *VarRef     `msgpack:"var,omitempty" json:"var,omitempty"`
	Binary *BinaryExpr `msgpack:"binary,omitempty" json:"binary,omitempty"`
	Unary  *UnaryExpr  `msgpack:"unary,omitempty" json:"unary,omitempty"`
	Call   *CallExpr   `msgpack:"call,omitempty" json:"call,omitempty"`
	Member *MemberExpr `msgpack:"member,omitempty" json:"member,omitempty"`
	New    *NewExpr    `msgpack:"new,omitempty" json:"new,omitempty"`
}

type Literal struct {
	Kind  LitKind `msgpack:"kind" json:"kind"`
	Int   int64   `msgpack:"int,omitempty" json:"int,omitempty"`
	Float float64 `msgpack:"float,omitempty" json:"float,omitempty"`
	Str   string  `msgpack:"str,omitempty" json:"str,omitempty"`
	Bool  bool    `msgpack:"bool,omitempty" json:"bool,omitempty"`
}

type VarRef struct {
	Name string `msgpack:"name" json:"name"`
}

type BinaryExpr struct {
	Op    Op    `msgpack:"op" json:"op"`
	Left  *Expr `msgpack:"left" json:"left"`
	Right *Expr `msgpack:"right" json:"right"`
}

type UnaryExpr struct {
	Op      Op    `msgpack:"op" json:"op"`
	Operand *Expr `msgpack:"operand" json:"operand"`
}

// CallExpr calls Name, optionally qualified by a receiver expression
// (`Console.WriteLine(x)` has receiver VarRef "Console").
type CallExpr struct {
	Name     string  `msgpack:"name" json:"name"`
	Receiver *Expr   `msgpack:"receiver,omitempty" json:"receiver,omitempty"`
	Args     []*Expr `msgpack:"args,omitempty" json:"args,omitempty"`
}

type MemberExpr struct {
	Object *Expr  `msgpack:"object" json:"object"`
	Name   string `msgpack:"name" json:"name"`
}

type NewExpr struct {
	Type string `msgpack:"type" json:"type"`
}

// Stmt is a closed tagged union: Kind selects the populated payload.
type Stmt struct {
	Kind StmtKind `msgpack:"kind" json:"kind"`

	VarDecl *VarDeclStmt `msgpack:"decl,omitempty" json:"decl,omitempty"`
	Expr    *ExprStmt    `msgpack:"expr,omitempty" json:"expr,omitempty"`
	Assign  *AssignStmt  `msgpack:"assign,omitempty" json:"assign,omitempty"`
	Return  *ReturnStmt  `msgpack:"return,omitempty" json:"return,omitempty"`
	If      *IfStmt      `msgpack:"if,omitempty" json:"if,omitempty"`
	While   *WhileStmt   `msgpack:"while,omitempty" json:"while,omitempty"`
}

type VarDeclStmt struct {
	Name string `msgpack:"name" json:"name"`
	Type string `msgpack:"type,omitempty" json:"type,omitempty"`
	Init *Expr  `msgpack:"init,omitempty" json:"init,omitempty"`
}

type ExprStmt struct {
	Value *Expr `msgpack:"value" json:"value"`
}

// AssignStmt stores Value into Target, a VarRef or Member expression.
type AssignStmt struct {
	Target *Expr `msgpack:"target" json:"target"`
	Value  *Expr `msgpack:"value" json:"value"`
}

type ReturnStmt struct {
	Value *Expr `msgpack:"value,omitempty" json:"value,omitempty"`
}

type IfStmt struct {
	Cond *Expr   `msgpack:"cond" json:"cond"`
	Then []*Stmt `msgpack:"then,omitempty" json:"then,omitempty"`
	Else []*Stmt `msgpack:"else,omitempty" json:"else,omitempty"`
}

type WhileStmt struct {
	Cond *Expr   `msgpack:"cond" json:"cond"`
	Body []*Stmt `msgpack:"body,omitempty" json:"body,omitempty"`
}

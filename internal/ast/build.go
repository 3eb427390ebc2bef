package ast

// Constructors used by tests and by front ends that build trees in Go.

func Int(v int32) *Expr {
	return &Expr{Kind: ExprLiteral, Lit: &Literal{Kind: LitInt32, Int: int64(v)}}
}

func Long(v int64) *Expr {
	return &Expr{Kind: ExprLiteral, Lit: &Literal{Kind: LitInt64, Int: v}}
}

func Float(v float32) *Expr {
	return &Expr{Kind: ExprLiteral, Lit: &Literal{Kind: LitFloat32, Float: float64(v)}}
}

func Double(v float64) *Expr {
	return &Expr{Kind: ExprLiteral, Lit: &Literal{Kind: LitFloat64, Float: v}}
}

func Str(v string) *Expr {
	return &Expr{Kind: ExprLiteral, Lit: &Literal{Kind: LitString, Str: v}}
}

func Bool(v bool) *Expr {
	return &Expr{Kind: ExprLiteral, Lit: &Literal{Kind: LitBool, Bool: v}}
}

func Null() *Expr {
	return &Expr{Kind: ExprLiteral, Lit: &Literal{Kind: LitNull}}
}

func Var(name string) *Expr {
	return &Expr{Kind: ExprVarRef, Var: &VarRef{Name: name}}
}

func Bin(op Op, left, right *Expr) *Expr {
	return &Expr{Kind: ExprBinary, Binary: &BinaryExpr{Op: op, Left: left, Right: right}}
}

func Un(op Op, operand *Expr) *Expr {
	return &Expr{Kind: ExprUnary, Unary: &UnaryExpr{Op: op, Operand: operand}}
}

func Call(name string, args ...*Expr) *Expr {
	return &Expr{Kind: ExprCall, Call: &CallExpr{Name: name, Args: args}}
}

// CallOn calls a method qualified by receiver (a type name or an object).
func CallOn(receiver *Expr, name string, args ...*Expr) *Expr {
	return &Expr{Kind: ExprCall, Call: &CallExpr{Name: name, Receiver: receiver, Args: args}}
}

func Member(object *Expr, name string) *Expr {
	return &Expr{Kind: ExprMember, Member: &MemberExpr{Object: object, Name: name}}
}

func New(typeName string) *Expr {
	return &Expr{Kind: ExprNew, New: &NewExpr{Type: typeName}}
}

func Decl(name, typeName string, init *Expr) *Stmt {
	return &Stmt{Kind: StmtVarDecl, VarDecl: &VarDeclStmt{Name: name, Type: typeName, Init: init}}
}

func Do(e *Expr) *Stmt {
	return &Stmt{Kind: StmtExpr, Expr: &ExprStmt{Value: e}}
}

func Assign(target, value *Expr) *Stmt {
	return &Stmt{Kind: StmtAssign, Assign: &AssignStmt{Target: target, Value: value}}
}

func Return(value *Expr) *Stmt {
	return &Stmt{Kind: StmtReturn, Return: &ReturnStmt{Value: value}}
}

func If(cond *Expr, then, els []*Stmt) *Stmt {
	return &Stmt{Kind: StmtIf, If: &IfStmt{Cond: cond, Then: then, Else: els}}
}

func While(cond *Expr, body ...*Stmt) *Stmt {
	return &Stmt{Kind: StmtWhile, While: &WhileStmt{Cond: cond, Body: body}}
}

// Block is shorthand for a statement list.
func Block(stmts ...*Stmt) []*Stmt { return stmts }

// Func builds a static top-level function.
func Func(name, returns string, params []*Param, body ...*Stmt) *Function {
	return &Function{Name: name, ReturnType: returns, Params: params, Body: body, Static: true}
}

func P(name, typeName string) *Param {
	return &Param{Name: name, Type: typeName}
}

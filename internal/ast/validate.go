package ast

import (
	"errors"
	"fmt"
)

// Validate checks that every node's payload matches its Kind. It does not
// judge semantics: unsupported-but-well-formed shapes are left to lowering.
func Validate(a *Assembly) error {
	if a == nil {
		return errors.New("nil assembly")
	}
	var errs []error
	if a.Name == "" {
		errs = append(errs, errors.New("assembly has no name"))
	}
	for _, c := range a.Module.Classes {
		if c == nil || c.Name == "" {
			errs = append(errs, errors.New("class without name"))
			continue
		}
		for _, m := range c.Methods {
			if err := validateFunc(m); err != nil {
				errs = append(errs, fmt.Errorf("class %s: %w", c.Name, err))
			}
		}
	}
	for _, f := range a.Module.Functions {
		if err := validateFunc(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validateFunc(f *Function) error {
	if f == nil || f.Name == "" {
		return errors.New("function without name")
	}
	var errs []error
	for i, p := range f.Params {
		if p == nil || p.Name == "" {
			errs = append(errs, fmt.Errorf("parameter #%d has no name", i))
		}
	}
	for i, s := range f.Body {
		if err := validateStmt(s); err != nil {
			errs = append(errs, fmt.Errorf("stmt#%d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("function %s: %w", f.Name, errors.Join(errs...))
	}
	return nil
}

func validateStmts(list []*Stmt) error {
	for i, s := range list {
		if err := validateStmt(s); err != nil {
			return fmt.Errorf("stmt#%d: %w", i, err)
		}
	}
	return nil
}

func validateStmt(s *Stmt) error {
	if s == nil {
		return errors.New("nil statement")
	}
	switch s.Kind {
	case StmtVarDecl:
		if s.VarDecl == nil || s.VarDecl.Name == "" {
			return errors.New("var statement without declaration")
		}
		return validateOptExpr(s.VarDecl.Init)
	case StmtExpr:
		if s.Expr == nil {
			return errors.New("expr statement without payload")
		}
		return validateExpr(s.Expr.Value)
	case StmtAssign:
		if s.Assign == nil {
			return errors.New("assign statement without payload")
		}
		if err := validateExpr(s.Assign.Target); err != nil {
			return fmt.Errorf("target: %w", err)
		}
		return validateExpr(s.Assign.Value)
	case StmtReturn:
		if s.Return == nil {
			return nil
		}
		return validateOptExpr(s.Return.Value)
	case StmtIf:
		if s.If == nil {
			return errors.New("if statement without payload")
		}
		if err := validateExpr(s.If.Cond); err != nil {
			return fmt.Errorf("condition: %w", err)
		}
		if err := validateStmts(s.If.Then); err != nil {
			return fmt.Errorf("then: %w", err)
		}
		return validateStmts(s.If.Else)
	case StmtWhile:
		if s.While == nil {
			return errors.New("while statement without payload")
		}
		if err := validateExpr(s.While.Cond); err != nil {
			return fmt.Errorf("condition: %w", err)
		}
		return validateStmts(s.While.Body)
	}
	return fmt.Errorf("unknown statement kind %s", s.Kind)
}

func validateOptExpr(e *Expr) error {
	if e == nil {
		return nil
	}
	return validateExpr(e)
}

func validateExpr(e *Expr) error {
	if e == nil {
		return errors.New("nil expression")
	}
	ok := false
	switch e.Kind {
	case ExprLiteral:
		ok = e.Lit != nil
	case ExprVarRef:
		ok = e.Var != nil && e.Var.Name != ""
	case ExprBinary:
		if e.Binary != nil {
			if err := validateExpr(e.Binary.Left); err != nil {
				return err
			}
			return validateExpr(e.Binary.Right)
		}
	case ExprUnary:
		if e.Unary != nil {
			return validateExpr(e.Unary.Operand)
		}
	case ExprCall:
		if e.Call != nil {
			for _, a := range e.Call.Args {
				if err := validateExpr(a); err != nil {
					return err
				}
			}
			return validateOptExpr(e.Call.Receiver)
		}
	case ExprMember:
		if e.Member != nil {
			return validateExpr(e.Member.Object)
		}
	case ExprNew:
		ok = e.New != nil && e.New.Type != ""
	default:
		return fmt.Errorf("unknown expression kind %s", e.Kind)
	}
	if !ok {
		return fmt.Errorf("%s expression without payload", e.Kind)
	}
	return nil
}

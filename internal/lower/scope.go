package lower

import (
	"cilforge/internal/il"
	"cilforge/internal/types"
)

// Scope indexes the declarations of one assembly. It is built once from the
// metamodel and only read afterwards.
type Scope struct {
	functions  map[string]*il.MethodDefinition
	order      []*il.MethodDefinition
	classes    map[string]*il.ClassDefinition
	collisions []string
}

// NewScope indexes decl. When two functions or classes share a name the first
// one stays bound and the name is recorded in Collisions.
func NewScope(decl *il.AssemblyDeclaration) *Scope {
	s := &Scope{
		functions: make(map[string]*il.MethodDefinition),
		classes:   make(map[string]*il.ClassDefinition),
	}
	if decl == nil || decl.Module == nil {
		return s
	}
	for _, c := range decl.Module.Classes {
		if _, dup := s.classes[c.Name]; dup {
			s.collisions = append(s.collisions, c.Name)
			continue
		}
		s.classes[c.Name] = c
		if full := c.FullName(); full != c.Name {
			s.classes[full] = c
		}
	}
	for _, f := range decl.Module.Functions {
		s.order = append(s.order, f)
		if _, dup := s.functions[f.Name]; dup {
			s.collisions = append(s.collisions, f.Name)
			continue
		}
		s.functions[f.Name] = f
	}
	return s
}

func (s *Scope) Function(name string) (*il.MethodDefinition, bool) {
	f, ok := s.functions[name]
	return f, ok
}

// Functions returns top-level functions in declaration order.
func (s *Scope) Functions() []*il.MethodDefinition { return s.order }

// Class resolves a class by short or namespace-qualified name.
func (s *Scope) Class(name string) (*il.ClassDefinition, bool) {
	c, ok := s.classes[name]
	return c, ok
}

// ClassOf resolves the local class behind a class type.
func (s *Scope) ClassOf(t types.Type) (*il.ClassDefinition, bool) {
	if t.Kind != types.KindClass {
		return nil, false
	}
	return s.Class(t.Name)
}

func (s *Scope) Field(class *il.ClassDefinition, name string) (*il.FieldDefinition, bool) {
	if class == nil {
		return nil, false
	}
	for _, f := range class.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

func (s *Scope) Method(class *il.ClassDefinition, name string) (*il.MethodDefinition, bool) {
	if class == nil {
		return nil, false
	}
	for _, m := range class.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// Collisions lists names that were declared more than once.
func (s *Scope) Collisions() []string { return s.collisions }

package lower

import (
	"cilforge/internal/il"
	"cilforge/internal/types"
)

// Param is a named, typed method parameter as lowering sees it.
type Param struct {
	Name string
	Type types.Type
}

// MethodContext is the per-method state threaded through lowering: parameter
// and local types, the declared return type and the statement being lowered.
// A fresh context is created for every method, so nothing needs resetting.
type MethodContext struct {
	Unit   string
	Method string
	// Statement is the index of the statement being lowered, for diagnostics.
	Statement int
	Return    types.Type
	Static    bool
	Class     *il.ClassDefinition

	params     []Param
	paramIndex map[string]int
	locals     map[string]types.Type
}

// NewContext prepares a context for m.
func (t *Transformer) NewContext(m *il.MethodDefinition) *MethodContext {
	ctx := &MethodContext{
		Unit:       t.unit,
		Method:     m.Name,
		Return:     m.Signature.Return.Type(),
		Static:     m.Static,
		Class:      m.Parent,
		Statement:  -1,
		paramIndex: make(map[string]int, len(m.Signature.Params)),
		locals:     make(map[string]types.Type),
	}
	if m.Signature.Return.IsVoid() {
		ctx.Return = types.Void
	}
	for i, p := range m.Signature.Params {
		ctx.params = append(ctx.params, Param{Name: p.Name, Type: p.Type.Type()})
		if _, dup := ctx.paramIndex[p.Name]; !dup {
			ctx.paramIndex[p.Name] = i
		}
	}
	return ctx
}

// detachedContext serves lowering calls made outside any method.
func (t *Transformer) detachedContext() *MethodContext {
	return &MethodContext{
		Unit:       t.unit,
		Statement:  -1,
		Return:     types.Void,
		Static:     true,
		paramIndex: map[string]int{},
		locals:     map[string]types.Type{},
	}
}

// Param returns the zero-based position of a named parameter; the implicit
// receiver of instance methods is not counted.
func (c *MethodContext) Param(name string) (int, types.Type, bool) {
	i, ok := c.paramIndex[name]
	if !ok {
		return -1, types.Unknown, false
	}
	return i, c.params[i].Type, true
}

func (c *MethodContext) Params() []Param { return c.params }

// IsThis reports whether name denotes the receiver of an instance method.
func (c *MethodContext) IsThis(name string) bool {
	return name == "this" && !c.Static && c.Class != nil
}

func (c *MethodContext) Local(name string) (types.Type, bool) {
	t, ok := c.locals[name]
	return t, ok
}

// HasLocal reports whether name was declared or assigned as a local.
func (c *MethodContext) HasLocal(name string) bool {
	_, ok := c.locals[name]
	return ok
}

// DeclareLocal registers name; a known type replaces an unknown one but never
// the other way round.
func (c *MethodContext) DeclareLocal(name string, t types.Type) {
	if prev, ok := c.locals[name]; ok && prev.Known() && !t.Known() {
		return
	}
	c.locals[name] = t
}

// Bound reports whether name refers to a value (local, parameter or receiver)
// rather than a type.
func (c *MethodContext) Bound(name string) bool {
	if c.IsThis(name) || c.HasLocal(name) {
		return true
	}
	_, _, ok := c.Param(name)
	return ok
}

package metadata

// RefCache hands out AssemblyRef, TypeRef and MemberRef rows, adding each
// distinct reference once. Keys are interned names, not formatted strings.
type RefCache struct {
	b       *Builder
	names   *Interner
	asms    map[NameID]Token
	types   map[typeKey]Token
	members map[memberKey]Token
}

type typeKey struct {
	scope     Token
	namespace NameID
	name      NameID
}

type memberKey struct {
	parent Token
	name   NameID
	sig    uint32
}

func NewRefCache(b *Builder) *RefCache {
	return &RefCache{
		b:       b,
		names:   NewInterner(),
		asms:    make(map[NameID]Token),
		types:   make(map[typeKey]Token),
		members: make(map[memberKey]Token),
	}
}

// Assembly returns the reference row for name, adding it with v and token
// on first use.
func (c *RefCache) Assembly(name string, v Version, publicKeyToken []byte) Token {
	id := c.names.Intern(name)
	if t, ok := c.asms[id]; ok {
		return t
	}
	t := c.b.AddAssemblyRef(name, v, publicKeyToken)
	c.asms[id] = t
	return t
}

// LookupAssembly reports an already referenced assembly.
func (c *RefCache) LookupAssembly(name string) (Token, bool) {
	t, ok := c.asms[c.names.Intern(name)]
	return t, ok
}

func (c *RefCache) Type(scope Token, namespace, name string) Token {
	k := typeKey{scope: scope, namespace: c.names.Intern(namespace), name: c.names.Intern(name)}
	if t, ok := c.types[k]; ok {
		return t
	}
	t := c.b.AddTypeRef(scope, namespace, name)
	c.types[k] = t
	return t
}

func (c *RefCache) Member(parent Token, name string, sig []byte) Token {
	off, err := c.b.Blobs.Add(sig)
	c.b.fail(err)
	k := memberKey{parent: parent, name: c.names.Intern(name), sig: off}
	if t, ok := c.members[k]; ok {
		return t
	}
	t := c.b.AddMemberRef(parent, name, sig)
	c.members[k] = t
	return t
}

// Names exposes the interner so callers can key their own indexes on it.
func (c *RefCache) Names() *Interner { return c.names }

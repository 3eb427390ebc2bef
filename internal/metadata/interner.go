package metadata

// NameID is an interned name. Reference caches key on IDs instead of
// formatted strings.
type NameID uint32

const NoNameID NameID = 0

type Interner struct {
	byID  []string          // индекс -> строка (byID[0] = "" для NoNameID)
	index map[string]NameID // строка -> ID
}

func NewInterner() *Interner {
	return &Interner{
		byID:  []string{""},
		index: map[string]NameID{"": NoNameID},
	}
}

// Intern returns the ID of s, adding it on first use.
func (i *Interner) Intern(s string) NameID {
	if id, ok := i.index[s]; ok {
		return id
	}
	id := NameID(len(i.byID))
	i.byID = append(i.byID, s)
	i.index[s] = id
	return id
}

// Lookup возвращает строку по ID.
func (i *Interner) Lookup(id NameID) (string, bool) {
	if int(id) >= len(i.byID) {
		return "", false
	}
	return i.byID[id], true
}

// Len counts interned names including the empty one.
func (i *Interner) Len() int {
	return len(i.byID)
}

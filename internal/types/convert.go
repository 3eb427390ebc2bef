package types

var widening = map[Kind][]Kind{
	KindInt32:   {KindInt64, KindFloat32, KindFloat64, KindDecimal},
	KindFloat32: {KindFloat64},
	KindInt64:   {KindFloat32, KindFloat64, KindDecimal},
}

// CanWiden reports whether a value of kind from converts implicitly to kind to.
// Identity is not a widening.
func CanWiden(from, to Kind) bool {
	for _, k := range widening[from] {
		if k == to {
			return true
		}
	}
	return false
}

// rank orders the numeric promotion lattice; decimal sits between int and long.
func rank(k Kind) int {
	switch k {
	case KindFloat64:
		return 5
	case KindFloat32:
		return 4
	case KindInt64:
		return 3
	case KindDecimal:
		return 2
	case KindInt32:
		return 1
	}
	return 0
}

// Promote returns the result type of an arithmetic operation on a and b.
// When only one side is known its type wins; non-lattice numeric kinds
// (short, byte, ...) promote to int.
func Promote(a, b Type) Type {
	switch {
	case !a.Known() && !b.Known():
		return Unknown
	case !a.Known():
		return normalizeNumeric(b)
	case !b.Known():
		return normalizeNumeric(a)
	}
	na, nb := normalizeNumeric(a), normalizeNumeric(b)
	if rank(na.Kind) >= rank(nb.Kind) {
		return na
	}
	return nb
}

func normalizeNumeric(t Type) Type {
	if rank(t.Kind) > 0 {
		return t
	}
	if t.Kind.IsNumeric() {
		return Int32
	}
	return t
}

// Assignable reports reference compatibility: anything known flows into object,
// and identical class names match.
func Assignable(from, to Type) bool {
	if !from.Known() || !to.Known() {
		return false
	}
	if to.Kind == KindObject && from.Kind != KindVoid {
		return true
	}
	return from.Kind == KindClass && to.Kind == KindClass && from.Name == to.Name
}

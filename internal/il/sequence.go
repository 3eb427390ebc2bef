package il

import "strings"

// Sequence is the ordered instruction list produced for one statement or
// expression. It is produced once by lowering and consumed once by an emitter.
type Sequence struct {
	Instrs []Instr
}

func (s *Sequence) Add(in ...Instr) {
	s.Instrs = append(s.Instrs, in...)
}

// Append copies other's instructions onto s.
func (s *Sequence) Append(other Sequence) {
	s.Instrs = append(s.Instrs, other.Instrs...)
}

func (s Sequence) Len() int { return len(s.Instrs) }

func (s Sequence) Empty() bool { return len(s.Instrs) == 0 }

// HasReturn reports whether any instruction is a return.
func (s Sequence) HasReturn() bool {
	return s.IndexOf(KindReturn) >= 0
}

// IndexOf returns the position of the first instruction of kind k, or -1.
func (s Sequence) IndexOf(k Kind) int {
	for i := range s.Instrs {
		if s.Instrs[i].Kind == k {
			return i
		}
	}
	return -1
}

// Insert places in before position i.
func (s *Sequence) Insert(i int, in Instr) {
	if i < 0 || i >= len(s.Instrs) {
		s.Instrs = append(s.Instrs, in)
		return
	}
	s.Instrs = append(s.Instrs, Instr{})
	copy(s.Instrs[i+1:], s.Instrs[i:])
	s.Instrs[i] = in
}

func (s Sequence) Clone() Sequence {
	return Sequence{Instrs: append([]Instr(nil), s.Instrs...)}
}

func (s Sequence) String() string {
	parts := make([]string, len(s.Instrs))
	for i, in := range s.Instrs {
		parts[i] = in.String()
	}
	return strings.Join(parts, "; ")
}

// Locals lists every local name loaded or stored across seqs, in first-use
// order. Slot numbers are positions in the result.
func Locals(seqs []Sequence) []string {
	var names []string
	seen := make(map[string]bool)
	for _, s := range seqs {
		for _, in := range s.Instrs {
			if (in.Op != OpLdloc && in.Op != OpStloc) || in.Name == "" || seen[in.Name] {
				continue
			}
			seen[in.Name] = true
			names = append(names, in.Name)
		}
	}
	return names
}

package pe

import (
	"fmt"

	"cilforge/internal/il"
)

// Effect returns how many stack slots in pops and pushes. Expanded forms
// (cne, cle, cge, not) count as the single instruction they replace.
func Effect(in il.Instr) (pop, push int) {
	switch in.Kind {
	case il.KindLabel, il.KindReturn:
		return 0, 0
	case il.KindPop:
		return 1, 0
	case il.KindCall:
		if in.Void {
			return in.Argc, 0
		}
		return in.Argc, 1
	case il.KindArith:
		if in.Op.IsUnary() {
			return 1, 1
		}
		return 2, 1
	case il.KindBranch:
		if in.Op == il.OpBr {
			return 0, 0
		}
		return 1, 0
	}
	switch in.Op {
	case il.OpLdfld:
		return 1, 1
	case il.OpDup:
		return 1, 2
	case il.OpStloc, il.OpStarg, il.OpStsfld:
		return 1, 0
	case il.OpStfld:
		return 2, 0
	case il.OpStelem:
		return 3, 0
	}
	return 0, 1
}

// Delta is the net stack change of in.
func Delta(in il.Instr) int {
	pop, push := Effect(in)
	return push - pop
}

// UnderflowError reports an instruction that pops more than the stack holds.
type UnderflowError struct {
	Index int
	Instr il.Instr
	Depth int
}

func (e *UnderflowError) Error() string {
	return fmt.Sprintf("stack underflow at instruction %d (%s): depth %d", e.Index, e.Instr, e.Depth)
}

// LabelDepthError reports a join point reached with two different depths.
type LabelDepthError struct {
	Label      string
	Have, Want int
}

func (e *LabelDepthError) Error() string {
	return fmt.Sprintf("label %s reached with depth %d, expected %d", e.Label, e.Have, e.Want)
}

// RetSite is a reachable ret and the depth just before it.
type RetSite struct {
	Index int
	Depth int
}

// Simulator tracks evaluation stack depth across the statements of one
// method. ret and br end the current path; a label resumes at the depth its
// branches recorded. Code after a path ends and before a reached label is
// unreachable and does not move the depth.
type Simulator struct {
	depth  int
	live   bool
	peak   int
	labels map[string]int
}

func NewSimulator() *Simulator {
	return &Simulator{live: true, labels: make(map[string]int)}
}

// Clone returns an independent copy, used to try a sequence before
// committing to it.
func (s *Simulator) Clone() *Simulator {
	c := *s
	c.labels = make(map[string]int, len(s.labels))
	for k, v := range s.labels {
		c.labels[k] = v
	}
	return &c
}

// Depth is the current depth; an unreachable position reports 0.
func (s *Simulator) Depth() int {
	if !s.live {
		return 0
	}
	return s.depth
}

func (s *Simulator) Live() bool { return s.live }

// Peak is the deepest stack seen so far.
func (s *Simulator) Peak() int { return s.peak }

func (s *Simulator) record(label string, depth int) error {
	if want, ok := s.labels[label]; ok && want != depth {
		return &LabelDepthError{Label: label, Have: depth, Want: want}
	}
	s.labels[label] = depth
	return nil
}

// Exec applies one instruction.
func (s *Simulator) Exec(i int, in il.Instr) error {
	if in.Kind == il.KindLabel {
		want, recorded := s.labels[in.Name]
		switch {
		case s.live && recorded && want != s.depth:
			return &LabelDepthError{Label: in.Name, Have: s.depth, Want: want}
		case s.live:
			s.labels[in.Name] = s.depth
		case recorded:
			s.depth, s.live = want, true
		}
		return nil
	}
	if !s.live {
		return nil
	}
	pop, push := Effect(in)
	if s.depth < pop {
		return &UnderflowError{Index: i, Instr: in, Depth: s.depth}
	}
	s.depth += push - pop
	if s.depth > s.peak {
		s.peak = s.depth
	}
	switch in.Kind {
	case il.KindBranch:
		if err := s.record(in.Name, s.depth); err != nil {
			return err
		}
		if in.Op == il.OpBr {
			s.live = false
		}
	case il.KindReturn:
		s.live = false
	}
	return nil
}

// Run applies seq and returns the reachable ret sites with their depths.
func (s *Simulator) Run(seq il.Sequence) ([]RetSite, error) {
	var rets []RetSite
	for i, in := range seq.Instrs {
		if in.Kind == il.KindReturn && s.live {
			rets = append(rets, RetSite{Index: i, Depth: s.depth})
		}
		if err := s.Exec(i, in); err != nil {
			return rets, err
		}
	}
	return rets, nil
}

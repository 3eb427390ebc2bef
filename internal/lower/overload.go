package lower

import (
	"sort"

	"cilforge/internal/il"
	"cilforge/internal/symbols"
	"cilforge/internal/types"
)

// Compatibility scores for one argument against one parameter.
const (
	ScoreIdentical  = 100
	ScoreAssignable = 50
	ScoreWidening   = 10
)

// Candidate is one overload considered by Resolve.
type Candidate struct {
	Params    []types.Type
	Optional  int
	Generic   bool
	Extension bool
	// Source is the symbol-table entry this candidate came from.
	Source symbols.Member
}

// Score rates how well an argument of type arg fits a parameter of type param.
func Score(arg, param types.Type) int {
	switch {
	case arg == param:
		return ScoreIdentical
	case types.Assignable(arg, param):
		return ScoreAssignable
	case types.CanWiden(arg.Kind, param.Kind):
		return ScoreWidening
	}
	return 0
}

type scored struct {
	idx   int
	score int
	n     int
}

// Resolve picks the best candidate for args. receiver, when known, is the type
// of the qualifier expression and is matched against the first parameter of
// extension-shaped candidates. It returns the index into cands, or false.
//
// Candidates must fit by arity (exact, one extra leading receiver parameter,
// or trailing optional parameters). A candidate is rejected when any argument
// of known type scores zero against its parameter; arguments of unknown type
// never reject. Survivors are ordered by total score, then fewer parameters,
// then non-generic first.
func Resolve(cands []Candidate, args []types.Type, receiver *types.Type) (int, bool) {
	var ok []scored
	for i, c := range cands {
		params, argv, fits := shape(c, args, receiver)
		if !fits {
			continue
		}
		total, rejected := 0, false
		for j, a := range argv {
			if j >= len(params) {
				break
			}
			s := Score(a, params[j])
			if a.Known() && s <= 0 {
				rejected = true
				break
			}
			total += s
		}
		if rejected {
			continue
		}
		ok = append(ok, scored{idx: i, score: total, n: len(c.Params)})
	}
	if len(ok) == 0 {
		return -1, false
	}
	sort.SliceStable(ok, func(i, j int) bool {
		a, b := ok[i], ok[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.n != b.n {
			return a.n < b.n
		}
		return !cands[a.idx].Generic && cands[b.idx].Generic
	})
	return ok[0].idx, true
}

// shape aligns the supplied arguments with c's parameters, prepending the
// receiver for extension candidates.
func shape(c Candidate, args []types.Type, receiver *types.Type) ([]types.Type, []types.Type, bool) {
	n, p := len(args), len(c.Params)
	switch {
	case p == n && !c.Extension:
		return c.Params, args, true
	case c.Extension && p == n+1:
		recv := types.Unknown
		if receiver != nil {
			recv = *receiver
		}
		return c.Params, append([]types.Type{recv}, args...), true
	case !c.Extension && n < p && n >= p-c.Optional:
		return c.Params[:n], args, true
	}
	return nil, nil, false
}

// candidates converts symbol-table overloads into resolver input.
func candidates(members []symbols.Member) []Candidate {
	out := make([]Candidate, 0, len(members))
	for _, m := range members {
		c := Candidate{
			Optional:  m.Method.Optional,
			Generic:   m.Method.Generic,
			Extension: m.Method.Extension,
			Source:    m,
		}
		for _, p := range m.Method.Params {
			name, _ := il.SplitTypeToken(p)
			c.Params = append(c.Params, types.Parse(name))
		}
		out = append(out, c)
	}
	return out
}

func overloadsOf(typ *symbols.Type, name string) []symbols.Member {
	var out []symbols.Member
	for _, m := range typ.Overloads(name) {
		out = append(out, symbols.Member{Type: typ, Method: m})
	}
	return out
}

// extCallOf renders the resolved member as an extcall token.
func extCallOf(m symbols.Member) il.ExtCall {
	ret := m.Method.Returns
	if ret == "" {
		ret = "System.Void"
	}
	return il.ExtCall{
		Asm:      m.Type.Assembly,
		Ns:       m.Type.Namespace,
		Type:     m.Type.Name,
		Method:   m.Method.Name,
		Params:   append([]string(nil), m.Method.Params...),
		Return:   ret,
		Instance: !m.Method.IsStatic(),
	}
}

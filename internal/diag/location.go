package diag

import (
	"fmt"
	"strings"
)

// Location points into the compilation: a unit (input file or assembly),
// optionally a method inside it and a statement index inside that method.
type Location struct {
	Unit   string
	Method string
	// Statement is the zero-based statement index; -1 when not applicable.
	Statement int
}

// At builds a location without a statement.
func At(unit, method string) Location {
	return Location{Unit: unit, Method: method, Statement: -1}
}

// Stmt narrows the location to a statement.
func (l Location) Stmt(i int) Location {
	l.Statement = i
	return l
}

func (l Location) IsZero() bool {
	return l.Unit == "" && l.Method == "" && l.Statement < 0
}

func (l Location) String() string {
	var b strings.Builder
	b.WriteString(l.Unit)
	if l.Method != "" {
		if b.Len() > 0 {
			b.WriteByte(':')
		}
		b.WriteString(l.Method)
	}
	if l.Statement >= 0 {
		fmt.Fprintf(&b, "#%d", l.Statement)
	}
	return b.String()
}

// Less orders locations by unit, method, statement.
func (l Location) Less(o Location) bool {
	if l.Unit != o.Unit {
		return l.Unit < o.Unit
	}
	if l.Method != o.Method {
		return l.Method < o.Method
	}
	return l.Statement < o.Statement
}

package il

import (
	"errors"
	"strings"
)

// ExtCallPrefix marks a call target that names an external method.
const ExtCallPrefix = "extcall:"

// ExtCall describes an external method by name:
//
//	extcall:Asm=System.Console;Ns=System;Type=Console;Method=WriteLine;Params=System.Int32;Return=System.Void
//
// Param and return tokens are runtime type names, optionally suffixed with
// "@Assembly" for types outside the core library.
type ExtCall struct {
	Asm    string
	Ns     string
	Type   string
	Method string
	Params []string
	Return string
	// Instance marks a HASTHIS callee; the receiver is an extra stack operand.
	Instance bool
}

func (c ExtCall) String() string {
	var b strings.Builder
	b.WriteString(ExtCallPrefix)
	b.WriteString("Asm=" + c.Asm)
	b.WriteString(";Ns=" + c.Ns)
	b.WriteString(";Type=" + c.Type)
	b.WriteString(";Method=" + c.Method)
	b.WriteString(";Params=" + strings.Join(c.Params, ","))
	ret := c.Return
	if ret == "" {
		ret = "System.Void"
	}
	b.WriteString(";Return=" + ret)
	if c.Instance {
		b.WriteString(";This=1")
	}
	return b.String()
}

// QualifiedType is Ns.Type.
func (c ExtCall) QualifiedType() string {
	if c.Ns == "" {
		return c.Type
	}
	return c.Ns + "." + c.Type
}

// IsExtCall reports whether target carries an extcall token.
func IsExtCall(target string) bool {
	return strings.HasPrefix(target, ExtCallPrefix)
}

// ParseExtCall decodes an extcall token. Unknown keys are ignored; Type and
// Method are required.
func ParseExtCall(token string) (ExtCall, error) {
	var c ExtCall
	if !IsExtCall(token) {
		return c, errors.New("not an extcall token")
	}
	for _, part := range strings.Split(token[len(ExtCallPrefix):], ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		switch k {
		case "Asm":
			c.Asm = v
		case "Ns":
			c.Ns = v
		case "Type":
			c.Type = v
		case "Method":
			c.Method = v
		case "Params":
			for _, p := range strings.Split(v, ",") {
				if p = strings.TrimSpace(p); p != "" {
					c.Params = append(c.Params, p)
				}
			}
		case "Return":
			c.Return = v
		case "This":
			c.Instance = v == "1"
		}
	}
	if c.Type == "" || c.Method == "" {
		return c, errors.New("extcall token without type or method")
	}
	if c.Return == "" {
		c.Return = "System.Void"
	}
	return c, nil
}

// SplitTypeToken splits "Ns.Type@Asm" into the type name and assembly.
func SplitTypeToken(tok string) (typeName, asm string) {
	typeName, asm, _ = strings.Cut(tok, "@")
	return typeName, asm
}

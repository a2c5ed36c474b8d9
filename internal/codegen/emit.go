package codegen

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Assembly listing
//
// Renders a Program as TVM assembly text. Each fragment becomes a labelled
// block; CALLREF continuations are printed inline as nested blocks.
// ---------------------------------------------------------------------------

// Emit renders prog as an assembly listing.
func Emit(prog *Program) string {
	e := &emitter{b: &strings.Builder{}}
	e.line(0, "; contract %s", prog.Contract)
	for _, f := range prog.Functions {
		e.b.WriteString("\n")
		e.function(f)
	}
	return e.b.String()
}

type emitter struct {
	b *strings.Builder
}

func (e *emitter) line(indent int, format string, args ...interface{}) {
	e.b.WriteString(strings.Repeat("\t", indent))
	fmt.Fprintf(e.b, format, args...)
	e.b.WriteString("\n")
}

func (e *emitter) function(f *Function) {
	e.line(0, ".fragment %s, %s", f.Name, f.Kind)
	switch f.Kind {
	case FragDecodeParams, FragEncodeReturns:
		e.line(0, "; id 0x%08x, %d -> %d", f.ID, f.Args, f.Rets)
	default:
		e.line(0, "; %d -> %d", f.Args, f.Rets)
	}
	e.line(0, "%s:", f.Name)
	e.block(f.Code, 1)
}

func (e *emitter) block(code []Instr, indent int) {
	for _, in := range code {
		if in.Op == OpCallRef {
			e.line(indent, "CALLREF {")
			e.block(in.Body, indent+1)
			e.line(indent, "}")
			continue
		}
		e.line(indent, "%s", in.String())
	}
}

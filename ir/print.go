// Copyright 2018 prog-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ir

import (
	"fmt"
	"io"
	"strings"
)

// printer wraps an io.Writer; write errors are latched and surfaced once at
// the end of Program.Print.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) indent(n int) {
	if n > 0 {
		p.printf("%s", strings.Repeat("  ", n))
	}
}

// String renders a single node, mostly for tests and diagnostics.
func String(n Node) string {
	var sb strings.Builder
	n.print(&printer{w: &sb}, 0)
	return sb.String()
}

func (e *IntLiteral) print(p *printer, indent int) {
	p.printf("%d", e.Value)
}

func (e *Variable) print(p *printer, indent int) {
	p.printf("%s", e.Name)
}

func (e *Cast) print(p *printer, indent int) {
	p.printf("(%s) (", e.Type.Name)
	e.Inner.print(p, indent)
	p.printf(")")
}

func (e *Preop) print(p *printer, indent int) {
	p.printf("%s(", e.Op)
	e.Arg.print(p, indent)
	p.printf(")")
}

func (e *Binop) print(p *printer, indent int) {
	p.printf("(")
	e.LHS.print(p, indent)
	p.printf(") %s (", e.Op)
	e.RHS.print(p, indent)
	p.printf(")")
}

func (e *Ternop) print(p *printer, indent int) {
	p.printf("(")
	e.A.print(p, indent)
	p.printf(") %s (", e.Op1)
	e.B.print(p, indent)
	p.printf(") %s (", e.Op2)
	e.C.print(p, indent)
	p.printf(")")
}

func (e *Call) print(p *printer, indent int) {
	e.Fn.print(p, indent)
	p.printf("(")
	for i, arg := range e.Args {
		if i > 0 {
			p.printf(", ")
		}
		arg.print(p, indent)
	}
	p.printf(")")
}

func (e *AsmConstraint) print(p *printer, indent int) {
	p.printf("%q (", e.Constraint)
	e.Inner.print(p, indent)
	p.printf(")")
}

func (e *AsmStmt) print(p *printer, indent int) {
	p.indent(indent)
	if e.Volatile {
		p.printf("asm volatile (\"\"")
	} else {
		p.printf("asm (\"\"")
	}
	if len(e.Outputs) > 0 || len(e.Inputs) > 0 {
		p.printf(" : ")
		for i, out := range e.Outputs {
			if i > 0 {
				p.printf(", ")
			}
			out.print(p, indent)
		}
	}
	if len(e.Inputs) > 0 {
		p.printf(" : ")
		for i, in := range e.Inputs {
			if i > 0 {
				p.printf(", ")
			}
			in.print(p, indent)
		}
	}
	p.printf(");\n")
}

func (e *DeclStmt) print(p *printer, indent int) {
	p.indent(indent)
	p.printf("%s ", e.Type.Name)
	e.Var.print(p, indent)
	p.printf(" = ")
	e.Value.print(p, indent)
	p.printf(";\n")
}

func (e *ReturnStmt) print(p *printer, indent int) {
	p.indent(indent)
	p.printf("return ")
	e.Expr.print(p, indent)
	p.printf(";\n")
}

func (e *ExprStmt) print(p *printer, indent int) {
	p.indent(indent)
	e.Expr.print(p, indent)
	p.printf(";\n")
}

func (e *BlockStmt) print(p *printer, indent int) {
	p.printf("{\n")
	for _, stmt := range e.Stmts {
		stmt.print(p, indent+1)
	}
	p.indent(indent - 1)
	p.printf("}\n")
}

func (e *IfStmt) print(p *printer, indent int) {
	p.indent(indent)
	p.printf("if (")
	e.Cond.print(p, indent)
	p.printf(") ")
	e.Then.print(p, indent+1)
	if e.Else != nil {
		p.indent(indent)
		p.printf("else ")
		e.Else.print(p, indent+1)
	}
}

func (e *StmtExpr) print(p *printer, indent int) {
	p.printf("({ ")
	e.Block.print(p, 0)
	e.Last.print(p, 0)
	p.printf("})")
}

func (e *Unreachable) print(p *printer, indent int) {
	e.Inner.print(p, indent)
}

func (f *Function) print(p *printer) {
	p.printf("%s %s(", f.Ret.Name, f.Name)
	for i, arg := range f.Args {
		if i > 0 {
			p.printf(", ")
		}
		p.printf("%s", arg.Name)
	}
	p.printf(")\n")
	f.Body.print(p, 1)
	p.printf("\n")
}

// Print emits the complete translation unit: a printf forward declaration,
// top-level declarations, helper functions, the toplevel function, and a main
// that prints the toplevel call with %d.
func (prog *Program) Print(w io.Writer) error {
	p := &printer{w: w}
	p.printf("extern \"C\" {\n")
	p.printf("extern int printf (const char *__restrict __format, ...);\n")
	p.printf("}\n")
	p.printf("\n")

	for _, decl := range prog.TopDecls {
		decl.print(p, 0)
	}
	for _, fn := range prog.TopFns {
		fn.print(p)
	}
	prog.ToplevelFn.print(p)

	p.printf("int main(int argc, char *argv[])\n")
	p.printf("{\n")
	p.printf("  printf(\"%%d\\n\", ")
	prog.ToplevelCall.print(p, 0)
	p.printf(");\n")
	p.printf("}\n")
	return p.err
}

// Source is Print into a byte slice.
func (prog *Program) Source() []byte {
	var sb strings.Builder
	prog.Print(&sb)
	return []byte(sb.String())
}

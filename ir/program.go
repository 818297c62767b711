// Copyright 2018 prog-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ir

import "fmt"

// Type is a printable type name. The three singletons below are the only
// types the transformations ever produce.
type Type struct {
	Name string
}

var (
	VoidType    = &Type{"void"}
	VoidPtrType = &Type{"void *"}
	IntType     = &Type{"int"}
)

// Function is a nullary helper or the toplevel function. Argument names are
// not tracked; no transformation generates a function that takes arguments.
type Function struct {
	Name string
	Ret  *Type
	Args []*Type
	Body Node
}

func (f *Function) clone() *Function {
	return &Function{f.Name, f.Ret, f.Args, f.Body.clone()}
}

func (f *Function) visit(ref **Function, v *Visitor) {
	if v.Func != nil {
		v.Func(ref)
	}
	f.Body.visit(f, &f.Body, v)
}

// IdentAllocator hands out identifiers id0, id1, ... unique within one
// program. It is copied by value on clone so parent and child keep allocating
// from the same point without ever colliding within either program.
type IdentAllocator struct {
	next uint32
}

func (a *IdentAllocator) NewIdent() string {
	name := fmt.Sprintf("id%d", a.next)
	a.next++
	return name
}

// Program is one valid-mode candidate. The observable behavior of every
// program is fixed at creation: running it prints ExpectedValue.
type Program struct {
	Generation    uint32
	ExpectedValue int32

	Idents IdentAllocator

	TopDecls []Node
	TopFns   []*Function

	ToplevelFn   *Function
	ToplevelCall Node
}

// NewProgram builds the minimal program { return expected; } wrapped in a
// fresh toplevel function.
func NewProgram(expected int32) *Program {
	p := &Program{ExpectedValue: expected}
	body := NewBlockStmt(0, NewReturnStmt(0, NewIntLiteral(0, expected)))
	p.ToplevelFn = &Function{Name: p.Idents.NewIdent(), Ret: IntType, Body: body}
	p.ToplevelCall = NewCall(0, NewVariable(0, p.ToplevelFn.Name), nil)
	return p
}

// Clone deep-copies the program and bumps the generation. The copy prints
// byte-identically to the original; nodes created by a subsequent rewrite are
// stamped with the new generation.
func (p *Program) Clone() *Program {
	decls := make([]Node, len(p.TopDecls))
	for i, d := range p.TopDecls {
		decls[i] = d.clone()
	}
	fns := make([]*Function, len(p.TopFns))
	for i, f := range p.TopFns {
		fns[i] = f.clone()
	}
	return &Program{
		Generation:    p.Generation + 1,
		ExpectedValue: p.ExpectedValue,
		Idents:        p.Idents,
		TopDecls:      decls,
		TopFns:        fns,
		ToplevelFn:    p.ToplevelFn.clone(),
		ToplevelCall:  p.ToplevelCall.clone(),
	}
}

// Visit walks all top-level declarations, all helper functions and the
// toplevel function. The toplevel call expression is not visited: it must
// keep calling the toplevel function by name.
func (p *Program) Visit(v *Visitor) {
	for i := range p.TopDecls {
		p.TopDecls[i].visit(nil, &p.TopDecls[i], v)
	}
	for i := range p.TopFns {
		p.TopFns[i].visit(&p.TopFns[i], v)
	}
	p.ToplevelFn.visit(&p.ToplevelFn, v)
}

// Copyright 2018 prog-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package transform

import (
	"testing"

	"github.com/vegard/prog-fuzz/ir"
)

// A small interpreter over the generated language, used by the property
// tests to check semantic preservation without invoking a real compiler.
// It implements exactly the subset the transformations emit: wrap-around
// 32-bit arithmetic, constant conditions, nullary helper calls and the
// handful of GCC builtins.

type evalEnv struct {
	t       *testing.T
	globals map[string]int32
	fns     map[string]*ir.Function
}

func evalProgram(t *testing.T, p *ir.Program) int32 {
	t.Helper()
	env := &evalEnv{
		t:       t,
		globals: map[string]int32{},
		fns:     map[string]*ir.Function{},
	}
	for _, fn := range p.TopFns {
		env.fns[fn.Name] = fn
	}
	env.fns[p.ToplevelFn.Name] = p.ToplevelFn
	for _, d := range p.TopDecls {
		decl, ok := d.(*ir.DeclStmt)
		if !ok {
			t.Fatalf("unexpected top-level statement %T", d)
		}
		name := decl.Var.(*ir.Variable).Name
		env.globals[name] = env.evalExpr(decl.Value, nil)
	}
	return env.evalExpr(p.ToplevelCall, nil)
}

func (env *evalEnv) call(fn *ir.Function) int32 {
	locals := map[string]int32{}
	value, returned := env.evalStmt(fn.Body, locals)
	if !returned {
		env.t.Fatalf("function %s fell off the end", fn.Name)
	}
	return value
}

func (env *evalEnv) evalStmt(s ir.Node, locals map[string]int32) (int32, bool) {
	switch s := s.(type) {
	case *ir.BlockStmt:
		for _, stmt := range s.Stmts {
			if v, returned := env.evalStmt(stmt, locals); returned {
				return v, true
			}
		}
		return 0, false
	case *ir.DeclStmt:
		name := s.Var.(*ir.Variable).Name
		locals[name] = env.evalExpr(s.Value, locals)
		return 0, false
	case *ir.ReturnStmt:
		return env.evalExpr(s.Expr, locals), true
	case *ir.ExprStmt:
		env.evalExpr(s.Expr, locals)
		return 0, false
	case *ir.IfStmt:
		if env.evalExpr(s.Cond, locals) != 0 {
			return env.evalStmt(s.Then, locals)
		}
		if s.Else != nil {
			return env.evalStmt(s.Else, locals)
		}
		return 0, false
	case *ir.AsmStmt:
		// An empty asm body computes nothing.
		return 0, false
	case *ir.Unreachable:
		return env.evalStmt(s.Inner, locals)
	default:
		env.t.Fatalf("unexpected statement %T", s)
		return 0, false
	}
}

func (env *evalEnv) evalExpr(e ir.Node, locals map[string]int32) int32 {
	switch e := e.(type) {
	case *ir.IntLiteral:
		return e.Value
	case *ir.Variable:
		if v, ok := locals[e.Name]; ok {
			return v
		}
		if v, ok := env.globals[e.Name]; ok {
			return v
		}
		env.t.Fatalf("undefined variable %s", e.Name)
		return 0
	case *ir.Cast:
		return env.evalExpr(e.Inner, locals)
	case *ir.Preop:
		if e.Op != "~" {
			env.t.Fatalf("unexpected prefix operator %q", e.Op)
		}
		return ^env.evalExpr(e.Arg, locals)
	case *ir.Binop:
		lhs := env.evalExpr(e.LHS, locals)
		rhs := env.evalExpr(e.RHS, locals)
		switch e.Op {
		case "+":
			return lhs + rhs
		case "-":
			return lhs - rhs
		case "*":
			return lhs * rhs
		case "&":
			return lhs & rhs
		case "|":
			return lhs | rhs
		case "^":
			return lhs ^ rhs
		case "==":
			if lhs == rhs {
				return 1
			}
			return 0
		case "!=":
			if lhs != rhs {
				return 1
			}
			return 0
		case "/":
			if rhs == 0 {
				env.t.Fatalf("division by zero was executed")
			}
			return lhs / rhs
		}
		env.t.Fatalf("unexpected binary operator %q", e.Op)
		return 0
	case *ir.Ternop:
		if env.evalExpr(e.A, locals) != 0 {
			return env.evalExpr(e.B, locals)
		}
		return env.evalExpr(e.C, locals)
	case *ir.Call:
		name := e.Fn.(*ir.Variable).Name
		switch name {
		case "__builtin_constant_p":
			return 1
		case "__builtin_expect":
			return env.evalExpr(e.Args[0], locals)
		case "__builtin_prefetch":
			env.evalExpr(e.Args[0], locals)
			return 0
		case "__builtin_trap", "__builtin_unreachable":
			env.t.Fatalf("%s was executed", name)
			return 0
		}
		fn, ok := env.fns[name]
		if !ok {
			env.t.Fatalf("call to undefined function %s", name)
		}
		return env.call(fn)
	case *ir.StmtExpr:
		if v, returned := env.evalStmt(e.Block, locals); returned {
			return v
		}
		last, ok := e.Last.(*ir.ExprStmt)
		if !ok {
			env.t.Fatalf("unexpected statement-expression tail %T", e.Last)
		}
		return env.evalExpr(last.Expr, locals)
	case *ir.Unreachable:
		return env.evalExpr(e.Inner, locals)
	default:
		env.t.Fatalf("unexpected expression %T", e)
		return 0
	}
}

// Copyright 2018 prog-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package transform is the catalogue of semantics-preserving rewrites for
// valid-mode fuzzing. Every transformation clones the program, rewrites one
// site on the clone and returns the clone; when no suitable site exists it
// returns the original program unchanged. All integer identities hold under
// two's-complement arithmetic with wrap-around.
package transform

import (
	"math"
	"math/rand"

	"github.com/vegard/prog-fuzz/ir"
)

// Transformation is one named rewrite.
type Transformation struct {
	Name  string
	Apply func(r *rand.Rand, p *ir.Program) *ir.Program
}

// Catalogue lists every transformation. Controllers pick from it uniformly.
var Catalogue = []Transformation{
	{"int-to-statement-expression", intToStmtExpr},
	{"int-to-sum", intToSum},
	{"int-to-product", intToProduct},
	{"int-to-negation", intToNegation},
	{"int-to-conjunction", intToConjunction},
	{"int-to-disjunction", intToDisjunction},
	{"int-to-xor", intToXor},
	{"int-1-to-equals", int1ToEquals},
	{"int-1-to-not-equals", int1ToNotEquals},
	{"int-to-variable", intToVariable},
	{"int-to-global-variable", intToGlobalVariable},
	{"int-to-function", intToFunction},
	{"int-to-builtin-constant-p", intToBuiltinConstantP},
	{"int-to-builtin-expect", intToBuiltinExpect},
	{"insert-builtin-prefetch", insertBuiltinPrefetch},
	{"insert-if", insertIf},
	{"insert-asm", insertAsm},
	{"insert-builtin-unreachable", insertBuiltinUnreachable},
	{"insert-builtin-trap", insertBuiltinTrap},
	{"insert-div-by-0", insertDivByZero},
	{"int-to-variable-and-asm", intToVariableAndAsm},
}

// Random picks one catalogue entry uniformly.
func Random(r *rand.Rand) Transformation {
	return Catalogue[r.Intn(len(Catalogue))]
}

func randInt32(r *rand.Rand) int32 {
	return int32(r.Uint32())
}

// randRange draws uniformly from [lo, hi]. The span must fit in an int64.
func randRange(r *rand.Rand, lo, hi int64) int64 {
	return lo + r.Int63n(hi-lo+1)
}

// pickLiteral finds one integer literal with the recency bias.
func pickLiteral(r *rand.Rand, p *ir.Program) (ir.FindResult[*ir.IntLiteral], bool) {
	return ir.PickRecent(r, ir.FindExprs[*ir.IntLiteral](p))
}

// pickLiteralOne finds one literal whose value is exactly 1, uniformly.
func pickLiteralOne(r *rand.Rand, p *ir.Program) (ir.FindResult[*ir.IntLiteral], bool) {
	all := ir.FindExprs[*ir.IntLiteral](p)
	ones := all[:0:0]
	for _, e := range all {
		if e.N.Value == 1 {
			ones = append(ones, e)
		}
	}
	return ir.PickUniform(r, ones)
}

// pickBlock finds one block statement uniformly, optionally restricted by a
// visitor predicate.
func pickBlock(r *rand.Rand, p *ir.Program, filter func(*ir.Visitor) bool) (ir.FindResult[*ir.BlockStmt], bool) {
	return ir.PickUniform(r, ir.FindStmts[*ir.BlockStmt](p, filter))
}

// insertStmt places stmt at a uniformly chosen position in block.
func insertStmt(r *rand.Rand, block *ir.BlockStmt, stmt ir.Node) {
	i := r.Intn(len(block.Stmts) + 1)
	block.Stmts = append(block.Stmts[:i:i], append([]ir.Node{stmt}, block.Stmts[i:]...)...)
}

// v -> ({ v; })
func intToStmtExpr(r *rand.Rand, p *ir.Program) *ir.Program {
	np := p.Clone()
	g := np.Generation
	e, ok := pickLiteral(r, np)
	if !ok {
		return p
	}
	*e.Ref = ir.NewStmtExpr(g,
		ir.NewBlockStmt(g),
		ir.NewExprStmt(g, e.N))
	return np
}

// v -> a + b with a + b == v and no 32-bit overflow on either side.
func intToSum(r *rand.Rand, p *ir.Program) *ir.Program {
	np := p.Clone()
	g := np.Generation
	e, ok := pickLiteral(r, np)
	if !ok {
		return p
	}
	v := int64(e.N.Value)
	lo, hi := int64(math.MinInt32), int64(math.MaxInt32)
	if v < 0 {
		hi = v - math.MinInt32
	} else {
		lo = v - math.MaxInt32
	}
	a := randRange(r, lo, hi)
	b := v - a
	*e.Ref = ir.NewBinop(g, "+",
		ir.NewIntLiteral(g, int32(a)),
		ir.NewIntLiteral(g, int32(b)))
	return np
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// v -> x * y where x = gcd(|v|, b) and y = v / x; aborts for |v| <= 1.
func intToProduct(r *rand.Rand, p *ir.Program) *ir.Program {
	np := p.Clone()
	g := np.Generation
	e, ok := pickLiteral(r, np)
	if !ok {
		return p
	}
	a := int64(e.N.Value)
	if a < 0 {
		a = -a
	}
	if a <= 1 {
		return p
	}
	b := randRange(r, 1, a-1)
	x := gcd(a, b)
	y := int64(e.N.Value) / x
	*e.Ref = ir.NewBinop(g, "*",
		ir.NewIntLiteral(g, int32(x)),
		ir.NewIntLiteral(g, int32(y)))
	return np
}

// v -> ~(~v)
func intToNegation(r *rand.Rand, p *ir.Program) *ir.Program {
	np := p.Clone()
	g := np.Generation
	e, ok := pickLiteral(r, np)
	if !ok {
		return p
	}
	*e.Ref = ir.NewPreop(g, "~", ir.NewIntLiteral(g, ^e.N.Value))
	return np
}

// v -> (v|r) & (v|~r)
func intToConjunction(r *rand.Rand, p *ir.Program) *ir.Program {
	np := p.Clone()
	g := np.Generation
	e, ok := pickLiteral(r, np)
	if !ok {
		return p
	}
	rr := randInt32(r)
	*e.Ref = ir.NewBinop(g, "&",
		ir.NewIntLiteral(g, e.N.Value|rr),
		ir.NewIntLiteral(g, e.N.Value|^rr))
	return np
}

// v -> (v&r) | (v&~r)
func intToDisjunction(r *rand.Rand, p *ir.Program) *ir.Program {
	np := p.Clone()
	g := np.Generation
	e, ok := pickLiteral(r, np)
	if !ok {
		return p
	}
	rr := randInt32(r)
	*e.Ref = ir.NewBinop(g, "|",
		ir.NewIntLiteral(g, e.N.Value&rr),
		ir.NewIntLiteral(g, e.N.Value&^rr))
	return np
}

// v -> (~r) ^ (r ^ ~v)
func intToXor(r *rand.Rand, p *ir.Program) *ir.Program {
	np := p.Clone()
	g := np.Generation
	e, ok := pickLiteral(r, np)
	if !ok {
		return p
	}
	rr := randInt32(r)
	*e.Ref = ir.NewBinop(g, "^",
		ir.NewIntLiteral(g, ^rr),
		ir.NewIntLiteral(g, rr^^e.N.Value))
	return np
}

// 1 -> (r == r)
func int1ToEquals(r *rand.Rand, p *ir.Program) *ir.Program {
	np := p.Clone()
	g := np.Generation
	e, ok := pickLiteralOne(r, np)
	if !ok {
		return p
	}
	rr := randInt32(r)
	*e.Ref = ir.NewBinop(g, "==",
		ir.NewIntLiteral(g, rr),
		ir.NewIntLiteral(g, rr))
	return np
}

// 1 -> (r1 != r2) with r1 != r2
func int1ToNotEquals(r *rand.Rand, p *ir.Program) *ir.Program {
	np := p.Clone()
	g := np.Generation
	e, ok := pickLiteralOne(r, np)
	if !ok {
		return p
	}
	r1 := randInt32(r)
	r2 := randInt32(r)
	for r2 == r1 {
		r2 = randInt32(r)
	}
	*e.Ref = ir.NewBinop(g, "!=",
		ir.NewIntLiteral(g, r1),
		ir.NewIntLiteral(g, r2))
	return np
}

// v -> name, with "int name = v;" prepended to the enclosing function body.
func intToVariable(r *rand.Rand, p *ir.Program) *ir.Program {
	np := p.Clone()
	g := np.Generation
	e, ok := pickLiteral(r, np)
	if !ok {
		return p
	}
	body, ok := e.Fn.Body.(*ir.BlockStmt)
	if !ok {
		return p
	}
	v := ir.NewVariable(g, np.Idents.NewIdent())
	decl := ir.NewDeclStmt(g, ir.IntType, v, e.N)
	body.Stmts = append([]ir.Node{decl}, body.Stmts...)
	*e.Ref = v
	return np
}

// v -> name, with "int name = v;" prepended to the top-level declarations.
func intToGlobalVariable(r *rand.Rand, p *ir.Program) *ir.Program {
	np := p.Clone()
	g := np.Generation
	e, ok := pickLiteral(r, np)
	if !ok {
		return p
	}
	v := ir.NewVariable(g, np.Idents.NewIdent())
	decl := ir.NewDeclStmt(g, ir.IntType, v, e.N)
	np.TopDecls = append([]ir.Node{decl}, np.TopDecls...)
	*e.Ref = v
	return np
}

// v -> name(), with "int name() { return v; }" added at top level.
func intToFunction(r *rand.Rand, p *ir.Program) *ir.Program {
	np := p.Clone()
	g := np.Generation
	e, ok := pickLiteral(r, np)
	if !ok {
		return p
	}
	body := ir.NewBlockStmt(g, ir.NewReturnStmt(g, e.N))
	fn := &ir.Function{Name: np.Idents.NewIdent(), Ret: ir.IntType, Body: body}
	np.TopFns = append([]*ir.Function{fn}, np.TopFns...)
	*e.Ref = ir.NewCall(g, ir.NewVariable(g, fn.Name), nil)
	return np
}

// v -> (__builtin_constant_p(v)) ? (v) : (v)
func intToBuiltinConstantP(r *rand.Rand, p *ir.Program) *ir.Program {
	np := p.Clone()
	g := np.Generation
	e, ok := pickLiteral(r, np)
	if !ok {
		return p
	}
	guard := ir.NewCall(g,
		ir.NewVariable(g, "__builtin_constant_p"),
		[]ir.Node{ir.NewIntLiteral(g, e.N.Value)})
	*e.Ref = ir.NewTernop(g, "?", ":", guard,
		ir.NewIntLiteral(g, e.N.Value),
		ir.NewIntLiteral(g, e.N.Value))
	return np
}

// v -> __builtin_expect(v, w); the hint w does not change the value.
func intToBuiltinExpect(r *rand.Rand, p *ir.Program) *ir.Program {
	np := p.Clone()
	g := np.Generation
	e, ok := pickLiteral(r, np)
	if !ok {
		return p
	}
	w := randInt32(r)
	if r.Intn(4) == 0 {
		w = e.N.Value
	}
	*e.Ref = ir.NewCall(g,
		ir.NewVariable(g, "__builtin_expect"),
		[]ir.Node{ir.NewIntLiteral(g, e.N.Value), ir.NewIntLiteral(g, w)})
	return np
}

// Insert __builtin_prefetch((void *) r); anywhere.
func insertBuiltinPrefetch(r *rand.Rand, p *ir.Program) *ir.Program {
	np := p.Clone()
	g := np.Generation
	b, ok := pickBlock(r, np, nil)
	if !ok {
		return p
	}
	call := ir.NewCall(g,
		ir.NewVariable(g, "__builtin_prefetch"),
		[]ir.Node{ir.NewCast(g, ir.VoidPtrType, ir.NewIntLiteral(g, randInt32(r)))})
	insertStmt(r, b.N, ir.NewExprStmt(g, call))
	return np
}

// Insert if (c) {} else {} with a constant condition; the dead branch is
// wrapped in Unreachable so later mutations can target it.
func insertIf(r *rand.Rand, p *ir.Program) *ir.Program {
	np := p.Clone()
	g := np.Generation
	b, ok := pickBlock(r, np, nil)
	if !ok {
		return p
	}
	cond := int32(r.Intn(2))
	var thenStmt ir.Node = ir.NewBlockStmt(g)
	var elseStmt ir.Node = ir.NewBlockStmt(g)
	if cond != 0 {
		elseStmt = ir.NewUnreachable(g, elseStmt)
	} else {
		thenStmt = ir.NewUnreachable(g, thenStmt)
	}
	insertStmt(r, b.N, ir.NewIfStmt(g, ir.NewIntLiteral(g, cond), thenStmt, elseStmt))
	return np
}

// Insert asm [volatile](""); anywhere.
func insertAsm(r *rand.Rand, p *ir.Program) *ir.Program {
	np := p.Clone()
	g := np.Generation
	b, ok := pickBlock(r, np, nil)
	if !ok {
		return p
	}
	insertStmt(r, b.N, ir.NewAsmStmt(g, r.Intn(2) == 1, nil, nil))
	return np
}

func unreachableOnly(v *ir.Visitor) bool {
	return v.IsUnreachable()
}

// Insert __builtin_unreachable(); in a dynamically dead block.
func insertBuiltinUnreachable(r *rand.Rand, p *ir.Program) *ir.Program {
	return insertDeadCall(r, p, "__builtin_unreachable")
}

// Insert __builtin_trap(); in a dynamically dead block.
func insertBuiltinTrap(r *rand.Rand, p *ir.Program) *ir.Program {
	return insertDeadCall(r, p, "__builtin_trap")
}

func insertDeadCall(r *rand.Rand, p *ir.Program, name string) *ir.Program {
	np := p.Clone()
	g := np.Generation
	b, ok := pickBlock(r, np, unreachableOnly)
	if !ok {
		return p
	}
	call := ir.NewCall(g, ir.NewVariable(g, name), nil)
	insertStmt(r, b.N, ir.NewExprStmt(g, call))
	return np
}

// Insert (1) / (0); in a dynamically dead block.
func insertDivByZero(r *rand.Rand, p *ir.Program) *ir.Program {
	np := p.Clone()
	g := np.Generation
	b, ok := pickBlock(r, np, unreachableOnly)
	if !ok {
		return p
	}
	div := ir.NewBinop(g, "/",
		ir.NewIntLiteral(g, 1),
		ir.NewIntLiteral(g, 0))
	insertStmt(r, b.N, ir.NewExprStmt(g, div))
	return np
}

// v -> name, with the declaration followed by an empty asm that claims to
// clobber name. The asm body is empty, so the value cannot actually change.
func intToVariableAndAsm(r *rand.Rand, p *ir.Program) *ir.Program {
	np := p.Clone()
	g := np.Generation
	e, ok := pickLiteral(r, np)
	if !ok {
		return p
	}
	body, ok := e.Fn.Body.(*ir.BlockStmt)
	if !ok {
		return p
	}
	v := ir.NewVariable(g, np.Idents.NewIdent())
	decl := ir.NewDeclStmt(g, ir.IntType, v, e.N)
	clobber := ir.NewAsmStmt(g, r.Intn(2) == 1,
		[]ir.Node{ir.NewAsmConstraint(g, "+r", ir.NewVariable(g, v.Name))}, nil)
	body.Stmts = append([]ir.Node{decl, clobber}, body.Stmts...)
	*e.Ref = v
	return np
}

// Copyright 2018 prog-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ir

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintFreshProgram(t *testing.T) {
	p := NewProgram(42)
	var sb strings.Builder
	require.NoError(t, p.Print(&sb))

	want := `extern "C" {
extern int printf (const char *__restrict __format, ...);
}

int id0()
{
    return 42;
}

int main(int argc, char *argv[])
{
  printf("%d\n", id0());
}
`
	if diff := cmp.Diff(want, sb.String()); diff != "" {
		t.Errorf("printed program mismatch (-want +got):\n%s", diff)
	}
}

func TestClonePrintsIdentically(t *testing.T) {
	p := NewProgram(-7)
	clone := p.Clone()

	assert.Equal(t, p.Generation+1, clone.Generation)
	assert.Equal(t, string(p.Source()), string(clone.Source()))

	// The clone must not alias the original's statement lists.
	body := clone.ToplevelFn.Body.(*BlockStmt)
	body.Stmts = append(body.Stmts, NewExprStmt(clone.Generation, NewIntLiteral(clone.Generation, 1)))
	assert.NotEqual(t, string(p.Source()), string(clone.Source()))
}

func TestUnreachableIsTransparentToPrinting(t *testing.T) {
	lit := NewIntLiteral(3, 99)
	wrapped := NewUnreachable(3, lit)
	assert.Equal(t, String(lit), String(wrapped))
}

func TestUnreachableVisibleToVisitor(t *testing.T) {
	p := NewProgram(1)
	body := p.ToplevelFn.Body.(*BlockStmt)
	dead := NewUnreachable(0, NewBlockStmt(0, NewExprStmt(0, NewIntLiteral(0, 7))))
	body.Stmts = append(body.Stmts, NewIfStmt(0, NewIntLiteral(0, 0), dead, nil))

	var reachable, unreachable []int32
	v := &Visitor{}
	v.Expr = func(fn *Function, ref *Node) {
		lit, ok := (*ref).(*IntLiteral)
		if !ok {
			return
		}
		if v.IsUnreachable() {
			unreachable = append(unreachable, lit.Value)
		} else {
			reachable = append(reachable, lit.Value)
		}
	}
	p.Visit(v)

	assert.Contains(t, unreachable, int32(7))
	assert.NotContains(t, unreachable, int32(1))
	assert.Contains(t, reachable, int32(1))
}

func TestIdentAllocator(t *testing.T) {
	var a IdentAllocator
	seen := map[string]bool{}
	prev := ""
	for i := 0; i < 100; i++ {
		name := a.NewIdent()
		require.False(t, seen[name], "duplicate ident %q", name)
		seen[name] = true
		require.Greater(t, name, "")
		prev = name
	}
	assert.Equal(t, "id99", prev)
}

func TestFindExprsSortedByGeneration(t *testing.T) {
	p := NewProgram(10)
	body := p.ToplevelFn.Body.(*BlockStmt)
	body.Stmts = append(body.Stmts,
		NewExprStmt(5, NewIntLiteral(5, 50)),
		NewExprStmt(2, NewIntLiteral(2, 20)))

	lits := FindExprs[*IntLiteral](p)
	require.Len(t, lits, 3)
	for i := 1; i < len(lits); i++ {
		assert.GreaterOrEqual(t, lits[i-1].N.Generation(), lits[i].N.Generation())
	}
	assert.Equal(t, int32(50), lits[0].N.Value)
}

func TestFindExprsSkipsToplevelCall(t *testing.T) {
	p := NewProgram(10)
	vars := FindExprs[*Variable](p)
	// The only variable reference is the callee inside the toplevel call
	// expression, which enumeration must not see.
	assert.Empty(t, vars)
}

func TestFindStmtsUnreachableFilter(t *testing.T) {
	p := NewProgram(10)
	body := p.ToplevelFn.Body.(*BlockStmt)

	blocks := FindStmts[*BlockStmt](p, func(v *Visitor) bool { return v.IsUnreachable() })
	assert.Empty(t, blocks)

	dead := NewUnreachable(1, NewBlockStmt(1))
	body.Stmts = append(body.Stmts, NewIfStmt(1, NewIntLiteral(1, 0), dead, NewBlockStmt(1)))
	blocks = FindStmts[*BlockStmt](p, func(v *Visitor) bool { return v.IsUnreachable() })
	require.Len(t, blocks, 1)
}

func TestGeometricBounds(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 10000; i++ {
		g := Geometric(r, 0.1)
		require.GreaterOrEqual(t, g, 0)
	}
}

func TestPickRecentClampsIndex(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	p := NewProgram(5)
	lits := FindExprs[*IntLiteral](p)
	require.Len(t, lits, 1)
	for i := 0; i < 1000; i++ {
		e, ok := PickRecent(r, lits)
		require.True(t, ok)
		assert.Equal(t, int32(5), e.N.Value)
	}
	_, ok := PickRecent[*IntLiteral](r, nil)
	assert.False(t, ok)
}

func TestStmtExprPrinting(t *testing.T) {
	se := NewStmtExpr(0, NewBlockStmt(0), NewExprStmt(0, NewIntLiteral(0, 9)))
	assert.Equal(t, "({ {\n}\n9;\n})", String(se))
}

func TestAsmPrinting(t *testing.T) {
	clobber := NewAsmStmt(0, false,
		[]Node{NewAsmConstraint(0, "+r", NewVariable(0, "id1"))}, nil)
	assert.Equal(t, "asm (\"\" : \"+r\" (id1));\n", String(clobber))

	vol := NewAsmStmt(0, true, nil, nil)
	assert.Equal(t, "asm volatile (\"\");\n", String(vol))
}

package mir_test

import (
	"math/big"
	"testing"

	"candy/internal/ast"
	"candy/internal/config"
	"candy/internal/cst"
	"candy/internal/diag"
	"candy/internal/hir"
	"candy/internal/mir"
	"candy/internal/rcst"
	"candy/internal/source"
)

func lowerToMIR(t *testing.T, moduleName, src string) *mir.Body {
	t.Helper()
	bag := diag.NewBag(1000)
	rc := rcst.Parse(source.FileID(0), []byte(src))
	if got := rc.Print(); got != src {
		t.Fatalf("round-trip mismatch:\n got: %q\nwant: %q", got, src)
	}
	c := cst.Lower(rc, bag)
	a := ast.Lower(c, bag)
	h := hir.Lower(moduleName, a, bag)
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %+v", bag.Items())
	}
	return mir.Lower(moduleName, h, config.TracingConfig{})
}

func TestLowerProducesNonEmptyBody(t *testing.T) {
	body := lowerToMIR(t, "Main", "pub answer = 42\n")
	if len(body.IDs) == 0 {
		t.Fatalf("expected at least one MIR expression")
	}
	ret := body.Get(body.ReturnID())
	if ret == nil || ret.Kind != mir.KindStruct {
		t.Fatalf("expected the body to return the exports struct, got %+v", ret)
	}
}

func TestLowerCallThreadsResponsible(t *testing.T) {
	body := lowerToMIR(t, "Main", "pub add a b = a\n")
	var sawFunction bool
	for _, id := range body.IDs {
		e := body.Get(id)
		if e.Kind == mir.KindFunction {
			sawFunction = true
			if rp := e.Body.Get(e.ResponsibleParameter); rp == nil || rp.Kind != mir.KindParameter {
				t.Fatalf("expected a synthesized responsible parameter distinct from declared params")
			}
			for _, p := range e.Parameters {
				if p == e.ResponsibleParameter {
					t.Fatalf("expected a synthesized responsible parameter distinct from declared params")
				}
			}
		}
	}
	if !sawFunction {
		t.Fatalf("expected at least one lowered function")
	}
}

func TestLowerNeedsKeepsDedicatedKind(t *testing.T) {
	body := lowerToMIR(t, "Main", "x = needs True\npub y = x\n")
	var sawNeeds bool
	for _, id := range body.IDs {
		if body.Get(id).Kind == mir.KindNeeds {
			sawNeeds = true
		}
	}
	if !sawNeeds {
		t.Fatalf("expected a KindNeeds expression before optimization")
	}
}

func TestOptimizeFoldsNeedsTrue(t *testing.T) {
	body := lowerToMIR(t, "Main", "x = needs True\npub y = x\n")
	ctx := mir.NewContext(nil, "Main", 8)
	mir.Optimize(ctx, body)
	for _, id := range body.IDs {
		if body.Get(id).Kind == mir.KindNeeds {
			t.Fatalf("expected `needs True` to be folded away, found a remaining KindNeeds")
		}
	}
}

func TestOptimizeFoldsConstantArithmetic(t *testing.T) {
	// Builtins aren't reachable as bare Candy identifiers (only through
	// the synthesized Builtins struct), so this exercises mir.Optimize
	// directly on a hand-built body rather than through source text.
	body := mir.NewBody()
	a := body.Push(&mir.Expression{Kind: mir.KindInt, Int: big.NewInt(1)})
	b := body.Push(&mir.Expression{Kind: mir.KindInt, Int: big.NewInt(2)})
	fn := body.Push(&mir.Expression{Kind: mir.KindBuiltin, Text: "intAdd"})
	body.Push(&mir.Expression{Kind: mir.KindCall, Function: fn, Arguments: []mir.ID{a, b}})

	ctx := mir.NewContext(nil, "Main", 8)
	mir.Optimize(ctx, body)

	var sawFoldedInt bool
	for _, id := range body.IDs {
		e := body.Get(id)
		if e.Kind == mir.KindInt && e.Int != nil && e.Int.Int64() == 3 {
			sawFoldedInt = true
		}
	}
	if !sawFoldedInt {
		t.Fatalf("expected intAdd 1 2 to fold to the constant 3")
	}
}

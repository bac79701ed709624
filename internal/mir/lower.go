package mir

import (
	"math/big"

	"candy/internal/config"
	"candy/internal/hir"
)

// Lower turns a module's HIR body into its initial (unoptimized) MIR
// body: every function gains an explicit responsible parameter threaded
// through every call it makes (spec.md section 4.2), and Trace* wrapping
// is emitted around calls and evaluated expressions when cfg enables it.
func Lower(moduleName string, hirBody *hir.Body, cfg config.TracingConfig) *Body {
	l := &lowerer{
		moduleName: moduleName,
		cfg:        cfg,
		resolved:   map[hir.ID]ID{},
	}
	out := NewBody()
	l.body = hirBody
	l.out = out
	l.responsible = out.Push(&Expression{Kind: KindHirID, HirRef: hirBody.Table.Root()})

	for _, id := range hirBody.IDs {
		l.lowerBound(id)
	}
	return out
}

type lowerer struct {
	moduleName string
	cfg        config.TracingConfig

	body *hir.Body // the hir.Body currently being walked
	out  *Body      // the mir.Body currently being written to

	responsible ID // the mir id the enclosing function's call sites should blame

	// resolved maps every hir.ID lowered so far (across every nested hir
	// Body of this module, since they all share one module IDTable) to
	// the mir.ID holding its value. Shared globally per module: nested
	// function bodies may reference ids bound in an enclosing body, and
	// MIR's SSA property (spec.md testable property 3) makes that safe.
	resolved map[hir.ID]ID

	// captures, when non-nil, collects every hir.KindReference target
	// seen while lowering the body of the function currently being
	// lowered (lowerFunction swaps in a fresh map per function). Checked
	// against the set of ids already resolved before that function was
	// entered to tell a genuine outer-scope capture from a reference to
	// one of the function's own parameters or local bindings.
	captures map[hir.ID]bool
}

func (l *lowerer) lowerBound(id hir.ID) ID {
	if existing, ok := l.resolved[id]; ok {
		return existing
	}
	out := l.lowerExpr(id)
	l.resolved[id] = out
	return out
}

func (l *lowerer) pushBuiltin(name string) ID {
	return l.out.Push(&Expression{Kind: KindBuiltin, Text: name})
}

func (l *lowerer) callBuiltin(origin hir.ID, name string, args []ID) ID {
	fn := l.pushBuiltin(name)
	return l.emitCall(origin, fn, args, l.responsible)
}

// emitCall pushes a Call, optionally bracketed in TraceCallStarts/Ends
// when the module's tracing config asks for call tracing.
func (l *lowerer) emitCall(origin hir.ID, fn ID, args []ID, responsible ID) ID {
	if l.cfg.TracesCalls() {
		l.out.Push(&Expression{Kind: KindTraceCallStarts, HirCall: origin, Function: fn, Arguments: args, Responsible: responsible})
	}
	call := l.out.Push(&Expression{Kind: KindCall, HirID: origin, Function: fn, Arguments: args, Responsible: responsible})
	if l.cfg.TracesCalls() {
		l.out.Push(&Expression{Kind: KindTraceCallEnds, ReturnValue: call})
	}
	return call
}

func (l *lowerer) traceEvaluated(origin hir.ID, value ID) ID {
	if !l.cfg.TracesExpressions() {
		return value
	}
	return l.out.Push(&Expression{Kind: KindTraceExpressionEvaluated, HirExpression: origin, Value: value})
}

func (l *lowerer) lowerExpr(id hir.ID) ID {
	expr := l.body.Get(id)
	if expr == nil {
		// Belongs to an enclosing body; its mir id must already be
		// resolved there.
		if resolved, ok := l.resolved[id]; ok {
			return resolved
		}
		return l.out.Push(&Expression{Kind: KindPanic, Reason: l.literalText("reference to an unresolved id"), Responsible: l.responsible})
	}

	switch expr.Kind {
	case hir.KindInt:
		return l.out.Push(&Expression{Kind: KindInt, HirID: id, Int: expr.Int})

	case hir.KindText:
		return l.out.Push(&Expression{Kind: KindText, HirID: id, Text: expr.Text})

	case hir.KindSymbol:
		return l.out.Push(&Expression{Kind: KindTag, HirID: id, Text: expr.Text})

	case hir.KindReference:
		target := l.lowerBound(expr.Target)
		if l.captures != nil {
			l.captures[expr.Target] = true
		}
		return l.out.Push(&Expression{Kind: KindReference, HirID: id, Target: target})

	case hir.KindParameter:
		// Reached only if something references a parameter before the
		// enclosing Function case bound it, which should not happen
		// given body order; fall back to a fresh parameter slot.
		return l.out.Push(&Expression{Kind: KindParameter, HirID: id})

	case hir.KindPatternIdentifierReference:
		// Bound as a side effect of lowering the enclosing Destructure
		// or MatchCase before this id is ever referenced.
		return l.out.Push(&Expression{Kind: KindParameter, HirID: id})

	case hir.KindList:
		var items []ID
		for _, a := range expr.Args {
			items = append(items, l.lowerBound(a))
		}
		return l.out.Push(&Expression{Kind: KindList, HirID: id, Items: items})

	case hir.KindStruct:
		var fields []StructField
		for i := range expr.Keys {
			fields = append(fields, StructField{Key: l.lowerBound(expr.Keys[i]), Value: l.lowerBound(expr.Items[i])})
		}
		return l.out.Push(&Expression{Kind: KindStruct, HirID: id, Fields: fields})

	case hir.KindStructAccess:
		base := l.lowerBound(expr.Target)
		key := l.out.Push(&Expression{Kind: KindTag, Text: capitalizeFirst(expr.Text)})
		return l.callBuiltin(id, "structGet", []ID{base, key})

	case hir.KindFunction:
		return l.lowerFunction(id, expr)

	case hir.KindCall:
		fn := l.lowerBound(expr.Target)
		var args []ID
		for _, a := range expr.Args {
			args = append(args, l.lowerBound(a))
		}
		return l.emitCall(id, fn, args, l.responsible)

	case hir.KindNeeds:
		condition := l.lowerBound(expr.Condition)
		var message ID
		if expr.Message != 0 {
			message = l.lowerBound(expr.Message)
		} else {
			message = l.literalText("Needs was not fulfilled")
		}
		return l.out.Push(&Expression{Kind: KindNeeds, HirID: id, Condition: condition, Message: message, Responsible: l.responsible})

	case hir.KindUseModule:
		return l.out.Push(&Expression{Kind: KindUseModule, HirID: id, CurrentModule: l.moduleName, RelativePath: expr.RelativePath, Responsible: l.responsible})

	case hir.KindMatch:
		return l.lowerMatch(id, expr)

	case hir.KindDestructure:
		value := l.lowerBound(expr.Value)
		l.bindPattern(l.body, expr.Pattern, value)
		return value

	case hir.KindError:
		reason := l.literalText(expr.ErrorMessage)
		return l.out.Push(&Expression{Kind: KindPanic, HirID: id, Reason: reason, Responsible: l.responsible})

	default:
		return l.out.Push(&Expression{Kind: KindPanic, HirID: id, Reason: l.literalText("cannot lower this hir expression to MIR"), Responsible: l.responsible})
	}
}

func (l *lowerer) literalText(s string) ID {
	return l.out.Push(&Expression{Kind: KindText, Text: s})
}

func (l *lowerer) lowerFunction(id hir.ID, expr *hir.Expression) ID {
	fnBody := NewBody()
	responsibleParam := fnBody.Push(&Expression{Kind: KindParameter})

	outerResolved := make(map[hir.ID]bool, len(l.resolved))
	for k := range l.resolved {
		outerResolved[k] = true
	}

	var params []ID
	for _, p := range expr.Params {
		pid := fnBody.Push(&Expression{Kind: KindParameter})
		l.resolved[p] = pid
		params = append(params, pid)
	}

	savedBody, savedOut, savedResp, savedCaptures := l.body, l.out, l.responsible, l.captures
	l.body, l.out, l.responsible = expr.Body, fnBody, responsibleParam
	l.captures = map[hir.ID]bool{}
	for _, sid := range expr.Body.IDs {
		l.lowerBound(sid)
	}
	var captures []hir.ID
	for target := range l.captures {
		if outerResolved[target] {
			captures = append(captures, target)
		}
	}
	l.body, l.out, l.responsible, l.captures = savedBody, savedOut, savedResp, savedCaptures

	fnID := l.out.Push(&Expression{
		Kind:                 KindFunction,
		HirID:                id,
		OriginalHirs:         []hir.ID{id},
		Parameters:           params,
		ResponsibleParameter: responsibleParam,
		Body:                 fnBody,
	})

	// Trace* gating mirrors emitCall: only emitted when the module's
	// tracing config asks for it (spec.md 4.2), and only for a function
	// hir.Expression.Fuzzable agrees is safe to drive with synthetic
	// inputs (spec.md section 6's found_fuzzable_function event).
	if l.cfg.TracesFuzzables() && expr.Fuzzable(captures) {
		l.out.Push(&Expression{Kind: KindTraceFoundFuzzableFunction, HirDefinition: id, Function: fnID})
	}

	return fnID
}

// lowerMatch builds a chain of `ifElse(check, caseFunction, restChain)`
// calls terminating in a panicking default, then immediately invokes the
// selected function via `functionRun`: since ifElse only ever returns
// one of the two function values it's handed (never executing either),
// only the matching case's side effects run.
func (l *lowerer) lowerMatch(id hir.ID, expr *hir.Expression) ID {
	scrutinee := l.lowerBound(expr.Scrutinee)

	chain := l.buildPanicFunction(id, "no branch of this match matched")
	for i := len(expr.Cases) - 1; i >= 0; i-- {
		caseID := expr.Cases[i]
		caseExpr := l.body.Get(caseID)
		check := l.checkPattern(caseExpr.Body, caseExpr.Pattern, scrutinee)
		caseFn := l.buildCaseFunction(caseID, caseExpr, scrutinee)
		ifElse := l.pushBuiltin("ifElse")
		chain = l.emitCall(caseID, ifElse, []ID{check, caseFn, chain}, l.responsible)
	}

	functionRun := l.pushBuiltin("functionRun")
	return l.emitCall(id, functionRun, []ID{chain}, l.responsible)
}

// buildCaseFunction lowers one match case's body into a zero-argument
// MIR function: binding the pattern's names happens at the start of the
// function body so only the selected case's bindings and side effects
// ever execute.
func (l *lowerer) buildCaseFunction(caseID hir.ID, caseExpr *hir.Expression, scrutinee ID) ID {
	caseBody := NewBody()
	responsibleParam := caseBody.Push(&Expression{Kind: KindParameter})

	savedBody, savedOut, savedResp := l.body, l.out, l.responsible
	l.out, l.responsible = caseBody, responsibleParam
	l.bindPattern(caseExpr.Body, caseExpr.Pattern, scrutinee)

	l.body = caseExpr.Body
	for _, sid := range caseExpr.Body.IDs {
		l.lowerBound(sid)
	}
	l.body, l.out, l.responsible = savedBody, savedOut, savedResp

	return l.out.Push(&Expression{
		Kind:                 KindFunction,
		HirID:                caseID,
		ResponsibleParameter: responsibleParam,
		Body:                 caseBody,
	})
}

// checkPattern emits expressions computing a boolean Tag (True/False)
// for whether value structurally matches the pattern rooted at
// patternID within patternBody.
func (l *lowerer) checkPattern(patternBody *hir.Body, patternID hir.ID, value ID) ID {
	pattern := patternBody.Get(patternID)
	switch pattern.Kind {
	case hir.KindPatternIdentifierReference:
		return l.out.Push(&Expression{Kind: KindTag, Text: "True"})

	case hir.KindSymbol:
		candidate := l.out.Push(&Expression{Kind: KindTag, Text: pattern.Text})
		return l.callBuiltin(patternID, "equals", []ID{value, candidate})

	case hir.KindInt:
		candidate := l.out.Push(&Expression{Kind: KindInt, Int: pattern.Int})
		return l.callBuiltin(patternID, "equals", []ID{value, candidate})

	case hir.KindList:
		length := l.callBuiltin(patternID, "listLength", []ID{value})
		wantLen := l.out.Push(&Expression{Kind: KindInt, Int: big.NewInt(int64(len(pattern.Args)))})
		result := l.callBuiltin(patternID, "equals", []ID{length, wantLen})
		for i, elemPattern := range pattern.Args {
			idx := l.out.Push(&Expression{Kind: KindInt, Int: big.NewInt(int64(i))})
			elem := l.callBuiltin(patternID, "listGet", []ID{value, idx})
			elemCheck := l.checkPattern(patternBody, elemPattern, elem)
			result = l.boolAnd(result, elemCheck)
		}
		return result

	case hir.KindStruct:
		result := l.out.Push(&Expression{Kind: KindTag, Text: "True"})
		for i, keyID := range pattern.Keys {
			keyExpr := patternBody.Get(keyID)
			keyTag := l.out.Push(&Expression{Kind: KindTag, Text: keyExpr.Text})
			has := l.callBuiltin(patternID, "structHasKey", []ID{value, keyTag})
			fieldVal := l.callBuiltin(patternID, "structGet", []ID{value, keyTag})
			fieldCheck := l.checkPattern(patternBody, pattern.Items[i], fieldVal)
			result = l.boolAnd(result, has)
			result = l.boolAnd(result, fieldCheck)
		}
		return result

	default:
		return l.out.Push(&Expression{Kind: KindTag, Text: "False"})
	}
}

// bindPattern emits extraction expressions giving every
// PatternIdentifierReference inside the pattern its mir value, so later
// references (lowered via the resolved map) find it.
func (l *lowerer) bindPattern(patternBody *hir.Body, patternID hir.ID, value ID) {
	pattern := patternBody.Get(patternID)
	switch pattern.Kind {
	case hir.KindPatternIdentifierReference:
		l.resolved[patternID] = value

	case hir.KindList:
		for i, elemPattern := range pattern.Args {
			idx := l.out.Push(&Expression{Kind: KindInt, Int: big.NewInt(int64(i))})
			elem := l.callBuiltin(patternID, "listGet", []ID{value, idx})
			l.bindPattern(patternBody, elemPattern, elem)
		}

	case hir.KindStruct:
		for i, keyID := range pattern.Keys {
			keyExpr := patternBody.Get(keyID)
			keyTag := l.out.Push(&Expression{Kind: KindTag, Text: keyExpr.Text})
			fieldVal := l.callBuiltin(patternID, "structGet", []ID{value, keyTag})
			l.bindPattern(patternBody, pattern.Items[i], fieldVal)
		}
	}
}

func (l *lowerer) buildPanicFunction(origin hir.ID, reason string) ID {
	fnBody := NewBody()
	responsibleParam := fnBody.Push(&Expression{Kind: KindParameter})
	savedOut, savedResp := l.out, l.responsible
	l.out, l.responsible = fnBody, responsibleParam
	l.out.Push(&Expression{Kind: KindPanic, HirID: origin, Reason: l.literalText(reason), Responsible: l.responsible})
	l.out, l.responsible = savedOut, savedResp
	return l.out.Push(&Expression{Kind: KindFunction, HirID: origin, ResponsibleParameter: responsibleParam, Body: fnBody})
}

// boolAnd short-circuits via ifElse: both operands are already-computed
// pure booleans (derived only from builtin comparisons, never user
// code), so evaluating both before selecting is observably identical to
// lazy short-circuiting.
func (l *lowerer) boolAnd(a, b ID) ID {
	falseTag := l.out.Push(&Expression{Kind: KindTag, Text: "False"})
	ifElse := l.pushBuiltin("ifElse")
	return l.out.Push(&Expression{Kind: KindCall, Function: ifElse, Arguments: []ID{a, b, falseTag}, Responsible: l.responsible})
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}

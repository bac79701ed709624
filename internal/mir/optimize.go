package mir

import (
	"math/big"
)

// Cache is the module-folding collaborator (spec.md section 6): given a
// module name, it returns that module's already-optimized MIR body, or
// ok=false with a cycle flag if optimizing it would re-enter the module
// currently being optimized (Salsa-style cycle detection, spec.md
// section 9).
type Cache interface {
	OptimizedModule(module string) (body *Body, cycle bool, ok bool)
}

// Context carries the state one body's optimization pass shares: the
// module cache handle, the inlining threshold, and the fixed-point
// expression hashes used to detect "no further change" (spec.md 4.3).
type Context struct {
	Cache             Cache
	InlineThreshold   int // tiny-function inlining: bodies with at most this many expressions are substituted at call sites
	currentModule     string
	visible           []map[ID]*Expression // stack of scopes, pushed per nested function, for reference-following lookups
}

// NewContext creates an optimizer context for module.
func NewContext(cache Cache, module string, inlineThreshold int) *Context {
	return &Context{Cache: cache, currentModule: module, InlineThreshold: inlineThreshold}
}

// Optimize runs the fixed-point per-expression passes over body, then
// the whole-body passes (CSE, tree shaking, redundant-return
// elimination, Multiple flattening), per spec.md section 4.3. It is the
// entry point for a freshly lowered module body: it pushes body's own
// top-level scope itself, so nested function bodies (handled by
// optimizeBody, which assumes its caller already pushed a scope for it)
// are not re-entered through this function.
func Optimize(ctx *Context, body *Body) *Body {
	ctx.pushScope()
	defer ctx.popScope()
	return optimizeBody(ctx, body)
}

func optimizeBody(ctx *Context, body *Body) *Body {
	for _, id := range append([]ID(nil), body.IDs...) {
		ctx.optimizeExpression(body, id)
	}

	commonSubtreeElimination(body)
	treeShake(body)
	elideRedundantReturn(body)
	flattenMultiples(body)
	return body
}

func (ctx *Context) pushScope()          { ctx.visible = append(ctx.visible, map[ID]*Expression{}) }
func (ctx *Context) popScope()           { ctx.visible = ctx.visible[:len(ctx.visible)-1] }
func (ctx *Context) define(id ID, e *Expression) {
	ctx.visible[len(ctx.visible)-1][id] = e
}
func (ctx *Context) lookup(id ID) (*Expression, bool) {
	for i := len(ctx.visible) - 1; i >= 0; i-- {
		if e, ok := ctx.visible[i][id]; ok {
			return e, true
		}
	}
	return nil, false
}

// optimizeExpression recurses into nested function bodies first, then
// runs the fixed-point passes on the expression at id until a full round
// makes no change, then records its purity and attempts module folding.
func (ctx *Context) optimizeExpression(body *Body, id ID) {
	expr := body.Get(id)
	if expr == nil {
		return
	}

	if expr.Kind == KindFunction && expr.Body != nil {
		ctx.pushScope()
		ctx.define(expr.ResponsibleParameter, &Expression{Kind: KindParameter})
		for _, p := range expr.Parameters {
			ctx.define(p, &Expression{Kind: KindParameter})
		}
		optimizeBody(ctx, expr.Body)
		ctx.popScope()
	}

	for {
		changed := false
		if ctx.followReference(body, id) {
			changed = true
		}
		if ctx.foldConstant(body, id) {
			changed = true
		}
		if ctx.inlineTinyFunction(body, id) {
			changed = true
		}
		if ctx.inlineUseContaining(body, id) {
			changed = true
		}
		if !changed {
			break
		}
	}

	ctx.define(id, body.Get(id))
	ctx.foldModule(body, id)
}

// followReference replaces a Reference to a pure, already-resolved
// expression with a copy of that expression (spec.md 4.3 step 2a).
func (ctx *Context) followReference(body *Body, id ID) bool {
	expr := body.Get(id)
	if expr.Kind != KindReference {
		return false
	}
	target, ok := ctx.lookup(expr.Target)
	if !ok || !isPure(target) {
		return false
	}
	*expr = *target
	return true
}

// foldConstant evaluates builtin calls over known constants at compile
// time, and recognizes `ifElse`/`needs` special cases (spec.md 4.3
// step 2b).
func (ctx *Context) foldConstant(body *Body, id ID) bool {
	expr := body.Get(id)

	if expr.Kind == KindNeeds {
		cond := ctx.resolve(body, expr.Condition)
		if cond != nil && cond.Kind == KindTag && cond.Text == "True" {
			*expr = Expression{Kind: KindTag, Text: "Nothing"}
			return true
		}
		return false
	}

	if expr.Kind != KindCall {
		return false
	}
	fn := ctx.resolve(body, expr.Function)
	if fn == nil || fn.Kind != KindBuiltin {
		return false
	}

	if fn.Text == "ifElse" && len(expr.Arguments) == 3 {
		cond := ctx.resolve(body, expr.Arguments[0])
		if cond != nil && cond.Kind == KindTag {
			switch cond.Text {
			case "True":
				*expr = Expression{Kind: KindReference, Target: expr.Arguments[1]}
				return true
			case "False":
				*expr = Expression{Kind: KindReference, Target: expr.Arguments[2]}
				return true
			}
		}
		return false
	}

	args := make([]*Expression, len(expr.Arguments))
	allConst := true
	for i, a := range expr.Arguments {
		args[i] = ctx.resolve(body, a)
		if args[i] == nil || !isConstant(args[i]) {
			allConst = false
		}
	}
	if !allConst {
		return false
	}
	result, ok := evalBuiltin(fn.Text, args)
	if !ok {
		return false
	}
	*expr = *result
	return true
}

// inlineTinyFunction substitutes a Call's callee body directly at the
// call site when the callee is small (spec.md 4.3 step 2c). The
// substituted body is spliced in as a Multiple; inlineCall first remaps
// the callee's ids to fresh ids of the caller's body.
func (ctx *Context) inlineTinyFunction(body *Body, id ID) bool {
	expr := body.Get(id)
	if expr.Kind != KindCall {
		return false
	}
	fn := ctx.resolve(body, expr.Function)
	if fn == nil || fn.Kind != KindFunction || fn.Body == nil {
		return false
	}
	if len(fn.Body.Expressions) > ctx.InlineThreshold {
		return false
	}
	return ctx.inlineCall(body, id, expr, fn)
}

// inlineUseContaining always inlines a call whose callee transitively
// contains a UseModule, regardless of size, so module folding can
// resolve the UseModule in the caller's context (spec.md 4.3 step 2d).
func (ctx *Context) inlineUseContaining(body *Body, id ID) bool {
	expr := body.Get(id)
	if expr.Kind != KindCall {
		return false
	}
	fn := ctx.resolve(body, expr.Function)
	if fn == nil || fn.Kind != KindFunction || fn.Body == nil {
		return false
	}
	if !containsUseModule(fn.Body) {
		return false
	}
	return ctx.inlineCall(body, id, expr, fn)
}

// inlineCall splices fn's body into a fresh Multiple wrapper, remapping
// every id fn.Body minted to a freshly minted id in the outer body's own
// counter: inlining otherwise risks colliding an inlined body's ids with
// ids already live in the caller, since every MIR body mints from zero
// independently (spec.md section 9, mir ids are a flat per-body
// counter, not globally unique).
func (ctx *Context) inlineCall(body *Body, id ID, call, fn *Expression) bool {
	remap := map[ID]ID{}
	for i, p := range fn.Parameters {
		if i < len(call.Arguments) {
			remap[p] = call.Arguments[i]
		}
	}
	remap[fn.ResponsibleParameter] = call.Responsible

	inner := NewBody()
	for _, innerID := range fn.Body.IDs {
		fresh := body.Fresh()
		remap[innerID] = fresh
	}
	for _, innerID := range fn.Body.IDs {
		copied := *fn.Body.Get(innerID)
		remapExpressionIDs(&copied, remap)
		inner.Bind(remap[innerID], &copied)
	}
	*body.Get(id) = Expression{Kind: KindMultiple, Inner: inner}
	return true
}

// remapExpressionIDs rewrites every id field of e through remap,
// defaulting to the id itself when absent (parameters bound by an
// enclosing scope, or ids belonging to a further-nested function body,
// which keeps its own independent id space).
func remapExpressionIDs(e *Expression, remap map[ID]ID) {
	get := func(id ID) ID {
		if mapped, ok := remap[id]; ok {
			return mapped
		}
		return id
	}
	e.Target = get(e.Target)
	e.Function = get(e.Function)
	e.Condition = get(e.Condition)
	e.Message = get(e.Message)
	e.Reason = get(e.Reason)
	e.Responsible = get(e.Responsible)
	e.ReturnValue = get(e.ReturnValue)
	e.Value = get(e.Value)
	for i := range e.Items {
		e.Items[i] = get(e.Items[i])
	}
	for i := range e.Arguments {
		e.Arguments[i] = get(e.Arguments[i])
	}
	for i := range e.Fields {
		e.Fields[i].Key = get(e.Fields[i].Key)
		e.Fields[i].Value = get(e.Fields[i].Value)
	}
}

func containsUseModule(body *Body) bool {
	for _, id := range body.IDs {
		e := body.Get(id)
		if e.Kind == KindUseModule {
			return true
		}
		if e.Kind == KindFunction && e.Body != nil && containsUseModule(e.Body) {
			return true
		}
	}
	return false
}

// foldModule resolves a UseModule expression against the cache,
// inlining the target module's optimized MIR, or emitting a Panic MIR
// when the cache reports a cycle (spec.md 4.3 step 4, section 9).
func (ctx *Context) foldModule(body *Body, id ID) {
	expr := body.Get(id)
	if expr.Kind != KindUseModule {
		return
	}
	if ctx.Cache == nil {
		return
	}
	target, cycle, ok := ctx.Cache.OptimizedModule(resolveModulePath(expr.CurrentModule, expr.RelativePath))
	if cycle {
		responsible := expr.Responsible
		reason := body.insertBefore(id, &Expression{Kind: KindText, Text: "import cycle involving module " + resolveModulePath(expr.CurrentModule, expr.RelativePath)})
		*expr = Expression{Kind: KindPanic, Reason: reason, Responsible: responsible}
		return
	}
	if !ok {
		return
	}
	inner := NewBody()
	for _, innerID := range target.IDs {
		inner.Bind(innerID, target.Get(innerID))
	}
	*expr = Expression{Kind: KindMultiple, Inner: inner}
}

func resolveModulePath(current string, relative []string) string {
	if len(relative) == 0 {
		return current
	}
	return relative[len(relative)-1]
}

// resolve walks References transitively to the underlying expression,
// checking both body and the enclosing visible-expression scopes.
func (ctx *Context) resolve(body *Body, id ID) *Expression {
	seen := map[ID]bool{}
	for {
		if seen[id] {
			return nil
		}
		seen[id] = true
		e := body.Get(id)
		if e == nil {
			var ok bool
			e, ok = ctx.lookup(id)
			if !ok {
				return nil
			}
		}
		if e.Kind != KindReference {
			return e
		}
		id = e.Target
	}
}

func isConstant(e *Expression) bool {
	switch e.Kind {
	case KindInt, KindText, KindTag:
		return true
	default:
		return false
	}
}

// isPure reports whether evaluating e can be proven free of observable
// side effects (panics, channel/handle operations, trace emission).
// Conservative: anything not recognized as pure is treated as impure.
func isPure(e *Expression) bool {
	switch e.Kind {
	case KindInt, KindText, KindTag, KindBuiltin, KindFunction, KindParameter,
		KindReference, KindList, KindStruct, KindHirID:
		return true
	default:
		return false
	}
}

// evalBuiltin evaluates a subset of builtins over constant arguments at
// compile time (spec.md 4.3's constant-folding step). Builtins outside
// this subset, or calls whose argument shapes don't match, are left for
// the VM to evaluate at runtime.
func evalBuiltin(name string, args []*Expression) (*Expression, bool) {
	switch name {
	case "intAdd", "intSubtract", "intMultiply":
		if len(args) != 2 || args[0].Kind != KindInt || args[1].Kind != KindInt {
			return nil, false
		}
		result := new(big.Int)
		switch name {
		case "intAdd":
			result.Add(args[0].Int, args[1].Int)
		case "intSubtract":
			result.Sub(args[0].Int, args[1].Int)
		case "intMultiply":
			result.Mul(args[0].Int, args[1].Int)
		}
		return &Expression{Kind: KindInt, Int: result}, true

	case "equals":
		if len(args) != 2 {
			return nil, false
		}
		eq, ok := constantsEqual(args[0], args[1])
		if !ok {
			return nil, false
		}
		text := "False"
		if eq {
			text = "True"
		}
		return &Expression{Kind: KindTag, Text: text}, true

	case "textConcatenate2":
		if len(args) != 2 || args[0].Kind != KindText || args[1].Kind != KindText {
			return nil, false
		}
		return &Expression{Kind: KindText, Text: args[0].Text + args[1].Text}, true

	default:
		return nil, false
	}
}

func constantsEqual(a, b *Expression) (eq bool, ok bool) {
	if a.Kind != b.Kind {
		return false, true
	}
	switch a.Kind {
	case KindInt:
		return a.Int.Cmp(b.Int) == 0, true
	case KindText:
		return a.Text == b.Text, true
	case KindTag:
		return a.Text == b.Text && a.TagValue == nil && b.TagValue == nil, true
	default:
		return false, false
	}
}

// commonSubtreeElimination hash-conses structurally identical pure
// expressions and redirects later references to the first occurrence
// (spec.md 4.3, after-body pass 1).
func commonSubtreeElimination(body *Body) {
	canonical := map[string]ID{}
	redirect := map[ID]ID{}
	for _, id := range body.IDs {
		e := body.Get(id)
		if target, ok := redirect[e.Target]; ok && e.Kind == KindReference {
			e.Target = target
		}
		if !isPure(e) {
			continue
		}
		key := structuralKey(e)
		if key == "" {
			continue
		}
		if existing, ok := canonical[key]; ok && existing != id {
			redirect[id] = existing
			*e = Expression{Kind: KindReference, Target: existing}
			continue
		}
		canonical[key] = id
	}
}

func structuralKey(e *Expression) string {
	switch e.Kind {
	case KindInt:
		return "int:" + e.Int.String()
	case KindText:
		return "text:" + e.Text
	case KindTag:
		return "tag:" + e.Text
	case KindBuiltin:
		return "builtin:" + e.Text
	default:
		return ""
	}
}

// treeShake removes pure expressions nothing else references (spec.md
// 4.3, after-body pass 2).
func treeShake(body *Body) {
	referenced := map[ID]bool{}
	referenced[body.ReturnID()] = true
	markReferences(body, referenced)

	for _, id := range append([]ID(nil), body.IDs...) {
		if id == body.ReturnID() {
			continue
		}
		if referenced[id] {
			continue
		}
		if isPure(body.Get(id)) {
			body.Remove(id)
		}
	}
}

func markReferences(body *Body, referenced map[ID]bool) {
	for _, id := range body.IDs {
		e := body.Get(id)
		for _, ref := range expressionRefs(e) {
			referenced[ref] = true
		}
		if e.Kind == KindFunction && e.Body != nil {
			markReferences(e.Body, referenced)
		}
	}
}

func expressionRefs(e *Expression) []ID {
	var refs []ID
	refs = append(refs, e.Target, e.Function, e.Condition, e.Message, e.Reason, e.Responsible, e.ReturnValue, e.Value)
	refs = append(refs, e.Items...)
	refs = append(refs, e.Arguments...)
	for _, f := range e.Fields {
		refs = append(refs, f.Key, f.Value)
	}
	return refs
}

// elideRedundantReturn drops a trailing Reference whose target is the
// expression immediately preceding it (spec.md 4.3, after-body pass 3).
func elideRedundantReturn(body *Body) {
	if len(body.IDs) < 2 {
		return
	}
	last := body.IDs[len(body.IDs)-1]
	prev := body.IDs[len(body.IDs)-2]
	e := body.Get(last)
	if e.Kind == KindReference && e.Target == prev {
		body.Remove(last)
	}
}

// flattenMultiples splices every Multiple expression's inner body
// directly into the outer body in place, keeping each inner id as is (spec.md
// 4.3, after-body pass 4).
func flattenMultiples(body *Body) {
	var flattened []ID
	newExprs := map[ID]*Expression{}
	var walk func(b *Body)
	walk = func(b *Body) {
		for _, id := range b.IDs {
			e := b.Get(id)
			if e.Kind == KindMultiple && e.Inner != nil {
				walk(e.Inner)
				continue
			}
			flattened = append(flattened, id)
			newExprs[id] = e
		}
	}
	walk(body)
	body.IDs = flattened
	body.Expressions = newExprs
}

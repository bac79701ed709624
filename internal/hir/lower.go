package hir

import (
	"math/big"
	"strings"

	"candy/internal/ast"
	"candy/internal/diag"
)

// Lower resolves names, desugars text interpolation / needs / pattern
// assignments, and produces the module's public-exports struct as the
// final body expression (spec.md section 4.2).
func Lower(moduleName string, tree *ast.Tree, bag *diag.Bag) *Body {
	table := NewIDTable(moduleName)
	l := &lowerer{
		table:     table,
		root:      table.Root(),
		module:    moduleName,
		tree:      tree,
		bag:       bag,
		counters:  map[string]int{},
		publicIDs: map[string]ID{},
	}
	l.pushScope()
	defer l.popScope()

	body := newBody()
	body.Table = table
	l.body = body

	if moduleName == BuiltinModule {
		l.pushSparkles(body)
	}

	useID := l.synthesizeUse(body)
	l.useID = useID
	l.define("use", useID)

	for _, stmt := range tree.Roots {
		l.lowerTopLevelStatement(stmt)
	}

	l.pushExportsStruct(body)
	return body
}

type lowerer struct {
	table  *IDTable
	root   ID
	module string
	tree   *ast.Tree
	bag    *diag.Bag
	body   *Body
	scopes []map[string]ID

	// counters disambiguates repeated synthesized labels under the same
	// parent (e.g. several "if" desugarings in one body) so fresh never
	// mints the same id twice.
	counters map[string]int

	publicOrder []string
	publicIDs   map[string]ID

	sparklesRef    ID
	sparklesKeys   []ID
	sparklesValues []ID

	// useID is the synthesized top-level `use` function's own id, so
	// lowerCall can tell a call to the real `use` binding apart from a
	// call to something a user has locally shadowed that name with.
	useID ID
}

func (l *lowerer) pushScope() { l.scopes = append(l.scopes, map[string]ID{}) }
func (l *lowerer) popScope()  { l.scopes = l.scopes[:len(l.scopes)-1] }

func (l *lowerer) define(name string, id ID) {
	l.scopes[len(l.scopes)-1][name] = id
}

func (l *lowerer) resolve(name string) (ID, bool) {
	for i := len(l.scopes) - 1; i >= 0; i-- {
		if id, ok := l.scopes[i][name]; ok {
			return id, true
		}
	}
	return ID(0), false
}

// fresh mints a new id as a child of parent.
func (l *lowerer) fresh(parent ID, label string) ID {
	key := itoa(int(parent)) + "#" + label
	n := l.counters[key]
	l.counters[key] = n + 1
	if n > 0 {
		label = label + "." + itoa(n)
	}
	return l.table.Child(parent, label)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}

func (l *lowerer) pushExportsStruct(body *Body) {
	id := l.fresh(l.root, "exports")
	var keys, values []ID
	for _, name := range l.publicOrder {
		keyID := l.fresh(l.root, "exports.key."+name)
		body.Push(keyID, &Expression{Kind: KindSymbol, Text: capitalize(name)})
		keys = append(keys, keyID)
		values = append(values, l.publicIDs[name])
	}
	if l.module == BuiltinModule {
		keys = append(keys, l.sparklesKeys...)
		values = append(values, l.sparklesValues...)
	}
	body.Push(id, &Expression{Kind: KindStruct, Keys: keys, Items: values})
}

func (l *lowerer) synthesizeUse(moduleBody *Body) ID {
	useID := l.table.Child(l.root, "use")
	paramID := l.table.Child(useID, "param.relativePath")
	fnBody := newBody()
	fnBody.Push(paramID, &Expression{Kind: KindParameter, Text: "relativePath"})

	if l.module == BuiltinModule {
		fnBody.Push(l.table.Child(useID, "body.sparkles"), &Expression{Kind: KindReference, Target: l.sparklesRef})
		return moduleBody.Push(useID, &Expression{Kind: KindFunction, Params: []ID{paramID}, Body: fnBody})
	}

	builtinsRef := fnBody.Push(l.table.Child(useID, "body.builtinsModule"), &Expression{Kind: KindUseModule, RelativePath: []string{"Builtins"}})
	fnBody.Push(l.table.Child(useID, "body.call"), &Expression{
		Kind:   KindCall,
		Target: builtinRefID("structGet"),
		Args:   []ID{builtinsRef, paramID},
	})
	return moduleBody.Push(useID, &Expression{Kind: KindFunction, Params: []ID{paramID}, Body: fnBody})
}

func (l *lowerer) node(id ast.ID) *ast.Node { return l.tree.Node(id) }

func (l *lowerer) lowerTopLevelStatement(id ast.ID) { l.lowerStatement(id, true) }

// lowerStatement lowers one statement and returns the id representing
// its value, binding names into scope as a side effect.
func (l *lowerer) lowerStatement(id ast.ID, topLevel bool) ID {
	if l.node(id).Kind == ast.KindAssignment {
		return l.lowerAssignment(id, topLevel)
	}
	return l.lowerExpr(id)
}

func (l *lowerer) lowerAssignment(id ast.ID, topLevel bool) ID {
	n := l.node(id)
	lhsNode := l.node(n.LHS)

	var valueID ID
	var name string

	switch lhsNode.Kind {
	case ast.KindCall:
		// `f p1 p2 = body` sugar: synthesize `f = { p1 p2 -> body }`.
		calleeNode := l.node(lhsNode.Target)
		name = calleeNode.Name
		fnID := l.fresh(l.root, name)
		l.pushScope()
		var params []ID
		fnBody := newBody()
		for _, paramAst := range lhsNode.Items {
			paramName := l.node(paramAst).Name
			paramID := l.table.Child(fnID, "param."+paramName)
			fnBody.Push(paramID, &Expression{Kind: KindParameter, Text: paramName})
			l.define(paramName, paramID)
			params = append(params, paramID)
		}
		savedBody := l.body
		l.body = fnBody
		l.lowerStatement(n.RHS, false)
		l.body = savedBody
		l.popScope()
		valueID = l.body.Push(fnID, &Expression{Kind: KindFunction, Params: params, Body: fnBody})

	case ast.KindIdentifier:
		name = lhsNode.Name
		rhs := l.lowerExpr(n.RHS)
		valueID = rhs
		l.define(name, rhs)

	default:
		// Destructuring assignment: List/Struct/Symbol/Int pattern.
		value := l.lowerExpr(n.RHS)
		destID := l.fresh(l.root, "destructure")
		pattern := l.buildPattern(n.LHS)
		l.body.Push(destID, &Expression{Kind: KindDestructure, Value: value, Pattern: pattern})
		valueID = destID
	}

	if n.IsPublic && name != "" {
		l.publicOrder = append(l.publicOrder, name)
		l.publicIDs[name] = valueID
	}
	return valueID
}

// lowerExpr dispatches on ast.Kind, desugaring as spec.md section 4.2
// requires.
func (l *lowerer) lowerExpr(id ast.ID) ID {
	n := l.node(id)
	switch n.Kind {
	case ast.KindInt:
		v := new(big.Int)
		v.SetString(n.Literal, 10)
		return l.body.Push(l.fresh(l.root, "int"), &Expression{Kind: KindInt, Span: n.Span, AST: id, Int: v})

	case ast.KindIdentifier:
		if target, ok := l.resolve(n.Name); ok {
			return l.body.Push(l.fresh(l.root, "ref."+n.Name), &Expression{Kind: KindReference, Span: n.Span, AST: id, Target: target})
		}
		l.bag.Add(diag.New(diag.CodeUnknownReference, n.Span, "unknown reference `"+n.Name+"`"))
		return l.body.Push(l.fresh(l.root, "error"), &Expression{Kind: KindError, Span: n.Span, AST: id, ErrorMessage: "unknown reference `" + n.Name + "`"})

	case ast.KindSymbol:
		return l.body.Push(l.fresh(l.root, "symbol."+n.Name), &Expression{Kind: KindSymbol, Span: n.Span, AST: id, Text: n.Name})

	case ast.KindText:
		return l.lowerText(id)

	case ast.KindList:
		var items []ID
		for _, c := range n.Items {
			items = append(items, l.lowerExpr(c))
		}
		return l.body.Push(l.fresh(l.root, "list"), &Expression{Kind: KindList, Span: n.Span, AST: id, Args: items})

	case ast.KindStruct:
		var keys, values []ID
		for i := range n.Keys {
			keys = append(keys, l.lowerExpr(n.Keys[i]))
			values = append(values, l.lowerExpr(n.Items[i]))
		}
		return l.body.Push(l.fresh(l.root, "struct"), &Expression{Kind: KindStruct, Span: n.Span, AST: id, Keys: keys, Items: values})

	case ast.KindStructAccess:
		base := l.lowerExpr(n.Target)
		return l.body.Push(l.fresh(l.root, "access."+n.Name), &Expression{Kind: KindStructAccess, Span: n.Span, AST: id, Target: base, Text: n.Name})

	case ast.KindFunction:
		return l.lowerFunction(id)

	case ast.KindCall:
		return l.lowerCall(id)

	case ast.KindMatch:
		return l.lowerMatch(id)

	case ast.KindAssignment:
		return l.lowerAssignment(id, false)

	case ast.KindError:
		return l.body.Push(l.fresh(l.root, "error"), &Expression{Kind: KindError, Span: n.Span, AST: id, ErrorMessage: n.Message})

	default:
		return l.body.Push(l.fresh(l.root, "error"), &Expression{Kind: KindError, Span: n.Span, AST: id, ErrorMessage: "cannot lower this node to HIR"})
	}
}

// lowerText desugars `"literal {expr} more"` into nested calls:
// typeOf(part) equals Text -> ifElse(part, toDebugText(part)), then
// textConcatenate over every part.
func (l *lowerer) lowerText(id ast.ID) ID {
	n := l.node(id)
	var parts []ID
	for _, partAst := range n.TextParts {
		pn := l.node(partAst)
		if pn.Kind == ast.KindTextPart {
			parts = append(parts, l.body.Push(l.fresh(l.root, "text.literal"), &Expression{Kind: KindText, Span: pn.Span, AST: partAst, Text: pn.Literal}))
			continue
		}
		parts = append(parts, l.lowerInterpolatedPart(partAst))
	}
	listID := l.body.Push(l.fresh(l.root, "text.parts"), &Expression{Kind: KindList, Args: parts})
	return l.body.Push(l.fresh(l.root, "text.concat"), &Expression{
		Kind: KindCall, Span: n.Span, AST: id,
		Target: builtinRefID("textConcatenate"), Args: []ID{listID},
	})
}

func (l *lowerer) lowerInterpolatedPart(exprAst ast.ID) ID {
	value := l.lowerExpr(exprAst)

	typeOfID := l.body.Push(l.fresh(l.root, "text.typeOf"), &Expression{Kind: KindCall, Target: builtinRefID("typeOf"), Args: []ID{value}})
	textSymbolID := l.body.Push(l.fresh(l.root, "text.textSymbol"), &Expression{Kind: KindSymbol, Text: "Text"})
	equalsID := l.body.Push(l.fresh(l.root, "text.equals"), &Expression{Kind: KindCall, Target: builtinRefID("equals"), Args: []ID{typeOfID, textSymbolID}})
	debugID := l.body.Push(l.fresh(l.root, "text.toDebugText"), &Expression{Kind: KindCall, Target: builtinRefID("toDebugText"), Args: []ID{value}})
	return l.body.Push(l.fresh(l.root, "text.ifElse"), &Expression{
		Kind: KindCall, Target: builtinRefID("ifElse"), Args: []ID{equalsID, value, debugID},
	})
}

func (l *lowerer) lowerFunction(id ast.ID) ID {
	n := l.node(id)
	fnID := l.fresh(l.root, "function")
	l.pushScope()
	defer l.popScope()

	savedBody := l.body
	fnBody := newBody()
	l.body = fnBody

	var params []ID
	for _, paramAst := range n.Params {
		paramName := l.node(paramAst).Name
		paramID := l.table.Child(fnID, "param."+paramName)
		fnBody.Push(paramID, &Expression{Kind: KindParameter, Text: paramName})
		l.define(paramName, paramID)
		params = append(params, paramID)
	}
	for _, stmt := range n.Body {
		l.lowerStatement(stmt, false)
	}

	l.body = savedBody
	return l.body.Push(fnID, &Expression{Kind: KindFunction, Span: n.Span, AST: id, Params: params, Body: fnBody})
}

// lowerCall handles the `needs` desugaring specially, since it produces
// a distinct HIR Kind rather than a normal Call.
func (l *lowerer) lowerCall(id ast.ID) ID {
	n := l.node(id)
	targetNode := l.node(n.Target)
	if targetNode.Kind == ast.KindIdentifier && targetNode.Name == "needs" {
		if _, bound := l.resolve("needs"); !bound {
			return l.lowerNeeds(id, n)
		}
	}
	if targetNode.Kind == ast.KindIdentifier && targetNode.Name == "use" {
		if target, bound := l.resolve("use"); bound && target == l.useID {
			if relativePath, ok := l.staticUsePath(n); ok {
				return l.body.Push(l.fresh(l.root, "use"), &Expression{Kind: KindUseModule, Span: n.Span, AST: id, RelativePath: relativePath})
			}
		}
	}

	fn := l.lowerExpr(n.Target)
	var args []ID
	for _, a := range n.Items {
		args = append(args, l.lowerExpr(a))
	}
	return l.body.Push(l.fresh(l.root, "call"), &Expression{Kind: KindCall, Span: n.Span, AST: id, Target: fn, Args: args})
}

func (l *lowerer) lowerNeeds(id ast.ID, n *ast.Node) ID {
	if len(n.Items) != 1 && len(n.Items) != 2 {
		l.bag.Add(diag.New(diag.CodeNeedsWithWrongNumberOfArguments, n.Span, "`needs` takes one or two arguments"))
		return l.body.Push(l.fresh(l.root, "error"), &Expression{Kind: KindError, Span: n.Span, AST: id, ErrorMessage: "needs with wrong number of arguments"})
	}
	condition := l.lowerExpr(n.Items[0])
	var message ID
	if len(n.Items) == 2 {
		message = l.lowerExpr(n.Items[1])
	}
	return l.body.Push(l.fresh(l.root, "needs"), &Expression{Kind: KindNeeds, Span: n.Span, AST: id, Condition: condition, Message: message})
}

// staticUsePath extracts a dotted relative module path from a `use`
// call's single literal-text argument (`use "Foo.Bar"` -> ["Foo",
// "Bar"]), the only shape module folding (spec.md 4.3 step 4) can
// resolve statically. Anything else — no argument, more than one,
// interpolation, a non-literal expression — isn't a real import and
// falls through to an ordinary call against the generic `use` closure.
func (l *lowerer) staticUsePath(n *ast.Node) ([]string, bool) {
	if len(n.Items) != 1 {
		return nil, false
	}
	arg := l.node(n.Items[0])
	if arg.Kind != ast.KindText || len(arg.TextParts) != 1 {
		return nil, false
	}
	part := l.node(arg.TextParts[0])
	if part.Kind != ast.KindTextPart {
		return nil, false
	}
	return strings.Split(part.Literal, "."), true
}

func (l *lowerer) lowerMatch(id ast.ID) ID {
	n := l.node(id)
	scrutinee := l.lowerExpr(n.Scrutinee)

	var cases []ID
	for _, caseAst := range n.Cases {
		cases = append(cases, l.lowerMatchCase(caseAst)...)
	}
	return l.body.Push(l.fresh(l.root, "match"), &Expression{Kind: KindMatch, Span: n.Span, AST: id, Scrutinee: scrutinee, Cases: cases})
}

// lowerMatchCase desugars an or-pattern case into one hir.MatchCase per
// alternative, all sharing the same lowered body.
func (l *lowerer) lowerMatchCase(id ast.ID) []ID {
	n := l.node(id)
	l.pushScope()
	defer l.popScope()

	savedBody := l.body
	caseBody := newBody()
	l.body = caseBody

	patternNodes := []ast.ID{n.LHS}
	if l.node(n.LHS).Kind == ast.KindOrPattern {
		patternNodes = l.node(n.LHS).Alternatives
	}

	var patterns []ID
	for _, p := range patternNodes {
		patterns = append(patterns, l.buildPattern(p))
	}
	l.lowerStatement(n.RHS, false)
	l.body = savedBody

	var cases []ID
	for _, pattern := range patterns {
		caseID := l.fresh(l.root, "matchCase")
		cases = append(cases, l.body.Push(caseID, &Expression{Kind: KindMatchCase, Span: n.Span, AST: id, Pattern: pattern, Body: caseBody}))
	}
	return cases
}

// buildPattern lowers a pattern expression, binding any
// PatternIdentifierReference it introduces into the current scope.
func (l *lowerer) buildPattern(id ast.ID) ID {
	n := l.node(id)
	switch n.Kind {
	case ast.KindIdentifier:
		bindID := l.fresh(l.root, "pattern."+n.Name)
		l.body.Push(bindID, &Expression{Kind: KindPatternIdentifierReference, Span: n.Span, AST: id, Text: n.Name})
		if n.Name != "_" {
			l.define(n.Name, bindID)
		}
		return bindID
	case ast.KindSymbol:
		return l.body.Push(l.fresh(l.root, "pattern.symbol."+n.Name), &Expression{Kind: KindSymbol, Span: n.Span, AST: id, Text: n.Name})
	case ast.KindInt:
		v := new(big.Int)
		v.SetString(n.Literal, 10)
		return l.body.Push(l.fresh(l.root, "pattern.int"), &Expression{Kind: KindInt, Span: n.Span, AST: id, Int: v})
	case ast.KindList:
		var items []ID
		for _, c := range n.Items {
			items = append(items, l.buildPattern(c))
		}
		return l.body.Push(l.fresh(l.root, "pattern.list"), &Expression{Kind: KindList, Span: n.Span, AST: id, Args: items})
	case ast.KindStruct:
		var keys, values []ID
		for i := range n.Keys {
			keys = append(keys, l.lowerExpr(n.Keys[i])) // struct pattern keys are literal symbols, not bindable
			values = append(values, l.buildPattern(n.Items[i]))
		}
		return l.body.Push(l.fresh(l.root, "pattern.struct"), &Expression{Kind: KindStruct, Span: n.Span, AST: id, Keys: keys, Items: values})
	default:
		return l.body.Push(l.fresh(l.root, "pattern.error"), &Expression{Kind: KindError, Span: n.Span, AST: id, ErrorMessage: "unsupported pattern"})
	}
}

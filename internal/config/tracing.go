// Package config holds the cross-cutting knobs threaded through lowering
// and the VM: how much tracing instrumentation to emit (this file), and
// build-level switches such as the optimizer inlining threshold
// (BuildConfig, build.go).
package config

// Level is the on/off/current/all granularity shared by most tracing
// knobs (spec.md section 6, TracingConfig).
type Level uint8

const (
	Off Level = iota
	OnlyCurrent
	All
)

// CallLevel extends Level with a fourth mode specific to call tracing:
// only emit call trace events on the path that leads to a panic.
type CallLevel uint8

const (
	CallsOff CallLevel = iota
	CallsOnlyCurrent
	CallsAll
	CallsOnlyForPanicTraces
)

// TracingConfig controls which Trace* MIR expressions HIR-to-MIR
// lowering emits. It travels alongside a Module as half of the Cache
// collaborator's lookup key (spec.md section 6).
type TracingConfig struct {
	RegisterFuzzables    Level
	Calls                CallLevel
	EvaluatedExpressions Level
}

// ForChildModule derives the tracing config a nested UseModule lowering
// should see: OnlyCurrent never applies below the module that asked for
// it, so it downgrades to Off; All and Off pass through unchanged.
func (c TracingConfig) ForChildModule() TracingConfig {
	child := c
	if child.RegisterFuzzables == OnlyCurrent {
		child.RegisterFuzzables = Off
	}
	if child.Calls == CallsOnlyCurrent {
		child.Calls = CallsOff
	}
	if child.EvaluatedExpressions == OnlyCurrent {
		child.EvaluatedExpressions = Off
	}
	return child
}

// TracesFuzzables reports whether the current module should emit
// TraceFoundFuzzableFunction expressions.
func (c TracingConfig) TracesFuzzables() bool { return c.RegisterFuzzables != Off }

// TracesCalls reports whether the current module should emit
// TraceCallStarts/TraceCallEnds expressions unconditionally (not just on
// a panicking path, which the LIR/VM layer handles separately via
// CallsOnlyForPanicTraces).
func (c TracingConfig) TracesCalls() bool {
	return c.Calls == CallsOnlyCurrent || c.Calls == CallsAll
}

// TracesExpressions reports whether the current module should emit
// TraceExpressionEvaluated expressions.
func (c TracingConfig) TracesExpressions() bool { return c.EvaluatedExpressions != Off }

package diag

// Code is a stable identifier for one diagnostic kind. The set is closed:
// every stage maps its internal error condition onto one of these rather
// than inventing ad-hoc strings, so tooling (and this package's reporter)
// can key off Code alone.
type Code string

// Parser (rcst) error codes, one per recoverable grammar failure.
const (
	CodeCurlyBraceNotClosed          Code = "P0001"
	CodeIntContainsNonDigits         Code = "P0002"
	CodeListItemMissesValue          Code = "P0003"
	CodeListNotClosed                Code = "P0004"
	CodeParenthesisNotClosed         Code = "P0005"
	CodePipeMissesCall               Code = "P0006"
	CodeStructFieldMissesColon       Code = "P0007"
	CodeStructFieldMissesKey         Code = "P0008"
	CodeStructFieldMissesValue       Code = "P0009"
	CodeStructNotClosed              Code = "P0010"
	CodeTextNotClosed                Code = "P0011"
	CodeTextNotSufficientlyIndented  Code = "P0012"
	CodeUnexpectedCharacters         Code = "P0013"
	CodeWeirdWhitespace              Code = "P0014"
)

// AST/HIR lowering error codes.
const (
	CodeUnknownReference                Code = "H0001"
	CodeNeedsWithWrongNumberOfArguments Code = "H0002"
	CodePublicAssignmentInNotTopLevel   Code = "H0003"
	CodePublicAssignmentWithSameName    Code = "H0004"
)

// Optimizer-surfaced errors (become Panic MIR at the affected location).
const (
	CodeModuleImportCycle Code = "O0001"
)

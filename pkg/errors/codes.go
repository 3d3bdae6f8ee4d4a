package errors

// Code classifies an application error.
type Code string

const (
	CodeUnknown            Code = "UNKNOWN"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeNotFound           Code = "NOT_FOUND"
	CodePersistenceFailure Code = "PERSISTENCE_FAILURE"
	CodeGenerationFailure  Code = "GENERATION_FAILURE"
	CodeInternal           Code = "INTERNAL"
)

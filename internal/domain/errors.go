package domain

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrDuplicate     = fmt.Errorf("duplicate")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
)

// Sentinel errors for the orchestrator.
var (
	// Configuration errors: no agent exists for a needed type and no fallback exists.
	ErrNoAgentAvailable    = fmt.Errorf("no agent available")
	ErrAgentConfigNotFound = fmt.Errorf("agent configuration not found")

	// Programming error: a registry read before Initialize.
	ErrRegistryNotInitialized = fmt.Errorf("agent registry not initialized")

	// Upstream-capability errors.
	ErrGenerationFailed = fmt.Errorf("text generation failed")
	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrTemplateNotFound = fmt.Errorf("prompt template not found")

	// Persistence errors.
	ErrPersistence = fmt.Errorf("persistence operation failed")

	// Validation errors.
	ErrValidation = fmt.Errorf("validation failed")

	ErrConfigLoad = fmt.Errorf("failed to load configuration")

	// Resilience errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrUpstream        = fmt.Errorf("upstream server error")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Router.Route")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrUpstream) || errors.Is(err, ErrTimeout)
}

// ErrorCode is a machine-parseable error category recorded in response metadata.
type ErrorCode string

const (
	CodeUnknown                ErrorCode = "UNKNOWN"
	CodeNotFound               ErrorCode = "NOT_FOUND"
	CodeDuplicate              ErrorCode = "DUPLICATE"
	CodeTimeout                ErrorCode = "TIMEOUT"
	CodeInvalidInput           ErrorCode = "INVALID_INPUT"
	CodeProviderError          ErrorCode = "PROVIDER_ERROR"
	CodeNoAgentAvailable       ErrorCode = "NO_AGENT_AVAILABLE"
	CodeAgentConfigNotFound    ErrorCode = "AGENT_CONFIG_NOT_FOUND"
	CodeRegistryNotInitialized ErrorCode = "REGISTRY_NOT_INITIALIZED"
	CodeGenerationFailed       ErrorCode = "GENERATION_FAILED"
	CodeProviderNotFound       ErrorCode = "PROVIDER_NOT_FOUND"
	CodeTemplateNotFound       ErrorCode = "TEMPLATE_NOT_FOUND"
	CodePersistence            ErrorCode = "PERSISTENCE"
	CodeValidation             ErrorCode = "VALIDATION"
	CodeConfigLoad             ErrorCode = "CONFIG_LOAD"
	CodeContextOverflow        ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit              ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid            ErrorCode = "AUTH_INVALID"
	CodeUpstream               ErrorCode = "UPSTREAM"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:               CodeNotFound,
	ErrDuplicate:              CodeDuplicate,
	ErrTimeout:                CodeTimeout,
	ErrInvalidInput:           CodeInvalidInput,
	ErrProviderError:          CodeProviderError,
	ErrNoAgentAvailable:       CodeNoAgentAvailable,
	ErrAgentConfigNotFound:    CodeAgentConfigNotFound,
	ErrRegistryNotInitialized: CodeRegistryNotInitialized,
	ErrGenerationFailed:       CodeGenerationFailed,
	ErrProviderNotFound:       CodeProviderNotFound,
	ErrTemplateNotFound:       CodeTemplateNotFound,
	ErrPersistence:            CodePersistence,
	ErrValidation:             CodeValidation,
	ErrConfigLoad:             CodeConfigLoad,
	ErrContextOverflow:        CodeContextOverflow,
	ErrRateLimit:              CodeRateLimit,
	ErrAuthInvalid:            CodeAuthInvalid,
	ErrUpstream:               CodeUpstream,
}

// codePriority lists sentinels from most to least specific so that an error
// wrapping several sentinels resolves deterministically.
var codePriority = []error{
	ErrNoAgentAvailable,
	ErrAgentConfigNotFound,
	ErrRegistryNotInitialized,
	ErrValidation,
	ErrTemplateNotFound,
	ErrProviderNotFound,
	ErrRateLimit,
	ErrAuthInvalid,
	ErrContextOverflow,
	ErrUpstream,
	ErrTimeout,
	ErrGenerationFailed,
	ErrPersistence,
	ErrConfigLoad,
	ErrInvalidInput,
	ErrProviderError,
	ErrDuplicate,
	ErrNotFound,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code, ok := errorCodeMap[err]; ok {
		return code
	}
	for _, sentinel := range codePriority {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}

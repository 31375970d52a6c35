package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument = 1000
	ErrCodeInvalidJSON     = 1001
	ErrCodeRequestTooLarge = 1002
	ErrCodeInvalidQuery    = 1003
	ErrCodeInvalidID       = 1004
	ErrCodeMissingRequired = 1009
	ErrCodeUnsupportedType = 1015

	// Domain state (2xxx)
	ErrCodeTaskNotFound    = 2001
	ErrCodeTaskNotOpen     = 2101
	ErrCodeConflict        = 2102
	ErrCodeNoAffectedFiles = 2103
	ErrCodeBranchConflict  = 2104
	ErrCodeAmbiguousPath   = 2201

	// Auth & limits (3xxx)
	ErrCodeUnauthorized      = 3001
	ErrCodeForbidden         = 3002
	ErrCodeResourceExhausted = 3003

	// Internal/system (4xxx)
	ErrCodeInternal     = 4001
	ErrCodeStoreFailure = 4002

	// Upstream (5xxx)
	ErrCodeGenerator   = 5001
	ErrCodeInvalidSpec = 5002
	ErrCodeWorkspace   = 5003
	ErrCodeTimeout     = 5004
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 403:
		return ErrCodeForbidden
	case 404:
		return ErrCodeTaskNotFound
	case 409:
		return ErrCodeConflict
	case 415:
		return ErrCodeUnsupportedType
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	case 502:
		return ErrCodeGenerator
	case 504:
		return ErrCodeTimeout
	default:
		return 0
	}
}

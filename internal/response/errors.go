package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrConflict        ErrCode = "CONFLICT"
	ErrActionForbidden ErrCode = "ACTION_FORBIDDEN"

	// ─── Allocation ────────────────────────────────────────────────────
	ErrInsufficientQuestions ErrCode = "INSUFFICIENT_QUESTIONS"
	ErrAllocationConflict    ErrCode = "ALLOCATION_CONFLICT"

	// ─── Test lifecycle ────────────────────────────────────────────────
	ErrTestNotAvailable  ErrCode = "TEST_NOT_AVAILABLE"
	ErrTestNotDraft      ErrCode = "TEST_NOT_DRAFT"
	ErrTestNotPublished  ErrCode = "TEST_NOT_PUBLISHED"
	ErrInvalidAccessCode ErrCode = "INVALID_ACCESS_CODE"

	// ─── Attempts ──────────────────────────────────────────────────────
	ErrAttemptNotFound         ErrCode = "ATTEMPT_NOT_FOUND"
	ErrAttemptAlreadyCompleted ErrCode = "ATTEMPT_ALREADY_COMPLETED"
	ErrInvalidStateTransition  ErrCode = "INVALID_STATE_TRANSITION"

	// ─── Uploads ───────────────────────────────────────────────────────
	ErrFileRequired    ErrCode = "FILE_REQUIRED"
	ErrUnsupportedFile ErrCode = "UNSUPPORTED_FILE_TYPE"
	ErrFileTooLarge    ErrCode = "FILE_TOO_LARGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."
	case ErrActionForbidden:
		return "This action is not allowed."

	// ─── Allocation ────────────────────────────────────────────────────
	case ErrInsufficientQuestions:
		return "The question bank does not have enough questions for this request."
	case ErrAllocationConflict:
		return "Allocation lost a concurrent update. Please retry."

	// ─── Test lifecycle ────────────────────────────────────────────────
	case ErrTestNotAvailable:
		return "This test is not currently available."
	case ErrTestNotDraft:
		return "This test is not in DRAFT status."
	case ErrTestNotPublished:
		return "This test has not been published yet."
	case ErrInvalidAccessCode:
		return "Invalid test access code."

	// ─── Attempts ──────────────────────────────────────────────────────
	case ErrAttemptNotFound:
		return "No attempt exists for this test and student."
	case ErrAttemptAlreadyCompleted:
		return "This attempt has already been submitted and graded."
	case ErrInvalidStateTransition:
		return "This action is not allowed in the attempt's current state."

	// ─── Uploads ───────────────────────────────────────────────────────
	case ErrFileRequired:
		return "A file is required for this request."
	case ErrUnsupportedFile:
		return "Unsupported file type."
	case ErrFileTooLarge:
		return "File exceeds the maximum allowed size."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}

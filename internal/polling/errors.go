package polling

// Error codes surfaced to realtime clients. Stable strings so clients can
// branch on code without string matching the message.
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeConferenceNotFound  = "CONFERENCE_NOT_FOUND"
	CodeQuestionNotFound    = "QUESTION_NOT_FOUND"
	CodeConferenceEnded     = "CONFERENCE_ENDED"
	CodeConferenceNotActive = "CONFERENCE_NOT_ACTIVE"
	CodeQuestionNotLive     = "QUESTION_NOT_LIVE"
	CodeInvalidOption       = "INVALID_OPTION"
	CodeAlreadyVoted        = "ALREADY_VOTED"
	CodeOperationInProgress = "OPERATION_IN_PROGRESS"
	CodeInternal            = "INTERNAL_ERROR"
)

// Error is a protocol error carrying a stable code. Validation and authority
// errors are returned to the originating caller only, never broadcast.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

var (
	ErrInvalidRequest      = &Error{Code: CodeInvalidRequest, Message: "missing or invalid fields"}
	ErrUnauthorized        = &Error{Code: CodeUnauthorized, Message: "not allowed"}
	ErrNotHost             = &Error{Code: CodeUnauthorized, Message: "only the host may do this"}
	ErrNotAudience         = &Error{Code: CodeUnauthorized, Message: "not_audience"}
	ErrConferenceNotFound  = &Error{Code: CodeConferenceNotFound, Message: "conference not found"}
	ErrQuestionNotFound    = &Error{Code: CodeQuestionNotFound, Message: "question not found"}
	ErrConferenceEnded     = &Error{Code: CodeConferenceEnded, Message: "conference has ended"}
	ErrConferenceNotActive = &Error{Code: CodeConferenceNotActive, Message: "conference is not active"}
	ErrQuestionNotLive     = &Error{Code: CodeQuestionNotLive, Message: "question is not live"}
	ErrInvalidOption       = &Error{Code: CodeInvalidOption, Message: "option is not valid for this question"}
	ErrAlreadyVoted        = &Error{Code: CodeAlreadyVoted, Message: "already voted on this question"}
	ErrOperationInProgress = &Error{Code: CodeOperationInProgress, Message: "operation in progress, retry shortly"}
	ErrInternal            = &Error{Code: CodeInternal, Message: "internal error"}
)

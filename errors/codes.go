package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Local and transport errors
const (
	// ErrCodeLocalInternal indicates a failure inside the client itself.
	ErrCodeLocalInternal ErrorCode = "LOCAL_INTERNAL"
	// ErrCodeNoInternetConnection indicates the device has no network path.
	ErrCodeNoInternetConnection ErrorCode = "NO_INTERNET_CONNECTION"
	// ErrCodeInternetConnectionLost indicates the connection dropped mid-request.
	ErrCodeInternetConnectionLost ErrorCode = "INTERNET_CONNECTION_LOST"
	// ErrCodeConnectionFailed indicates the server could not be reached.
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeCancelled indicates the caller cancelled the request.
	ErrCodeCancelled ErrorCode = "CANCELLED"
)

// Server errors
const (
	ErrCodeServerInternal        ErrorCode = "SERVER_INTERNAL"
	ErrCodeServerRefused         ErrorCode = "SERVER_REFUSED"
	ErrCodeObjectNotFound        ErrorCode = "OBJECT_NOT_FOUND"
	ErrCodeInvalidQuery          ErrorCode = "INVALID_QUERY"
	ErrCodeMissingObjectID       ErrorCode = "MISSING_OBJECT_ID"
	ErrCodeInvalidPayload        ErrorCode = "INVALID_PAYLOAD"
	ErrCodeOperationForbidden    ErrorCode = "OPERATION_FORBIDDEN"
	ErrCodeInvalidEmailAddress   ErrorCode = "INVALID_EMAIL_ADDRESS"
	ErrCodeInvalidServerResponse ErrorCode = "INVALID_SERVER_RESPONSE"
	ErrCodeUnknown               ErrorCode = "UNKNOWN"
)

// Account and session errors
const (
	ErrCodeUsernameMissing      ErrorCode = "USERNAME_MISSING"
	ErrCodePasswordMissing      ErrorCode = "PASSWORD_MISSING"
	ErrCodeUsernameTaken        ErrorCode = "USERNAME_TAKEN"
	ErrCodeEmailTaken           ErrorCode = "EMAIL_TAKEN"
	ErrCodeAccountAlreadyLinked ErrorCode = "ACCOUNT_ALREADY_LINKED"
	ErrCodeInvalidSessionToken  ErrorCode = "INVALID_SESSION_TOKEN"
	ErrCodeAuthBadCredentials   ErrorCode = "AUTH_BAD_CREDENTIALS"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeTimeout:                true,
	ErrCodeConnectionFailed:       true,
	ErrCodeInternetConnectionLost: true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}

// numeric codes used by the server in error bodies.
var codeNumbers = map[ErrorCode]int{
	ErrCodeLocalInternal:          -1,
	ErrCodeServerInternal:         1,
	ErrCodeServerRefused:          3,
	ErrCodeNoInternetConnection:   4,
	ErrCodeInternetConnectionLost: 5,
	ErrCodeConnectionFailed:       100,
	ErrCodeObjectNotFound:         101,
	ErrCodeInvalidQuery:           102,
	ErrCodeMissingObjectID:        104,
	ErrCodeInvalidPayload:         105,
	ErrCodeOperationForbidden:     106,
	ErrCodeTimeout:                107,
	ErrCodeInvalidEmailAddress:    108,
	ErrCodeInvalidServerResponse:  109,
	ErrCodeUsernameMissing:        200,
	ErrCodePasswordMissing:        201,
	ErrCodeUsernameTaken:          202,
	ErrCodeEmailTaken:             203,
	ErrCodeAccountAlreadyLinked:   205,
	ErrCodeInvalidSessionToken:    206,
	ErrCodeAuthBadCredentials:     209,
	ErrCodeUnknown:                666,
}

var numberCodes = func() map[int]ErrorCode {
	m := make(map[int]ErrorCode, len(codeNumbers))
	for code, n := range codeNumbers {
		m[n] = code
	}
	// linked-account variants share one code
	m[204] = ErrCodeAccountAlreadyLinked
	m[207] = ErrCodeInvalidSessionToken
	m[208] = ErrCodeInvalidSessionToken
	return m
}()

// Number returns the numeric wire code for c, or 666 (unknown) for codes the
// server never emits.
func (c ErrorCode) Number() int {
	if n, ok := codeNumbers[c]; ok {
		return n
	}
	return codeNumbers[ErrCodeUnknown]
}

// FromNumber maps a numeric wire code to an ErrorCode.
func FromNumber(n int) ErrorCode {
	if code, ok := numberCodes[n]; ok {
		return code
	}
	return ErrCodeUnknown
}

package httpdto

// Error codes returned in Response.Code.
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeNoActiveConversation = "NO_ACTIVE_CONVERSATION"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeNotFound             = "NOT_FOUND"
	CodeUnavailable          = "UNAVAILABLE"
	CodeRequestFailed        = "REQUEST_FAILED"
)

type Response[T any] struct {
	Success   bool   `json:"success"`
	Data      T      `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{Success: true, Data: data}
}

func NewErrorResponse(message, code string) Response[any] {
	return Response[any]{Error: message, Code: code}
}

// WithRequestID tags an error response so a UI can quote it back in logs.
func (r Response[T]) WithRequestID(id string) Response[T] {
	r.RequestID = id
	return r
}

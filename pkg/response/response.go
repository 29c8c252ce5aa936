package response

// Response represents a standard API response format
type Response struct {
	Status     string      `json:"status"`      // "success" or "error"
	StatusCode int         `json:"status_code"` // HTTP status code
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	Code       string      `json:"code,omitempty"`      // machine-readable error code
	Retryable  bool        `json:"retryable,omitempty"` // safe to resend unchanged
	Messages   []string    `json:"messages"`
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data interface{}, messages ...string) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
		Messages:   nonNil(messages),
	}
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
		Messages:   []string{err},
	}
}

func nonNil(messages []string) []string {
	if messages == nil {
		return []string{}
	}
	return messages
}

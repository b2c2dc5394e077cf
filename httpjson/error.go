package httpjson

import "fmt"

// Error is a JSON error response. extra is merged into the body next to the
// "error" key.
func Error(status int, err error, extra M) *Response {
	body := M{"error": err.Error()}
	for k, v := range extra {
		body[k] = v
	}
	return &Response{Status: status, Body: body}
}

// Errorf is Error with a formatted message and no extra fields.
func Errorf(status int, format string, args ...any) *Response {
	return Error(status, fmt.Errorf(format, args...), nil)
}

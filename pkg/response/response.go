package response

import "net/http"

// Response is the envelope every JSON endpoint returns.
type Response struct {
	Status     string      `json:"status"`      // "success" or "error"
	StatusCode int         `json:"status_code"` // HTTP status code
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
}

func Success(statusCode int, data interface{}) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// Created is Success for resources that were just stored.
func Created(data interface{}) Response {
	return Success(http.StatusCreated, data)
}

// Error wraps msg in the error envelope. An empty msg falls back to the status text.
func Error(statusCode int, msg string) Response {
	if msg == "" {
		msg = http.StatusText(statusCode)
	}
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      msg,
	}
}

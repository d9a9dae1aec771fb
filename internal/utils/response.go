package utils

import "time"

// APIResponse is the envelope for every reservation and payment
// endpoint. Error carries the domain sentinel text; Data carries the
// reservation or payment body on success.
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func ErrorResponse(message, errDetail string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     errDetail,
		Timestamp: time.Now(),
	}
}

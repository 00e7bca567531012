package httpx

import (
	"encoding/json"
	"net/http"
)

type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

type ErrorResponse struct {
	Success bool              `json:"success"`
	Error   ErrorResponseBody `json:"error"`
	Meta    interface{}       `json:"meta,omitempty"`
}

type ErrorResponseBody struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func meta(r *http.Request) interface{} {
	requestID := RequestIDFrom(r)
	if requestID == "" {
		return nil
	}
	return map[string]interface{}{"request_id": requestID}
}

func JSONSuccess(r *http.Request, w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Data: data, Meta: meta(r)})
}

func JSONSuccessCreated(r *http.Request, w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusCreated, SuccessResponse{Success: true, Data: data, Meta: meta(r)})
}

func JSONError(r *http.Request, w http.ResponseWriter, statusCode int, code string, message string, details []ErrorDetail) {
	writeJSON(w, statusCode, ErrorResponse{
		Success: false,
		Error: ErrorResponseBody{
			Code:    code,
			Message: message,
			Details: details,
		},
		Meta: meta(r),
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

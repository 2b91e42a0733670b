// Package httputil contains JSON response helpers for the Redfish-style API.
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// WriteJSON writes data as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// ExtendedInfo is one entry of a Redfish @Message.ExtendedInfo array.
type ExtendedInfo struct {
	MessageID  string `json:"MessageId"`
	Message    string `json:"Message"`
	Severity   string `json:"Severity,omitempty"`
	Resolution string `json:"Resolution,omitempty"`
}

type errorBody struct {
	Code         string         `json:"code"`
	Message      string         `json:"message"`
	ExtendedInfo []ExtendedInfo `json:"@Message.ExtendedInfo,omitempty"`
}

// WriteError writes a Redfish error object.
func WriteError(w http.ResponseWriter, status int, messageID, message string) {
	WriteExtendedError(w, status, ExtendedInfo{
		MessageID: messageID,
		Message:   message,
		Severity:  "Warning",
	})
}

// WriteExtendedError writes a Redfish error object carrying a single
// registry message.
func WriteExtendedError(w http.ResponseWriter, status int, info ExtendedInfo) {
	WriteJSON(w, status, map[string]errorBody{
		"error": {
			Code:         info.MessageID,
			Message:      info.Message,
			ExtendedInfo: []ExtendedInfo{info},
		},
	})
}

// DecodeJSON decodes the request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

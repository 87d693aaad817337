// Package response writes the JSON envelope shared by every API endpoint:
// {success, message, data?, errors?}.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/swapmeet/marketplace/backend/internal/apperr"
)

type Envelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Data    any      `json:"data,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func OK(w http.ResponseWriter, message string, data any) {
	JSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

func Created(w http.ResponseWriter, message string, data any) {
	JSON(w, http.StatusCreated, Envelope{Success: true, Message: message, Data: data})
}

// Fail writes a failure envelope without going through the error taxonomy.
func Fail(w http.ResponseWriter, status int, message string, errs ...string) {
	JSON(w, status, Envelope{Success: false, Message: message, Errors: errs})
}

// Writer maps service errors onto the envelope. Outside development,
// internal failures are reported with a generic message.
type Writer struct {
	Log   logrus.FieldLogger
	Debug bool
}

func (wr Writer) Error(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := apperr.As(err); ok && e.Kind != apperr.KindInternal {
		Fail(w, e.Status(), e.Message, e.Errors...)
		return
	}

	if wr.Log != nil {
		wr.Log.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).WithError(err).Error("unhandled error")
	}
	msg := "Internal server error"
	if wr.Debug {
		msg = err.Error()
	}
	Fail(w, http.StatusInternalServerError, msg)
}

// Decode parses a JSON request body into v.
func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("Invalid request body")
	}
	return nil
}

package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// NetworkError is a failed exchange: no response (Status 0) or a non-2xx one.
type NetworkError struct {
	Op     string
	Method string
	Path   string
	Status int
	// Message is the server-provided reason, if the body carried one.
	Message string
	Body    []byte
	Err     error
}

func (e *NetworkError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Status > 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *NetworkError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Unauthenticated reports a 401 from the backend.
func (e *NetworkError) Unauthenticated() bool {
	return e != nil && e.Status == 401
}

// DecodeError is a successful status whose body could not be decoded.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: decode response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsUnauthenticated reports whether err is a 401 NetworkError.
func IsUnauthenticated(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr) && netErr.Unauthenticated()
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.Status
	}
	return 0
}

// UserMessage picks the text to show for err: the server's message when it
// sent one, fallback otherwise.
func UserMessage(err error, fallback string) string {
	var netErr *NetworkError
	if errors.As(err, &netErr) && strings.TrimSpace(netErr.Message) != "" {
		return netErr.Message
	}
	return fallback
}

// serverMessage pulls a reason out of an error body: {"message": "..."}, a
// bare JSON string, or short plain text.
func serverMessage(body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return ""
	}
	var payload struct {
		Message any `json:"message"`
		Error   any `json:"error"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err == nil {
		if msg := stringValue(payload.Message); msg != "" {
			return msg
		}
		if msg := stringValue(payload.Error); msg != "" {
			return msg
		}
		return ""
	}
	var plain string
	if err := json.Unmarshal([]byte(text), &plain); err == nil {
		return strings.TrimSpace(plain)
	}
	if json.Valid([]byte(text)) || strings.HasPrefix(text, "<") {
		return ""
	}
	const maxLen = 200
	if len(text) > maxLen {
		text = text[:maxLen]
	}
	return text
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

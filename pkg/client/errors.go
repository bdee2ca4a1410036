package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed backend call
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindAuthExpired
	KindValidation
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuthExpired:
		return "auth_expired"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching on the error kind
var (
	ErrNetwork     = errors.New("network error")
	ErrAuthExpired = errors.New("session expired")
	ErrValidation  = errors.New("validation error")
	ErrServer      = errors.New("server error")
	ErrUnknown     = errors.New("unknown error")
)

func (k Kind) sentinel() error {
	switch k {
	case KindNetwork:
		return ErrNetwork
	case KindAuthExpired:
		return ErrAuthExpired
	case KindValidation:
		return ErrValidation
	case KindServer:
		return ErrServer
	default:
		return ErrUnknown
	}
}

// Error is returned by every failed call made through the Client
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Fields     []FieldError
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.sentinel().Error()
	}
	if e.Err != nil && e.Kind == KindNetwork {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error kind
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// IsNotFound reports whether err is a 404 from the backend
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// KindOf returns the kind of err, or KindUnknown for foreign errors
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// classify turns a non-2xx response into an *Error. 401 is handled by Do.
func classify(resp *Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	var body errorBody
	var fields []FieldError
	if err := json.Unmarshal(resp.Body, &body); err == nil {
		fields = ParseDetail(body.Detail)
	}

	apiErr := &Error{
		StatusCode: resp.StatusCode,
		Fields:     fields,
		Message:    FormatFields(fields),
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		apiErr.Kind = KindServer
	case resp.StatusCode == http.StatusUnprocessableEntity || len(fields) > 0:
		apiErr.Kind = KindValidation
	default:
		apiErr.Kind = KindUnknown
	}
	return apiErr
}

// authExpired builds the terminal 401 error, keeping the backend detail when present
func authExpired(resp *Response, cause error) error {
	apiErr := &Error{Kind: KindAuthExpired, StatusCode: http.StatusUnauthorized, Err: cause}
	if resp != nil {
		var body errorBody
		if err := json.Unmarshal(resp.Body, &body); err == nil {
			apiErr.Fields = ParseDetail(body.Detail)
			apiErr.Message = FormatFields(apiErr.Fields)
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = ErrAuthExpired.Error()
	}
	return apiErr
}

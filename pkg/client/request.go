package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

// MaxUploadSize bounds image uploads
const MaxUploadSize = 10 << 20

// maxResponseSize bounds how much of a response body is read
const maxResponseSize = 16 << 20

const (
	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"
)

// Request is a fully formed backend call. Body is held as bytes so the
// request can be sent again after the access token is refreshed.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Header      http.Header
	Body        []byte
	ContentType string

	// NoAuth requests never carry the bearer token and never trigger a refresh
	NoAuth bool
}

// Response is a completed backend call with its body fully read
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &Error{
			Kind:       KindUnknown,
			StatusCode: r.StatusCode,
			Message:    "invalid response body",
			Err:        err,
		}
	}
	return nil
}

func newGet(path string, query url.Values) *Request {
	return &Request{Method: http.MethodGet, Path: path, Query: query}
}

func newJSON(method, path string, v any) (*Request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return &Request{Method: method, Path: path, Body: body, ContentType: contentTypeJSON}, nil
}

func newForm(path string, form url.Values) *Request {
	return &Request{
		Method:      http.MethodPost,
		Path:        path,
		Body:        []byte(form.Encode()),
		ContentType: contentTypeForm,
	}
}

// newMultipart buffers an image upload under the given form field
func newMultipart(path, field, filename string, r io.Reader) (*Request, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s is empty", filename)
	}
	if len(data) > MaxUploadSize {
		return nil, fmt.Errorf("%s exceeds the %d MiB upload limit", filename, MaxUploadSize>>20)
	}

	mediaType := http.DetectContentType(data)
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("%s is not an image (detected %s)", filename, mediaType)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", mediaType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write form part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	return &Request{
		Method:      http.MethodPost,
		Path:        path,
		Body:        buf.Bytes(),
		ContentType: w.FormDataContentType(),
	}, nil
}

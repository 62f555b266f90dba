package apiclient

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
)

// Attempt tags a request descriptor with how many times it has been dispatched
// for the same logical operation. The tag is set at construction and can only
// advance through Retry, which returns a new descriptor.
type Attempt uint8

const (
	FirstAttempt Attempt = iota
	RetryAfterRefresh
)

func (a Attempt) String() string {
	switch a {
	case FirstAttempt:
		return "first"
	case RetryAfterRefresh:
		return "retry_after_refresh"
	default:
		return fmt.Sprintf("attempt(%d)", uint8(a))
	}
}

// Request describes one outbound call. Middlewares may mutate Header; the body
// is encoded by the transport on every dispatch so a retried request re-sends it.
//
// Body kinds:
//   - nil: no body
//   - *MultipartForm: multipart/form-data, boundary assigned by the transport
//   - url.Values: urlencoded form (callers set the Content-Type themselves)
//   - []byte or string: sent as-is
//   - anything else: JSON
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header

	attempt Attempt
}

// NewRequest builds a first-attempt descriptor with an empty header map.
func NewRequest(method, path string, body any) *Request {
	return &Request{
		Method: method,
		Path:   path,
		Body:   body,
		Header: make(http.Header),
	}
}

// WithQuery sets the query parameters and returns the request for chaining.
func (r *Request) WithQuery(q url.Values) *Request {
	r.Query = q
	return r
}

// Attempt returns the dispatch tag of the descriptor.
func (r *Request) Attempt() Attempt {
	return r.attempt
}

// Retried reports whether this descriptor is already the post-refresh retry.
func (r *Request) Retried() bool {
	return r.attempt >= RetryAfterRefresh
}

// Retry derives the single permitted retry of this request. Headers and query
// are cloned; the receiver is left untouched.
func (r *Request) Retry() *Request {
	return &Request{
		Method:  r.Method,
		Path:    r.Path,
		Query:   cloneValues(r.Query),
		Body:    r.Body,
		Header:  r.Header.Clone(),
		attempt: RetryAfterRefresh,
	}
}

// IsMultipart reports whether the body is a multipart form.
func (r *Request) IsMultipart() bool {
	_, ok := r.Body.(*MultipartForm)
	return ok
}

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return nil
	}
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

// FormField is a plain multipart field.
type FormField struct {
	Name  string
	Value string
}

// FormFile is an in-memory file part.
type FormFile struct {
	Field       string
	Filename    string
	ContentType string
	Content     []byte
}

// MultipartForm is a multipart/form-data payload. Parts are kept in memory so
// the form can be encoded again for a retry.
type MultipartForm struct {
	Fields []FormField
	Files  []FormFile
}

// NewMultipartForm returns an empty form.
func NewMultipartForm() *MultipartForm {
	return &MultipartForm{}
}

// Add appends a field.
func (f *MultipartForm) Add(name, value string) *MultipartForm {
	f.Fields = append(f.Fields, FormField{Name: name, Value: value})
	return f
}

// AddFile appends a file part; an empty content type defaults to text/csv.
func (f *MultipartForm) AddFile(field, filename, contentType string, content []byte) *MultipartForm {
	f.Files = append(f.Files, FormFile{
		Field:       field,
		Filename:    filename,
		ContentType: contentType,
		Content:     content,
	})
	return f
}

// Value returns the first value of the named field.
func (f *MultipartForm) Value(name string) (string, bool) {
	for _, fld := range f.Fields {
		if fld.Name == name {
			return fld.Value, true
		}
	}
	return "", false
}

// encode writes the form and returns the body plus its Content-Type with boundary.
func (f *MultipartForm) encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, fld := range f.Fields {
		if err := w.WriteField(fld.Name, fld.Value); err != nil {
			return nil, "", fmt.Errorf("write field %q: %w", fld.Name, err)
		}
	}
	for _, file := range f.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", multipart.FileContentDisposition(file.Field, file.Filename))
		ct := file.ContentType
		if ct == "" {
			ct = "text/csv"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create part %q: %w", file.Field, err)
		}
		if _, err := part.Write(file.Content); err != nil {
			return nil, "", fmt.Errorf("write part %q: %w", file.Field, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
)

// Body is a request payload.
type Body interface {
	// Open returns the payload reader and its content type.
	Open() (io.ReadCloser, string, error)
}

type jsonBody struct {
	v any
}

// JSON encodes v as an application/json body.
func JSON(v any) Body {
	return jsonBody{v: v}
}

func (b jsonBody) Open() (io.ReadCloser, string, error) {
	data, err := json.Marshal(b.v)
	if err != nil {
		return nil, "", fmt.Errorf("encode body: %w", err)
	}
	return io.NopCloser(bytes.NewReader(data)), "application/json", nil
}

type formPart struct {
	name     string
	value    string
	filename string
	open     func() (io.ReadCloser, error)
}

// Form is a multipart/form-data body. Parts are written in the order they
// are added; file contents are streamed, not buffered.
type Form struct {
	parts []formPart
}

// NewForm returns an empty Form.
func NewForm() *Form {
	return &Form{}
}

// Field appends a text field.
func (f *Form) Field(name, value string) *Form {
	f.parts = append(f.parts, formPart{name: name, value: value})
	return f
}

// File appends a file part whose contents come from open.
func (f *Form) File(name, filename string, open func() (io.ReadCloser, error)) *Form {
	f.parts = append(f.parts, formPart{name: name, filename: filename, open: open})
	return f
}

// Open starts encoding the form into a pipe.
func (f *Form) Open() (io.ReadCloser, string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(f.write(mw))
	}()

	return pr, mw.FormDataContentType(), nil
}

func (f *Form) write(mw *multipart.Writer) error {
	for _, p := range f.parts {
		if p.open == nil {
			if err := mw.WriteField(p.name, p.value); err != nil {
				return err
			}
			continue
		}
		if err := writeFile(mw, p); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writeFile(mw *multipart.Writer, p formPart) error {
	src, err := p.open()
	if err != nil {
		return fmt.Errorf("open %s: %w", p.filename, err)
	}
	defer src.Close()

	w, err := mw.CreateFormFile(p.name, p.filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("read %s: %w", p.filename, err)
	}
	return nil
}

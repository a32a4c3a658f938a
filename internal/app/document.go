package app

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const fallbackMIMEType = "application/octet-stream"

// DocumentUpload is a user-selected file that has not been read yet.
type DocumentUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// EncodedDocument is the transport form of an upload: the whole file inlined
// as a base64 data URI.
type EncodedDocument struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	DataURI  string `json:"data_uri"`
}

// EncodeDocument reads the upload once and returns it as
// "data:<mime>;base64,<payload>". The MIME type is sniffed from the content
// and falls back to the declared type.
func EncodeDocument(upload DocumentUpload) (EncodedDocument, error) {
	if upload.Open == nil {
		return EncodedDocument{}, fmt.Errorf("%w: no content", ErrDocumentUnreadable)
	}
	rc, err := upload.Open()
	if err != nil {
		return EncodedDocument{}, fmt.Errorf("%w: %v", ErrDocumentUnreadable, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return EncodedDocument{}, fmt.Errorf("%w: %v", ErrDocumentUnreadable, err)
	}

	mimeType := detectMIMEType(data, upload.ContentType)
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(mimeType) + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString("data:")
	b.WriteString(mimeType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))

	return EncodedDocument{
		Filename: upload.Filename,
		MIMEType: mimeType,
		DataURI:  b.String(),
	}, nil
}

func detectMIMEType(data []byte, declared string) string {
	if len(data) > 0 {
		detected := mimetype.Detect(data)
		if !detected.Is(fallbackMIMEType) {
			return stripParams(detected.String())
		}
	}
	if declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
			return mediaType
		}
	}
	return fallbackMIMEType
}

func stripParams(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		return strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}

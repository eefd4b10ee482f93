// Package textextract recovers plain text from PDF and DOCX files. Layout is
// not preserved; paragraphs become lines.
package textextract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	docxBodyPart = "word/document.xml"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrCorrupt           = errors.New("document could not be parsed")
	ErrNoText            = errors.New("document contains no extractable text")
)

func (f Format) MimeType() string {
	switch f {
	case FormatPDF:
		return mimePDF
	case FormatDOCX:
		return mimeDOCX
	default:
		return "application/octet-stream"
	}
}

func (f Format) Extension() string {
	return "." + string(f)
}

// DeclaredFormat resolves the type the client claims for an upload: the file
// extension wins, the part's Content-Type is used when there is none.
func DeclaredFormat(fileName, contentType string) (Format, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return FormatPDF, nil
	case ".docx":
		return FormatDOCX, nil
	case "":
	default:
		return "", fmt.Errorf("%w: extension %q", ErrUnsupportedFormat, filepath.Ext(fileName))
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: no extension and unreadable content type", ErrUnsupportedFormat)
	}
	switch mediaType {
	case mimePDF:
		return FormatPDF, nil
	case mimeDOCX:
		return FormatDOCX, nil
	default:
		return "", fmt.Errorf("%w: content type %q", ErrUnsupportedFormat, mediaType)
	}
}

// Sniff identifies the format from magic bytes.
func Sniff(data []byte) (Format, bool) {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return FormatPDF, true
	}
	if bytes.HasPrefix(data, []byte{'P', 'K', 3, 4}) && hasZipPart(data, docxBodyPart) {
		return FormatDOCX, true
	}
	return "", false
}

// Extract returns the text of data, which the caller declared to be of type
// declared. Content that does not match the declared type is reported as
// corrupt.
func Extract(data []byte, declared Format) (string, error) {
	if declared != FormatPDF && declared != FormatDOCX {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, declared)
	}
	sniffed, ok := Sniff(data)
	if !ok || sniffed != declared {
		return "", fmt.Errorf("%w: content is not a valid %s file", ErrCorrupt, declared)
	}

	var (
		text string
		err  error
	)
	switch declared {
	case FormatPDF:
		text, err = extractPDF(data)
	case FormatDOCX:
		text, err = extractDOCX(data)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	text = normalize(text)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

func extractPDF(data []byte) (text string, err error) {
	// The pdf reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return string(b), nil
}

func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("docx zip: %w", err)
	}
	f := findZipFile(zr, docxBodyPart)
	if f == nil {
		return "", fmt.Errorf("docx is missing %s", docxBodyPart)
	}
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("docx open body: %w", err)
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	var out strings.Builder
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("docx xml: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				var v string
				if err := dec.DecodeElement(&v, &el); err != nil {
					return "", fmt.Errorf("docx text run: %w", err)
				}
				out.WriteString(v)
			case "tab":
				out.WriteString(" ")
			case "br":
				out.WriteString("\n")
			}
		case xml.EndElement:
			if el.Name.Local == "p" {
				out.WriteString("\n")
			}
		}
	}
	return out.String(), nil
}

func hasZipPart(data []byte, name string) bool {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	return findZipFile(zr, name) != nil
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// normalize collapses runs of blanks inside lines and drops empty lines.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if fields := strings.Fields(line); len(fields) > 0 {
			out = append(out, strings.Join(fields, " "))
		}
	}
	return strings.Join(out, "\n")
}

package textextract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"documind-backend/internal/pkg/chunker"
)

func buildDOCX(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("[Content_Types].xml")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	if _, err := w.Write([]byte(`<?xml version="1.0"?><Types/>`)); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	w, err = zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`
	if _, err := w.Write([]byte(doc)); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// buildPDF writes a one-page PDF with a Helvetica text object per line and
// a byte-exact cross-reference table.
func buildPDF(t *testing.T, lines ...string) []byte {
	t.Helper()
	var content strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&content, "BT /F1 12 Tf 72 %d Td (%s) Tj ET\n", 720-i*16, line)
	}
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", content.Len(), content.String()),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtractPDFThenChunk(t *testing.T) {
	lines := []string{
		"Quarterly revenue grew twelve percent.",
		"Operating costs fell in March.",
		"The board approved a dividend.",
	}
	data := buildPDF(t, lines...)

	text, err := Extract(data, FormatPDF)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, line := range lines {
		if !strings.Contains(text, line) {
			t.Fatalf("extracted text %q is missing %q", text, line)
		}
	}

	chunks := chunker.Split(text, 40, 10)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	var joined strings.Builder
	for i, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			t.Fatalf("chunk %d is blank", i)
		}
		if c.Index != i {
			t.Fatalf("chunk %d has index %d", i, c.Index)
		}
		joined.WriteString(c.Text)
		joined.WriteString(" ")
	}
	for _, word := range strings.Fields(text) {
		if !strings.Contains(joined.String(), word) {
			t.Fatalf("word %q not covered by any chunk", word)
		}
	}
}

func TestDeclaredFormat(t *testing.T) {
	cases := []struct {
		name        string
		fileName    string
		contentType string
		want        Format
		wantErr     bool
	}{
		{name: "pdf extension", fileName: "Report.PDF", want: FormatPDF},
		{name: "docx extension", fileName: "notes.docx", contentType: "application/octet-stream", want: FormatDOCX},
		{name: "content type fallback", fileName: "upload", contentType: "application/pdf", want: FormatPDF},
		{name: "legacy doc", fileName: "old.doc", wantErr: true},
		{name: "plain text", fileName: "readme.txt", contentType: "text/plain", wantErr: true},
		{name: "nothing usable", fileName: "blob", contentType: "", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DeclaredFormat(tc.fileName, tc.contentType)
			if tc.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("format = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExtractDOCX(t *testing.T) {
	data := buildDOCX(t,
		`<w:p><w:r><w:t>Quarterly</w:t></w:r><w:r><w:t xml:space="preserve">  revenue grew</w:t></w:r></w:p>`+
			`<w:p></w:p>`+
			`<w:p><w:r><w:t>Costs</w:t><w:tab/><w:t>fell.</w:t></w:r></w:p>`)

	got, err := Extract(data, FormatDOCX)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := "Quarterly revenue grew\nCosts fell."
	if got != want {
		t.Fatalf("text = %q, want %q", got, want)
	}
}

func TestExtractDOCXWithoutText(t *testing.T) {
	data := buildDOCX(t, `<w:p></w:p><w:p><w:r><w:t>   </w:t></w:r></w:p>`)
	if _, err := Extract(data, FormatDOCX); !errors.Is(err, ErrNoText) {
		t.Fatalf("expected ErrNoText, got %v", err)
	}
}

func TestExtractRejectsMismatchedContent(t *testing.T) {
	docx := buildDOCX(t, `<w:p><w:r><w:t>hello</w:t></w:r></w:p>`)
	if _, err := Extract(docx, FormatPDF); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("docx declared as pdf: expected ErrCorrupt, got %v", err)
	}
	if _, err := Extract([]byte("just some text"), FormatDOCX); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("text declared as docx: expected ErrCorrupt, got %v", err)
	}
}

func TestExtractTruncatedPDF(t *testing.T) {
	data := []byte("%PDF-1.4\n1 0 obj << /Type /Catalog >>\n")
	if _, err := Extract(data, FormatPDF); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestExtractUnknownFormat(t *testing.T) {
	if _, err := Extract([]byte("%PDF-1.4"), Format("txt")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestSniff(t *testing.T) {
	if f, ok := Sniff([]byte("%PDF-1.7 ...")); !ok || f != FormatPDF {
		t.Fatalf("pdf sniff = %q %v", f, ok)
	}
	if f, ok := Sniff(buildDOCX(t, "")); !ok || f != FormatDOCX {
		t.Fatalf("docx sniff = %q %v", f, ok)
	}
	// A zip without the word body is not a docx.
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if _, err := zw.Create("other.txt"); err != nil {
		t.Fatalf("zip create: %v", err)
	}
	_ = zw.Close()
	if _, ok := Sniff(buf.Bytes()); ok {
		t.Fatal("plain zip should not sniff as docx")
	}
}

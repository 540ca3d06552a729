package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"resume-insights/constants"
	"resume-insights/internal/common"
)

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestExtractPlainText(t *testing.T) {
	t.Parallel()
	e := NewFileExtractor(nil)

	content := "John Doe\nSenior Software Engineer\n10 years of Go experience."
	path := writeTempFile(t, "resume.txt", []byte(content))

	text, err := e.Extract(context.Background(), path, constants.FormatText)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if text != content {
		t.Errorf("text = %q, want %q", text, content)
	}
}

func TestExtractMarkdown(t *testing.T) {
	t.Parallel()
	e := NewFileExtractor(nil)

	path := writeTempFile(t, "resume.md", []byte("# Jane Doe\n\n## Experience\n\n- Platform team lead"))
	text, err := e.Extract(context.Background(), path, constants.FormatMarkdown)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(text, "Platform team lead") {
		t.Errorf("text missing content: %q", text)
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	t.Parallel()
	e := NewFileExtractor(nil)

	path := writeTempFile(t, "resume.rtf", []byte("irrelevant"))
	_, err := e.Extract(context.Background(), path, constants.FileFormat("RTF"))
	if !errors.Is(err, common.ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

// writeDocx assembles a minimal .docx: a zip with a word/document.xml part.
func writeDocx(t *testing.T, documentXML string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resume.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create docx: %v", err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create document.xml: %v", err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatalf("write document.xml: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close docx: %v", err)
	}
	return path
}

func TestExtractDocx(t *testing.T) {
	t.Parallel()
	e := NewFileExtractor(nil)

	path := writeDocx(t, `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Jane Doe</w:t></w:r></w:p>
    <w:p><w:r><w:t>Senior</w:t></w:r><w:r><w:tab/></w:r><w:r><w:t>Engineer</w:t></w:r></w:p>
    <w:p><w:r><w:t>Led the platform team for five years.</w:t></w:r></w:p>
  </w:body>
</w:document>`)

	text, err := e.Extract(context.Background(), path, constants.FormatDocx)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	for _, want := range []string{"Jane Doe", "Senior\tEngineer", "platform team"} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q: %q", want, text)
		}
	}
	if !strings.Contains(text, "Jane Doe\n") {
		t.Errorf("paragraph break lost: %q", text)
	}
}

func TestExtractDocxCorrupt(t *testing.T) {
	t.Parallel()
	e := NewFileExtractor(nil)

	t.Run("not a zip", func(t *testing.T) {
		t.Parallel()
		path := writeTempFile(t, "resume.docx", []byte("plain text, no zip header"))
		_, err := e.Extract(context.Background(), path, constants.FormatDocx)
		if !errors.Is(err, common.ErrCorruptFile) {
			t.Errorf("err = %v, want ErrCorruptFile", err)
		}
	})

	t.Run("zip without document part", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		w, _ := zw.Create("word/styles.xml")
		w.Write([]byte("<w:styles/>"))
		zw.Close()
		path := writeTempFile(t, "resume.docx", buf.Bytes())
		_, err := e.Extract(context.Background(), path, constants.FormatDocx)
		if !errors.Is(err, common.ErrCorruptFile) {
			t.Errorf("err = %v, want ErrCorruptFile", err)
		}
	})

	t.Run("malformed xml", func(t *testing.T) {
		t.Parallel()
		path := writeDocx(t, "<w:document><w:body><w:p>")
		_, err := e.Extract(context.Background(), path, constants.FormatDocx)
		if !errors.Is(err, common.ErrCorruptFile) {
			t.Errorf("err = %v, want ErrCorruptFile", err)
		}
	})
}

func TestExtractRejectsUnusableText(t *testing.T) {
	t.Parallel()
	e := NewFileExtractor(nil)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"whitespace only", []byte("   \n\t\n  ")},
		{"too short", []byte("ab")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := writeTempFile(t, "resume.txt", tc.data)
			_, err := e.Extract(context.Background(), path, constants.FormatText)
			if !errors.Is(err, common.ErrFatalData) {
				t.Errorf("err = %v, want ErrFatalData", err)
			}
		})
	}
}

func TestExtractInvalidUTF8IsCorrupt(t *testing.T) {
	t.Parallel()
	e := NewFileExtractor(nil)

	path := writeTempFile(t, "resume.txt", []byte{0xff, 0xfe, 0x00, 0x80, 0xc3})
	_, err := e.Extract(context.Background(), path, constants.FormatText)
	if !errors.Is(err, common.ErrCorruptFile) {
		t.Errorf("err = %v, want ErrCorruptFile", err)
	}
}

func TestExtractGarbagePDFIsCorrupt(t *testing.T) {
	t.Parallel()
	e := NewFileExtractor(nil)

	path := writeTempFile(t, "resume.pdf", []byte("not a pdf at all"))
	_, err := e.Extract(context.Background(), path, constants.FormatPDF)
	if !errors.Is(err, common.ErrCorruptFile) {
		t.Errorf("err = %v, want ErrCorruptFile", err)
	}
}

func TestExtractCancelledContext(t *testing.T) {
	t.Parallel()
	e := NewFileExtractor(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	path := writeTempFile(t, "resume.txt", []byte("John Doe, Engineer"))
	if _, err := e.Extract(ctx, path, constants.FormatText); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestUnescapePDFString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{`plain`, "plain"},
		{`with \(parens\)`, "with (parens)"},
		{`tab\there`, "tab\there"},
		{`octal\040space`, "octal space"},
		{`back\\slash`, `back\slash`},
	}
	for _, tc := range tests {
		if got := unescapePDFString([]byte(tc.in)); got != tc.want {
			t.Errorf("unescapePDFString(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTextFromContentStream(t *testing.T) {
	t.Parallel()
	stream := []byte("BT\n/F1 12 Tf\n(Hello) Tj\n0 -14 Td\n[(World) -120 (Again)] TJ\nET")
	got := textFromContentStream(stream)
	if !strings.Contains(got, "Hello") || !strings.Contains(got, "World") {
		t.Errorf("stream text = %q", got)
	}
}

// Package extract turns uploaded resume files into plain text. PDF handling
// is structure-aware via pdfcpu; plain-text formats pass through with only
// whitespace normalisation.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"unicode"
	"unicode/utf8"

	"resume-insights/constants"
	"resume-insights/internal/common"
)

// TextExtractor produces the raw text for one uploaded file.
type TextExtractor interface {
	// Extract returns the plain text of the file at path. It fails with
	// common.ErrUnsupportedFormat for unknown formats, common.ErrCorruptFile
	// when the file cannot be decoded, and common.ErrFatalData when decoding
	// succeeds but yields no usable text.
	Extract(ctx context.Context, path string, format constants.FileFormat) (string, error)
}

// FileExtractor is the default TextExtractor over the local filesystem.
type FileExtractor struct {
	logger *slog.Logger
}

var _ TextExtractor = (*FileExtractor)(nil)

// NewFileExtractor creates a FileExtractor.
func NewFileExtractor(logger *slog.Logger) *FileExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileExtractor{logger: logger}
}

func (e *FileExtractor) Extract(ctx context.Context, path string, format constants.FileFormat) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var (
		text string
		err  error
	)
	switch format {
	case constants.FormatPDF:
		text, err = extractPDF(path)
	case constants.FormatDocx:
		text, err = extractDocx(path)
	case constants.FormatText, constants.FormatMarkdown:
		text, err = extractPlain(path)
	default:
		return "", fmt.Errorf("%w: %s", common.ErrUnsupportedFormat, format)
	}
	if err != nil {
		return "", err
	}

	if !usableText(text) {
		e.logger.Warn("extraction yielded no usable text", "path", path, "format", format)
		return "", fmt.Errorf("%w: no usable text in %s", common.ErrFatalData, format)
	}

	e.logger.Debug("text extracted", "path", path, "format", format, "chars", len(text))
	return text, nil
}

func extractPlain(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", common.WrapError(err, "read file")
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: not valid utf-8", common.ErrCorruptFile)
	}
	return string(data), nil
}

// usableText rejects output that is empty or mostly non-printable garbage,
// which happens with image-only or badly encoded PDFs.
func usableText(text string) bool {
	printable := 0
	total := 0
	for _, r := range text {
		total++
		if unicode.IsPrint(r) && !unicode.IsSpace(r) {
			printable++
		}
	}
	if total == 0 || printable < 10 {
		return false
	}
	return float64(printable)/float64(total) > 0.5
}

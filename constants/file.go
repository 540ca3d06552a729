package constants

import "strings"

// FileFormat is the canonical format of an uploaded resume file.
type FileFormat string

const (
	FormatPDF      FileFormat = "PDF"
	FormatDocx     FileFormat = "DOCX"
	FormatText     FileFormat = "TXT"
	FormatMarkdown FileFormat = "MD"
)

// AllowedExtensions holds the allowed file extensions for resume uploads.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"docx": {},
	"txt":  {},
	"md":   {},
}

// MaxUploadBytes is the default upload size cap (10 MiB).
const MaxUploadBytes = 10 * 1024 * 1024

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat maps a file extension to its canonical format, or "" when
// the extension is not supported.
func MapExtToFormat(ext string) FileFormat {
	switch NormalizeExt(ext) {
	case "pdf":
		return FormatPDF
	case "docx":
		return FormatDocx
	case "txt":
		return FormatText
	case "md":
		return FormatMarkdown
	default:
		return ""
	}
}

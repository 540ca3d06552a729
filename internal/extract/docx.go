package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"resume-insights/internal/common"
)

// extractDocx pulls the text runs out of a .docx file. The format is a zip
// archive whose word/document.xml holds paragraphs of <w:t> text runs; that
// is all a resume needs, so styling, tables-of-contents and embedded parts
// are ignored.
func extractDocx(path string) (string, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("%w: not a zip archive: %v", common.ErrCorruptFile, err)
	}
	defer archive.Close()

	var doc *zip.File
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("%w: word/document.xml missing", common.ErrCorruptFile)
	}

	rc, err := doc.Open()
	if err != nil {
		return "", common.WrapError(err, "open document.xml")
	}
	defer rc.Close()

	text, err := textFromDocumentXML(rc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrCorruptFile, err)
	}
	return text, nil
}

// textFromDocumentXML walks the WordprocessingML token stream collecting the
// character data of <w:t> runs. Paragraph ends become newlines and explicit
// tabs/breaks become their whitespace equivalent so the reading order
// survives.
func textFromDocumentXML(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

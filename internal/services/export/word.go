package export

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/cirahq/cira/internal/models"
)

// renderWord produces a Word-compatible HTML document. Word opens HTML
// served as application/msword, which keeps the export dependency-free of
// OOXML tooling.
func renderWord(company *models.Company, analysis *models.Analysis) ([]byte, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
	)

	var body bytes.Buffer
	if err := md.Convert([]byte(RenderMarkdown(company, analysis)), &body); err != nil {
		return nil, fmt.Errorf("failed to convert markdown to HTML: %w", err)
	}

	var doc bytes.Buffer
	doc.WriteString(`<html xmlns:o="urn:schemas-microsoft-com:office:office" xmlns:w="urn:schemas-microsoft-com:office:word">` + "\n")
	doc.WriteString("<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&doc, "<title>%s</title>\n", company.Name)
	doc.WriteString(`<style>
body { font-family: Calibri, Arial, sans-serif; font-size: 11pt; }
h1 { font-size: 18pt; }
h2 { font-size: 14pt; border-bottom: 1px solid #ccc; }
table { border-collapse: collapse; }
td, th { border: 1px solid #999; padding: 4px 8px; }
</style>
</head>
<body>
`)
	doc.Write(body.Bytes())
	doc.WriteString("</body>\n</html>\n")
	return doc.Bytes(), nil
}

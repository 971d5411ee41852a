package pdftext

import (
	"bytes"
	"fmt"
	"strings"
)

// buildTestPDF writes a minimal uncompressed PDF with one content stream per page.
// Each page is a heading line in 16pt Helvetica-Bold followed by 11pt body lines.
func buildTestPDF(pages [][]string) []byte {
	type object struct {
		body string
	}
	var objects []object
	add := func(body string) int {
		objects = append(objects, object{body: body})
		return len(objects)
	}

	catalog := add("") // patched below
	pagesObj := add("")
	regular := add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	bold := add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica-Bold /Encoding /WinAnsiEncoding >>")

	kids := make([]string, 0, len(pages))
	for _, lines := range pages {
		var content strings.Builder
		y := 740
		for i, line := range lines {
			font, size := "/F1", 11
			if i == 0 {
				font, size = "/F2", 16
			}
			fmt.Fprintf(&content, "BT %s %d Tf 1 0 0 1 72 %d Tm (%s) Tj ET\n", font, size, y, escapeTestString(line))
			y -= 20
		}
		stream := content.String()
		contents := add(fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", len(stream), stream))
		page := add(fmt.Sprintf(
			"<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R /F2 %d 0 R >> >> /Contents %d 0 R >>",
			pagesObj, regular, bold, contents))
		kids = append(kids, fmt.Sprintf("%d 0 R", page))
	}
	objects[catalog-1].body = fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesObj)
	objects[pagesObj-1].body = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(kids))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj.body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, catalog, xref)
	return buf.Bytes()
}

func escapeTestString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"syllabus-rag/internal/models"
)

// buildPDF writes a minimal single-font PDF with one page per entry of pages.
func buildPDF(pages ...string) []byte {
	var objects []string
	n := len(pages)
	fontObj := 3 + 2*n

	kids := ""
	for i := range pages {
		kids += fmt.Sprintf("%d 0 R ", 3+2*i)
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, n),
	)
	for i, text := range pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 %d 0 R >> >> >>", 4+2*i, fontObj),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}
	objects = append(objects, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractPDFPageOrder(t *testing.T) {
	data := buildPDF("Course CS101 Data Structures", "Grading is 40 percent exams")

	text, err := ExtractText(data, "syllabus.pdf")
	require.NoError(t, err)
	assert.Contains(t, text, "Course CS101 Data Structures")
	assert.Contains(t, text, "Grading is 40 percent exams")
	assert.Less(t, bytes.Index([]byte(text), []byte("CS101")), bytes.Index([]byte(text), []byte("Grading")))
}

func TestExtractSniffsPDFWithoutExtension(t *testing.T) {
	text, err := ExtractText(buildPDF("Office hours Tuesday"), "upload")
	require.NoError(t, err)
	assert.Contains(t, text, "Office hours Tuesday")
}

func TestExtractPDFInvalid(t *testing.T) {
	_, err := ExtractText([]byte("this is not a pdf"), "broken.pdf")
	require.ErrorIs(t, err, models.ErrParse)
}

func TestExtractUnsupportedFormat(t *testing.T) {
	_, err := ExtractText([]byte("x"), "slides.key")
	require.ErrorIs(t, err, models.ErrUnsupportedFormat)
}

func TestExtractPlainText(t *testing.T) {
	text, err := ExtractText([]byte("  Week 1\r\nIntro\x00duction \x01\n"), "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "Week 1\nIntroduction", text)
}

func TestExtractDOCX(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>Unit 1: Sorting</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t xml:space="preserve">Merge sort &amp; </w:t></w:r><w:r><w:t>quicksort</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	rels := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`
	data := buildZip(t, map[string]string{
		"word/document.xml":            doc,
		"word/_rels/document.xml.rels": rels,
	})

	text, err := ExtractText(data, "syllabus.docx")
	require.NoError(t, err)
	assert.Equal(t, "Unit 1: Sorting\nMerge sort & quicksort", text)
}

func TestExtractPPTXSlideOrder(t *testing.T) {
	slide := func(s string) string {
		return `<p:sld xmlns:a="a" xmlns:p="p"><a:t>` + s + `</a:t></p:sld>`
	}
	data := buildZip(t, map[string]string{
		"ppt/slides/slide10.xml": slide("Final exam"),
		"ppt/slides/slide2.xml":  slide("Midterm"),
		"ppt/slides/slide1.xml":  slide("Welcome"),
	})

	text, err := ExtractText(data, "deck.pptx")
	require.NoError(t, err)
	assert.Equal(t, "Welcome\nMidterm\nFinal exam", text)
}

func TestExtractXLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Week"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Topic"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", 1))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "Arrays"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	text, err := ExtractText(buf.Bytes(), "schedule.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "Sheet: Sheet1\nWeek\tTopic\n1\tArrays", text)
}

func TestExtractODS(t *testing.T) {
	content := `<?xml version="1.0" encoding="UTF-8"?>
<office:document-content xmlns:office="o" xmlns:table="t" xmlns:text="x"><office:body><office:spreadsheet>` +
		`<table:table table:name="Schedule &amp; Exams"><table:table-column table:number-columns-repeated="3"/>` +
		`<table:table-row><table:table-cell office:value-type="string"><text:p>Week</text:p></table:table-cell>` +
		`<table:table-cell office:value-type="string"><text:p>Topic</text:p></table:table-cell><table:table-cell table:number-columns-repeated="1021"/></table:table-row>` +
		`<table:table-row><table:table-cell office:value-type="float" office:value="1"><text:p>1</text:p></table:table-cell>` +
		`<table:table-cell office:value-type="string"><text:p>Arrays <text:span>and</text:span> lists</text:p></table:table-cell></table:table-row>` +
		`<table:table-row table:number-rows-repeated="1000"><table:table-cell table:number-columns-repeated="1024"/></table:table-row>` +
		`</table:table></office:spreadsheet></office:body></office:document-content>`
	data := buildZip(t, map[string]string{
		"mimetype":    "application/vnd.oasis.opendocument.spreadsheet",
		"content.xml": content,
	})

	text, err := ExtractText(data, "schedule.ods")
	require.NoError(t, err)
	assert.Equal(t, "Sheet: Schedule & Exams\nWeek\tTopic\n1\tArrays and lists", text)

	_, err = ExtractText([]byte("not a zip"), "schedule.ods")
	require.ErrorIs(t, err, models.ErrParse)
}

func TestHeadingsAndSectionAt(t *testing.T) {
	text := "Course overview text.\nUnit 1: Sorting\nbubble sort\nGrading Policy\nexams 40%\nUnit 2 — Graphs\nBFS"
	headings := Headings(text)
	require.Len(t, headings, 3)
	assert.Equal(t, "Unit 1: Sorting", headings[0].Title)
	assert.Equal(t, "Grading Policy", headings[1].Title)
	assert.Equal(t, "Unit 2 — Graphs", headings[2].Title)

	assert.Equal(t, "", SectionAt(headings, 0))
	assert.Equal(t, "Unit 1: Sorting", SectionAt(headings, headings[0].Offset))
	assert.Equal(t, "Grading Policy", SectionAt(headings, headings[2].Offset-1))
	assert.Equal(t, "Unit 2 — Graphs", SectionAt(headings, len([]rune(text))))

	// offsets are rune offsets even after multi-byte characters
	assert.Equal(t, []rune(text)[headings[2].Offset], 'U')
}

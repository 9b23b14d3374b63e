package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"syllabus-rag/internal/models"
)

var (
	docxRunRe  = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)
	pptxRunRe  = regexp.MustCompile(`<a:t>([^<]*)</a:t>`)
	slideNumRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

	odsTableRe = regexp.MustCompile(`(?s)<table:table\s[^>]*?table:name="([^"]*)"[^>]*>(.*?)</table:table>`)
	odsRowRe   = regexp.MustCompile(`(?s)<table:table-row(?:\s[^>]*)?>(.*?)</table:table-row>`)
	odsCellRe  = regexp.MustCompile(`(?s)<table:table-cell(?:\s[^>]*?)?(?:/>|>(.*?)</table:table-cell>)`)
	odsParaRe  = regexp.MustCompile(`(?s)<text:p(?:\s[^>]*)?>(.*?)</text:p>`)
	xmlTagRe   = regexp.MustCompile(`<[^>]+>`)
)

// ExtractText returns the plain text of a document, choosing the reader by
// file extension. Names without an extension are sniffed for the PDF magic.
func ExtractText(data []byte, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" && bytes.HasPrefix(data, []byte("%PDF-")) {
		ext = ".pdf"
	}

	var (
		text string
		err  error
	)
	switch ext {
	case ".pdf":
		text, err = ExtractPDF(data)
	case ".docx":
		text, err = extractDOCX(data)
	case ".pptx":
		text, err = extractPPTX(data)
	case ".xlsx":
		text, err = extractXLSX(data)
	case ".ods":
		text, err = extractODS(data)
	case ".txt", ".md":
		text = string(data)
	default:
		return "", fmt.Errorf("%w: %q", models.ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return "", err
	}

	text = SanitizeText(text)
	log.Debug().Str("file", filename).Int("chars", len([]rune(text))).Msg("Extracted text")
	return text, nil
}

// ExtractPDF concatenates the plain text of every page in page order.
func ExtractPDF(data []byte) (text string, err error) {
	// the pdf reader panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: pdf: %v", models.ErrParse, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: pdf: %v", models.ErrParse, err)
	}

	var sb strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: pdf page %d: %v", models.ErrParse, i, err)
		}
		sb.WriteString(pageText)
	}
	return sb.String(), nil
}

func extractDOCX(data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: docx: %v", models.ErrParse, err)
	}
	defer r.Close()

	var sb strings.Builder
	for _, paragraph := range strings.Split(r.Editable().GetContent(), "</w:p>") {
		line := xmlRuns(paragraph, docxRunRe, "")
		if strings.TrimSpace(line) == "" {
			continue
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func extractPPTX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: pptx: %v", models.ErrParse, err)
	}

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		m := slideNumRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: n, file: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var sb strings.Builder
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return "", fmt.Errorf("%w: pptx slide %d: %v", models.ErrParse, s.num, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("%w: pptx slide %d: %v", models.ErrParse, s.num, err)
		}
		sb.WriteString(xmlRuns(string(content), pptxRunRe, " "))
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func extractXLSX(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: xlsx: %v", models.ErrParse, err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return "", fmt.Errorf("%w: xlsx sheet %s: %v", models.ErrParse, sheetName, err)
		}
		sb.WriteString(fmt.Sprintf("Sheet: %s\n", sheetName))
		for _, row := range rows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

// extractODS renders each OpenDocument sheet like an XLSX sheet, reading the
// cell paragraphs straight from content.xml.
func extractODS(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: ods: %v", models.ErrParse, err)
	}
	f, err := zr.Open("content.xml")
	if err != nil {
		return "", fmt.Errorf("%w: ods: %v", models.ErrParse, err)
	}
	content, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return "", fmt.Errorf("%w: ods: %v", models.ErrParse, err)
	}

	var sb strings.Builder
	for _, table := range odsTableRe.FindAllStringSubmatch(string(content), -1) {
		sb.WriteString(fmt.Sprintf("Sheet: %s\n", html.UnescapeString(table[1])))
		for _, row := range odsRowRe.FindAllStringSubmatch(table[2], -1) {
			var cells []string
			for _, cell := range odsCellRe.FindAllStringSubmatch(row[1], -1) {
				var paras []string
				for _, p := range odsParaRe.FindAllStringSubmatch(cell[1], -1) {
					paras = append(paras, html.UnescapeString(xmlTagRe.ReplaceAllString(p[1], "")))
				}
				cells = append(cells, strings.Join(paras, " "))
			}
			// repeated empty cells pad rows out to the sheet width
			for len(cells) > 0 && cells[len(cells)-1] == "" {
				cells = cells[:len(cells)-1]
			}
			if len(cells) == 0 {
				continue
			}
			sb.WriteString(strings.Join(cells, "\t"))
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func xmlRuns(content string, re *regexp.Regexp, sep string) string {
	var parts []string
	for _, m := range re.FindAllStringSubmatch(content, -1) {
		parts = append(parts, html.UnescapeString(m[1]))
	}
	return strings.Join(parts, sep)
}

// SanitizeText removes NUL bytes and non-printing control characters that
// some PDF extractors emit, keeping newlines and tabs.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	r := make([]rune, 0, len(s))
	for _, ch := range s {
		if ch == '\n' || ch == '\t' {
			r = append(r, ch)
			continue
		}
		if ch < 0x20 || ch == 0x7f {
			continue
		}
		r = append(r, ch)
	}
	return strings.TrimSpace(string(r))
}

package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"syllabus-rag/internal/models"
)

const maxSectionTitle = 80

var sectionRe = regexp.MustCompile(models.SectionRegex)

// Heading is a syllabus heading line ("Unit 3: Graphs", "Grading Policy")
// and the rune offset where it starts in the normalized text.
type Heading struct {
	Title  string
	Offset int
}

// Headings finds the heading lines of normalized text in document order.
func Headings(text string) []Heading {
	var headings []Heading
	byteOff, runeOff := 0, 0
	for _, m := range sectionRe.FindAllStringSubmatchIndex(text, -1) {
		runeOff += utf8.RuneCountInString(text[byteOff:m[2]])
		byteOff = m[2]

		title := strings.TrimSpace(text[m[2]:m[3]])
		if utf8.RuneCountInString(title) > maxSectionTitle {
			title = string([]rune(title)[:maxSectionTitle])
		}
		headings = append(headings, Heading{Title: title, Offset: runeOff})
	}
	return headings
}

// SectionAt returns the title of the last heading starting at or before
// offset, or "" when the offset precedes every heading.
func SectionAt(headings []Heading, offset int) string {
	section := ""
	for _, h := range headings {
		if h.Offset > offset {
			break
		}
		section = h.Title
	}
	return section
}

package image

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"menugen/internal/domain"
)

var titleCaser = cases.Title(language.English)

// BuildDishPrompt translates a line item into an image-generation prompt.
func BuildDishPrompt(item domain.LineItem) string {
	var b strings.Builder
	name := strings.TrimSpace(item.Name)
	if name == "" {
		name = "a restaurant dish"
	}
	b.WriteString("Professional food photography of ")
	b.WriteString(titleCaser.String(name))
	if desc := strings.TrimSpace(item.Description); desc != "" {
		b.WriteString(". ")
		b.WriteString(desc)
	}
	if category := strings.TrimSpace(item.Category); category != "" {
		b.WriteString("\nCategory: ")
		b.WriteString(strings.ToLower(category))
	}
	b.WriteString("\nPlated on a clean background, natural lighting, shallow depth of field, no text or watermarks.")
	return b.String()
}

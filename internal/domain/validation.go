package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// NormalizeNoteInput trims surrounding whitespace from both fields.
func NormalizeNoteInput(title, content string) (string, string) {
	return strings.TrimSpace(title), strings.TrimSpace(content)
}

// ValidateNoteInput checks already normalized input and reports every
// failing field at once.
func ValidateNoteInput(title, content string) error {
	var fields []FieldError
	switch {
	case title == "":
		fields = append(fields, FieldError{Field: "title", Message: "The title field is required."})
	case utf8.RuneCountInString(title) > MaxTitleLength:
		fields = append(fields, FieldError{
			Field:   "title",
			Message: fmt.Sprintf("The title field must not be greater than %d characters.", MaxTitleLength),
		})
	}
	if content == "" {
		fields = append(fields, FieldError{Field: "content", Message: "The content field is required."})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

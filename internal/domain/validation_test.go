package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateNoteInput(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		title   string
		content string
		fields  []string
	}{
		{name: "valid", title: "A", content: "B"},
		{name: "title at bound", title: strings.Repeat("é", MaxTitleLength), content: "B"},
		{name: "empty title", title: "", content: "B", fields: []string{"title"}},
		{name: "title over bound", title: strings.Repeat("x", MaxTitleLength+1), content: "B", fields: []string{"title"}},
		{name: "empty content", title: "A", content: "", fields: []string{"content"}},
		{name: "both empty", title: "", content: "", fields: []string{"title", "content"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateNoteInput(tc.title, tc.content)
			if len(tc.fields) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			got := make([]string, 0, len(verr.Fields))
			for _, f := range verr.Fields {
				got = append(got, f.Field)
			}
			assert.Equal(t, tc.fields, got)
		})
	}
}

func TestNormalizeNoteInputTrims(t *testing.T) {
	t.Parallel()

	title, content := NormalizeNoteInput("  A \n", "\tB ")
	assert.Equal(t, "A", title)
	assert.Equal(t, "B", content)

	title, _ = NormalizeNoteInput("   ", "x")
	assert.Error(t, ValidateNoteInput(title, "x"))
}

func TestValidationErrorByField(t *testing.T) {
	t.Parallel()

	err := &ValidationError{Fields: []FieldError{
		{Field: "title", Message: "one"},
		{Field: "title", Message: "two"},
		{Field: "content", Message: "three"},
	}}
	assert.Equal(t, map[string][]string{
		"title":   {"one", "two"},
		"content": {"three"},
	}, err.ByField())
	assert.Contains(t, err.Error(), "title: one")
}

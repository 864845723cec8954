package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrimText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "drops trailing line without a period",
			input:    "First line.\nand then it trails",
			expected: "First line.",
		},
		{
			name:     "cuts partial sentence after last period",
			input:    "One. Two. Three and a half",
			expected: "One. Two.",
		},
		{
			name:     "complete last sentence drops back one sentence",
			input:    "One. Two. Three.",
			expected: "One. Two.",
		},
		{
			name:     "single complete sentence is kept",
			input:    "Only one.",
			expected: "Only one.",
		},
		{
			name:     "single line without period empties",
			input:    "no punctuation here",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TrimText(tt.input))
		})
	}
}

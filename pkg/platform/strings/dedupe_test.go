package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "trims and drops empties",
			input: []string{"  kafka-1:9092 ", "", "   "},
			want:  []string{"kafka-1:9092"},
		},
		{
			name:  "removes duplicates preserving order",
			input: []string{"a:9092", "b:9092", " a:9092", "c:9092"},
			want:  []string{"a:9092", "b:9092", "c:9092"},
		},
		{
			name:  "nil stays nil",
			input: nil,
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupeAndTrim(tt.input))
		})
	}
}

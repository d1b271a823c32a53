package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{"english", "The weather is lovely today and we are going for a long walk in the park", "en"},
		{"french", "Il fait très beau aujourd'hui et nous allons faire une longue promenade dans le parc", "fr"},
		{"blank", "   ", UnknownLanguage},
		{"empty", "", UnknownLanguage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, DetectLanguage(tt.text))
		})
	}
}

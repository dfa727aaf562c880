package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSingleQA(t *testing.T) {
	qa := SingleQA("Offres", "quel est le prix ?")
	assert.Equal(t, QAMap{"Offres": {"1": "quel est le prix ?"}}, qa)

	qa = SingleQA("", "question sans catégorie")
	assert.Equal(t, QAMap{"general": {"1": "question sans catégorie"}}, qa)
}

func TestHasQuestionText(t *testing.T) {
	tests := []struct {
		name     string
		question QAMap
		want     bool
	}{
		{"nil map", nil, false},
		{"empty map", QAMap{}, false},
		{"empty inner map", QAMap{"Offres": {}}, false},
		{"blank text only", QAMap{"Offres": {"1": "   "}}, false},
		{"one real question", QAMap{"Offres": {"1": "", "2": "quel est le prix ?"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasQuestionText(tt.question))
		})
	}
}

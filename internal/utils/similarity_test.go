package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  Cardiologie  ", "cardiologie"},
		{"Gastro-Entérologie", "gastroenterologie"},
		{"Àâäã Èêë Ìîï Òôõö Ùûü Ç", "aaaa eee iii oooo uuu c"},
		{"Pharmaco   (clinique)!", "pharmaco clinique"},
		{"", ""},
		{"Système\tNerveux\nCentral", "systeme nerveux central"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.input))
		})
	}
}

func TestNormalizeName_Idempotent(t *testing.T) {
	inputs := []string{"Gastro-Entérologie", "  ANATOMIE   générale ", "Immuno/Hémato", "çà et là"}
	for _, in := range inputs {
		once := NormalizeName(in)
		assert.Equal(t, once, NormalizeName(once), in)
	}
}

func TestLevenshteinSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, LevenshteinSimilarity("", ""))
	assert.Equal(t, 1.0, LevenshteinSimilarity("cardiologie", "cardiologie"))
	assert.InDelta(t, 6.0/11.0, LevenshteinSimilarity("cardio", "cardiologie"), 1e-9)
	assert.Greater(t, LevenshteinSimilarity("cardiologie", "cardiologies"), 0.7)
	assert.Equal(t, 0.0, LevenshteinSimilarity("abc", ""))
}

func TestLevenshteinSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"cardio", "cardiologie"},
		{"neurologie", "neuro"},
		{"pneumologie", "pathologie"},
		{"", "anatomie"},
	}
	for _, p := range pairs {
		assert.Equal(t, LevenshteinSimilarity(p[0], p[1]), LevenshteinSimilarity(p[1], p[0]))
	}
}

func TestJaccardSimilarity(t *testing.T) {
	assert.Equal(t, 0.0, JaccardSimilarity("", ""))
	assert.InDelta(t, 1.0/3.0, JaccardSimilarity("anatomie du coeur", "anatomie du rein"), 1e-9)
	assert.Equal(t, 1.0, JaccardSimilarity("physiologie renale", "renale physiologie"))
}

func TestTextSimilarityKeepsMax(t *testing.T) {
	a, b := "physiologie renale", "renale physiologie"
	assert.Equal(t, 1.0, TextSimilarity(a, b))
	assert.Greater(t, TextSimilarity(a, b), LevenshteinSimilarity(a, b))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "gastro-enterologie", Slugify("Gastro Entérologie"))
}

package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"domestic eight prefix", "89161234567", "+7 (916) 123-45-67"},
		{"international", "+79161234567", "+7 (916) 123-45-67"},
		{"bare seven prefix", "79161234567", "+7 (916) 123-45-67"},
		{"punctuated", "8 (916) 123-45-67", "+7 (916) 123-45-67"},
		{"already normalized", "+7 (916) 123-45-67", "+7 (916) 123-45-67"},
		{"plus eight", "+8 916 123 45 67", "+7 (916) 123-45-67"},
		{"ten digits", "9161234567", "+9161234567"},
		{"foreign", "+44 20 7946 0958", "+442079460958"},
		{"short", "12345", "+12345"},
		{"no digits", "не указан", "не указан"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"89161234567", "+79161234567", "8 (916) 123-45-67", "9161234567",
		"+44 20 7946 0958", "12345", "abc", "", "+", "tel:+7-916-123-45-67",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalize_EightEqualsSeven(t *testing.T) {
	for _, rest := range []string{"9161234567", "3452000000", "0000000000", "9999999999"} {
		assert.Equal(t, Normalize("7"+rest), Normalize("8"+rest))
	}
}

func TestDigitsAndClean(t *testing.T) {
	assert.Equal(t, "79161234567", Digits("+7 (916) 123-45-67"))
	assert.Equal(t, "+79161234567", Clean("+7 (916) 123-45-67"))
	assert.True(t, Plausible("916 123 45 67"))
	assert.False(t, Plausible("123-45-67"))
}

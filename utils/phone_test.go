package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanPhone(t *testing.T) {
	assert.Equal(t, "5511987654321", CleanPhone("+55 (11) 98765-4321"))
	assert.Equal(t, "", CleanPhone("abc"))
	assert.Equal(t, "123", CleanPhone("1-2-3"))
}

func TestPhoneVariations(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "13-digit mobile with marker",
			input: "5511987654321",
			want:  []string{"5511987654321", "551187654321"},
		},
		{
			name:  "12-digit without marker",
			input: "551187654321",
			want:  []string{"551187654321", "5511987654321"},
		},
		{
			name:  "11-digit local mobile",
			input: "11987654321",
			want:  []string{"11987654321", "5511987654321", "551187654321"},
		},
		{
			name:  "10-digit local landline",
			input: "1187654321",
			want:  []string{"1187654321", "551187654321", "5511987654321"},
		},
		{
			name:  "11-digit without ninth-digit marker",
			input: "14155552671",
			want:  []string{"14155552671", "5514155552671"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PhoneVariations(tt.input)
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestPhoneVariationsFormattedInput(t *testing.T) {
	got := PhoneVariations("+55 (11) 98765-4321")
	assert.Contains(t, got, "5511987654321")
	assert.Contains(t, got, "551187654321")
}

func TestNormalizePhone(t *testing.T) {
	// All shapes of the same number normalize to the 13-digit prefixed form.
	assert.Equal(t, "5511987654321", NormalizePhone("5511987654321"))
	assert.Equal(t, "5511987654321", NormalizePhone("551187654321"))
	assert.Equal(t, "5511987654321", NormalizePhone("11987654321"))
	assert.Equal(t, "5511987654321", NormalizePhone("1187654321"))
}

func TestSamePhone(t *testing.T) {
	assert.True(t, SamePhone("5511987654321", "551187654321"))
	assert.True(t, SamePhone("11987654321", "5511987654321"))
	assert.False(t, SamePhone("5511987654321", "5511987654322"))
}

func TestChatIDToPhone(t *testing.T) {
	require.Equal(t, "5511987654321", ChatIDToPhone("5511987654321@c.us"))
	assert.Equal(t, "", ChatIDToPhone("123456789-987@g.us"))
	assert.Equal(t, "", ChatIDToPhone("status@broadcast"))
	assert.Equal(t, "5511987654321", ChatIDToPhone("5511987654321"))
}

package refnum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTempRef(t *testing.T) {
	ref := TempRef("3f2a9c1e")
	assert.Equal(t, "TempRef:3f2a9c1e", ref)
}

func TestAmendmentSuffix(t *testing.T) {
	tests := []struct {
		name        string
		base        string
		mergedCount int
		expected    string
	}{
		{
			name:        "first merge",
			base:        "XX/PCA202401/PD202401",
			mergedCount: 1,
			expected:    "XX/PCA202401/PD202401-01",
		},
		{
			name:        "tenth merge pads to two digits",
			base:        "XX/PCA202401/PD202401",
			mergedCount: 10,
			expected:    "XX/PCA202401/PD202401-10",
		},
		{
			name:        "ssfa base",
			base:        "XX/SSFA202402",
			mergedCount: 3,
			expected:    "XX/SSFA202402-03",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AmendmentSuffix(tt.base, tt.mergedCount))
		})
	}
}

package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate_IgnoresKeyOrderAndBlanks(t *testing.T) {
	a := Generate(map[string]string{"a": "1", "b": "2"})
	b := Generate(map[string]string{"b": "2", "a": "1", "c": ""})

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestGenerate_DifferentValues(t *testing.T) {
	assert.NotEqual(t,
		Generate(map[string]string{"a": "1"}),
		Generate(map[string]string{"a": "2"}),
	)
}

func TestNaturalKey(t *testing.T) {
	tests := []struct {
		name        string
		identityKey string
		phone       string
		empty       bool
	}{
		{"nothing to identify", "", "", true},
		{"identity key only", "acme plumbing|tampa", "", false},
		{"phone only", "", "5551111", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := NaturalKey(tt.identityKey, tt.phone)
			if tt.empty {
				assert.Empty(t, key)
				return
			}
			assert.Regexp(t, `^fp:[0-9a-f]{32}$`, key)
			assert.Equal(t, key, NaturalKey(tt.identityKey, tt.phone))
		})
	}
}

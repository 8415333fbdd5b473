package random_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruther77/MassaCorp-sub001/internal/utils/random"
)

func TestGenerateRecoveryCode(t *testing.T) {
	format := regexp.MustCompile(`^[A-HJ-NP-Z2-9]{5}-[A-HJ-NP-Z2-9]{5}$`)
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		code, err := random.GenerateRecoveryCode()
		require.NoError(t, err)
		assert.Regexp(t, format, code)
		seen[code] = struct{}{}
	}
	assert.Len(t, seen, 50)
}

func TestNormalizeRecoveryCode(t *testing.T) {
	assert.Equal(t, "ABCDE23456", random.NormalizeRecoveryCode(" abcde-23456 "))
	assert.Equal(t, "ABCDE23456", random.NormalizeRecoveryCode("ABCDE 23456"))
}

func TestGenerateURLSafeToken(t *testing.T) {
	tok, err := random.GenerateURLSafeToken(32)
	require.NoError(t, err)
	assert.Len(t, tok, 43)
	assert.NotContains(t, tok, "=")

	_, err = random.GenerateFromAlphabet("", 4)
	assert.Error(t, err)
}

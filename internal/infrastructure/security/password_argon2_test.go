// File: internal/infrastructure/security/password_argon2_test.go
package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ruther77/MassaCorp-sub001/internal/config"
)

// cheap parameters so the suite stays fast
var defaultTestParams = config.PasswordHashConfig{
	Memory:      8 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

func TestNewArgon2idPasswordService_RequiresParams(t *testing.T) {
	_, err := NewArgon2idPasswordService(config.PasswordHashConfig{Memory: 1})
	assert.Error(t, err)
}

func TestArgon2id_HashAndCheck(t *testing.T) {
	svc, err := NewArgon2idPasswordService(defaultTestParams)
	require.NoError(t, err)

	hash, err := svc.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$"))

	ok, err := svc.CheckPasswordHash("correct horse battery staple", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.CheckPasswordHash("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := svc.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salt must differ")
}

func TestArgon2id_VerifiesWithStoredParams(t *testing.T) {
	old, err := NewArgon2idPasswordService(defaultTestParams)
	require.NoError(t, err)
	hash, err := old.HashPassword("pw")
	require.NoError(t, err)

	stronger := defaultTestParams
	stronger.Iterations = 2
	current, err := NewArgon2idPasswordService(stronger)
	require.NoError(t, err)

	ok, err := current.CheckPasswordHash("pw", hash)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, current.NeedsRehash(hash))
	assert.False(t, old.NeedsRehash(hash))
}

func TestArgon2id_LegacyBcrypt(t *testing.T) {
	svc, err := NewArgon2idPasswordService(defaultTestParams)
	require.NoError(t, err)

	legacy, err := bcrypt.GenerateFromPassword([]byte("imported"), bcrypt.MinCost)
	require.NoError(t, err)

	ok, err := svc.CheckPasswordHash("imported", string(legacy))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.CheckPasswordHash("nope", string(legacy))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, svc.NeedsRehash(string(legacy)))
}

func TestArgon2id_MalformedHash(t *testing.T) {
	svc, err := NewArgon2idPasswordService(defaultTestParams)
	require.NoError(t, err)

	for _, h := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$aGFzaA",
	} {
		_, err := svc.CheckPasswordHash("pw", h)
		assert.ErrorIs(t, err, ErrMalformedHash, h)
	}
}

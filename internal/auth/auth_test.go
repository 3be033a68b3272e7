package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/upswatch/internal/infrastructure/config"
)

const testSecret = "test-secret-that-is-long-enough-000"

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("correct-horse-battery-staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=1$"))

	ok, err := VerifyPassword("correct-horse-battery-staple", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := HashPassword("correct-horse-battery-staple")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salted")
}

func TestVerifyPassword_InvalidHash(t *testing.T) {
	for _, bad := range []string{
		"",
		"plaintext",
		"$bcrypt$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=65536,t=3,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$garbage$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=1$!!!$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=1$c2FsdA$",
	} {
		_, err := VerifyPassword("x", bad)
		assert.ErrorIs(t, err, ErrInvalidHash, bad)
	}
}

func testUsers(t *testing.T) *Users {
	t.Helper()
	hash, err := HashPassword("pw")
	require.NoError(t, err)
	return NewUsers([]config.UserConfig{
		{Name: "admin", Password: hash, Actions: []string{"set", "FSD"}, InstCmds: []string{"ALL"}},
		{Name: "monitor", Password: hash, InstCmds: []string{"Beeper.Off"}},
	})
}

func TestUsers(t *testing.T) {
	users := testUsers(t)
	assert.Equal(t, 2, users.Len())

	admin, err := users.Authenticate("admin", "pw")
	require.NoError(t, err)
	assert.True(t, admin.Can(ActionSet))
	assert.True(t, admin.Can(ActionFSD))
	assert.True(t, admin.CanInstCmd("shutdown.return"))

	monitor, err := users.Authenticate("monitor", "pw")
	require.NoError(t, err)
	assert.False(t, monitor.Can(ActionSet))
	assert.True(t, monitor.CanInstCmd("beeper.off"))
	assert.False(t, monitor.CanInstCmd("shutdown.return"))

	_, err = users.Authenticate("admin", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = users.Authenticate("nobody", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	users.Replace(nil)
	_, ok := users.Lookup("admin")
	assert.False(t, ok)
}

func TestToken_RoundTrip(t *testing.T) {
	user := &User{Name: "admin"}

	token, expires, err := GenerateToken(user, testSecret, 5*time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expires, time.Second)

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
	assert.NotEmpty(t, claims.ID)
}

func TestParseToken_Rejects(t *testing.T) {
	user := &User{Name: "admin"}
	good, _, err := GenerateToken(user, testSecret, time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(good, "another-secret-that-is-long-enough")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = ParseToken("not.a.token", testSecret)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	signed, err := expired.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = ParseToken(signed, testSecret)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	noSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}})
	signed, err = noSubject.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = ParseToken(signed, testSecret)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

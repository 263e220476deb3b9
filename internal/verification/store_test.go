package verification

import (
	"testing"

	"github.com/stretchr/testify/require"

	"golang.org/x/crypto/bcrypt"
)

func TestDigestPersonalNumber(t *testing.T) {
	digest, err := digestPersonalNumber("198001011234")
	require.NoError(t, err)
	require.NotEqual(t, "198001011234", digest, "personal number must never be stored raw")

	require.NoError(t, bcrypt.CompareHashAndPassword(
		[]byte(digest),
		[]byte("198001011234"),
	))
	require.Error(t, bcrypt.CompareHashAndPassword(
		[]byte(digest),
		[]byte("198001019999"),
	))
}

package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plain := []byte(`{"pdfFilename":"script.pdf","sheet":[]}`)

	sealed, err := encryptGCM(plain, "correct horse")
	require.NoError(t, err)
	require.NotEqual(t, plain, sealed)
	require.Equal(t, gcmMagic, string(sealed[:len(gcmMagic)]))

	back, err := DecryptGCM(sealed, "correct horse")
	require.NoError(t, err)
	require.Equal(t, plain, back)
}

func TestDecryptWrongPasswordFails(t *testing.T) {
	sealed, err := encryptGCM([]byte("secret"), "right")
	require.NoError(t, err)

	_, err = DecryptGCM(sealed, "wrong")
	require.Error(t, err)
}

func TestDecryptRejectsForeignData(t *testing.T) {
	_, err := DecryptGCM([]byte("not an archive object at all"), "pw")
	require.Error(t, err)

	_, err = DecryptGCM([]byte("short"), "pw")
	require.Error(t, err)
}

func TestEncryptionIsSalted(t *testing.T) {
	a, err := encryptGCM([]byte("same input"), "pw")
	require.NoError(t, err)
	b, err := encryptGCM([]byte("same input"), "pw")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

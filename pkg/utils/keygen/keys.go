package keygen

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// GenerateSessionID returns a fresh PPT session identifier.
func GenerateSessionID() string {
	return "sess-" + uuid.New().String()
}

// GenerateProjectID returns a fresh PPT project identifier.
func GenerateProjectID() string {
	return "ppt-" + uuid.New().String()
}

// GenerateSecret returns n random bytes, standard base64 encoded. Suitable
// for ppt.secret_key.
func GenerateSecret(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("keygen: invalid secret length %d", n)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

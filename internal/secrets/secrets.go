// Package secrets resolves opaque encrypted configuration values through an
// external secret store. Ciphertext lives in the configuration; plaintext
// exists only at run time, scoped to the step environments that need it.
package secrets

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"os"
	"sync"

	"filippo.io/age"

	"git.home.luguber.info/inful/matrixci/internal/errors"
)

// Store resolves one named secret from its ciphertext.
type Store interface {
	Resolve(ctx context.Context, name, ciphertext string) (string, error)
}

// ErrNoStore is returned when a secure value is configured but no secret
// store is available to resolve it.
var ErrNoStore = errors.New(errors.CategorySecret, errors.SeverityError, "no secret store configured")

// AgeStore decrypts base64-encoded age ciphertext with identities read from
// an identity file. The identity file is the capability: whoever holds it can
// resolve the configuration's secure values.
type AgeStore struct {
	identityPath string

	once       sync.Once
	identities []age.Identity
	loadErr    error
}

// NewAgeStore creates a store backed by the given age identity file. The file
// is read lazily on first resolution.
func NewAgeStore(identityPath string) *AgeStore {
	return &AgeStore{identityPath: identityPath}
}

func (s *AgeStore) load() {
	f, err := os.Open(s.identityPath)
	if err != nil {
		s.loadErr = errors.Wrap(err, errors.CategorySecret, errors.SeverityError, "failed to open identity file").
			WithContext("path", s.identityPath)
		return
	}
	defer func() {
		_ = f.Close()
	}()

	ids, err := age.ParseIdentities(f)
	if err != nil {
		s.loadErr = errors.Wrap(err, errors.CategorySecret, errors.SeverityError, "failed to parse identity file").
			WithContext("path", s.identityPath)
		return
	}
	s.identities = ids
}

// Resolve decrypts the named secret. The error is a secret resolution error;
// callers decide whether the entry depends on the secret or can proceed
// without it.
func (s *AgeStore) Resolve(_ context.Context, name, ciphertext string) (string, error) {
	s.once.Do(s.load)
	if s.loadErr != nil {
		return "", s.loadErr
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.Wrap(err, errors.CategorySecret, errors.SeverityError, "secret is not valid base64").
			WithContext("secret", name)
	}

	r, err := age.Decrypt(bytes.NewReader(raw), s.identities...)
	if err != nil {
		return "", errors.Wrap(err, errors.CategorySecret, errors.SeverityError, "failed to decrypt secret").
			WithContext("secret", name)
	}

	plaintext, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Wrap(err, errors.CategorySecret, errors.SeverityError, "failed to read decrypted secret").
			WithContext("secret", name)
	}

	return string(plaintext), nil
}

// Encrypt encrypts a plaintext value to the given age recipient public keys
// and returns base64 ciphertext suitable for a secure config entry. Used by
// the CLI's encrypt helper, never by the pipeline itself.
func Encrypt(plaintext string, recipientKeys []string) (string, error) {
	if len(recipientKeys) == 0 {
		return "", errors.New(errors.CategorySecret, errors.SeverityError, "at least one recipient is required")
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		r, err := age.ParseX25519Recipient(key)
		if err != nil {
			return "", errors.Wrap(err, errors.CategorySecret, errors.SeverityError, "invalid recipient key")
		}
		recipients = append(recipients, r)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipients...)
	if err != nil {
		return "", errors.Wrap(err, errors.CategorySecret, errors.SeverityError, "failed to create encryptor")
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", errors.Wrap(err, errors.CategorySecret, errors.SeverityError, "failed to write plaintext")
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrap(err, errors.CategorySecret, errors.SeverityError, "failed to finalize encryption")
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

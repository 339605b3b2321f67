package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/mattpollicove/p1person/core"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyIterations = 100000
	keyLength     = 32
	saltLength    = 16
)

// encodedKeyLength is the size of a urlsafe-base64 32-byte key; the salt is
// appended raw after it in the key file.
const encodedKeyLength = 44

// KeyFile derives and persists the AES key that protects stored
// credentials. The key is seeded from the local user and hostname when the
// file is first created; afterwards the stored bytes are opaque and a key
// regenerated elsewhere cannot decrypt previously sealed secrets.
type KeyFile struct {
	path string

	// Identity overrides user+hostname resolution, for tests.
	Identity func() (string, error)
}

type KeyFileOption func(*KeyFile)

func WithIdentity(fn func() (string, error)) KeyFileOption {
	return func(k *KeyFile) {
		if fn != nil {
			k.Identity = fn
		}
	}
}

func NewKeyFile(path string, opts ...KeyFileOption) (*KeyFile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("security: key file path is required")
	}
	kf := &KeyFile{path: path, Identity: localIdentity}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(kf)
	}
	return kf, nil
}

func localIdentity() (string, error) {
	current, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("security: resolve current user: %w", err)
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("security: resolve hostname: %w", err)
	}
	return current.Username + hostname, nil
}

// LoadOrCreate returns the machine-bound key, generating and persisting it
// on first use. An existing file is read back verbatim; whether its key
// still decrypts the stored credentials surfaces at the secret layer, where
// the caller can recover interactively.
func (k *KeyFile) LoadOrCreate() ([]byte, error) {
	data, err := os.ReadFile(k.path)
	if err == nil {
		return k.decode(data)
	}
	if !os.IsNotExist(err) {
		return nil, core.WrapError(err, goerrors.CategoryInternal, "security: read key file")
	}
	return k.create()
}

func (k *KeyFile) decode(data []byte) ([]byte, error) {
	if len(data) != encodedKeyLength+saltLength {
		return nil, core.NewError("security: key file is malformed", goerrors.CategoryInternal).
			WithTextCode(core.TextCodeDecryptFailed)
	}
	stored, err := base64.URLEncoding.DecodeString(string(data[:encodedKeyLength]))
	if err != nil {
		return nil, core.WrapError(err, goerrors.CategoryInternal, "security: decode stored key").
			WithTextCode(core.TextCodeDecryptFailed)
	}
	return stored, nil
}

func (k *KeyFile) create() ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, core.WrapError(err, goerrors.CategoryInternal, "security: salt generation failed").
			WithTextCode(core.TextCodeEncryptFailed)
	}
	key, err := k.derive(salt)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(k.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, core.WrapError(err, goerrors.CategoryInternal, "security: create key directory").
				WithTextCode(core.TextCodeEncryptFailed)
		}
	}
	payload := append([]byte(base64.URLEncoding.EncodeToString(key)), salt...)
	if err := os.WriteFile(k.path, payload, 0o600); err != nil {
		return nil, core.WrapError(err, goerrors.CategoryInternal, "security: write key file").
			WithTextCode(core.TextCodeEncryptFailed)
	}
	return key, nil
}

func (k *KeyFile) derive(salt []byte) ([]byte, error) {
	identity, err := k.Identity()
	if err != nil {
		return nil, core.WrapError(err, goerrors.CategoryInternal, "security: resolve key identity").
			WithTextCode(core.TextCodeEncryptFailed)
	}
	return pbkdf2.Key([]byte(identity), salt, keyIterations, keyLength, sha256.New), nil
}

// Path returns the key file location.
func (k *KeyFile) Path() string {
	return k.path
}

package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/mattpollicove/p1person/core"
)

const envelopePrefix = "p1person.secret.v1:"

type Option func(*AESSecretProvider)

// AESSecretProvider seals credential secrets with AES-256-GCM under the
// machine-bound key. Encrypted values carry a versioned JSON envelope so the
// format can evolve without breaking stored credentials.
type AESSecretProvider struct {
	key     []byte
	keyID   string
	version int
}

type envelope struct {
	KeyID      string `json:"kid"`
	Version    int    `json:"ver"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

func WithKeyID(id string) Option {
	return func(provider *AESSecretProvider) {
		trimmed := strings.TrimSpace(id)
		if trimmed != "" {
			provider.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(provider *AESSecretProvider) {
		if version > 0 {
			provider.version = version
		}
	}
}

func NewAESSecretProvider(keyMaterial []byte, opts ...Option) (*AESSecretProvider, error) {
	if len(keyMaterial) == 0 {
		return nil, core.NewError("security: key material is required", goerrors.CategoryInternal)
	}
	provider := &AESSecretProvider{
		key:     normalizeKey(keyMaterial),
		keyID:   "machine-key",
		version: 1,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(provider)
	}
	return provider, nil
}

func (p *AESSecretProvider) Encrypt(plaintext string) (string, error) {
	if p == nil {
		return "", encryptError(nil, "security: secret provider is nil")
	}
	if plaintext == "" {
		return "", encryptError(nil, "security: plaintext is required")
	}
	gcm, err := p.gcm()
	if err != nil {
		return "", encryptError(err, "security: create cipher")
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", encryptError(err, "security: nonce generation failed")
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	data, err := json.Marshal(envelope{
		KeyID:      p.keyID,
		Version:    p.version,
		Algorithm:  "aes-256-gcm",
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	})
	if err != nil {
		return "", encryptError(err, "security: encode envelope")
	}
	return envelopePrefix + string(data), nil
}

func (p *AESSecretProvider) Decrypt(ciphertext string) (string, error) {
	if p == nil {
		return "", decryptError(nil, "security: secret provider is nil")
	}
	if ciphertext == "" {
		return "", decryptError(nil, "security: ciphertext is required")
	}

	payload := strings.TrimPrefix(ciphertext, envelopePrefix)

	var parsed envelope
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return "", decryptError(err, "security: decode envelope")
	}
	if parsed.KeyID != "" && parsed.KeyID != p.keyID {
		return "", decryptError(nil, "security: key id mismatch")
	}
	if parsed.Version > 0 && parsed.Version != p.version {
		return "", decryptError(nil, "security: key version mismatch")
	}

	nonce, err := base64.StdEncoding.DecodeString(parsed.Nonce)
	if err != nil {
		return "", decryptError(err, "security: decode nonce")
	}
	sealed, err := base64.StdEncoding.DecodeString(parsed.Ciphertext)
	if err != nil {
		return "", decryptError(err, "security: decode ciphertext payload")
	}

	gcm, err := p.gcm()
	if err != nil {
		return "", decryptError(err, "security: create cipher")
	}
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", decryptError(err, "security: decrypt payload")
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether the value carries this provider's envelope.
func (p *AESSecretProvider) IsEncrypted(value string) bool {
	return strings.HasPrefix(value, envelopePrefix)
}

func (p *AESSecretProvider) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(p.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (p *AESSecretProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.keyID
}

func (p *AESSecretProvider) Version() int {
	if p == nil {
		return 0
	}
	return p.version
}

func encryptError(err error, message string) error {
	if err == nil {
		return core.NewError(message, goerrors.CategoryInternal).
			WithTextCode(core.TextCodeEncryptFailed)
	}
	return core.WrapError(err, goerrors.CategoryInternal, message).
		WithTextCode(core.TextCodeEncryptFailed)
}

func decryptError(err error, message string) error {
	if err == nil {
		return core.NewError(message, goerrors.CategoryInternal).
			WithTextCode(core.TextCodeDecryptFailed)
	}
	return core.WrapError(err, goerrors.CategoryInternal, message).
		WithTextCode(core.TextCodeDecryptFailed)
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	key := make([]byte, len(sum))
	copy(key, sum[:])
	return key
}

var _ core.SecretProvider = (*AESSecretProvider)(nil)

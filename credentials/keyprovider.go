package credentials

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/argon2"
)

// keySize is the AES-256 key length in bytes.
const keySize = 32

const (
	// EncryptionKeyEnv holds a hex-encoded 32-byte key.
	EncryptionKeyEnv = "VEXA_ENCRYPTION_KEY"
	// PassphraseEnv holds a passphrase the key is derived from.
	PassphraseEnv = "VEXA_PASSPHRASE"

	saltFile = "credentials.salt"
	saltSize = 16
)

// Keyring coordinates for the stored key.
const (
	DefaultKeyringService = "vexa-cli"
	DefaultKeyringAccount = "credentials-key"
)

// ErrKeyringUnavailable indicates the system keyring cannot be used.
var ErrKeyringUnavailable = errors.New("system keyring unavailable")

// KeyProvider supplies the key protecting the credentials file.
type KeyProvider interface {
	// GetKey returns the keySize-byte key, creating one if the backend can.
	GetKey() ([]byte, error)
	// ResetKey replaces the key. Data sealed with the old key is lost.
	ResetKey() ([]byte, error)
	// Description names the backend for `vexa auth status`.
	Description() string
}

// decodeHexKey parses a stored or configured key and checks its length.
func decodeHexKey(source, value string) ([]byte, error) {
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid key in %s: %w", source, err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("key in %s must be %d bytes, got %d", source, keySize, len(key))
	}
	return key, nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// KeyringKeyProvider keeps a random key in the OS keyring under a service
// and account pair.
type KeyringKeyProvider struct {
	service string
	account string

	mu sync.Mutex
}

// NewKeyringKeyProvider uses the default vexa keyring entry.
func NewKeyringKeyProvider() *KeyringKeyProvider {
	return NewKeyringKeyProviderFor(DefaultKeyringService, DefaultKeyringAccount)
}

// NewKeyringKeyProviderFor uses an explicit keyring entry.
func NewKeyringKeyProviderFor(service, account string) *KeyringKeyProvider {
	return &KeyringKeyProvider{service: service, account: account}
}

// GetKey returns the stored key. A missing or unreadable entry is replaced
// with a fresh key.
func (p *KeyringKeyProvider) GetKey() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored, err := keyring.Get(p.service, p.account)
	switch {
	case err == nil:
		if key, decErr := decodeHexKey("keyring", stored); decErr == nil {
			return key, nil
		}
	case !errors.Is(err, keyring.ErrNotFound):
		return nil, fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return p.rotate()
}

// ResetKey writes a new random key to the keyring.
func (p *KeyringKeyProvider) ResetKey() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rotate()
}

// rotate requires p.mu.
func (p *KeyringKeyProvider) rotate() ([]byte, error) {
	key, err := randomBytes(keySize)
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	if err := keyring.Set(p.service, p.account, hex.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("%w: storing key: %v", ErrKeyringUnavailable, err)
	}
	return key, nil
}

// Description names the platform keyring.
func (p *KeyringKeyProvider) Description() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "windows":
		return "Windows Credential Manager"
	default:
		return "System Keyring (Secret Service)"
	}
}

// argon2id cost for passphrase keys.
var passphraseCost = struct {
	time    uint32
	memory  uint32
	threads uint8
}{time: 1, memory: 64 * 1024, threads: 4}

// PassphraseKeyProvider derives the key from a passphrase and salt with
// Argon2id. It serves headless hosts with no keyring.
type PassphraseKeyProvider struct {
	passphrase string
	salt       []byte
}

// NewPassphraseKeyProvider keeps salt next to the credentials file so the
// same passphrase yields the same key across runs.
func NewPassphraseKeyProvider(passphrase string, salt []byte) *PassphraseKeyProvider {
	return &PassphraseKeyProvider{passphrase: passphrase, salt: salt}
}

// GetKey derives the key.
func (p *PassphraseKeyProvider) GetKey() ([]byte, error) {
	switch {
	case p.passphrase == "":
		return nil, fmt.Errorf("passphrase is empty (set %s)", PassphraseEnv)
	case len(p.salt) == 0:
		return nil, errors.New("passphrase salt is missing")
	}
	c := passphraseCost
	return argon2.IDKey([]byte(p.passphrase), p.salt, c.time, c.memory, c.threads, keySize), nil
}

// ResetKey re-derives the same key; only a new passphrase changes it.
func (p *PassphraseKeyProvider) ResetKey() ([]byte, error) {
	return p.GetKey()
}

func (p *PassphraseKeyProvider) Description() string {
	return "Passphrase-derived key (Argon2id, " + PassphraseEnv + ")"
}

// GenerateSalt returns saltSize random bytes.
func GenerateSalt() ([]byte, error) {
	salt, err := randomBytes(saltSize)
	if err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

// EnvKeyProvider reads a hex key from an environment variable on each call.
type EnvKeyProvider struct {
	envVar string
}

// NewEnvKeyProvider reads the key from envVar.
func NewEnvKeyProvider(envVar string) *EnvKeyProvider {
	return &EnvKeyProvider{envVar: envVar}
}

// GetKey decodes the variable's value.
func (p *EnvKeyProvider) GetKey() ([]byte, error) {
	value := os.Getenv(p.envVar)
	if value == "" {
		return nil, fmt.Errorf("environment variable %s not set", p.envVar)
	}
	return decodeHexKey(p.envVar, value)
}

// ResetKey always fails; the key belongs to whoever sets the variable.
func (p *EnvKeyProvider) ResetKey() ([]byte, error) {
	return nil, fmt.Errorf("cannot reset a key supplied by %s", p.envVar)
}

func (p *EnvKeyProvider) Description() string {
	return fmt.Sprintf("Environment variable (%s)", p.envVar)
}

// GetDefaultKeyProvider picks the key source for credentials in dir:
// VEXA_ENCRYPTION_KEY, then VEXA_PASSPHRASE, then the system keyring.
func GetDefaultKeyProvider(dir string) (KeyProvider, error) {
	if os.Getenv(EncryptionKeyEnv) != "" {
		return NewEnvKeyProvider(EncryptionKeyEnv), nil
	}

	if passphrase := os.Getenv(PassphraseEnv); passphrase != "" {
		salt, err := loadOrCreateSalt(dir)
		if err != nil {
			return nil, err
		}
		return NewPassphraseKeyProvider(passphrase, salt), nil
	}

	kp := NewKeyringKeyProvider()
	if _, err := kp.GetKey(); err != nil {
		if errors.Is(err, ErrKeyringUnavailable) {
			return nil, fmt.Errorf("set %s or %s on hosts without a keyring: %w", EncryptionKeyEnv, PassphraseEnv, err)
		}
		return nil, err
	}
	return kp, nil
}

func loadOrCreateSalt(dir string) ([]byte, error) {
	path := filepath.Join(dir, saltFile)
	if data, err := os.ReadFile(path); err == nil {
		if salt, decErr := hex.DecodeString(string(data)); decErr == nil && len(salt) > 0 {
			return salt, nil
		}
	}

	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating credentials directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(salt)), 0o600); err != nil {
		return nil, fmt.Errorf("writing salt: %w", err)
	}
	return salt, nil
}

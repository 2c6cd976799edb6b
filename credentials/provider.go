package credentials

import (
	"errors"
	"fmt"
	"os"
	"sync"

	pferrors "github.com/otherjamesbrown/vexa-cli/pkg/errors"
)

// APIKeyEnv holds an API key that overrides stored credentials.
const APIKeyEnv = "VEXA_API_KEY"

// ErrReadOnly is returned by providers that cannot persist a key.
var ErrReadOnly = errors.New("credential provider is read-only")

// Provider supplies the API key sent with every request. Get returns an
// error wrapping pferrors.ErrMissingCredential when no key is available.
type Provider interface {
	Get() (string, error)
	Set(apiKey string) error
	Clear() error
}

// EnvProvider reads the key from an environment variable.
type EnvProvider struct {
	Var string
}

// NewEnvProvider reads VEXA_API_KEY.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{Var: APIKeyEnv}
}

func (p *EnvProvider) Get() (string, error) {
	if key := os.Getenv(p.Var); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%w: %s not set", pferrors.ErrMissingCredential, p.Var)
}

func (p *EnvProvider) Set(string) error { return ErrReadOnly }
func (p *EnvProvider) Clear() error     { return ErrReadOnly }

// StoreProvider persists the key in an encrypted Store.
type StoreProvider struct {
	mu     sync.Mutex
	store  *Store
	apiURL string
}

// NewStoreProvider wraps store. apiURL is recorded alongside saved keys.
func NewStoreProvider(store *Store, apiURL string) *StoreProvider {
	return &StoreProvider{store: store, apiURL: apiURL}
}

func (p *StoreProvider) Get() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	creds, err := p.store.Load()
	if errors.Is(err, ErrNoCredentials) {
		return "", fmt.Errorf("%w: no API key stored", pferrors.ErrMissingCredential)
	}
	if err != nil {
		return "", err
	}
	return creds.APIKey, nil
}

func (p *StoreProvider) Set(apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("%w: API key is empty", pferrors.ErrValidation)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.Save(&Credentials{APIKey: apiKey, APIURL: p.apiURL})
}

func (p *StoreProvider) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.Delete()
}

// ChainProvider returns the first key any member yields. Set and Clear go to
// the first member that accepts them.
type ChainProvider struct {
	providers []Provider
}

// NewChainProvider chains providers in priority order.
func NewChainProvider(providers ...Provider) *ChainProvider {
	return &ChainProvider{providers: providers}
}

func (c *ChainProvider) Get() (string, error) {
	for _, p := range c.providers {
		key, err := p.Get()
		if err == nil && key != "" {
			return key, nil
		}
		if err != nil && !errors.Is(err, pferrors.ErrMissingCredential) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: set %s or run 'vexa auth login'", pferrors.ErrMissingCredential, APIKeyEnv)
}

func (c *ChainProvider) Set(apiKey string) error {
	for _, p := range c.providers {
		err := p.Set(apiKey)
		if errors.Is(err, ErrReadOnly) {
			continue
		}
		return err
	}
	return ErrReadOnly
}

func (c *ChainProvider) Clear() error {
	cleared := false
	for _, p := range c.providers {
		err := p.Clear()
		if errors.Is(err, ErrReadOnly) {
			continue
		}
		if err != nil {
			return err
		}
		cleared = true
	}
	if !cleared {
		return ErrReadOnly
	}
	return nil
}

// StaticProvider holds a key in memory.
type StaticProvider struct {
	mu  sync.RWMutex
	key string
}

// NewStaticProvider returns a provider holding key.
func NewStaticProvider(key string) *StaticProvider {
	return &StaticProvider{key: key}
}

func (p *StaticProvider) Get() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.key == "" {
		return "", pferrors.ErrMissingCredential
	}
	return p.key, nil
}

func (p *StaticProvider) Set(apiKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.key = apiKey
	return nil
}

func (p *StaticProvider) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.key = ""
	return nil
}

// NewDefaultProvider chains VEXA_API_KEY in front of the encrypted store.
// If the store cannot be opened the environment is the only source.
func NewDefaultProvider(apiURL string) (Provider, error) {
	env := NewEnvProvider()
	store, err := NewStore()
	if err != nil {
		if _, envErr := env.Get(); envErr == nil {
			return env, nil
		}
		return nil, err
	}
	return NewChainProvider(env, NewStoreProvider(store, apiURL)), nil
}

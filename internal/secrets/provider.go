package secrets

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/boardwatch/boardwatch/pkg/errors"
)

// TelegramTokenName is the logical secret name for the bot token
const TelegramTokenName = "telegram-bot-token"

// Provider resolves named secrets
type Provider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// EnvProvider resolves secrets from environment variables. Names map
// through the configured table; unmapped names resolve as-is.
type EnvProvider struct {
	names map[string]string
}

// NewEnvProvider creates an environment-backed provider with the given
// name-to-variable mapping
func NewEnvProvider(names map[string]string) *EnvProvider {
	return &EnvProvider{names: names}
}

// GetSecret retrieves a secret from the environment
func (p *EnvProvider) GetSecret(ctx context.Context, name string) (string, error) {
	envVar := name
	if mapped, ok := p.names[name]; ok {
		envVar = mapped
	}

	value := strings.TrimSpace(os.Getenv(envVar))
	if value == "" {
		return "", errors.NewSecretError(name, "environment variable "+envVar+" is not set")
	}
	return value, nil
}

// FileProvider resolves secrets from files, for mounted secret volumes.
// Names map through the configured table to file paths.
type FileProvider struct {
	paths map[string]string
}

// NewFileProvider creates a file-backed provider with the given
// name-to-path mapping
func NewFileProvider(paths map[string]string) *FileProvider {
	return &FileProvider{paths: paths}
}

// GetSecret reads a secret from its mapped file
func (p *FileProvider) GetSecret(ctx context.Context, name string) (string, error) {
	path, ok := p.paths[name]
	if !ok {
		return "", errors.NewSecretError(name, "no file mapped for secret")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.NewSecretError(name, "failed to read secret file").WithCause(err)
	}

	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", errors.NewSecretError(name, "secret file is empty")
	}
	return value, nil
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// CachedProvider wraps another provider with a TTL cache so hot paths
// do not hit the underlying source on every delivery
type CachedProvider struct {
	inner Provider
	ttl   time.Duration

	mutex sync.RWMutex
	cache map[string]cacheEntry
}

// NewCachedProvider wraps a provider with a TTL cache
func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedProvider{
		inner: inner,
		ttl:   ttl,
		cache: make(map[string]cacheEntry),
	}
}

// GetSecret retrieves a secret, serving from cache while fresh
func (p *CachedProvider) GetSecret(ctx context.Context, name string) (string, error) {
	p.mutex.RLock()
	if entry, exists := p.cache[name]; exists && time.Now().Before(entry.expiresAt) {
		p.mutex.RUnlock()
		return entry.value, nil
	}
	p.mutex.RUnlock()

	value, err := p.inner.GetSecret(ctx, name)
	if err != nil {
		return "", err
	}

	p.mutex.Lock()
	p.cache[name] = cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(p.ttl),
	}
	p.mutex.Unlock()

	return value, nil
}

// Invalidate drops a cached secret so the next read refetches it
func (p *CachedProvider) Invalidate(name string) {
	p.mutex.Lock()
	delete(p.cache, name)
	p.mutex.Unlock()
}

// OperationRunner executes an operation under a failure-tracking
// category, matching the resilience executor's result signature
type OperationRunner interface {
	ExecuteWithResult(ctx context.Context, operationName, category string, op func(context.Context) (interface{}, error)) (interface{}, error)
}

// GuardedProvider routes secret reads through an operation runner so
// a flapping secret source trips its own circuit instead of failing
// every delivery attempt
type GuardedProvider struct {
	inner    Provider
	runner   OperationRunner
	category string
}

// NewGuardedProvider wraps a provider with an operation runner
func NewGuardedProvider(inner Provider, runner OperationRunner, category string) *GuardedProvider {
	return &GuardedProvider{
		inner:    inner,
		runner:   runner,
		category: category,
	}
}

// GetSecret retrieves a secret through the operation runner
func (p *GuardedProvider) GetSecret(ctx context.Context, name string) (string, error) {
	result, err := p.runner.ExecuteWithResult(ctx, "fetch secret "+name, p.category, func(ctx context.Context) (interface{}, error) {
		return p.inner.GetSecret(ctx, name)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

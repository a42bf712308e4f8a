package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/boardwatch/boardwatch/pkg/errors"
)

func TestEnvProvider(t *testing.T) {
	t.Setenv("BOARDWATCH_TEST_TOKEN", "  tok-123  ")

	p := NewEnvProvider(map[string]string{
		TelegramTokenName: "BOARDWATCH_TEST_TOKEN",
	})

	value, err := p.GetSecret(context.Background(), TelegramTokenName)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", value)

	_, err = p.GetSecret(context.Background(), "missing-secret")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeUnavailable, apperrors.GetType(err))
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(path, []byte("tok-456\n"), 0o600))

	p := NewFileProvider(map[string]string{
		TelegramTokenName: path,
	})

	value, err := p.GetSecret(context.Background(), TelegramTokenName)
	require.NoError(t, err)
	assert.Equal(t, "tok-456", value)

	_, err = p.GetSecret(context.Background(), "unmapped")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("   \n"), 0o600))
	_, err = p.GetSecret(context.Background(), TelegramTokenName)
	assert.Error(t, err)
}

type countingProvider struct {
	calls int
	value string
	err   error
}

func (p *countingProvider) GetSecret(ctx context.Context, name string) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	return p.value, nil
}

func TestCachedProvider(t *testing.T) {
	inner := &countingProvider{value: "tok-789"}
	p := NewCachedProvider(inner, time.Hour)

	for i := 0; i < 3; i++ {
		value, err := p.GetSecret(context.Background(), TelegramTokenName)
		require.NoError(t, err)
		assert.Equal(t, "tok-789", value)
	}
	assert.Equal(t, 1, inner.calls)

	p.Invalidate(TelegramTokenName)
	_, err := p.GetSecret(context.Background(), TelegramTokenName)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedProvider_ErrorsNotCached(t *testing.T) {
	inner := &countingProvider{err: apperrors.NewSecretError(TelegramTokenName, "unreachable")}
	p := NewCachedProvider(inner, time.Hour)

	_, err := p.GetSecret(context.Background(), TelegramTokenName)
	require.Error(t, err)
	_, err = p.GetSecret(context.Background(), TelegramTokenName)
	require.Error(t, err)

	assert.Equal(t, 2, inner.calls)
}

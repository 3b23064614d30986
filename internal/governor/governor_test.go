package governor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"log-governor/internal/config"
	"log-governor/internal/domain"
)

func newTestLoader(t *testing.T) *config.Loader {
	t.Helper()

	// Garante um ambiente limpo resolvendo para memory storage
	for _, key := range []string{"REDIS_URL", "EDGE_CONFIG_ID", "EDGE_CONFIG_TOKEN", "APP_ENV"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("OVERRIDES_FILE", filepath.Join(t.TempDir(), "missing.json"))

	loader := config.NewLoader()
	_, err := loader.LoadConfig()
	require.NoError(t, err)
	return loader
}

func TestNew_WiresAllSubsystems(t *testing.T) {
	loader := newTestLoader(t)

	gov := New(context.Background(), loader, nil)
	defer gov.Close()

	require.NotNil(t, gov.Storage)
	require.NotNil(t, gov.Configs)
	require.NotNil(t, gov.Limiter)
	require.NotNil(t, gov.Propagator)
	require.NotNil(t, gov.Timers)

	// Sem backend remoto configurado o storage resolve para memória
	assert.Equal(t, domain.MemoryStorageType, gov.Storage.Type())
	assert.Equal(t, "native", gov.Propagator.Backend())
}

func TestNew_EndToEndEmissionDecision(t *testing.T) {
	loader := newTestLoader(t)

	gov := New(context.Background(), loader, nil)
	defer gov.Close()

	ctx := context.Background()

	// Config resolve pelo fallback, nível efetivo decide, limiter permite
	result := gov.Configs.GetConfigWithFallback(ctx)
	require.True(t, result.Success)

	decision := gov.Limiter.Check(ctx, "svc-a", "/orders", domain.InfoLevel, "")
	assert.True(t, decision.Allowed)
}

func TestDefaultInstanceLifecycle(t *testing.T) {
	loader := newTestLoader(t)

	assert.Nil(t, Default())

	gov := New(context.Background(), loader, nil)
	SetDefault(gov)
	assert.Same(t, gov, Default())

	ResetDefault()
	assert.Nil(t, Default())
}

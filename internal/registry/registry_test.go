package registry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/aevon-lab/schema-registry/internal/registry"
	"github.com/aevon-lab/schema-registry/internal/registry/storage/memory"
)

var errDisk = errors.New("disk on fire")

// faultyBackend wraps the memory backend and fails selected primitives.
type faultyBackend struct {
	*memory.Backend
	failExists  bool
	failAppend  bool
	failIDs     bool
	failName    bool
	staleExists bool
	versionsOut []int
}

func (b *faultyBackend) Exists(ctx context.Context, id registry.ID) (bool, error) {
	if b.failExists {
		return false, errDisk
	}
	if b.staleExists {
		return false, nil
	}
	return b.Backend.Exists(ctx, id)
}

func (b *faultyBackend) AppendVersion(ctx context.Context, id registry.ID, payload []byte) (int, error) {
	if b.failAppend {
		return 0, errDisk
	}
	return b.Backend.AppendVersion(ctx, id, payload)
}

func (b *faultyBackend) IDs(ctx context.Context) ([]registry.ID, error) {
	if b.failIDs {
		return nil, errDisk
	}
	return b.Backend.IDs(ctx)
}

func (b *faultyBackend) Name(ctx context.Context, id registry.ID) (string, bool, error) {
	if b.failName {
		return "", false, errDisk
	}
	return b.Backend.Name(ctx, id)
}

func (b *faultyBackend) Versions(ctx context.Context, id registry.ID) ([]int, error) {
	if b.versionsOut != nil {
		return b.versionsOut, nil
	}
	return b.Backend.Versions(ctx, id)
}

func TestRegistry_PropagatesBackendErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		backend func() *faultyBackend
		call    func(reg *registry.Registry) error
	}{
		{
			name:    "exists failure on create",
			backend: func() *faultyBackend { return &faultyBackend{Backend: memory.New(), failExists: true} },
			call: func(reg *registry.Registry) error {
				_, err := reg.CreateSchema(ctx, "test")
				return err
			},
		},
		{
			name:    "exists failure on schema exists",
			backend: func() *faultyBackend { return &faultyBackend{Backend: memory.New(), failExists: true} },
			call: func(reg *registry.Registry) error {
				_, err := reg.SchemaExists(ctx, "test")
				return err
			},
		},
		{
			name:    "append failure",
			backend: func() *faultyBackend { return &faultyBackend{Backend: memory.New(), failAppend: true} },
			call: func(reg *registry.Registry) error {
				_, err := reg.CreateVersion(ctx, "test", []byte("v1"))
				return err
			},
		},
		{
			name:    "enumeration failure",
			backend: func() *faultyBackend { return &faultyBackend{Backend: memory.New(), failIDs: true} },
			call: func(reg *registry.Registry) error {
				_, err := reg.GetSchemas(ctx)
				return err
			},
		},
		{
			name:    "name resolution failure",
			backend: func() *faultyBackend { return &faultyBackend{Backend: memory.New(), failName: true} },
			call: func(reg *registry.Registry) error {
				_, err := reg.GetSchemas(ctx, registry.IDOf("test"))
				return err
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := tc.backend()
			require.NoError(t, b.Backend.Create(ctx, registry.IDOf("test"), "test"))

			err := tc.call(registry.New(b))
			require.ErrorIs(t, err, errDisk)
			require.False(t, registry.IsNotFound(err))
		})
	}
}

// A creator that passes the existence check after another has already won
// gets the same error as one that lost the check itself.
func TestRegistry_CreateRaceLoserGetsAlreadyExists(t *testing.T) {
	ctx := context.Background()
	b := &faultyBackend{Backend: memory.New(), staleExists: true}
	reg := registry.New(b)

	_, err := reg.CreateSchema(ctx, "test")
	require.NoError(t, err)

	_, err = reg.CreateSchema(ctx, "test")
	require.Equal(t, registry.ErrAlreadyExists, err)
}

func TestRegistry_LatestIsMaxVersion(t *testing.T) {
	ctx := context.Background()
	b := &faultyBackend{Backend: memory.New()}
	reg := registry.New(b)

	_, err := reg.CreateSchema(ctx, "test")
	require.NoError(t, err)
	for _, p := range []string{"v1", "v2", "v3"} {
		_, err := reg.CreateVersion(ctx, "test", []byte(p))
		require.NoError(t, err)
	}

	// Backends may report versions in any order; latest is the maximum.
	b.versionsOut = []int{3, 1, 2}
	number, payload, err := reg.GetLatestVersion(ctx, "test")
	require.NoError(t, err)
	require.Equal(t, 3, number)
	require.Equal(t, []byte("v3"), payload)
}

func TestRegistry_GetLatestSchemaWithoutVersions(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(memory.New())

	_, err := reg.CreateSchema(ctx, "test")
	require.NoError(t, err)

	payload, err := reg.GetLatest(ctx, "test")
	require.Nil(t, payload)
	require.ErrorIs(t, err, registry.ErrNoVersionsYet)
	require.True(t, registry.IsNotFound(err))
}

func TestRegistry_Spans(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	b := &faultyBackend{Backend: memory.New()}
	reg := registry.New(b, registry.WithTracer(provider.Tracer("test")))

	_, err := reg.CreateSchema(ctx, "test")
	require.NoError(t, err)
	_, err = reg.GetVersions(ctx, "missing")
	require.ErrorIs(t, err, registry.ErrDoesNotExist)

	b.failAppend = true
	_, err = reg.CreateVersion(ctx, "test", []byte("v1"))
	require.ErrorIs(t, err, errDisk)

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	require.Equal(t, "registry.CreateSchema", spans[0].Name())
	require.Equal(t, codes.Unset, spans[0].Status().Code)

	require.Equal(t, "registry.GetVersions", spans[1].Name())
	require.Equal(t, codes.Unset, spans[1].Status().Code, "not-found is not a span error")

	require.Equal(t, "registry.CreateVersion", spans[2].Name())
	require.Equal(t, codes.Error, spans[2].Status().Code)
}

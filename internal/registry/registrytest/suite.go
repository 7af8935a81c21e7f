// Package registrytest runs the behavioural contract of registry.Registry
// against any registry.Backend.
package registrytest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"pgregory.net/rapid"

	"github.com/aevon-lab/schema-registry/internal/registry"
)

// NewBackendFunc returns an empty backend. It may register cleanup on t.
type NewBackendFunc func(t *testing.T) registry.Backend

// RunBackendSuite exercises every registry operation against fresh backends
// created by newBackend.
func RunBackendSuite(t *testing.T, newBackend NewBackendFunc) {
	t.Helper()

	tests := []struct {
		name string
		run  func(t *testing.T, reg *registry.Registry)
	}{
		{"CreateSchema", testCreateSchema},
		{"CreateSchemaTwiceFails", testCreateSchemaTwice},
		{"CreateSchemaRejectsEmptyName", testCreateSchemaEmptyName},
		{"ConcurrentCreateSingleWinner", testConcurrentCreate},
		{"BackendCreateIsAtomic", testBackendCreateAtomic},
		{"SchemaExists", testSchemaExists},
		{"VersionScenario", testVersionScenario},
		{"UnknownSchemaFails", testUnknownSchema},
		{"LatestWithoutVersions", testLatestWithoutVersions},
		{"IsolationAcrossSchemas", testIsolation},
		{"GetSchemasFilter", testGetSchemasFilter},
		{"PayloadsAreVerbatim", testPayloadsVerbatim},
		{"ConcurrentAppendsAreDense", testConcurrentAppends},
		{"ConcurrentAppendsAcrossSchemas", testConcurrentAppendsAcrossSchemas},
		{"HistoryProperties", testHistoryProperties},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.run(t, registry.New(newBackend(t)))
		})
	}
}

func testCreateSchema(t *testing.T, reg *registry.Registry) {
	ctx := context.Background()

	id, err := reg.CreateSchema(ctx, "test")
	require.NoError(t, err)
	require.Equal(t, registry.IDOf("test"), id)

	schemas, err := reg.GetSchemas(ctx)
	require.NoError(t, err)
	require.Equal(t, []registry.SchemaInfo{{ID: id, Name: "test"}}, schemas)
}

func testCreateSchemaTwice(t *testing.T, reg *registry.Registry) {
	ctx := context.Background()

	_, err := reg.CreateSchema(ctx, "a")
	require.NoError(t, err)

	_, err = reg.CreateSchema(ctx, "a")
	require.ErrorIs(t, err, registry.ErrAlreadyExists)

	schemas, err := reg.GetSchemas(ctx)
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	require.Equal(t, "a", schemas[0].Name)
}

func testCreateSchemaEmptyName(t *testing.T, reg *registry.Registry) {
	_, err := reg.CreateSchema(context.Background(), "")
	require.ErrorIs(t, err, registry.ErrInvalidName)
}

func testConcurrentCreate(t *testing.T, reg *registry.Registry) {
	ctx := context.Background()
	const creators = 16

	var (
		wg       sync.WaitGroup
		won      atomic.Int32
		conflict atomic.Int32
		start    = make(chan struct{})
		errs     = make(chan error, creators)
	)
	for i := 0; i < creators; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := reg.CreateSchema(ctx, "contended")
			switch {
			case err == nil:
				won.Add(1)
			case errors.Is(err, registry.ErrAlreadyExists):
				conflict.Add(1)
			default:
				errs <- err
			}
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, won.Load())
	require.EqualValues(t, creators-1, conflict.Load())
}

// testBackendCreateAtomic calls the backend directly, as two registries would
// after both passing the existence check.
func testBackendCreateAtomic(t *testing.T, reg *registry.Registry) {
	ctx := context.Background()
	backend := reg.Backend()
	id := registry.IDOf("raced")

	require.NoError(t, backend.Create(ctx, id, "raced"))
	number, err := backend.AppendVersion(ctx, id, []byte("v1"))
	require.NoError(t, err)
	require.Equal(t, 1, number)

	require.ErrorIs(t, backend.Create(ctx, id, "raced"), registry.ErrAlreadyExists)

	versions, err := backend.Versions(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []int{1}, versions)
}

func testSchemaExists(t *testing.T, reg *registry.Registry) {
	ctx := context.Background()

	_, err := reg.CreateSchema(ctx, "test")
	require.NoError(t, err)

	exists, err := reg.SchemaExists(ctx, "test")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = reg.SchemaExists(ctx, "non_existent_schema")
	require.NoError(t, err)
	require.False(t, exists)
}

func testVersionScenario(t *testing.T, reg *registry.Registry) {
	ctx := context.Background()

	_, err := reg.CreateSchema(ctx, "test")
	require.NoError(t, err)

	for i, payload := range []string{"v1", "v2", "v3"} {
		number, err := reg.CreateVersion(ctx, "test", []byte(payload))
		require.NoError(t, err)
		require.Equal(t, i+1, number)
	}

	versions, err := reg.GetVersions(ctx, "test")
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, versions)

	latest, err := reg.GetLatest(ctx, "test")
	require.NoError(t, err)
	require.Equal(t, []byte("v3"), latest)

	number, latest, err := reg.GetLatestVersion(ctx, "test")
	require.NoError(t, err)
	require.Equal(t, 3, number)
	require.Equal(t, []byte("v3"), latest)

	payload, err := reg.GetVersion(ctx, "test", 2)
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), payload)

	_, err = reg.GetVersion(ctx, "test", 4)
	require.ErrorIs(t, err, registry.ErrVersionNotFound)
	require.NotErrorIs(t, err, registry.ErrDoesNotExist)

	_, err = reg.GetVersion(ctx, "test", 0)
	require.ErrorIs(t, err, registry.ErrVersionNotFound)
}

func testUnknownSchema(t *testing.T, reg *registry.Registry) {
	ctx := context.Background()

	_, err := reg.GetVersions(ctx, "missing")
	require.ErrorIs(t, err, registry.ErrDoesNotExist)

	_, err = reg.CreateVersion(ctx, "missing", []byte("v1"))
	require.ErrorIs(t, err, registry.ErrDoesNotExist)

	_, err = reg.GetVersion(ctx, "missing", 1)
	require.ErrorIs(t, err, registry.ErrDoesNotExist)

	_, err = reg.GetLatest(ctx, "missing")
	require.ErrorIs(t, err, registry.ErrDoesNotExist)

	exists, err := reg.SchemaExists(ctx, "missing")
	require.NoError(t, err)
	require.False(t, exists)
}

func testLatestWithoutVersions(t *testing.T, reg *registry.Registry) {
	ctx := context.Background()

	_, err := reg.CreateSchema(ctx, "empty")
	require.NoError(t, err)

	versions, err := reg.GetVersions(ctx, "empty")
	require.NoError(t, err)
	require.Empty(t, versions)

	_, err = reg.GetLatest(ctx, "empty")
	require.ErrorIs(t, err, registry.ErrNoVersionsYet)
	require.ErrorIs(t, err, registry.ErrVersionNotFound)
}

func testIsolation(t *testing.T, reg *registry.Registry) {
	ctx := context.Background()

	for _, name := range []string{"schema_1", "schema_2"} {
		_, err := reg.CreateSchema(ctx, name)
		require.NoError(t, err)
	}

	_, err := reg.CreateVersion(ctx, "schema_1", []byte("a1"))
	require.NoError(t, err)
	_, err = reg.CreateVersion(ctx, "schema_1", []byte("a2"))
	require.NoError(t, err)

	number, err := reg.CreateVersion(ctx, "schema_2", []byte("b1"))
	require.NoError(t, err)
	require.Equal(t, 1, number)

	versions, err := reg.GetVersions(ctx, "schema_2")
	require.NoError(t, err)
	require.Equal(t, []int{1}, versions)

	latest, err := reg.GetLatest(ctx, "schema_1")
	require.NoError(t, err)
	require.Equal(t, []byte("a2"), latest)
}

func testGetSchemasFilter(t *testing.T, reg *registry.Registry) {
	ctx := context.Background()

	names := []string{"test", "schema_1", "schema_2"}
	for _, name := range names {
		_, err := reg.CreateSchema(ctx, name)
		require.NoError(t, err)
	}

	all, err := reg.GetSchemas(ctx)
	require.NoError(t, err)
	require.Len(t, all, len(names))
	require.True(t, slices.IsSortedFunc(all, func(a, b registry.SchemaInfo) int {
		return bytes.Compare(a.ID[:], b.ID[:])
	}))
	for _, info := range all {
		require.Contains(t, names, info.Name)
		require.Equal(t, registry.IDOf(info.Name), info.ID)
	}

	filtered, err := reg.GetSchemas(ctx, registry.IDOf("schema_1"), registry.IDOf("unknown"), registry.IDOf("schema_1"))
	require.NoError(t, err)
	require.Equal(t, []registry.SchemaInfo{{ID: registry.IDOf("schema_1"), Name: "schema_1"}}, filtered)

	none, err := reg.GetSchemas(ctx, registry.IDOf("unknown"))
	require.NoError(t, err)
	require.Empty(t, none)
}

func testPayloadsVerbatim(t *testing.T, reg *registry.Registry) {
	ctx := context.Background()

	_, err := reg.CreateSchema(ctx, "binary")
	require.NoError(t, err)

	payloads := [][]byte{
		{},
		{0x00, 0xff, 0x00},
		[]byte(`{"type":"record","name":"User"}`),
		bytes.Repeat([]byte{0xab}, 64*1024),
	}
	for _, p := range payloads {
		_, err := reg.CreateVersion(ctx, "binary", p)
		require.NoError(t, err)
	}
	for i, p := range payloads {
		got, err := reg.GetVersion(ctx, "binary", i+1)
		require.NoError(t, err)
		require.True(t, bytes.Equal(p, got), "version %d payload differs", i+1)
	}
}

func testConcurrentAppends(t *testing.T, reg *registry.Registry) {
	ctx := context.Background()
	const writers = 32

	_, err := reg.CreateSchema(ctx, "contended")
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		assigned = make(map[int]string, writers)
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < writers; i++ {
		payload := fmt.Sprintf("payload-%d", i)
		g.Go(func() error {
			number, err := reg.CreateVersion(gctx, "contended", []byte(payload))
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if prev, dup := assigned[number]; dup {
				return fmt.Errorf("version %d assigned to both %q and %q", number, prev, payload)
			}
			assigned[number] = payload
			return nil
		})
	}
	require.NoError(t, g.Wait())

	versions, err := reg.GetVersions(ctx, "contended")
	require.NoError(t, err)
	require.Equal(t, denseRange(writers), versions)

	for number, payload := range assigned {
		require.GreaterOrEqual(t, number, 1)
		require.LessOrEqual(t, number, writers)
		got, err := reg.GetVersion(ctx, "contended", number)
		require.NoError(t, err)
		require.Equal(t, payload, string(got))
	}
}

func testConcurrentAppendsAcrossSchemas(t *testing.T, reg *registry.Registry) {
	ctx := context.Background()
	const (
		schemas   = 4
		perSchema = 8
	)

	for s := 0; s < schemas; s++ {
		_, err := reg.CreateSchema(ctx, fmt.Sprintf("schema-%d", s))
		require.NoError(t, err)
	}

	var appended atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for s := 0; s < schemas; s++ {
		name := fmt.Sprintf("schema-%d", s)
		for i := 0; i < perSchema; i++ {
			g.Go(func() error {
				if _, err := reg.CreateVersion(gctx, name, []byte(name)); err != nil {
					return err
				}
				appended.Add(1)
				return nil
			})
		}
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int64(schemas*perSchema), appended.Load())

	for s := 0; s < schemas; s++ {
		name := fmt.Sprintf("schema-%d", s)
		versions, err := reg.GetVersions(ctx, name)
		require.NoError(t, err)
		require.Equal(t, denseRange(perSchema), versions)

		latest, err := reg.GetLatest(ctx, name)
		require.NoError(t, err)
		require.Equal(t, name, string(latest))
	}
}

// testHistoryProperties checks dense numbering, latest correctness and
// isolation over randomly generated histories. Each iteration uses fresh
// schema names so one backend serves the whole run.
func testHistoryProperties(t *testing.T, reg *registry.Registry) {
	ctx := context.Background()
	var iteration atomic.Int64

	rapid.Check(t, func(r *rapid.T) {
		prefix := fmt.Sprintf("prop-%d", iteration.Add(1))
		names := []string{prefix + "-a", prefix + "-b"}
		for _, name := range names {
			if _, err := reg.CreateSchema(ctx, name); err != nil {
				r.Fatalf("CreateSchema(%q): %v", name, err)
			}
		}

		history := make(map[string][][]byte, len(names))
		steps := rapid.IntRange(0, 12).Draw(r, "steps")
		for i := 0; i < steps; i++ {
			name := rapid.SampledFrom(names).Draw(r, "schema")
			payload := rapid.SliceOfN(rapid.Byte(), 0, 32).Draw(r, "payload")

			number, err := reg.CreateVersion(ctx, name, payload)
			if err != nil {
				r.Fatalf("CreateVersion(%q): %v", name, err)
			}
			history[name] = append(history[name], payload)
			if number != len(history[name]) {
				r.Fatalf("CreateVersion(%q) = %d, want %d", name, number, len(history[name]))
			}
		}

		for _, name := range names {
			want := history[name]

			versions, err := reg.GetVersions(ctx, name)
			if err != nil {
				r.Fatalf("GetVersions(%q): %v", name, err)
			}
			if !slices.Equal(versions, denseRange(len(want))) {
				r.Fatalf("GetVersions(%q) = %v, want 1..%d", name, versions, len(want))
			}

			for i, payload := range want {
				got, err := reg.GetVersion(ctx, name, i+1)
				if err != nil {
					r.Fatalf("GetVersion(%q, %d): %v", name, i+1, err)
				}
				if !bytes.Equal(got, payload) {
					r.Fatalf("GetVersion(%q, %d) = %x, want %x", name, i+1, got, payload)
				}
			}

			latest, err := reg.GetLatest(ctx, name)
			if len(want) == 0 {
				if !registry.IsNotFound(err) {
					r.Fatalf("GetLatest(%q) on empty schema: got err %v", name, err)
				}
				continue
			}
			if err != nil {
				r.Fatalf("GetLatest(%q): %v", name, err)
			}
			if !bytes.Equal(latest, want[len(want)-1]) {
				r.Fatalf("GetLatest(%q) = %x, want %x", name, latest, want[len(want)-1])
			}
		}
	})
}

func denseRange(k int) []int {
	numbers := make([]int, k)
	for i := range numbers {
		numbers[i] = i + 1
	}
	return numbers
}

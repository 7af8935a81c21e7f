package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
	"gopkg.in/yaml.v3"

	"github.com/aevon-lab/schema-registry/internal/config"
	"github.com/aevon-lab/schema-registry/internal/registry"
	"github.com/aevon-lab/schema-registry/internal/registry/storage/memory"
)

func writeConfig(t *testing.T, doc map[string]interface{}) string {
	t.Helper()

	raw, err := yaml.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "schemaregistry.yaml")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func pebbleConfig(t *testing.T) string {
	t.Helper()
	return writeConfig(t, map[string]interface{}{
		"storage": map[string]interface{}{
			"backend": "pebble",
			"path":    filepath.Join(t.TempDir(), "data"),
			"no_sync": true,
		},
		"log": map[string]interface{}{"level": "warn"},
	})
}

func run(t *testing.T, cfgPath string, stdin io.Reader, args ...string) (string, error) {
	t.Helper()

	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(append([]string{"--config", cfgPath}, args...))

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_PebbleLifecycle(t *testing.T) {
	cfgPath := pebbleConfig(t)

	out, err := run(t, cfgPath, nil, "create", "test")
	require.NoError(t, err)
	require.Equal(t, registry.IDOf("test").String()+"\n", out)

	_, err = run(t, cfgPath, nil, "create", "test")
	require.ErrorIs(t, err, registry.ErrAlreadyExists)

	payloadFile := filepath.Join(t.TempDir(), "v1.proto")
	require.NoError(t, os.WriteFile(payloadFile, []byte("v1"), 0o644))

	out, err = run(t, cfgPath, nil, "push", "test", payloadFile)
	require.NoError(t, err)
	require.Equal(t, "1\n", out)

	out, err = run(t, cfgPath, strings.NewReader("v2"), "push", "test")
	require.NoError(t, err)
	require.Equal(t, "2\n", out)

	out, err = run(t, cfgPath, strings.NewReader("v3"), "push", "test", "-")
	require.NoError(t, err)
	require.Equal(t, "3\n", out)

	out, err = run(t, cfgPath, nil, "versions", "test")
	require.NoError(t, err)
	require.Equal(t, "1\n2\n3\n", out)

	out, err = run(t, cfgPath, nil, "get", "test", "2")
	require.NoError(t, err)
	require.Equal(t, "v2", out)

	out, err = run(t, cfgPath, nil, "get", "test")
	require.NoError(t, err)
	require.Equal(t, "v3", out)

	_, err = run(t, cfgPath, nil, "get", "test", "4")
	require.ErrorIs(t, err, registry.ErrVersionNotFound)

	_, err = run(t, cfgPath, nil, "get", "test", "two")
	require.ErrorContains(t, err, "version must be an integer")

	_, err = run(t, cfgPath, nil, "push", "missing", payloadFile)
	require.ErrorIs(t, err, registry.ErrDoesNotExist)
}

func TestCLI_List(t *testing.T) {
	cfgPath := pebbleConfig(t)
	for _, name := range []string{"alpha", "beta"} {
		_, err := run(t, cfgPath, nil, "create", name)
		require.NoError(t, err)
	}

	out, err := run(t, cfgPath, nil, "list")
	require.NoError(t, err)

	var rows []schemaRow
	require.NoError(t, yaml.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	require.Less(t, rows[0].ID, rows[1].ID)

	out, err = run(t, cfgPath, nil, "list", "-o", "json", "--id", registry.IDOf("beta").String())
	require.NoError(t, err)
	require.JSONEq(t, fmt.Sprintf(`[{"id":%q,"name":"beta"}]`, registry.IDOf("beta").String()), out)

	_, err = run(t, cfgPath, nil, "list", "-o", "xml")
	require.ErrorContains(t, err, "unsupported output format")

	out, err = run(t, cfgPath, nil, "list", "-o", "json", "--id", "nothex")
	require.NoError(t, err)
	require.JSONEq(t, `[]`, out)

	out, err = run(t, cfgPath, nil, "list", "-o", "json", "--id", "deadbeef", "--id", registry.IDOf("alpha").String())
	require.NoError(t, err)
	require.JSONEq(t, fmt.Sprintf(`[{"id":%q,"name":"alpha"}]`, registry.IDOf("alpha").String()), out)
}

func TestCLI_InvalidConfig(t *testing.T) {
	cfgPath := writeConfig(t, map[string]interface{}{
		"storage": map[string]interface{}{"backend": "rocksdb"},
	})

	_, err := run(t, cfgPath, nil, "list")
	require.ErrorContains(t, err, "unsupported storage.backend")
}

func TestCLI_BackendOpenFailure(t *testing.T) {
	cfgPath := writeConfig(t, map[string]interface{}{
		"storage": map[string]interface{}{"backend": "memory"},
	})

	a := &app{openBackend: func(*config.Config) (registry.Backend, func() error, error) {
		return nil, nil, errors.New("locked")
	}}
	root := newRootCommand(a)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--config", cfgPath, "list"})

	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "failed to open memory backend: locked")
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// startServe runs the serve command against shared until the returned stop
// function is called.
func startServe(t *testing.T, doc map[string]interface{}, shared registry.Backend, out io.Writer) (string, func()) {
	t.Helper()

	port := freePort(t)
	doc["server"] = map[string]interface{}{"host": "127.0.0.1", "port": port}
	doc["storage"] = map[string]interface{}{"backend": "memory"}
	doc["log"] = map[string]interface{}{"level": "warn"}
	cfgPath := writeConfig(t, doc)

	a := &app{openBackend: func(*config.Config) (registry.Backend, func() error, error) {
		return shared, func() error { return nil }, nil
	}}
	root := newRootCommand(a)
	root.SetOut(out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--config", cfgPath, "serve"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	stop := func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("serve did not stop")
		}
	}
	return base, stop
}

func TestCLI_Serve(t *testing.T) {
	shared := memory.New()
	base, stop := startServe(t, map[string]interface{}{}, shared, io.Discard)

	resp, err := http.Post(base+"/schemas", "application/json", strings.NewReader(`{"name":"test"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	exists, err := registry.New(shared).SchemaExists(context.Background(), "test")
	require.NoError(t, err)
	require.True(t, exists)

	stop()
}

func TestCLI_ServeTracesWithConfiguredProvider(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	var out bytes.Buffer
	base, stop := startServe(t, map[string]interface{}{
		"tracing": map[string]interface{}{
			"enabled":      true,
			"exporter":     "stdout",
			"sample_rate":  1.0,
			"service_name": "cli-test",
		},
	}, memory.New(), &out)

	resp, err := http.Post(base+"/schemas", "application/json", strings.NewReader(`{"name":"test"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Shutdown flushes the batcher into out.
	stop()
	require.Contains(t, out.String(), "registry.CreateSchema")
	// Spans come from the provider's tracer, not the package default.
	require.Contains(t, out.String(), "cli-test")
	require.NotContains(t, out.String(), "internal/registry")
}

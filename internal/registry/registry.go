package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/aevon-lab/schema-registry/internal/registry"

// Registry implements schema version history on top of a Backend. It holds no
// state of its own, so one Registry may serve any number of concurrent requests.
type Registry struct {
	backend Backend
	tracer  trace.Tracer
}

// Option configures a Registry.
type Option func(*Registry)

// WithTracer overrides the tracer taken from the global OpenTelemetry provider.
func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) {
		r.tracer = t
	}
}

// New creates a registry backed by backend.
func New(backend Backend, opts ...Option) *Registry {
	r := &Registry{
		backend: backend,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Backend returns the storage backend the registry delegates to.
func (r *Registry) Backend() Backend {
	return r.backend
}

// CreateSchema registers a new schema with no versions and returns its ID.
// Returns ErrAlreadyExists if the name is taken.
func (r *Registry) CreateSchema(ctx context.Context, name string) (_ ID, err error) {
	ctx, span := r.start(ctx, "CreateSchema", name)
	defer func() { endSpan(span, err) }()

	if name == "" {
		return ID{}, ErrInvalidName
	}

	id := IDOf(name)
	exists, err := r.backend.Exists(ctx, id)
	if err != nil {
		return ID{}, err
	}
	if exists {
		return ID{}, ErrAlreadyExists
	}

	// The backend repeats the existence check atomically; a concurrent
	// creator that won in between surfaces here.
	if err := r.backend.Create(ctx, id, name); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return ID{}, ErrAlreadyExists
		}
		return ID{}, fmt.Errorf("failed to create schema %q: %w", name, err)
	}

	slog.Debug("Schema created", "schema", name, "id", id)
	return id, nil
}

// SchemaExists reports whether a schema named name has been created.
func (r *Registry) SchemaExists(ctx context.Context, name string) (_ bool, err error) {
	ctx, span := r.start(ctx, "SchemaExists", name)
	defer func() { endSpan(span, err) }()

	return r.backend.Exists(ctx, IDOf(name))
}

// CreateVersion appends payload to the schema's history and returns the
// version number it was assigned.
func (r *Registry) CreateVersion(ctx context.Context, name string, payload []byte) (_ int, err error) {
	ctx, span := r.start(ctx, "CreateVersion", name)
	defer func() { endSpan(span, err) }()

	id, err := r.resolve(ctx, name)
	if err != nil {
		return 0, err
	}

	number, err := r.backend.AppendVersion(ctx, id, payload)
	if err != nil {
		return 0, fmt.Errorf("failed to append version to schema %q: %w", name, err)
	}

	span.SetAttributes(attribute.Int("schema.version", number))
	slog.Debug("Schema version created", "schema", name, "version", number, "payload_size", len(payload))
	return number, nil
}

// GetVersion returns the payload of version number. Returns ErrDoesNotExist
// for an unknown schema and ErrVersionNotFound when number is out of range.
func (r *Registry) GetVersion(ctx context.Context, name string, number int) (_ []byte, err error) {
	ctx, span := r.start(ctx, "GetVersion", name)
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.Int("schema.version", number))

	id, err := r.resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	return r.version(ctx, id, number)
}

// GetVersions returns the version numbers of a schema, 1..k.
func (r *Registry) GetVersions(ctx context.Context, name string) (_ []int, err error) {
	ctx, span := r.start(ctx, "GetVersions", name)
	defer func() { endSpan(span, err) }()

	id, err := r.resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	return r.backend.Versions(ctx, id)
}

// GetLatest returns the payload of the highest numbered version.
// Returns ErrNoVersionsYet if the schema is empty.
func (r *Registry) GetLatest(ctx context.Context, name string) ([]byte, error) {
	_, payload, err := r.GetLatestVersion(ctx, name)
	return payload, err
}

// GetLatestVersion is GetLatest that also reports the version number.
func (r *Registry) GetLatestVersion(ctx context.Context, name string) (_ int, _ []byte, err error) {
	ctx, span := r.start(ctx, "GetLatest", name)
	defer func() { endSpan(span, err) }()

	id, err := r.resolve(ctx, name)
	if err != nil {
		return 0, nil, err
	}

	versions, err := r.backend.Versions(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	if len(versions) == 0 {
		return 0, nil, ErrNoVersionsYet
	}

	latest := slices.Max(versions)
	payload, err := r.version(ctx, id, latest)
	if err != nil {
		return 0, nil, err
	}
	return latest, payload, nil
}

// GetSchemas lists known schemas sorted by ID. When ids are given only those
// are returned; unknown ids are skipped.
func (r *Registry) GetSchemas(ctx context.Context, ids ...ID) (_ []SchemaInfo, err error) {
	ctx, span := r.tracer.Start(ctx, "registry.GetSchemas")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.Int("schema.filter_count", len(ids)))

	if len(ids) == 0 {
		ids, err = r.backend.IDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate schemas: %w", err)
		}
	}

	result := make([]SchemaInfo, 0, len(ids))
	seen := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		name, found, err := r.backend.Name(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve schema %s: %w", id, err)
		}
		if !found {
			continue
		}
		result = append(result, SchemaInfo{ID: id, Name: name})
	}

	slices.SortFunc(result, func(a, b SchemaInfo) int {
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	return result, nil
}

// resolve maps a name to the ID of an existing schema.
func (r *Registry) resolve(ctx context.Context, name string) (ID, error) {
	id := IDOf(name)
	exists, err := r.backend.Exists(ctx, id)
	if err != nil {
		return ID{}, err
	}
	if !exists {
		return ID{}, ErrDoesNotExist
	}
	return id, nil
}

func (r *Registry) version(ctx context.Context, id ID, number int) ([]byte, error) {
	if number < 1 {
		return nil, ErrVersionNotFound
	}
	payload, found, err := r.backend.Version(ctx, id, number)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrVersionNotFound
	}
	return payload, nil
}

func (r *Registry) start(ctx context.Context, op, name string) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "registry."+op, trace.WithAttributes(
		attribute.String("schema.name", name),
	))
}

// endSpan records store failures. Domain outcomes such as not-found leave the
// span status unset.
func endSpan(span trace.Span, err error) {
	if err != nil && !isDomainError(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func isDomainError(err error) bool {
	return IsNotFound(err) || errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrInvalidName)
}

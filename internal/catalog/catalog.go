package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/helios-suite/helios/internal/contexts"
)

// snapshot is one complete, immutable view of the catalog. Readers always
// see a whole snapshot; rebuilds swap the pointer.
type snapshot struct {
	bySlug map[string]Descriptor
}

// Catalog loads, validates and caches the built-in role descriptors.
type Catalog struct {
	source  Source
	logger  *slog.Logger
	current atomic.Pointer[snapshot]
	reload  singleflight.Group
}

// New constructs a Catalog over the given source. The first load happens
// lazily on first lookup.
func New(source Source, logger *slog.Logger) *Catalog {
	return &Catalog{source: source, logger: logger}
}

// snap returns the current snapshot, rebuilding it when absent. Concurrent
// cache misses share a single rebuild.
func (c *Catalog) snap(ctx context.Context) (*snapshot, error) {
	if s := c.current.Load(); s != nil {
		return s, nil
	}
	v, err, _ := c.reload.Do("rebuild", func() (any, error) {
		if s := c.current.Load(); s != nil {
			return s, nil
		}
		s, err := c.build(ctx)
		if err != nil {
			return nil, err
		}
		c.current.Store(s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*snapshot), nil
}

// build parses and validates every record from the source. A malformed or
// invalid descriptor is logged and skipped; only a failing source is fatal.
func (c *Catalog) build(ctx context.Context) (*snapshot, error) {
	records, err := c.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	bySlug := make(map[string]Descriptor, len(records))
	for _, rec := range records {
		var desc Descriptor
		if err := json.Unmarshal(rec.Body, &desc); err != nil {
			c.logger.Warn("catalog: skipping malformed descriptor",
				slog.String("slug", rec.Slug), slog.Any("error", err))
			continue
		}
		if err := desc.Validate(); err != nil {
			c.logger.Warn("catalog: skipping invalid descriptor",
				slog.String("slug", rec.Slug), slog.Any("error", err))
			continue
		}
		bySlug[desc.Slug] = desc
	}
	return &snapshot{bySlug: bySlug}, nil
}

// Invalidate drops the cached snapshot. Must be called after any descriptor
// mutation (module activation, descriptor sync).
func (c *Catalog) Invalidate() {
	c.current.Store(nil)
}

// Reload drops and immediately rebuilds the snapshot.
func (c *Catalog) Reload(ctx context.Context) error {
	c.Invalidate()
	_, err := c.snap(ctx)
	return err
}

// All returns every descriptor keyed by slug. The returned map is the live
// snapshot and must not be mutated.
func (c *Catalog) All(ctx context.Context) (map[string]Descriptor, error) {
	s, err := c.snap(ctx)
	if err != nil {
		return nil, err
	}
	return s.bySlug, nil
}

// Get fetches one descriptor by slug.
func (c *Catalog) Get(ctx context.Context, slug string) (Descriptor, bool, error) {
	s, err := c.snap(ctx)
	if err != nil {
		return Descriptor{}, false, err
	}
	d, ok := s.bySlug[slug]
	return d, ok, nil
}

// Exists reports whether slug names a built-in role.
func (c *Catalog) Exists(ctx context.Context, slug string) (bool, error) {
	_, ok, err := c.Get(ctx, slug)
	return ok, err
}

// ByContext filters descriptors applicable to one context kind.
func (c *Catalog) ByContext(ctx context.Context, kind contexts.Kind) ([]Descriptor, error) {
	s, err := c.snap(ctx)
	if err != nil {
		return nil, err
	}
	var out []Descriptor
	for _, d := range s.bySlug {
		if d.Context == kind {
			out = append(out, d)
		}
	}
	return out, nil
}

// ByInterface filters descriptors exposed through one client-interface tag.
func (c *Catalog) ByInterface(ctx context.Context, tag string) ([]Descriptor, error) {
	s, err := c.snap(ctx)
	if err != nil {
		return nil, err
	}
	var out []Descriptor
	for _, d := range s.bySlug {
		if d.HasInterface(tag) {
			out = append(out, d)
		}
	}
	return out, nil
}

// SystemPermissions returns the role's system permission array, empty when
// the slug is unknown.
func (c *Catalog) SystemPermissions(ctx context.Context, slug string) ([]string, error) {
	d, ok, err := c.Get(ctx, slug)
	if err != nil || !ok {
		return nil, err
	}
	return d.SystemPermissions, nil
}

// ModulePermissions returns the role's module permission map, empty when the
// slug is unknown.
func (c *Catalog) ModulePermissions(ctx context.Context, slug string) (map[string][]string, error) {
	d, ok, err := c.Get(ctx, slug)
	if err != nil || !ok {
		return nil, err
	}
	return d.ModulePermissions, nil
}

// CanManage reports whether the manager role may administer the target role:
// target must appear in can_manage_roles (wildcard supported) and must not
// appear in cannot_manage (where "*" excludes every role).
func (c *Catalog) CanManage(ctx context.Context, managerSlug, targetSlug string) (bool, error) {
	manager, ok, err := c.Get(ctx, managerSlug)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	for _, denied := range manager.Hierarchy.CannotManage {
		if denied == "*" || denied == targetSlug {
			return false, nil
		}
	}
	for _, allowed := range manager.Hierarchy.CanManageRoles {
		if allowed == "*" || allowed == targetSlug {
			return true, nil
		}
	}
	return false, nil
}

// Describe is a convenience for error paths needing a display name.
func (c *Catalog) Describe(ctx context.Context, slug string) (string, error) {
	d, ok, err := c.Get(ctx, slug)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("catalog: unknown role %q", slug)
	}
	return d.Name, nil
}

package modules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/helios-suite/helios/internal/catalog"
)

// Invalidator is the slice of the role catalog the service needs: module
// state feeds module-gated permissions, so every activation change must drop
// the catalog snapshot.
type Invalidator interface {
	Invalidate()
}

// DescriptorRewriter updates stored descriptor blobs when a module's
// permission surface changes.
type DescriptorRewriter interface {
	RewriteModuleBlock(ctx context.Context, slug, module string, perms []string) error
	SlugsReferencingModule(ctx context.Context, module string) ([]string, error)
}

// ActivationStore persists per-tenant module activation state.
type ActivationStore interface {
	SetActive(ctx context.Context, orgID int64, module string, active bool) error
}

// Service owns module activation changes and keeps the permission caches
// coherent around them.
type Service struct {
	repo    ActivationStore
	cache   *CachedRegistry
	catalog Invalidator
	store   DescriptorRewriter
	logger  *slog.Logger
}

// NewService constructs a Service.
func NewService(repo ActivationStore, cache *CachedRegistry, cat Invalidator, store DescriptorRewriter, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, catalog: cat, store: store, logger: logger}
}

// Activate marks the module active for the tenant and synchronously drops
// every cache deriving from module state.
func (s *Service) Activate(ctx context.Context, orgID int64, module string) error {
	return s.setActive(ctx, orgID, module, true)
}

// Deactivate marks the module inactive for the tenant.
func (s *Service) Deactivate(ctx context.Context, orgID int64, module string) error {
	return s.setActive(ctx, orgID, module, false)
}

func (s *Service) setActive(ctx context.Context, orgID int64, module string, active bool) error {
	if err := s.repo.SetActive(ctx, orgID, module, active); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Forget(ctx, orgID)
	}
	s.catalog.Invalidate()
	s.logger.Info("module activation changed",
		slog.Int64("org_id", orgID), slog.String("module", module), slog.Bool("active", active))
	return nil
}

// SyncRolePermissions rewrites the module-permission block of every built-in
// descriptor referencing the module, then invalidates the catalog once. The
// rewrite-plus-reload pair behaves as a single update: readers either see the
// old snapshot or the fully rewritten one.
func (s *Service) SyncRolePermissions(ctx context.Context, module string, perms []string) error {
	slugs, err := s.store.SlugsReferencingModule(ctx, module)
	if err != nil {
		return err
	}
	for _, slug := range slugs {
		if err := s.store.RewriteModuleBlock(ctx, slug, module, perms); err != nil {
			return fmt.Errorf("modules: sync %s into %s: %w", module, slug, err)
		}
	}
	s.catalog.Invalidate()
	s.logger.Info("module permission surface synced",
		slog.String("module", module), slog.Int("descriptors", len(slugs)))
	return nil
}

var _ Invalidator = (*catalog.Catalog)(nil)
var _ DescriptorRewriter = (*catalog.Store)(nil)
var _ ActivationStore = (*Repository)(nil)

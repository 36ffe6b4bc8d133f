package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helios-suite/helios/internal/platform/db"
	"github.com/helios-suite/helios/internal/shared"
)

// Store is the versioned slug -> descriptor-blob record store. Built-in
// descriptors live here after seeding so that runtime mutations (module
// activation rewriting a permission block) are transactional record updates
// instead of file rewrites.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Load returns every stored descriptor record.
func (s *Store) Load(ctx context.Context) ([]Record, error) {
	const query = `SELECT interface, slug, body, version FROM role_descriptors ORDER BY slug`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: load descriptors: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Interface, &rec.Slug, &rec.Body, &rec.Version); err != nil {
			return nil, fmt.Errorf("catalog: scan descriptor: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: load descriptors: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("catalog: descriptor store is empty, seed required")
	}
	return records, nil
}

// Seed copies records from src into the store, skipping slugs that already
// exist so locally mutated descriptors survive restarts.
func (s *Store) Seed(ctx context.Context, src Source) error {
	records, err := src.Load(ctx)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO role_descriptors (interface, slug, body, version)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (slug) DO NOTHING`
	for _, rec := range records {
		if _, err := s.pool.Exec(ctx, query, rec.Interface, rec.Slug, rec.Body); err != nil {
			return fmt.Errorf("catalog: seed %s: %w", rec.Slug, err)
		}
	}
	return nil
}

// RewriteModuleBlock replaces one descriptor's permission array for a module
// and bumps its version, all in one transaction. An empty perms slice removes
// the module block. The caller is responsible for invalidating the catalog
// afterwards.
func (s *Store) RewriteModuleBlock(ctx context.Context, slug, module string, perms []string) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var body []byte
		err := tx.QueryRow(ctx, `SELECT body FROM role_descriptors WHERE slug = $1 FOR UPDATE`, slug).Scan(&body)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrRoleNotFound
			}
			return fmt.Errorf("catalog: lock descriptor %s: %w", slug, err)
		}

		var desc Descriptor
		if err := json.Unmarshal(body, &desc); err != nil {
			return fmt.Errorf("catalog: decode descriptor %s: %w", slug, err)
		}
		if desc.ModulePermissions == nil {
			desc.ModulePermissions = map[string][]string{}
		}
		if len(perms) == 0 {
			delete(desc.ModulePermissions, module)
		} else {
			desc.ModulePermissions[module] = perms
		}

		updated, err := json.Marshal(desc)
		if err != nil {
			return fmt.Errorf("catalog: encode descriptor %s: %w", slug, err)
		}
		_, err = tx.Exec(ctx,
			`UPDATE role_descriptors SET body = $2, version = version + 1, updated_at = now() WHERE slug = $1`,
			slug, updated)
		if err != nil {
			return fmt.Errorf("catalog: rewrite descriptor %s: %w", slug, err)
		}
		return nil
	})
}

// SlugsReferencingModule lists descriptors carrying a permission block for
// the given module.
func (s *Store) SlugsReferencingModule(ctx context.Context, module string) ([]string, error) {
	const query = `SELECT slug FROM role_descriptors WHERE body -> 'module_permissions' ? $1 ORDER BY slug`
	rows, err := s.pool.Query(ctx, query, module)
	if err != nil {
		return nil, fmt.Errorf("catalog: slugs for module %s: %w", module, err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("catalog: scan slug: %w", err)
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

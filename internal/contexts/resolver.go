package contexts

import (
	"context"
	"fmt"

	"github.com/helios-suite/helios/internal/shared"
)

// Repository is the persistence surface the resolver needs.
type Repository interface {
	// EnsureContext returns the context node for (kind, resourceID),
	// creating it when absent. Creation is idempotent.
	EnsureContext(ctx context.Context, kind Kind, resourceID int64, parentID *int64) (Context, error)
	// GetContext fetches a node by ID.
	GetContext(ctx context.Context, id int64) (Context, error)
	// ProjectOrg returns the owning organization ID for a project, or
	// shared.ErrUnknownProject.
	ProjectOrg(ctx context.Context, projectID int64) (int64, error)
}

// Resolver turns scoping hints into context nodes and ancestor chains.
type Resolver struct {
	repo Repository
}

// NewResolver constructs a Resolver.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve builds the context node for hint plus its ancestor chain, ordered
// leaf first. A project hint yields [project, organization, system]; an
// organization hint yields [organization, system]; an empty hint yields
// [system].
func (r *Resolver) Resolve(ctx context.Context, hint Hint) (Context, []Context, error) {
	system, err := r.repo.EnsureContext(ctx, KindSystem, 0, nil)
	if err != nil {
		return Context{}, nil, fmt.Errorf("contexts: ensure system: %w", err)
	}

	if hint.ProjectID == nil && hint.OrgID == nil {
		return system, []Context{system}, nil
	}

	orgID := int64(0)
	if hint.OrgID != nil {
		orgID = *hint.OrgID
	}
	if hint.ProjectID != nil {
		owner, err := r.repo.ProjectOrg(ctx, *hint.ProjectID)
		if err != nil {
			return Context{}, nil, err
		}
		orgID = owner
	}

	org, err := r.repo.EnsureContext(ctx, KindOrganization, orgID, &system.ID)
	if err != nil {
		return Context{}, nil, fmt.Errorf("contexts: ensure organization %d: %w", orgID, err)
	}

	if hint.ProjectID == nil {
		return org, []Context{org, system}, nil
	}

	project, err := r.repo.EnsureContext(ctx, KindProject, *hint.ProjectID, &org.ID)
	if err != nil {
		return Context{}, nil, fmt.Errorf("contexts: ensure project %d: %w", *hint.ProjectID, err)
	}
	return project, []Context{project, org, system}, nil
}

// Chain rebuilds the ancestor chain for an already-resolved context node by
// walking parent pointers up to the system root.
func (r *Resolver) Chain(ctx context.Context, node Context) ([]Context, error) {
	chain := []Context{node}
	current := node
	for current.ParentID != nil {
		parent, err := r.repo.GetContext(ctx, *current.ParentID)
		if err != nil {
			return nil, fmt.Errorf("contexts: walk parent %d: %w", *current.ParentID, err)
		}
		chain = append(chain, parent)
		current = parent
	}
	return chain, nil
}

// OrgID walks node's chain and returns the organization resource ID it
// belongs to, or false for purely system-scoped nodes.
func (r *Resolver) OrgID(ctx context.Context, node Context) (int64, bool, error) {
	switch node.Kind {
	case KindOrganization:
		return node.ResourceID, true, nil
	case KindProject:
		if node.ParentID == nil {
			return 0, false, fmt.Errorf("contexts: project context %d has no parent: %w", node.ID, shared.ErrNotFound)
		}
		parent, err := r.repo.GetContext(ctx, *node.ParentID)
		if err != nil {
			return 0, false, err
		}
		return parent.ResourceID, parent.Kind == KindOrganization, nil
	default:
		return 0, false, nil
	}
}

package authz

import (
	"context"
	"fmt"
	"sync"

	"github.com/helios-suite/helios/internal/conditions"
	"github.com/helios-suite/helios/internal/contexts"
)

// Checker memoizes permission decisions for the lifetime of one logical
// operation. Repeated checks of the same (user, permission, scope) within a
// request skip the hierarchy walk. A Checker must never be shared across
// requests or tenants; the middleware creates a fresh one per request.
type Checker struct {
	service *Service

	mu   sync.Mutex
	memo map[string]bool
}

// Checker returns a fresh per-operation memoizing wrapper.
func (s *Service) Checker() *Checker {
	return &Checker{service: s, memo: make(map[string]bool)}
}

func memoKey(userID int64, permission string, hint contexts.Hint) string {
	org, project := int64(-1), int64(-1)
	if hint.OrgID != nil {
		org = *hint.OrgID
	}
	if hint.ProjectID != nil {
		project = *hint.ProjectID
	}
	return fmt.Sprintf("%d|%s|%d|%d", userID, permission, org, project)
}

// Can answers like Service.Can but serves repeats from the memo. Only
// successful evaluations are memoized; errors always retry.
func (c *Checker) Can(ctx context.Context, userID int64, permission string, hint contexts.Hint, in conditions.Input) (bool, error) {
	key := memoKey(userID, permission, hint)

	c.mu.Lock()
	if decision, ok := c.memo[key]; ok {
		c.mu.Unlock()
		return decision, nil
	}
	c.mu.Unlock()

	decision, err := c.service.Can(ctx, userID, permission, hint, in)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.memo[key] = decision
	c.mu.Unlock()
	return decision, nil
}

type checkerContextKey struct{}

// ContextWithChecker stores a per-request checker in context.
func ContextWithChecker(ctx context.Context, c *Checker) context.Context {
	return context.WithValue(ctx, checkerContextKey{}, c)
}

// CheckerFromContext extracts the request's checker, nil when absent.
func CheckerFromContext(ctx context.Context) *Checker {
	c, _ := ctx.Value(checkerContextKey{}).(*Checker)
	return c
}

package auth

import "time"

// APIToken is one service credential for the engine's HTTP surface. The
// secret is stored as a bcrypt hash; the caller presents "<id>.<secret>".
type APIToken struct {
	ID         string
	Name       string
	SecretHash string
	Active     bool
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

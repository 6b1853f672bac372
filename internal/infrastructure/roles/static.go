package roles

import (
	"fmt"

	"github.com/tradeflow/approval-engine/internal/application/port"
	"github.com/tradeflow/approval-engine/internal/domain/document"
)

// KindMappings holds the role and user assignments for one document kind.
type KindMappings struct {
	// Roles maps an acting role name to the approval level it decides.
	Roles map[string]string
	// Users maps a user id to the approval level they hold.
	Users map[string]string
}

// StaticResolver resolves roles and users to levels from configuration
// loaded at startup. The tables are immutable afterwards, so lookups are
// safe for concurrent use.
type StaticResolver struct {
	byKind map[document.Kind]KindMappings
}

// NewStaticResolver builds a resolver from per-kind mapping tables.
func NewStaticResolver(byKind map[document.Kind]KindMappings) *StaticResolver {
	return &StaticResolver{byKind: byKind}
}

// LevelForRole resolves an acting role to its approval level.
func (r *StaticResolver) LevelForRole(kind document.Kind, role string) (string, error) {
	level, ok := r.byKind[kind].Roles[role]
	if !ok {
		return "", fmt.Errorf("%w: role %q has no approval level for kind %s",
			document.ErrNotAuthorized, role, kind)
	}
	return level, nil
}

// LevelForUser resolves a user id to their approval level.
func (r *StaticResolver) LevelForUser(kind document.Kind, userID string) (string, error) {
	level, ok := r.byKind[kind].Users[userID]
	if !ok {
		return "", fmt.Errorf("%w: user %q has no approval level for kind %s",
			document.ErrNotAuthorized, userID, kind)
	}
	return level, nil
}

// Verify interface compliance
var _ port.RoleResolver = (*StaticResolver)(nil)

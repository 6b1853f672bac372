package port

import "github.com/tradeflow/approval-engine/internal/domain/document"

// RoleResolver maps acting roles and user ids to approval levels. It is
// the single place role-to-level knowledge lives; resolution failures are
// document.ErrNotAuthorized.
type RoleResolver interface {
	// LevelForRole resolves an acting role to the approval level it may
	// decide for the given document kind.
	LevelForRole(kind document.Kind, role string) (string, error)

	// LevelForUser resolves a user id to the approval level they hold
	// for the given document kind. Used by delegation.
	LevelForUser(kind document.Kind, userID string) (string, error)
}

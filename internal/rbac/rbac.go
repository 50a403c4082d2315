// Package rbac maps operator roles onto what they may do through the API.
package rbac

type Role string
type Action string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

const (
	// ActionRead covers the processing log, unmatched audit, agendas and search.
	ActionRead Action = "read"
	// ActionOperate covers resolving unmatched rows and triggering runs.
	ActionOperate Action = "operate"
	// ActionAdmin covers filter sync and anything that touches mailbox settings.
	ActionAdmin Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleOperator:
		return action == ActionRead || action == ActionOperate
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

// Normalize maps unknown roles to viewer.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleOperator, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}

// Valid reports whether role names a known role exactly.
func Valid(role string) bool {
	return Normalize(role) == Role(role)
}

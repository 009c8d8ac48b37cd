package domain

// Action is a privileged operation evaluated against the role policy table.
type Action string

const (
	ActionCreateUser     Action = "user.create"
	ActionUpdateUser     Action = "user.update"
	ActionDeleteUser     Action = "user.delete"      // soft delete (active=false)
	ActionHardDeleteUser Action = "user.hard_delete" // permanent removal
	ActionListUsers      Action = "user.list"
	ActionUnlockAccount  Action = "user.unlock"
	ActionQueryActivity  Action = "activity.query" // cross-account queries
	ActionPruneActivity  Action = "activity.prune"
)

// Can evaluates the role policy in one place instead of scattering role
// string comparisons across call sites. target is the role of the account
// being acted on; for actions without a target account (list, prune) pass
// the zero value.
//
// The root account itself is untouchable: no actor, including root, may
// delete or demote it.
func Can(actor Role, action Action, target Role) bool {
	switch actor {
	case RoleRoot:
		switch action {
		case ActionDeleteUser, ActionHardDeleteUser:
			return target != RoleRoot
		default:
			return true
		}
	case RoleAdmin:
		switch action {
		case ActionCreateUser, ActionUpdateUser:
			// Admins manage non-root accounts and cannot mint root.
			return target != RoleRoot
		case ActionDeleteUser, ActionUnlockAccount:
			return target != RoleRoot
		case ActionHardDeleteUser:
			return false
		case ActionListUsers, ActionQueryActivity, ActionPruneActivity:
			return true
		}
		return false
	default:
		return false
	}
}

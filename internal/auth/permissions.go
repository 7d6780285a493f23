package auth

import "slices"

// Can applies the rules for kind. Unknown kinds are denied.
func (e *Evaluator) Can(kind ResourceKind, action Action, res *Resource) bool {
	if e == nil || e.user == nil {
		return false
	}
	if e.user.Role == RoleAdmin {
		return true
	}
	switch kind {
	case KindProject, KindTeam:
		if action == ActionCreate {
			return e.isLead()
		}
		return e.related(action, res)
	case KindTask:
		if action == ActionCreate {
			// res is the parent project.
			return res != nil && (res.OwnerID == e.user.ID || slices.Contains(res.MemberIDs, e.user.ID))
		}
		return e.related(action, res)
	case KindUser:
		if res == nil {
			return false
		}
		if res.ID == e.user.ID {
			return action == ActionRead || action == ActionUpdate
		}
		return action == ActionRead && e.isLead()
	default:
		return false
	}
}

func (e *Evaluator) isLead() bool {
	return e.user.Role == RoleTeamLead || e.user.Role == RoleManager
}

// related grants owners everything, members read and update, and viewers or
// members of an associated team read only.
func (e *Evaluator) related(action Action, res *Resource) bool {
	if res == nil {
		return false
	}
	uid := e.user.ID
	if res.OwnerID != "" && res.OwnerID == uid {
		return true
	}
	if slices.Contains(res.MemberIDs, uid) {
		return action == ActionRead || action == ActionUpdate
	}
	if action != ActionRead {
		return false
	}
	if slices.Contains(res.ViewerIDs, uid) {
		return true
	}
	for _, t := range res.TeamIDs {
		if e.InTeam(t) {
			return true
		}
	}
	return false
}

package documents

// Access decisions are pure functions of the loaded document and the
// requester identity. Every mutating service operation consults one of these
// before touching state.

// CanView reports whether the requester may read the document: the owner or
// any user holding a share grant.
func (d *Document) CanView(requesterID string) bool {
	if d == nil || requesterID == "" {
		return false
	}
	if d.OwnerID == requesterID {
		return true
	}
	for _, grant := range d.Grants {
		if grant.UserID == requesterID {
			return true
		}
	}
	return false
}

// CanEdit reports whether the requester may mutate content, title, or the
// rich-text flag: the owner or a grantee holding edit permission.
func (d *Document) CanEdit(requesterID string) bool {
	if d == nil || requesterID == "" {
		return false
	}
	if d.OwnerID == requesterID {
		return true
	}
	for _, grant := range d.Grants {
		if grant.UserID == requesterID && grant.Permission == PermissionEdit {
			return true
		}
	}
	return false
}

// CanDelete reports whether the requester may delete or share the document.
// Only the owner holds this right.
func (d *Document) CanDelete(requesterID string) bool {
	if d == nil || requesterID == "" {
		return false
	}
	return d.OwnerID == requesterID
}

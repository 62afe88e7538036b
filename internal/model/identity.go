package model

// Identity is the authenticated caller attached to a request once its access
// token has been verified.
type Identity struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the caller holds the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanAccess applies the ownership rule: the owner of a resource or any admin
// may act on it.
func (i Identity) CanAccess(ownerID string) bool {
	return i.UserID != "" && (i.UserID == ownerID || i.IsAdmin())
}

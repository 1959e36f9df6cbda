package structs

// User holds a local identity, the external identity supplied by the calling
// context, and the ids of the conditioning logs the user owns. It never holds
// log content; ownership and cache membership are derived from LogIDs.
type User struct {
	ID         string   `json:"id"`
	ExternalID string   `json:"external_id"`
	LogIDs     []string `json:"log_ids"`
}

// Clone returns a copy of the user with its own LogIDs slice.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.LogIDs = append([]string(nil), u.LogIDs...)
	return &out
}

// OwnsLog reports whether the given log id appears in the user's log-id list.
func (u *User) OwnsLog(logID string) bool {
	for _, id := range u.LogIDs {
		if id == logID {
			return true
		}
	}
	return false
}

// Caller is the per-request identity the API layer builds from an
// authenticated request. It is trusted as-is by the core.
type Caller struct {
	UserID string
	Roles  []string
}

// HasRole reports whether the caller carries the given role.
func (c Caller) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

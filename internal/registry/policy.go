package registry

// IsAllowed is the access policy for registration and status commands.
// In admin mode only admins are allowed; in multi-user mode everyone is.
func IsAllowed(mode Mode, admins map[int64]struct{}, id int64) bool {
	if mode != ModeAdmin {
		return true
	}
	_, ok := admins[id]
	return ok
}

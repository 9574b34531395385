package gpio

// logical converts a raw line value to "power present".
func logical(raw int, activeLow bool) bool {
	if activeLow {
		return raw == 0
	}
	return raw != 0
}

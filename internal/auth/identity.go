package auth

// Identity is the request-scoped authenticated caller, extracted from the
// bearer token by the HTTP middleware and threaded into service-level
// authorization checks. A nil *Identity means an anonymous (guest) caller.
type Identity struct {
	UserID  int64
	IsAdmin bool
}

// CanAccessOrder reports whether the caller may read or mutate an order
// owned by ownerID (nil for guest orders, which only admins may touch).
func (i *Identity) CanAccessOrder(ownerID *int64) bool {
	if i == nil {
		return false
	}
	if i.IsAdmin {
		return true
	}
	return ownerID != nil && *ownerID == i.UserID
}

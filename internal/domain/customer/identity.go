package customer

// Identity is the authenticated storefront customer a request acts for. The bearer token is
// forwarded verbatim to the storefront backend; this service never mints or refreshes it.
type Identity struct {
	UserID      string
	BearerToken string
}

// IsZero reports whether no customer is attached.
func (i Identity) IsZero() bool {
	return i.UserID == "" && i.BearerToken == ""
}

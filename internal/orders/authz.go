package orders

// Staff sees every order; everyone else only their own. Failing this check
// on a read is reported as not-found, not forbidden.
func (p Principal) CanView(o *Order) bool {
	return p.Staff || o.CustomerID == p.ID
}

// CanMutate mirrors CanView today, but the two call sites differ in what
// they report: mutation of someone else's order is an explicit forbidden.
func (p Principal) CanMutate(o *Order) bool {
	return p.Staff || o.CustomerID == p.ID
}

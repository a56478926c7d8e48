package models

// Address is a snapshot of the official postal address returned by the
// national address lookup. It is persisted on the letter proofing state so a
// retry dispatches to the same address that was resolved first.
type Address struct {
	CareOf     string `json:"care_of,omitempty"`
	Street     string `json:"street"`
	PostalCode string `json:"postal_code"`
	City       string `json:"city"`
	Country    string `json:"country,omitempty"`
}

// Complete reports whether the address carries the fields the letter renderer
// requires. Incomplete addresses are rejected before dispatch.
func (a Address) Complete() bool {
	return a.Street != "" && a.PostalCode != "" && a.City != ""
}

// IsZero reports whether no address has been resolved yet.
func (a Address) IsZero() bool {
	return a == Address{}
}

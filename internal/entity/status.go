package entity

// WrapperStatus is the registration state of a wrapper in the vault's
// weight table: Inactive -> Active on add, Active -> Inactive on removal
// after capital is reclaimed.
type WrapperStatus int

const (
	WrapperInactive WrapperStatus = iota
	WrapperActive
)

func (s WrapperStatus) String() string {
	if s == WrapperActive {
		return "active"
	}
	return "inactive"
}

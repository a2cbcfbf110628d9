package config

// backend persists the non-secret keys. Values are decoded and encoded
// against the key table, so a stored value always has its key's type.
type backend interface {
	value(s keySpec) (v any, ok bool, err error)
	set(s keySpec, v any) error
	unset(key string) error
}

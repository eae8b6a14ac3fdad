//go:build !allocdebug

package alloc

// debugValidate calls Validate on v and panics if it returns an error.
// This method no-ops unless the allocdebug build tag is present.
func debugValidate(v validatable) {}

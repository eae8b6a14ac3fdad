package alloc

// validatable is implemented by every allocator strategy.
type validatable interface {
	Validate() error
}

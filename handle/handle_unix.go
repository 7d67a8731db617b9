//go:build unix

package handle

// Fd is a unix file descriptor.
type Fd int

// Invalid marks an unbound or released descriptor.
const Invalid Fd = -1

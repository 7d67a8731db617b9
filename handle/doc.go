// Package handle holds the descriptor identity shared by socket and poller.
// Identities are compared by equality only; Invalid is the one reserved value.
package handle

// Valid reports whether fd is not the Invalid sentinel.
func (fd Fd) Valid() bool {
	return fd != Invalid
}

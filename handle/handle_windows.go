//go:build windows

package handle

// Fd is a winsock SOCKET.
type Fd uintptr

// Invalid is INVALID_SOCKET.
const Invalid Fd = ^Fd(0)

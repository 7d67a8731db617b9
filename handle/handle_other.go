//go:build !unix && !windows

package handle

type Fd int

const Invalid Fd = -1

package utils

import "sync"

func WrapLock(lock sync.Locker, fn func()) {
	lock.Lock()
	defer lock.Unlock()

	fn()
}

// WrapLockErr is WrapLock for bodies that can fail.
func WrapLockErr(lock sync.Locker, fn func() error) error {
	lock.Lock()
	defer lock.Unlock()

	return fn()
}

//go:build unix

package safemem

import "golang.org/x/sys/unix"

// lockPages requests that the OS exclude data's backing pages from swap.
func lockPages(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Mlock(data)
}

// unlockPages releases a prior lockPages call.
func unlockPages(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Munlock(data)
}

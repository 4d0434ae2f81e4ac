package esp

import (
	"golang.org/x/sys/unix"
)

// SyncFilesystem flushes the whole filesystem backing mountPoint.
// FAT32 provides little recovery after a crash, so the caller runs this
// unconditionally at the end of every run, successful or not.
func SyncFilesystem(mountPoint string) error {
	fd, err := unix.Open(mountPoint, unix.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	return unix.Syncfs(fd)
}

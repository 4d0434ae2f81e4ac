// Package esp contains the boot-partition plumbing: crash-safe file
// writes, store-to-boot-partition materialization of kernels and
// initrds, and filesystem flushing. The partition is typically FAT32,
// which offers no recovery after a crash, so nothing here ever exposes
// a partially written file under its final name.
package esp

import (
	"io"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to filename using a temporary file in the
// same directory, fsyncs it, and renames it into place. A crash at any
// point leaves either the old file or the new one, never a torn write.
func WriteFileAtomic(filename string, data []byte, mode os.FileMode) error {
	dir, name := filepath.Dir(filename), filepath.Base(filename)

	tmpfile, err := os.CreateTemp(dir, name+"-*.tmp")
	if err != nil {
		return err
	}

	_, err = tmpfile.Write(data)
	if err != nil {
		tmpfile.Close()
		os.Remove(tmpfile.Name())
		return err
	}

	err = tmpfile.Chmod(mode)
	if err != nil {
		tmpfile.Close()
		os.Remove(tmpfile.Name())
		return err
	}

	err = tmpfile.Sync()
	if err != nil {
		tmpfile.Close()
		os.Remove(tmpfile.Name())
		return err
	}

	err = tmpfile.Close()
	if err != nil {
		os.Remove(tmpfile.Name())
		return err
	}

	err = os.Rename(tmpfile.Name(), filename)
	if err != nil {
		os.Remove(tmpfile.Name())
		return err
	}

	return nil
}

// CopyFileIfNotExists copies source to dest unless dest already exists.
// The copy itself goes through a temporary file, so an interrupted copy
// never leaves a truncated dest behind.
func CopyFileIfNotExists(source, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	data, err := readAll(source)
	if err != nil {
		return err
	}
	return WriteFileAtomic(dest, data, 0644)
}

func readAll(filename string) ([]byte, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

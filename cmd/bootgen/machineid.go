package main

import (
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// readMachineID returns the host's machine id, or an empty string when
// the host has none. Boot entries carry the id so that several
// installations sharing one ESP only list their own generations.
func readMachineID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	id := strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0])

	// A machine id is 128 bits of hex, the dashless form uuid accepts.
	if _, err := uuid.Parse(id); err != nil {
		logrus.Warnf("ignoring malformed machine id %q: %v", id, err)
		return "", nil
	}
	return id, nil
}

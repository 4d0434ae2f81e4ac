// Package generation enumerates the system generations known to the nix
// profile store and names them.
package generation

import (
	"fmt"
	"path/filepath"
)

// SystemIdentifier uniquely names one bootable configuration. An empty
// Profile means the default system profile, an empty Specialisation the
// generation itself.
type SystemIdentifier struct {
	Profile        string
	Generation     int
	Specialisation string
}

func (id SystemIdentifier) String() string {
	s := fmt.Sprintf("generation %d", id.Generation)
	if id.Profile != "" {
		s += fmt.Sprintf(" of profile %q", id.Profile)
	}
	if id.Specialisation != "" {
		s += fmt.Sprintf(", specialisation %q", id.Specialisation)
	}
	return s
}

// Dir returns the profile link directory of the generation, ignoring
// any specialisation.
func (id SystemIdentifier) Dir(profileDir string) string {
	if id.Profile != "" {
		return filepath.Join(profileDir, "system-profiles", fmt.Sprintf("%s-%d-link", id.Profile, id.Generation))
	}
	return filepath.Join(profileDir, fmt.Sprintf("system-%d-link", id.Generation))
}

// SystemDir returns the system directory the generation boots into,
// descending into the specialisation subdirectory when one is set.
func (id SystemIdentifier) SystemDir(profileDir string) string {
	d := id.Dir(profileDir)
	if id.Specialisation != "" {
		return filepath.Join(d, "specialisation", id.Specialisation)
	}
	return d
}

// Package config holds the immutable run configuration for bootgen. It is
// populated once at process start and never mutated afterwards.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

type ToolSettings struct {
	Nix             string `toml:"nix"`
	Bootctl         string `toml:"bootctl"`
	Synthesize      string `toml:"synthesize"`
	CopyExtraFiles  string `toml:"copy_extra_files"`
	CheckMountpoint string `toml:"check_mountpoints"`
}

type LoaderSettings struct {
	Timeout            int    `toml:"timeout"`
	Editor             bool   `toml:"editor"`
	ConsoleMode        string `toml:"console_mode"`
	RebootForBitlocker bool   `toml:"reboot_for_bitlocker"`
}

// Config describes one reconciliation run. BootMountPoint equals
// ESPMountPoint unless entries live on a separate XBOOTLDR partition.
type Config struct {
	ESPMountPoint  string `toml:"esp_mount_point"`
	BootMountPoint string `toml:"boot_mount_point"`
	// Directory for materialized kernels and initrds, relative to the
	// boot mount point.
	NixosDir string `toml:"nixos_dir"`

	DistroName string `toml:"distro_name"`
	StoreDir   string `toml:"store_dir"`
	ProfileDir string `toml:"profile_dir"`

	// Per-profile retention cap. Zero or negative keeps everything.
	ConfigurationLimit int `toml:"configuration_limit"`

	CanTouchEfiVariables bool `toml:"can_touch_efi_variables"`
	Graceful             bool `toml:"graceful"`

	Loader LoaderSettings `toml:"loader"`
	Tools  ToolSettings   `toml:"tools"`

	// Resolved from the environment, not the config file.
	FreshInstall bool `toml:"-"`
}

// Parse reads the TOML configuration from file and merges it over the
// defaults. A missing file is not an error.
func Parse(file string) (*Config, error) {
	config := Config{
		ESPMountPoint: "/boot",
		NixosDir:      "/EFI/nixos",
		DistroName:    "NixOS",
		StoreDir:      "/nix/store",
		ProfileDir:    "/nix/var/nix/profiles",
		Loader: LoaderSettings{
			Timeout:     5,
			Editor:      true,
			ConsoleMode: "keep",
		},
		Tools: ToolSettings{
			Nix:     "nix-env",
			Bootctl: "bootctl",
		},
	}

	_, err := toml.DecodeFile(file, &config)
	if err != nil {
		// A non-existing config isn't an error, use defaults in this
		// case.
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if config.BootMountPoint == "" {
		config.BootMountPoint = config.ESPMountPoint
	}
	if config.Loader.Timeout < 0 {
		return nil, fmt.Errorf("invalid loader timeout: %d", config.Loader.Timeout)
	}

	config.FreshInstall = installRequested()

	return &config, nil
}

// installRequested resolves the NIXOS_INSTALL_BOOTLOADER environment
// variable, honoring the deprecated NIXOS_INSTALL_GRUB spelling.
func installRequested() bool {
	if os.Getenv("NIXOS_INSTALL_GRUB") == "1" {
		logrus.Warn("NIXOS_INSTALL_GRUB is deprecated, set NIXOS_INSTALL_BOOTLOADER instead")
		return true
	}
	return os.Getenv("NIXOS_INSTALL_BOOTLOADER") == "1"
}

// SeparateBoot reports whether boot entries live on a partition distinct
// from the EFI system partition.
func (c *Config) SeparateBoot() bool {
	return c.BootMountPoint != c.ESPMountPoint
}

// LoaderConf is always stored on the ESP, even with a separate XBOOTLDR
// partition.
func (c *Config) LoaderConf() string {
	return filepath.Join(c.ESPMountPoint, "loader", "loader.conf")
}

func (c *Config) EntriesDir() string {
	return filepath.Join(c.BootMountPoint, "loader", "entries")
}

// ArtifactsDir is where kernels, initrds and device trees are
// materialized on the boot partition.
func (c *Config) ArtifactsDir() string {
	return filepath.Join(c.BootMountPoint, c.NixosDir)
}

// ExtraFilesDir is the staging tree mirroring administrator-supplied
// extra files that were copied onto the boot partition.
func (c *Config) ExtraFilesDir() string {
	return filepath.Join(c.ArtifactsDir(), ".extra-files")
}

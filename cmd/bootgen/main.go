package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/sirupsen/logrus"

	"github.com/osbuild/bootgen/internal/common"
	"github.com/osbuild/bootgen/internal/config"
	"github.com/osbuild/bootgen/internal/reconcile"
)

const defaultConfigFile = "/etc/bootgen/bootgen.toml"

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", defaultConfigFile, "Path to the bootgen configuration file")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-config file] DEFAULT-CONFIG\n\nUpdate the systemd-boot entries for all installed system generations.\nDEFAULT-CONFIG is the system configuration to boot by default.\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 || flag.Arg(0) == "" {
		flag.Usage()
		os.Exit(2)
	}

	// When running as a systemd unit, log structured records straight
	// to the journal instead of double-wrapping stderr.
	if journal.Enabled() && os.Getenv("INVOCATION_ID") != "" {
		logrus.AddHook(&common.JournalHook{})
	}

	cfg, err := config.Parse(configFile)
	if err != nil {
		logrus.Fatalf("Could not load config file '%s': %v", configFile, err)
	}

	machineID, err := readMachineID("/etc/machine-id")
	if err != nil {
		logrus.Fatalf("Could not read machine id: %v", err)
	}

	err = reconcile.New(cfg, machineID).Run(flag.Arg(0))
	if err != nil {
		logrus.Fatalf("%v", err)
	}
}

// Command mkregistry is the host-side boot-registry image builder,
// grounded directly on create-boot-registry.c's CreateBootRegistry,
// CreateKernelRegistry and main: it writes the same two fixed example
// trees (a boot-menu registry and a kernel driver-enable registry)
// through kernel/bootreg.Writer instead of hand-rolled FILE* calls.
//
// Like tools/makelogo and cmd/mkbootasset, mkregistry only ever produces
// checked-in or build-time host artifacts; kernel/bootreg.Writer itself
// is never linked into the kernel image, only Reader is (via
// kernel/bringup).
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ardent-os/ardent/kernel/bootreg"
)

func createBootRegistry(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, root, werr := bootreg.Create(f)
	if werr != nil {
		return fmt.Errorf("create registry: %s", werr.Message)
	}
	if err := w.CreateIntegerKey(root, "Timeout", bootreg.EntryDword, 5); err != nil {
		return fmt.Errorf("Timeout: %s", err.Message)
	}
	if err := w.CreateIntegerKey(root, "DefaultSelection", bootreg.EntryDword, 0); err != nil {
		return fmt.Errorf("DefaultSelection: %s", err.Message)
	}

	entries, werr := w.CreateSubKey(root, "Entries")
	if werr != nil {
		return fmt.Errorf("Entries: %s", werr.Message)
	}

	disk, werr := w.CreateSubKey(entries, "Boot from the Installation Disk")
	if werr != nil {
		return fmt.Errorf("Boot from the Installation Disk: %s", werr.Message)
	}
	if err := w.CreateIntegerKey(disk, "Type", bootreg.EntryDword, 0); err != nil {
		return fmt.Errorf("Type: %s", err.Message)
	}
	if err := w.CreateStringKey(disk, "SystemFolder", "boot()/System"); err != nil {
		return fmt.Errorf("SystemFolder: %s", err.Message)
	}

	hdd, werr := w.CreateSubKey(entries, "Boot from the First Hard Disk")
	if werr != nil {
		return fmt.Errorf("Boot from the First Hard Disk: %s", werr.Message)
	}
	if err := w.CreateIntegerKey(hdd, "Type", bootreg.EntryDword, 1); err != nil {
		return fmt.Errorf("Type: %s", err.Message)
	}
	if err := w.CreateStringKey(hdd, "BootDevice", "bios(80)"); err != nil {
		return fmt.Errorf("BootDevice: %s", err.Message)
	}

	return nil
}

func createKernelRegistry(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, root, werr := bootreg.Create(f)
	if werr != nil {
		return fmt.Errorf("create registry: %s", werr.Message)
	}

	drivers, werr := w.CreateSubKey(root, "Drivers")
	if werr != nil {
		return fmt.Errorf("Drivers: %s", werr.Message)
	}
	if err := w.CreateIntegerKey(drivers, "acpi.sys", bootreg.EntryDword, 1); err != nil {
		return fmt.Errorf("acpi.sys: %s", err.Message)
	}
	if err := w.CreateIntegerKey(drivers, "pci.sys", bootreg.EntryDword, 1); err != nil {
		return fmt.Errorf("pci.sys: %s", err.Message)
	}

	return nil
}

func main() {
	root := flag.String("root", "_root", "output tree root, matching the layout the loader expects to find under boot()/")
	flag.Parse()

	if err := createBootRegistry(filepath.Join(*root, "bootmgr.reg")); err != nil {
		fmt.Fprintf(os.Stderr, "mkregistry: %s\n", err)
		os.Exit(1)
	}
	if err := createKernelRegistry(filepath.Join(*root, "System", "kernel.reg")); err != nil {
		fmt.Fprintf(os.Stderr, "mkregistry: %s\n", err)
		os.Exit(1)
	}
}

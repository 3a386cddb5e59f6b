// Package bootcfg defines the boot configuration surface described in
// spec.md §6 ("Configuration surface"): a boot entry struct and the narrow
// interface a concrete parser would satisfy. The INI-style grammar itself
// is an explicit Non-goal (spec.md §1); bootcfg only pins down the shape
// the loader consumes, the way the loader/peload package pins down the PE
// contract without implementing a general PE toolkit.
package bootcfg

// DefaultKernelImage is the kernel image name used when an Entry omits one.
const DefaultKernelImage = "KERNEL.EXE"

// Entry is one parsed boot configuration record (spec.md §6).
type Entry struct {
	// SystemFolder is the path, relative to the boot volume root, holding
	// the kernel image and boot drivers.
	SystemFolder string

	// KernelImage names the kernel PE image within SystemFolder.
	// DefaultKernelImage is used when the source leaves it blank.
	KernelImage string

	// BootDrivers lists driver image names to load before the kernel,
	// deduplicated and kept in the insertion order the source presented
	// them (spec.md §6).
	BootDrivers []string

	// DebugTransportAddr/DebugTransportPort name the endpoint the kernel
	// debugger (kernel/kdebug, cmd/kdclient) connects to, if set.
	DebugTransportAddr string
	DebugTransportPort uint16

	seenDrivers map[string]struct{}
}

// AddBootDriver appends name to BootDrivers unless already present,
// preserving first-seen order per spec.md §6.
func (e *Entry) AddBootDriver(name string) {
	if e.seenDrivers == nil {
		e.seenDrivers = make(map[string]struct{})
	}
	if _, ok := e.seenDrivers[name]; ok {
		return
	}
	e.seenDrivers[name] = struct{}{}
	e.BootDrivers = append(e.BootDrivers, name)
}

// KeyValueSource is the narrow interface a concrete configuration-file
// parser (INI or otherwise) must satisfy for Load to build an Entry from
// it. The grammar behind GetString/GetInt is out of bootcfg's scope.
type KeyValueSource interface {
	// GetString returns the value for key in section, and whether it was
	// present.
	GetString(section, key string) (string, bool)

	// GetStringArray returns every value recorded under key in section, in
	// file order, for sources that support repeated or array-valued keys
	// (e.g. a boot driver list).
	GetStringArray(section, key string) []string
}

// Load builds an Entry for the named boot configuration section by reading
// through src. Missing keys take their documented defaults; BootDrivers is
// deduplicated via AddBootDriver.
func Load(src KeyValueSource, section string) Entry {
	var e Entry

	if v, ok := src.GetString(section, "SystemFolder"); ok {
		e.SystemFolder = v
	}

	e.KernelImage = DefaultKernelImage
	if v, ok := src.GetString(section, "KernelImage"); ok && v != "" {
		e.KernelImage = v
	}

	for _, drv := range src.GetStringArray(section, "BootDriver") {
		e.AddBootDriver(drv)
	}

	if v, ok := src.GetString(section, "DebugTransportAddr"); ok {
		e.DebugTransportAddr = v
	}
	if v, ok := src.GetString(section, "DebugTransportPort"); ok {
		e.DebugTransportPort = parsePort(v)
	}

	return e
}

func parsePort(s string) uint16 {
	var n uint16
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + uint16(c-'0')
	}
	return n
}

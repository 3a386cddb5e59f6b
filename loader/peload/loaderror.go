package peload

// LoadError identifies a fatal pre-handoff failure: any image parse,
// import-resolution or relocation error aborts boot with a fixed message
// naming the file and reason (spec.md §4.B, §7). Partial allocations made
// before the failure are never unwound; the loader only ever runs once,
// at boot.
type LoadError struct {
	File   string
	Reason string
}

func (e *LoadError) Error() string { return e.File + ": " + e.Reason }

func errMalformed(reason string) *LoadError {
	return &LoadError{Reason: reason}
}

// withFile stamps the offending file path onto an error produced before the
// file name was known (e.g. by parseHeaders, which only sees raw bytes).
func (e *LoadError) withFile(file string) *LoadError {
	e.File = file
	return e
}

package ncsfile

import "os"

// openHandle opens path for the mmap call. Split out so tests can swap
// in an in-memory-backed *os.File substitute via a temp file without
// touching Open's decode logic.
func openHandle(path string) (*os.File, error) {
	return os.Open(path)
}

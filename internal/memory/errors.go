package memory

import "fmt"

// InvalidSectionError reports an append to a section that is not part of the
// configured structure. This is a config/programming mismatch and is treated
// as fatal at first occurrence.
type InvalidSectionError struct {
	Section string
}

func (e *InvalidSectionError) Error() string {
	return fmt.Sprintf("memory: unknown section %q", e.Section)
}

// PersistenceError reports a failure to durably write the memory document.
// The mutation that triggered the write is rolled back so the in-memory state
// never diverges from disk.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("memory: persist (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Package checkeddb wraps PathDB with the typing, context, and modal
// invariants of §4.G: a read wrapper that exposes a validated TypingEnv,
// and a write wrapper (Writer) whose builders are the only
// correct-by-construction way to create meta-plane entities and fact
// nodes.
package checkeddb

import "fmt"

// InvariantError is a fatal, all-or-nothing construction failure (§7.3):
// the transaction that attempted to commit is abandoned, nothing partial
// is left behind.
type InvariantError struct {
	Op      string
	Problem string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("checkeddb: %s: %s", e.Op, e.Problem)
}

func invariantf(op, format string, args ...any) error {
	return &InvariantError{Op: op, Problem: fmt.Sprintf(format, args...)}
}

package corpus

import (
	"fmt"
	"strings"
)

// ParseError is a TOML syntax error, an unknown key, or a record whose key
// does not match its filename. It always carries the offending path.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError is a single invariant violation, attributed to the record
// that broke it.
type ValidationError struct {
	Path string // source file of the offending record
	Key  string // record key (handle, team name, org/repo)
	Msg  string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Key, e.Msg)
	}
	return fmt.Sprintf("%s (%s): %s", e.Key, e.Path, e.Msg)
}

// Errors accumulates validation errors so a single run surfaces every
// problem in the corpus.
type Errors struct {
	List []error
}

func (e *Errors) add(path, key, format string, args ...any) {
	e.List = append(e.List, &ValidationError{Path: path, Key: key, Msg: fmt.Sprintf(format, args...)})
}

func (e *Errors) Empty() bool { return len(e.List) == 0 }

func (e *Errors) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d validation error(s):", len(e.List))
	for _, err := range e.List {
		b.WriteString("\n  ")
		b.WriteString(err.Error())
	}
	return b.String()
}

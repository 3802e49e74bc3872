package coordinator

import "fmt"

// InfraError reports an input/config-level failure that aborts a run before
// any per-question artifacts are produced: a bad pack, an unresolvable
// engine, or an invalid filter regex. Each kind carries a distinct exit
// code so cmd/fcdrag can propagate it verbatim, the way plancritic's
// cmd-local exitErr does for its own abort paths.
type InfraError struct {
	Code int
	Msg  string
}

func (e *InfraError) Error() string { return e.Msg }

func infraErrorf(code int, format string, args ...any) error {
	return &InfraError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

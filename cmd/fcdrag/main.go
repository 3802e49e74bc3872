// Command fcdrag runs an FCDRAG audit pack against a target repository: a
// deterministic preflight plan per question, filtered and rendered into
// evidence, answered by an LLM or synthesized deterministically, validated
// against a response contract, and audited for evidence delivery.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			if ee.msg != "" {
				fmt.Fprintln(os.Stderr, ee.msg)
			}
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// exitErr carries a specific process exit code through cobra's RunE error
// return, unwrapped here in main via errors.As.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

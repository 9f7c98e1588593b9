// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command runic is the indexer's single binary entrypoint: a default run
// command that starts ingestion for every enabled chain, and a migrate
// subcommand that applies DDL idempotently, per spec §6.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// exitCodeError carries an explicit process exit code for startup or
// runtime failures, per the exit codes in spec §6: 1 fatal config/store
// error at startup, 2 unrecoverable runtime error, 130 signal-initiated
// exit that failed to drain within deadline.
type exitCodeError struct {
	err  error
	code int
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

// run builds and executes the command tree, mapping the outcome onto the
// process exit code.
func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		return 1
	}
	return 0
}

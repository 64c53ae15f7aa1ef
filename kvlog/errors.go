package kvlog

import "errors"

var (
	// ErrCorruptEntry is returned when bytes at a location recorded in the
	// index don't decode to a valid entry for the key we asked for.
	// It only affects the call that returned it.
	ErrCorruptEntry = errors.New("kvlog: corrupt entry")

	// ErrRebuild is returned by Reopen when the log doesn't contain as many
	// valid entries as the header says it should.
	ErrRebuild = errors.New("kvlog: failed to rebuild index")

	errNoTruncate = errors.New("kvlog: file doesn't support Truncate")
)

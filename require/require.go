package require

import (
	"errors"
)

// github.com/alecthomas/assert already stops the test on failure, like
// github.com/stretchr/testify/require. This only adds what it lacks.

// TestingT is an interface wrapper around *testing.T
type TestingT interface {
	Errorf(format string, args ...interface{})
	FailNow()
}

// ErrorIs asserts that errors.Is(err, target) is true
//
//	_, err := kvlog.Reopen(f, opts)
//	require.ErrorIs(t, err, kvlog.ErrRebuild)
func ErrorIs(t TestingT, err error, target error, msgAndArgs ...interface{}) {
	if errors.Is(err, target) {
		return
	}
	if len(msgAndArgs) > 0 {
		t.Errorf("error '%v' is not '%v': %v", err, target, msgAndArgs)
	} else {
		t.Errorf("error '%v' is not '%v'", err, target)
	}
	t.FailNow()
}

package logging

import "testing"

func TestNoopDoesNotPanic(t *testing.T) {
	l := NewNoop()
	l.Debug("x")
	l.Info("y", "k", "v")
	l.Warn("z")
	l.Error("w")
}

func TestDefaultLoggerSatisfiesInterface(t *testing.T) {
	var l Logger = NewDefault()
	l.Info("starting", "port", 5353)
}

package log

import "testing"

func TestLevelGate(t *testing.T) {
	SetLevel(ErrorLevel)
	l := gLog.Load().(*Log)
	if l.enabled(DebugLevel) {
		t.Fatalf("debug should not be enabled at ErrorLevel")
	}
	if !l.enabled(ErrorLevel) {
		t.Fatalf("error should be enabled at ErrorLevel")
	}
	SetLevel(DebugLevel)
	if !l.enabled(DebugLevel) {
		t.Fatalf("debug should be enabled at DebugLevel")
	}
}

func TestLogFunctionsDoNotPanic(t *testing.T) {
	SetLevel(DebugLevel)
	LogDebugf("debug %d", 1)
	LogInfof("info %d", 1)
	LogWarnf("warn %d", 1)
	LogErrorf("error %d", 1)
}

package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// NewObserved returns a Logger that keeps entries at level and above in
// memory, plus the sink holding them. Use it in tests that assert on logs.
func NewObserved(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &Logger{zap: zap.New(core)}, logs
}

// Find returns the entries at level whose message contains msg and whose
// fields include every pair in want.
func Find(logs *observer.ObservedLogs, level zapcore.Level, msg string, want map[string]any) []observer.LoggedEntry {
	var out []observer.LoggedEntry
	for _, e := range logs.All() {
		if e.Level != level || !strings.Contains(e.Message, msg) {
			continue
		}
		fields := e.ContextMap()
		matched := true
		for k, v := range want {
			if fields[k] != v {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, e)
		}
	}
	return out
}

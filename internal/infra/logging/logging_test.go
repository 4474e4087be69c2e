package logging

import "testing"

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", ""} {
		logger, err := New(level, "json", "allocator")
		if err != nil {
			t.Fatalf("level %q: %v", level, err)
		}
		logger.Info("probe")
		_ = logger.Sync()
	}
}

func TestNewConsoleFormat(t *testing.T) {
	logger, err := New("debug", "console", "")
	if err != nil {
		t.Fatalf("console: %v", err)
	}
	logger.Debug("probe")
}

func TestFromEnv(t *testing.T) {
	t.Setenv("BLOODCORE_LOG_LEVEL", "warn")
	t.Setenv("BLOODCORE_LOG_FORMAT", "json")
	if _, err := FromEnv("sweeper"); err != nil {
		t.Fatalf("from env: %v", err)
	}
}

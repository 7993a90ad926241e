package logging

import (
	"testing"
	"time"
)

func TestGetReturnsSameLogger(t *testing.T) {
	if err := Initialize(Config{Level: "info"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	a := Get(CategoryStore)
	b := Get(CategoryStore)
	if a != b {
		t.Error("Expected Get to return the cached logger for a category")
	}
}

func TestCategoryDisabled(t *testing.T) {
	err := Initialize(Config{
		Level:      "debug",
		Categories: map[string]bool{"executor": false},
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if IsCategoryEnabled(CategoryExecutor) {
		t.Error("Expected executor category to be disabled")
	}
	if !IsCategoryEnabled(CategoryIngest) {
		t.Error("Expected unlisted category to stay enabled")
	}

	// Must not panic when logging through a disabled category.
	Get(CategoryExecutor).Info("suppressed %d", 1)
}

func TestDebugModeOverridesLevel(t *testing.T) {
	if err := Initialize(Config{DebugMode: true, Level: "error"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if !IsDebugMode() {
		t.Error("Expected debug mode to be reported")
	}
}

func TestTimerStopReturnsElapsed(t *testing.T) {
	if err := Initialize(Config{Level: "info"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	timer := StartTimer(CategoryStore, "test-op").WarnAfter(time.Hour)
	elapsed := timer.Stop()
	if elapsed < 0 {
		t.Errorf("Expected non-negative elapsed time, got %v", elapsed)
	}
}

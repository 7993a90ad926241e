package logging

import "time"

// Timer measures the duration of an operation and logs it on Stop.
// Operations slower than the warn threshold log at warn level.
type Timer struct {
	category  Category
	operation string
	start     time.Time
	warnAfter time.Duration
}

// StartTimer begins timing an operation in a category.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category:  category,
		operation: operation,
		start:     time.Now(),
		warnAfter: time.Second,
	}
}

// WarnAfter overrides the slow-operation threshold.
func (t *Timer) WarnAfter(d time.Duration) *Timer {
	t.warnAfter = d
	return t
}

// Stop logs the elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	l := Get(t.category)
	if t.warnAfter > 0 && elapsed >= t.warnAfter {
		l.Warn("%s took %v", t.operation, elapsed)
	} else {
		l.Debug("%s completed in %v", t.operation, elapsed)
	}
	return elapsed
}

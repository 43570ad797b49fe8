package errors

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// Collector gathers recoverable problems during a run. Nothing added to a
// collector is dropped; callers report the collected list at the end.
type Collector struct {
	mu       sync.Mutex
	problems []*ControlError
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{problems: make([]*ControlError, 0)}
}

// Add records a problem. Plain errors are wrapped as internal errors.
func (c *Collector) Add(err error) {
	if err == nil {
		return
	}
	problem := WrapIfNeeded(err, CategoryInternal, CodeUnexpectedError, err.Error())

	c.mu.Lock()
	c.problems = append(c.problems, problem)
	c.mu.Unlock()
}

// AddAll records every problem in order.
func (c *Collector) AddAll(errs []*ControlError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, err := range errs {
		if err != nil {
			c.problems = append(c.problems, err)
		}
	}
}

// Len returns the number of collected problems
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.problems)
}

// Problems returns a copy of the collected problems
func (c *Collector) Problems() []*ControlError {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*ControlError, len(c.problems))
	copy(out, c.problems)
	return out
}

// Summary returns an error summary for all collected problems
func (c *Collector) Summary() *ErrorSummary {
	return NewErrorSummary(c.Problems())
}

// FormatProblemsForUser formats problems one per line, warnings marked,
// truncated after limit entries when limit > 0.
func FormatProblemsForUser(problems []*ControlError, limit int) string {
	if len(problems) == 0 {
		return ""
	}

	var lines []string
	for i, p := range problems {
		if limit > 0 && i >= limit {
			lines = append(lines, fmt.Sprintf("  ... and %d more", len(problems)-limit))
			break
		}
		tag := "ERROR"
		if p.IsWarning() {
			tag = "WARN "
		}
		where := ""
		if file, ok := p.Context["file"].(string); ok && file != "" {
			where = " [" + filepath.Base(file) + "]"
		} else if file, ok := p.Context["file_path"].(string); ok && file != "" {
			where = " [" + filepath.Base(file) + "]"
		}
		lines = append(lines, fmt.Sprintf("  %s %s%s: %s", tag, p.Code, where, p.Message))
	}

	return strings.Join(lines, "\n")
}

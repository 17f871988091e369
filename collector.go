package treez

import (
	"io"
	"strings"
	"sync"
)

// Collector buffers rendered output in memory.
// Safe for concurrent use by multiple goroutines.
//
// Every Write is kept as one unit, which is what a layer flushes for a single
// span banner or event line.
type Collector struct {
	err   error
	units []string
	mu    sync.Mutex
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		units: make([]string, 0, 8), // Start with small capacity.
	}
}

var _ io.Writer = (*Collector)(nil)

// Write records p as one unit. After Fail, Write records nothing and returns
// the failure.
func (c *Collector) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return 0, c.err
	}
	c.units = append(c.units, string(p))
	return len(p), nil
}

// MakeWriter returns a writer factory for Config.MakeWriter.
func (c *Collector) MakeWriter() func() io.Writer {
	return func() io.Writer { return c }
}

// Fail makes subsequent writes return err. A nil err heals the collector.
func (c *Collector) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Export returns all buffered units and clears the buffer.
// The returned slice is safe to modify without affecting the collector.
func (c *Collector) Export() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.units) == 0 {
		return nil
	}
	result := make([]string, len(c.units))
	copy(result, c.units)
	c.units = c.units[:0] // Keep capacity, reset length.
	return result
}

// Lines returns the buffered output split into lines, without terminators.
func (c *Collector) Lines() []string {
	s := strings.TrimSuffix(c.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// String returns the buffered output.
func (c *Collector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.units, "")
}

// Count returns the current number of buffered units.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.units)
}

// Reset clears all buffered units and any injected failure.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.units = c.units[:0]
	c.err = nil
}

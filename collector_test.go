package treez

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
)

func TestCollectorUnits(t *testing.T) {
	c := NewCollector()

	if c.Count() != 0 || c.Lines() != nil {
		t.Fatal("Expected an empty collector")
	}

	fmt.Fprint(c, "a\n")
	io.WriteString(c.MakeWriter()(), "b\nc\n")

	if c.Count() != 2 {
		t.Errorf("Expected 2 units, got %d", c.Count())
	}
	if c.String() != "a\nb\nc\n" {
		t.Errorf("Unexpected output %q", c.String())
	}
	if lines := c.Lines(); len(lines) != 3 || lines[2] != "c" {
		t.Errorf("Unexpected lines %q", lines)
	}
}

func TestCollectorExport(t *testing.T) {
	c := NewCollector()
	fmt.Fprint(c, "one\n")
	fmt.Fprint(c, "two\n")

	units := c.Export()
	if len(units) != 2 || units[0] != "one\n" {
		t.Fatalf("Unexpected units %q", units)
	}
	units[0] = "modified"

	if c.Count() != 0 {
		t.Error("Expected Export to clear the buffer")
	}
	if c.Export() != nil {
		t.Error("Expected nil export of an empty buffer")
	}

	fmt.Fprint(c, "three\n")
	if got := c.Export(); len(got) != 1 || got[0] != "three\n" {
		t.Errorf("Expected the exported copy to be independent, got %q", got)
	}
}

func TestCollectorFail(t *testing.T) {
	c := NewCollector()
	broken := errors.New("broken pipe")
	c.Fail(broken)

	if _, err := fmt.Fprint(c, "lost\n"); !errors.Is(err, broken) {
		t.Errorf("Expected injected error, got %v", err)
	}
	if c.Count() != 0 {
		t.Error("Expected failed writes to be dropped")
	}

	c.Reset()
	if _, err := fmt.Fprint(c, "kept\n"); err != nil {
		t.Errorf("Expected Reset to heal the collector, got %v", err)
	}
	if c.Count() != 1 {
		t.Errorf("Expected 1 unit, got %d", c.Count())
	}
}

func TestCollectorConcurrentWrites(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				fmt.Fprintf(c, "%d-%d\n", i, j)
			}
		}()
	}
	wg.Wait()

	if c.Count() != 1000 {
		t.Errorf("Expected 1000 units, got %d", c.Count())
	}
	if len(c.Lines()) != 1000 {
		t.Errorf("Expected 1000 lines, got %d", len(c.Lines()))
	}
}

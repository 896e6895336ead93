package serial

import "bytes"
import "fmt"
import "strings"
import "sync"
import "testing"

type chunkrec_t struct {
	sync.Mutex
	chunks []string
}

func (cr *chunkrec_t) Write(p []uint8) (int, error) {
	cr.Lock()
	cr.chunks = append(cr.chunks, string(p))
	cr.Unlock()
	return len(p), nil
}

func TestLinebuffer(t *testing.T) {
	cr := &chunkrec_t{}
	c := New(cr)
	c.Printf("boot")
	if len(cr.chunks) != 0 {
		t.Fatalf("partial line flushed: %q", cr.chunks)
	}
	c.Printf("ing at %#x\nnext", 0x7c00)
	if len(cr.chunks) != 1 || cr.chunks[0] != "booting at 0x7c00\n" {
		t.Fatalf("bad flush: %q", cr.chunks)
	}
	c.Flush()
	if len(cr.chunks) != 2 || cr.chunks[1] != "next" {
		t.Fatalf("bad tail: %q", cr.chunks)
	}
}

func TestConcurrent(t *testing.T) {
	var out bytes.Buffer
	c := New(&out)
	nprocs := 4
	lines := 100
	var wg sync.WaitGroup
	for i := 0; i < nprocs; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < lines; j++ {
				c.Printf("writer %v line %v\n", id, j)
			}
		}(i)
	}
	wg.Wait()
	c.Flush()
	got := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(got) != nprocs*lines {
		t.Fatalf("%v lines, wanted %v", len(got), nprocs*lines)
	}
	// every line must be intact, whatever the interleaving
	for _, l := range got {
		var id, ln int
		if _, err := fmt.Sscanf(l, "writer %d line %d", &id, &ln); err != nil {
			t.Fatalf("torn line %q", l)
		}
	}
}

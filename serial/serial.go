package serial

import "fmt"
import "io"
import "sync"

// Cons_t is the line-buffered diagnostic console. the lock is taken per
// emission and never held across anything slow, so one core's download
// cannot starve another core's prints.
type Cons_t struct {
	sync.Mutex
	w   io.Writer
	buf []uint8
}

func New(w io.Writer) *Cons_t {
	return &Cons_t{w: w}
}

func (c *Cons_t) Printf(format string, args ...interface{}) {
	s := fmt.Sprintf(format, args...)
	c.Lock()
	c.buf = append(c.buf, s...)
	// flush whole lines only
	last := -1
	for i := len(c.buf) - 1; i >= 0; i-- {
		if c.buf[i] == '\n' {
			last = i
			break
		}
	}
	if last != -1 {
		c.w.Write(c.buf[:last+1])
		c.buf = c.buf[:copy(c.buf, c.buf[last+1:])]
	}
	c.Unlock()
}

// Flush pushes out any partial final line.
func (c *Cons_t) Flush() {
	c.Lock()
	if len(c.buf) > 0 {
		c.w.Write(c.buf)
		c.buf = c.buf[:0]
	}
	c.Unlock()
}

package output

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Spinner shows that a long calibration step is running.
type Spinner struct {
	w        io.Writer
	message  string
	frames   []string
	interval time.Duration

	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

// NewSpinner creates a spinner writing to w.
func NewSpinner(w io.Writer, message string) *Spinner {
	return &Spinner{
		w:        w,
		message:  message,
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		interval: 100 * time.Millisecond,
		done:     make(chan struct{}),
	}
}

// Start starts the animation.
func (s *Spinner) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			fmt.Fprintf(s.w, "\r%s %s", s.frames[i%len(s.frames)], s.message)
			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop ends the animation with a result line: a check mark when err is nil.
// Only the first call has an effect.
func (s *Spinner) Stop(err error) {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		if err != nil {
			fmt.Fprintf(s.w, "\r\033[K✗ %s: %v\n", s.message, err)
			return
		}
		fmt.Fprintf(s.w, "\r\033[K✓ %s\n", s.message)
	})
}

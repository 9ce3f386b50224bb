package console

import (
	"bufio"
	"io"
	"os"
	"sync"

	"polyticker/internal/application/port"
)

const ansiClearScreen = "\033[H\033[2J"

// Sink writes rendered lines to a terminal.
type Sink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewSink() port.Sink { return NewSinkTo(os.Stdout) }

func NewSinkTo(w io.Writer) *Sink { return &Sink{w: w} }

// WriteSnapshot clears the screen and redraws every line in one write.
func (s *Sink) WriteSnapshot(lines []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bw := bufio.NewWriter(s.w)
	_, _ = bw.WriteString(ansiClearScreen)
	for _, l := range lines {
		_, _ = bw.WriteString(l)
		_ = bw.WriteByte('\n')
	}
	return bw.Flush()
}

func (s *Sink) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, line+"\n")
	return err
}

func (s *Sink) NewLine() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, "\n")
	return err
}

package port

type Sink interface {
	// Snapshot: clear previous output and redraw every line
	WriteSnapshot(lines []string) error
	// Append: one line per update, history is kept
	WriteLine(line string) error
	// Normal newline (for logs)
	NewLine() error
}

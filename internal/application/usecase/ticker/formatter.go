package ticker

import (
	"fmt"
	"strings"

	"polyticker/internal/domain"
)

const (
	ansiReset = "\033[0m"
	ansiRed   = "\033[31m"
	ansiGreen = "\033[32m"
	ansiDim   = "\033[2m"
)

// Placeholder is shown for any value not yet known.
const Placeholder = "—"

const sep = " | "

func colorize(s, c string) string { return c + s + ansiReset }

type RenderMode string

const (
	RenderSnapshot RenderMode = "snapshot"
	RenderAppend   RenderMode = "append"
)

type Formatter struct {
	Color bool
}

func NewFormatter(color bool) *Formatter {
	return &Formatter{Color: color}
}

// Line renders one record:
// assetId | label | mid | change | bid | ask | HH:MM:SS
func (f *Formatter) Line(q domain.Quote) string {
	ts := Placeholder
	if !q.UpdatedAt.IsZero() {
		ts = q.UpdatedAt.Local().Format("15:04:05")
	}

	cols := []string{
		q.AssetID,
		q.DisplayName(),
		q.Mid.Format(2, Placeholder),
		f.change(q.Change),
		q.Bid.Format(2, Placeholder),
		q.Ask.Format(2, Placeholder),
		ts,
	}
	return strings.Join(cols, sep)
}

// Lines renders the full listing in the order given.
func (f *Formatter) Lines(quotes []domain.Quote) []string {
	out := make([]string, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, f.Line(q))
	}
	return out
}

func (f *Formatter) change(c domain.Number) string {
	if !c.Valid {
		if f.Color {
			return colorize(Placeholder, ansiDim)
		}
		return Placeholder
	}
	s := fmt.Sprintf("%+.2f%%", c.Value)
	if !f.Color {
		return s
	}
	switch {
	case c.Value > 0:
		return colorize(s, ansiGreen)
	case c.Value < 0:
		return colorize(s, ansiRed)
	default:
		return s
	}
}

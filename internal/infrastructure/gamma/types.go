package gamma

import (
	"bytes"
	"encoding/json"
	"strings"
)

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*s = ""
	case b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(strings.TrimSpace(v))
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			*s = ""
			return nil
		}
		*s = flexString(n.String())
	}
	return nil
}

// stringList accepts either a JSON array or a string holding a JSON array,
// which is how Gamma encodes clobTokenIds and outcomes.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if b[0] == '"' {
		var inner string
		if err := json.Unmarshal(b, &inner); err != nil {
			*l = nil
			return nil
		}
		b = []byte(inner)
	}
	var items []flexString
	if err := json.Unmarshal(b, &items); err != nil {
		*l = nil
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, string(it))
	}
	*l = out
	return nil
}

type Token struct {
	TokenID flexString `json:"token_id"`
	Outcome string     `json:"outcome"`
}

type Market struct {
	ID           flexString `json:"id"`
	Slug         string     `json:"slug"`
	Question     string     `json:"question"`
	ClobTokenIDs stringList `json:"clobTokenIds"`
	Outcomes     stringList `json:"outcomes"`
	Tokens       []Token    `json:"tokens"`
}

type Event struct {
	ID      flexString `json:"id"`
	Slug    string     `json:"slug"`
	Markets []Market   `json:"markets"`
}

// TokenIDs returns the market's outcome token ids, preferring clobTokenIds.
func (m Market) TokenIDs() []string {
	var ids []string
	if len(m.ClobTokenIDs) > 0 {
		ids = m.ClobTokenIDs
	} else {
		for _, t := range m.Tokens {
			ids = append(ids, string(t.TokenID))
		}
	}
	out := ids[:0:0]
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// OutcomeAt returns the outcome name for the token at position i, if known.
func (m Market) OutcomeAt(i int) string {
	if i < len(m.Outcomes) {
		return m.Outcomes[i]
	}
	if len(m.ClobTokenIDs) == 0 && i < len(m.Tokens) {
		return m.Tokens[i].Outcome
	}
	return ""
}

// Title is the slug, falling back to the question.
func (m Market) Title() string {
	if s := strings.TrimSpace(m.Slug); s != "" {
		return s
	}
	return strings.TrimSpace(m.Question)
}

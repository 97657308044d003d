// Package gateway talks to the LLM webhook that backs suggestions.
//
// The webhook's response shape is not under our control and has changed
// over time, so responses are normalised into a Result before use: either
// Ok with the generated text, or Malformed with the raw body for logging.
package gateway

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/jmoiron/jsonq"
)

// A Result is either Ok or Malformed.
type Result interface {
	result()
}

// Ok is a usable response.
type Ok struct {
	Text string
}

// Malformed is a response none of the known shapes matched.
type Malformed struct {
	Raw    string
	Reason string
}

func (Ok) result()        {}
func (Malformed) result() {}

// textKeys are the fields known to carry generated text, in order of
// preference.
var textKeys = []string{"output", "text", "response", "content"}

// Normalize interprets a webhook response body.  Accepted shapes are a JSON
// array whose first element carries a text field, a JSON object with a text
// field, a JSON string, or plain non-JSON text.
func Normalize(raw []byte) Result {
	body := bytes.TrimSpace(raw)
	if len(body) == 0 {
		return Malformed{Raw: string(raw), Reason: "empty response"}
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		// not JSON; the webhook answered in plain text
		return Ok{Text: string(body)}
	}

	// wrap the document so arrays, objects and strings share one query root
	q := jsonq.NewQuery(map[string]any{"r": data})

	if s, err := q.String("r"); err == nil {
		return nonEmpty(s, body)
	}
	for _, key := range textKeys {
		if s, err := q.String("r", key); err == nil {
			return nonEmpty(s, body)
		}
		if s, err := q.String("r", "0", key); err == nil {
			return nonEmpty(s, body)
		}
	}
	return Malformed{Raw: string(body), Reason: "no text field"}
}

func nonEmpty(s string, body []byte) Result {
	if strings.TrimSpace(s) == "" {
		return Malformed{Raw: string(body), Reason: "empty text"}
	}
	return Ok{Text: s}
}

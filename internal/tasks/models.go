package tasks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

type Task struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// Record is the format-independent form of a payload: field name to value.
// Every codec decodes into a Record and encodes from one, so validation and
// the handlers never look at wire bytes.
type Record map[string]any

// taskFields is the order task fields are rendered in, for every format
// that preserves order.
var taskFields = []string{"id", "title", "description", "completed"}

// Record converts a stored task to its record form.
func (t Task) Record() Record {
	return Record{
		"id":          t.ID,
		"title":       t.Title,
		"description": t.Description,
		"completed":   t.Completed,
	}
}

// Task builds a Task from a record that already passed Validate.
func (r Record) Task() Task {
	t := Task{
		Title:       textOf(r["title"]),
		Description: textOf(r["description"]),
	}
	t.Completed, _ = r["completed"].(bool)
	return t
}

// keys returns the record keys with the task fields first, in their
// canonical order, followed by any other keys sorted.
func (r Record) keys() []string {
	keys := make([]string, 0, len(r))
	seen := make(map[string]bool, len(taskFields))
	for _, k := range taskFields {
		if _, ok := r[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}

	var rest []string
	for k := range r {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)

	return append(keys, rest...)
}

func (r Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// textOf renders a value in its natural text form. Booleans are lowercase.
func textOf(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

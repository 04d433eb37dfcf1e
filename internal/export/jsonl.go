package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/edilcheck/edilcheck/internal/types"
)

// Line kinds in a JSONL export.
const (
	kindMeta      = "meta"
	kindWorker    = "worker"
	kindSite      = "site"
	kindTimeEntry = "timeEntry"
	kindPayment   = "payment"
)

// jsonlLine is one line of a JSONL export: a record tagged with its kind.
// The first line is a meta line carrying the id counter.
type jsonlLine struct {
	Kind   string          `json:"kind"`
	NextID int64           `json:"nextId,omitempty"`
	Record json.RawMessage `json:"record,omitempty"`
}

func writeJSONL(w io.Writer, c *types.Container) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(jsonlLine{Kind: kindMeta, NextID: c.NextID}); err != nil {
		return fmt.Errorf("failed to encode JSONL: %w", err)
	}

	emit := func(kind string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return enc.Encode(jsonlLine{Kind: kind, Record: raw})
	}

	for _, r := range c.Workers {
		if err := emit(kindWorker, r); err != nil {
			return fmt.Errorf("failed to encode worker %d: %w", r.ID, err)
		}
	}
	for _, r := range c.Sites {
		if err := emit(kindSite, r); err != nil {
			return fmt.Errorf("failed to encode site %d: %w", r.ID, err)
		}
	}
	for _, r := range c.TimeEntries {
		if err := emit(kindTimeEntry, r); err != nil {
			return fmt.Errorf("failed to encode time entry %d: %w", r.ID, err)
		}
	}
	for _, r := range c.Payments {
		if err := emit(kindPayment, r); err != nil {
			return fmt.Errorf("failed to encode payment %d: %w", r.ID, err)
		}
	}
	return nil
}

func readJSONL(r io.Reader) (*types.Container, error) {
	var c types.Container
	decoder := json.NewDecoder(r)
	lineNum := 0

	for {
		var line jsonlLine
		if err := decoder.Decode(&line); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum+1, err)
		}
		lineNum++

		var err error
		switch line.Kind {
		case kindMeta:
			c.NextID = line.NextID
		case kindWorker:
			var v types.Worker
			if err = json.Unmarshal(line.Record, &v); err == nil {
				c.Workers = append(c.Workers, v)
			}
		case kindSite:
			var v types.Site
			if err = json.Unmarshal(line.Record, &v); err == nil {
				c.Sites = append(c.Sites, v)
			}
		case kindTimeEntry:
			var v types.TimeEntry
			if err = json.Unmarshal(line.Record, &v); err == nil {
				c.TimeEntries = append(c.TimeEntries, v)
			}
		case kindPayment:
			var v types.Payment
			if err = json.Unmarshal(line.Record, &v); err == nil {
				c.Payments = append(c.Payments, v)
			}
		default:
			return nil, fmt.Errorf("line %d: unknown kind %q", lineNum, line.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid %s: %w", lineNum, line.Kind, err)
		}
	}
	return &c, nil
}

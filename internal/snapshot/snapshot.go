// Package snapshot stores timestamped copies of an account's records in an
// object store (an S3 bucket or a local directory), independent of the
// backup server.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/edilcheck/edilcheck/internal/export"
	"github.com/edilcheck/edilcheck/internal/types"
)

var (
	// ErrNoSnapshots is returned by Latest when account has none.
	ErrNoSnapshots = errors.New("no snapshots found")

	// ErrNoAccount is returned when an operation is called with an empty
	// account.
	ErrNoAccount = errors.New("account is required")
)

const keyTimeLayout = "20060102T150405.000Z"

// Snapshots reads and writes snapshots under prefix/<account>/.
type Snapshots struct {
	store  ObjectStore
	prefix string
	now    func() time.Time
}

// New creates a snapshot set over store.
func New(store ObjectStore, prefix string) *Snapshots {
	return &Snapshots{store: store, prefix: strings.Trim(prefix, "/"), now: time.Now}
}

// accountPrefix escapes account into one key segment, so distinct accounts
// never share a prefix.
func (s *Snapshots) accountPrefix(account string) (string, error) {
	if account == "" {
		return "", ErrNoAccount
	}
	acc := url.PathEscape(account)
	if strings.Trim(acc, ".") == "" {
		acc = strings.ReplaceAll(acc, ".", "%2E")
	}
	if s.prefix == "" {
		return acc + "/", nil
	}
	return s.prefix + "/" + acc + "/", nil
}

// Push uploads c as a new JSON snapshot and returns its key. Keys sort by
// creation time.
func (s *Snapshots) Push(ctx context.Context, account string, c *types.Container) (string, error) {
	prefix, err := s.accountPrefix(account)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, c, export.FormatJSON); err != nil {
		return "", err
	}

	key := prefix + s.now().UTC().Format(keyTimeLayout) + ".json"
	if err := s.store.Put(ctx, key, buf.Bytes()); err != nil {
		return "", err
	}
	return key, nil
}

// List returns the snapshot keys of account, oldest first.
func (s *Snapshots) List(ctx context.Context, account string) ([]string, error) {
	prefix, err := s.accountPrefix(account)
	if err != nil {
		return nil, err
	}
	keys, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, k := range keys {
		if strings.HasSuffix(k, ".json") {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Get downloads and decodes one snapshot.
func (s *Snapshots) Get(ctx context.Context, key string) (*types.Container, error) {
	var buf bytes.Buffer
	if err := s.store.Get(ctx, key, &buf); err != nil {
		return nil, err
	}
	c, err := export.Read(&buf, export.FormatJSON)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", key, err)
	}
	return c, nil
}

// Latest returns the newest snapshot of account.
func (s *Snapshots) Latest(ctx context.Context, account string) (string, *types.Container, error) {
	keys, err := s.List(ctx, account)
	if err != nil {
		return "", nil, err
	}
	if len(keys) == 0 {
		return "", nil, ErrNoSnapshots
	}
	key := keys[len(keys)-1]
	c, err := s.Get(ctx, key)
	if err != nil {
		return "", nil, err
	}
	return key, c, nil
}

// Package directory keeps instance summaries for listing and paging.
package directory

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/petrijr/docflow/pkg/api"
)

// Directory is an in-process index of instance summaries. The engine owns
// the writes; everything else reads.
type Directory struct {
	entries sync.Map // string -> api.InstanceSummary
}

// New returns an empty directory.
func New() *Directory {
	return &Directory{}
}

// Upsert stores s, replacing any previous summary with the same ID.
func (d *Directory) Upsert(s api.InstanceSummary) {
	d.entries.Store(s.ID, s)
}

// Get returns the summary for id.
func (d *Directory) Get(id string) (api.InstanceSummary, bool) {
	v, ok := d.entries.Load(id)
	if !ok {
		return api.InstanceSummary{}, false
	}
	return v.(api.InstanceSummary), true
}

type cursor struct {
	CreatedAt int64  `json:"c"`
	ID        string `json:"i"`
}

func encodeToken(s api.InstanceSummary) string {
	b, _ := json.Marshal(cursor{CreatedAt: s.CreatedAt.UnixNano(), ID: s.ID})
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeToken(tok string) (cursor, error) {
	var c cursor
	b, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		return c, fmt.Errorf("%w: malformed page token", api.ErrInvalidInput)
	}
	if err := json.Unmarshal(b, &c); err != nil || c.ID == "" {
		return c, fmt.Errorf("%w: malformed page token", api.ErrInvalidInput)
	}
	return c, nil
}

func after(s api.InstanceSummary, c cursor) bool {
	ns := s.CreatedAt.UnixNano()
	if ns != c.CreatedAt {
		return ns > c.CreatedAt
	}
	return s.ID > c.ID
}

// PageSize normalizes a requested page size.
func PageSize(n int) int {
	switch {
	case n <= 0:
		return api.DefaultPageSize
	case n > api.MaxPageSize:
		return api.MaxPageSize
	}
	return n
}

// List returns one page of summaries ordered by creation time, then ID.
// NextPageToken is empty on the last page.
func (d *Directory) List(opts api.InstanceListOptions) (*api.InstancePage, error) {
	var (
		c      cursor
		paging bool
	)
	if opts.PageToken != "" {
		var err error
		if c, err = decodeToken(opts.PageToken); err != nil {
			return nil, err
		}
		paging = true
	}

	states := make(map[api.RuntimeState]bool, len(opts.States))
	for _, s := range opts.States {
		states[s] = true
	}

	var matched []api.InstanceSummary
	d.entries.Range(func(_, v any) bool {
		s := v.(api.InstanceSummary)
		if len(states) > 0 && !states[s.State] {
			return true
		}
		if !opts.CreatedAfter.IsZero() && !s.CreatedAt.After(opts.CreatedAfter) {
			return true
		}
		if paging && !after(s, c) {
			return true
		}
		matched = append(matched, s)
		return true
	})

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	size := PageSize(opts.PageSize)
	page := &api.InstancePage{Instances: matched}
	if len(matched) > size {
		page.Instances = matched[:size]
		page.NextPageToken = encodeToken(matched[size-1])
	}
	if page.Instances == nil {
		page.Instances = []api.InstanceSummary{}
	}
	return page, nil
}

// Window returns the default lower bound used when a caller gives none.
func Window(now time.Time) time.Time {
	return now.Add(-api.DefaultLookback)
}

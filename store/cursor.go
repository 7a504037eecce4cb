package store

import (
	"context"
	"sync/atomic"

	"github.com/jacentio/espalier/model"
)

// Page is one page of hydrated results.
type Page struct {
	Items []*model.Instance

	// LastKey is the continuation key; empty on the last page.
	LastKey Item
}

// PageFunc fetches the page starting at startKey (nil for the first page).
type PageFunc func(ctx context.Context, startKey Item) (Page, error)

// Cursor walks a paginated query or scan. It is strictly sequential: Next
// fails with ErrCursorBusy while another call is running and with
// ErrCursorExhausted after the last page.
type Cursor struct {
	fetch    PageFunc
	items    []*model.Instance
	lastPage []*model.Instance
	lastKey  Item
	more     bool
	busy     atomic.Bool
}

// NewCursor creates a cursor that starts at startKey. No page is fetched
// until Next is called.
func NewCursor(fetch PageFunc, startKey Item) *Cursor {
	return &Cursor{
		fetch:   fetch,
		lastKey: startKey,
		more:    true,
	}
}

// Next fetches the next page, appends it to Items and replaces LastPage.
func (c *Cursor) Next(ctx context.Context) error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrCursorBusy
	}
	defer c.busy.Store(false)

	if !c.more {
		return ErrCursorExhausted
	}
	page, err := c.fetch(ctx, c.lastKey)
	if err != nil {
		return err
	}
	c.items = append(c.items, page.Items...)
	c.lastPage = page.Items
	c.lastKey = page.LastKey
	c.more = len(page.LastKey) > 0
	return nil
}

// All fetches every remaining page and returns all items seen.
func (c *Cursor) All(ctx context.Context) ([]*model.Instance, error) {
	for c.more {
		if err := c.Next(ctx); err != nil {
			return nil, err
		}
	}
	return c.Items(), nil
}

// Items returns every item fetched so far.
func (c *Cursor) Items() []*model.Instance {
	out := make([]*model.Instance, len(c.items))
	copy(out, c.items)
	return out
}

// LastPage returns the items of the most recent page.
func (c *Cursor) LastPage() []*model.Instance {
	out := make([]*model.Instance, len(c.lastPage))
	copy(out, c.lastPage)
	return out
}

// MorePages reports whether Next can fetch another page.
func (c *Cursor) MorePages() bool { return c.more }

// LastKey returns the continuation key of the most recent page.
func (c *Cursor) LastKey() Item { return c.lastKey }

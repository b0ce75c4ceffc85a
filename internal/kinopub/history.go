package kinopub

import (
	"context"
	"net/http"
	"net/url"

	"github.com/waabox/kinopub/internal/domain"
	"github.com/waabox/kinopub/internal/gateway"
	"github.com/waabox/kinopub/internal/normalize"
)

// History lists watch history entries, most recent first. The list is under
// "history", not "items".
func (c *Client) History(ctx context.Context, pageNum, perPage int) (Page[domain.HistoryEntry], error) {
	q := url.Values{}
	setPositive(q, "page", pageNum)
	setPositive(q, "perpage", perPage)
	return page[domain.HistoryEntry](ctx, c, get("v1/history", q),
		normalize.Schema{Field: "history", Numeric: append([]string{"time", "counter"}, itemNumeric...)})
}

// ClearHistoryForItem removes every history entry of an item.
func (c *Client) ClearHistoryForItem(ctx context.Context, id int) error {
	return c.clearHistory(ctx, "clear-for-item", id)
}

// ClearHistoryForMedia removes the history entry of one media.
func (c *Client) ClearHistoryForMedia(ctx context.Context, id int) error {
	return c.clearHistory(ctx, "clear-for-media", id)
}

// ClearHistoryForSeason removes the history entries of one season.
func (c *Client) ClearHistoryForSeason(ctx context.Context, id int) error {
	return c.clearHistory(ctx, "clear-for-season", id)
}

// clearHistory posts with the id in the query string; the service answers
// with null or {status}.
func (c *Client) clearHistory(ctx context.Context, action string, id int) error {
	if err := requireID("history/"+action, "id", id); err != nil {
		return err
	}
	return c.exec(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   "v1/history/" + action,
		Query:  url.Values{"id": {itoa(id)}},
	})
}

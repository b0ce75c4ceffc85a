package kinopub

import (
	"context"
	"net/url"

	"github.com/waabox/kinopub/internal/domain"
	"github.com/waabox/kinopub/internal/normalize"
)

// CollectionsQuery filters /v1/collections.
type CollectionsQuery struct {
	// Sort is a field name with an optional "-" suffix, e.g. "watchers-".
	Sort    string
	Page    int
	PerPage int
}

// Collections lists editorial collections.
func (c *Client) Collections(ctx context.Context, q CollectionsQuery) (Page[domain.Collection], error) {
	v := url.Values{}
	setNonEmpty(v, "sort", q.Sort)
	setPositive(v, "page", q.Page)
	setPositive(v, "perpage", q.PerPage)
	return page[domain.Collection](ctx, c, get("v1/collections", v),
		normalize.Schema{Field: "items", Numeric: []string{"watchers", "views"}})
}

// CollectionItems lists the items of a collection.
func (c *Client) CollectionItems(ctx context.Context, id, pageNum, perPage int) (Page[domain.Item], error) {
	if err := requireID("collections/view", "id", id); err != nil {
		return Page[domain.Item]{}, err
	}
	v := url.Values{"id": {itoa(id)}}
	setPositive(v, "page", pageNum)
	setPositive(v, "perpage", perPage)
	return page[domain.Item](ctx, c, get("v1/collections/view", v), itemsSchema)
}

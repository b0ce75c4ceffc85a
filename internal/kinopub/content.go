package kinopub

import (
	"context"
	"net/url"
	"strings"

	"github.com/waabox/kinopub/internal/domain"
	"github.com/waabox/kinopub/internal/normalize"
)

// ItemsQuery filters /v1/items. Zero fields are omitted.
type ItemsQuery struct {
	Type    domain.ItemType
	Genre   int
	Country int
	Title   string
	// Sort is a field name with an optional "-" suffix for descending order, e.g. "updated-".
	Sort       string
	Conditions []string
	Page       int
	PerPage    int
}

func (q ItemsQuery) values() url.Values {
	v := url.Values{}
	setNonEmpty(v, "type", string(q.Type))
	setPositive(v, "genre", q.Genre)
	setPositive(v, "country", q.Country)
	setNonEmpty(v, "title", q.Title)
	setNonEmpty(v, "sort", q.Sort)
	for _, cond := range q.Conditions {
		v.Add("conditions[]", cond)
	}
	setPositive(v, "page", q.Page)
	setPositive(v, "perpage", q.PerPage)
	return v
}

// SearchQuery narrows a title search.
type SearchQuery struct {
	Type    domain.ItemType
	Field   string
	Page    int
	PerPage int
}

// ShortcutQuery filters the fresh, hot and popular listings.
type ShortcutQuery struct {
	Type    domain.ItemType
	Genre   int
	Page    int
	PerPage int
}

var itemsSchema = normalize.Schema{Field: "items", Numeric: itemNumeric}

// Items lists catalog items.
func (c *Client) Items(ctx context.Context, q ItemsQuery) (Page[domain.Item], error) {
	return page[domain.Item](ctx, c, get("v1/items", q.values()), itemsSchema)
}

// Item returns a single item with its videos or seasons. With noLinks the
// media file links are left out of the response.
func (c *Client) Item(ctx context.Context, id int, noLinks bool) (domain.Item, error) {
	if err := requireID("item", "id", id); err != nil {
		return domain.Item{}, err
	}
	var q url.Values
	if noLinks {
		q = url.Values{"nolinks": {"1"}}
	}
	env, err := call[domain.Item](ctx, c, get(pathf("v1/items/%d", id), q), normalize.Schema{Field: "item", Numeric: itemNumeric})
	return env.Data, err
}

// Search finds items by title. q must not be empty.
func (c *Client) Search(ctx context.Context, q string, opts SearchQuery) (Page[domain.Item], error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return Page[domain.Item]{}, domain.InvalidArgument("search", "query is required")
	}
	v := url.Values{"q": {q}}
	setNonEmpty(v, "type", string(opts.Type))
	setNonEmpty(v, "field", opts.Field)
	setPositive(v, "page", opts.Page)
	setPositive(v, "perpage", opts.PerPage)
	return page[domain.Item](ctx, c, get("v1/items/search", v), itemsSchema)
}

// Similar lists items similar to id.
func (c *Client) Similar(ctx context.Context, id int) ([]domain.Item, error) {
	if err := requireID("similar", "id", id); err != nil {
		return nil, err
	}
	p, err := page[domain.Item](ctx, c, get("v1/items/similar", url.Values{"id": {itoa(id)}}), itemsSchema)
	return p.Items, err
}

// Fresh lists recently added items.
func (c *Client) Fresh(ctx context.Context, q ShortcutQuery) (Page[domain.Item], error) {
	return c.shortcut(ctx, "fresh", q)
}

// Hot lists trending items.
func (c *Client) Hot(ctx context.Context, q ShortcutQuery) (Page[domain.Item], error) {
	return c.shortcut(ctx, "hot", q)
}

// Popular lists the most watched items.
func (c *Client) Popular(ctx context.Context, q ShortcutQuery) (Page[domain.Item], error) {
	return c.shortcut(ctx, "popular", q)
}

func (c *Client) shortcut(ctx context.Context, name string, q ShortcutQuery) (Page[domain.Item], error) {
	v := url.Values{}
	setNonEmpty(v, "type", string(q.Type))
	setPositive(v, "genre", q.Genre)
	setPositive(v, "page", q.Page)
	setPositive(v, "perpage", q.PerPage)
	return page[domain.Item](ctx, c, get("v1/items/"+name, v), itemsSchema)
}

// Trailer returns the trailers of an item. The service answers with either a
// single object or an array; both come back as a slice.
func (c *Client) Trailer(ctx context.Context, id int) (domain.Trailers, error) {
	if err := requireID("trailer", "id", id); err != nil {
		return nil, err
	}
	env, err := call[domain.Trailers](ctx, c, get("v1/items/trailer", url.Values{"id": {itoa(id)}}),
		normalize.Schema{Field: "trailer", NullOK: true})
	return env.Data, err
}

// Comments lists the comments on an item.
func (c *Client) Comments(ctx context.Context, id int) ([]domain.Comment, error) {
	if err := requireID("comments", "id", id); err != nil {
		return nil, err
	}
	env, err := call[[]domain.Comment](ctx, c, get("v1/items/comments", url.Values{"id": {itoa(id)}}),
		normalize.Schema{Field: "comments", Numeric: []string{"rating"}})
	return env.Data, err
}

// Vote rates an item. The call has side effects and is never retried.
func (c *Client) Vote(ctx context.Context, id int, like bool) (domain.VoteResult, error) {
	if err := requireID("vote", "id", id); err != nil {
		return domain.VoteResult{}, err
	}
	q := url.Values{"id": {itoa(id)}, "like": {boolParam(like)}}
	env, err := call[domain.VoteResult](ctx, c, mutatingGet("v1/items/vote", q),
		normalize.Schema{Numeric: []string{"total", "positive", "negative", "rating"}})
	return env.Data, err
}

// MediaLinks returns the files and stream URLs of a media (video or episode).
func (c *Client) MediaLinks(ctx context.Context, mid int) (domain.MediaLinks, error) {
	if err := requireID("media-links", "mid", mid); err != nil {
		return domain.MediaLinks{}, err
	}
	env, err := call[domain.MediaLinks](ctx, c, get("v1/items/media-links", url.Values{"mid": {itoa(mid)}}),
		normalize.Schema{Numeric: []string{"w", "h", "quality_id"}})
	return env.Data, err
}

var streamTypes = map[string]bool{"http": true, "hls": true, "hls2": true, "hls4": true}

// MediaVideoLink resolves a file from MediaLinks into a playable URL of the given stream type.
func (c *Client) MediaVideoLink(ctx context.Context, file, streamType string) (domain.VideoLink, error) {
	if file == "" {
		return domain.VideoLink{}, domain.InvalidArgument("media-video-link", "file is required")
	}
	if !streamTypes[streamType] {
		return domain.VideoLink{}, domain.InvalidArgument("media-video-link", "unknown stream type %q", streamType)
	}
	q := url.Values{"file": {file}, "type": {streamType}}
	env, err := call[domain.VideoLink](ctx, c, get("v1/items/media-video-link", q), normalize.Schema{})
	return env.Data, err
}

package kinopub

import (
	"context"
	"net/url"

	"github.com/waabox/kinopub/internal/domain"
	"github.com/waabox/kinopub/internal/normalize"
)

var watchingNumeric = []string{"time", "duration", "status", "total", "watched", "new"}

// Watching returns the per-media progress of an item.
func (c *Client) Watching(ctx context.Context, id int) (domain.WatchingInfo, error) {
	if err := requireID("watching", "id", id); err != nil {
		return domain.WatchingInfo{}, err
	}
	env, err := call[domain.WatchingInfo](ctx, c, get("v1/watching", url.Values{"id": {itoa(id)}}),
		normalize.Schema{Field: "item", Numeric: watchingNumeric})
	return env.Data, err
}

// WatchingMovies lists movies in progress.
func (c *Client) WatchingMovies(ctx context.Context) ([]domain.WatchingItem, error) {
	env, err := call[[]domain.WatchingItem](ctx, c, get("v1/watching/movies", nil),
		normalize.Schema{Field: "items", Numeric: watchingNumeric})
	return env.Data, err
}

// WatchingSerials lists serials in progress. With subscribed, only serials on
// the watchlist are returned.
func (c *Client) WatchingSerials(ctx context.Context, subscribed bool) ([]domain.WatchingItem, error) {
	var q url.Values
	if subscribed {
		q = url.Values{"subscribed": {"1"}}
	}
	env, err := call[[]domain.WatchingItem](ctx, c, get("v1/watching/serials", q),
		normalize.Schema{Field: "items", Numeric: watchingNumeric})
	return env.Data, err
}

// MarkTime records the playback position, in seconds, of a video. Pass season 0
// for movies.
func (c *Client) MarkTime(ctx context.Context, id, video, seconds, season int) (domain.ToggleResult, error) {
	if err := requireID("watching/marktime", "id", id); err != nil {
		return domain.ToggleResult{}, err
	}
	if err := requireID("watching/marktime", "video", video); err != nil {
		return domain.ToggleResult{}, err
	}
	if seconds < 0 {
		return domain.ToggleResult{}, domain.InvalidArgument("watching/marktime", "time must not be negative")
	}
	q := url.Values{"id": {itoa(id)}, "video": {itoa(video)}, "time": {itoa(seconds)}}
	setPositive(q, "season", season)
	return c.toggle(ctx, "v1/watching/marktime", q)
}

// ToggleWatched flips the watched mark of a video. Pass season 0 for movies.
func (c *Client) ToggleWatched(ctx context.Context, id, video, season int) (domain.ToggleResult, error) {
	if err := requireID("watching/toggle", "id", id); err != nil {
		return domain.ToggleResult{}, err
	}
	q := url.Values{"id": {itoa(id)}}
	setPositive(q, "video", video)
	setPositive(q, "season", season)
	return c.toggle(ctx, "v1/watching/toggle", q)
}

// ToggleWatchlist adds a serial to, or removes it from, the watchlist.
func (c *Client) ToggleWatchlist(ctx context.Context, id int) (domain.ToggleResult, error) {
	if err := requireID("watching/togglewatchlist", "id", id); err != nil {
		return domain.ToggleResult{}, err
	}
	return c.toggle(ctx, "v1/watching/togglewatchlist", url.Values{"id": {itoa(id)}})
}

func (c *Client) toggle(ctx context.Context, path string, q url.Values) (domain.ToggleResult, error) {
	env, err := call[domain.ToggleResult](ctx, c, mutatingGet(path, q),
		normalize.Schema{NullOK: true, Numeric: []string{"status", "watched"}})
	return env.Data, err
}

package kinopub

import (
	"context"

	"github.com/waabox/kinopub/internal/domain"
	"github.com/waabox/kinopub/internal/normalize"
)

// Channels lists the TV channels.
func (c *Client) Channels(ctx context.Context) ([]domain.Channel, error) {
	env, err := call[[]domain.Channel](ctx, c, get("v1/tv", nil), normalize.Schema{Field: "channels"})
	return env.Data, err
}

package kinopub

import (
	"context"

	"github.com/waabox/kinopub/internal/domain"
	"github.com/waabox/kinopub/internal/normalize"
)

// User returns the account of the current token.
func (c *Client) User(ctx context.Context) (domain.User, error) {
	env, err := call[domain.User](ctx, c, get("v1/user", nil),
		normalize.Schema{Field: "user", Numeric: []string{"days", "end_time", "reg_date"}})
	return env.Data, err
}

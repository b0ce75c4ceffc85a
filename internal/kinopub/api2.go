package kinopub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/waabox/kinopub/internal/domain"
	"github.com/waabox/kinopub/internal/gateway"
	"github.com/waabox/kinopub/internal/normalize"
)

// Endpoints below live on the api2 host. Their shapes are only partly
// documented; payloads that vary are returned as raw JSON.

func api2Get(path string, q url.Values) gateway.Request {
	return gateway.Request{API: gateway.API2, Method: http.MethodGet, Path: path, Query: q}
}

// SearchV2 searches titles through api2.
func (c *Client) SearchV2(ctx context.Context, q string) ([]domain.Item, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, domain.InvalidArgument("api2 search", "query is required")
	}
	env, err := call[[]domain.Item](ctx, c, api2Get("api2/v1.1/items/search", url.Values{"q": {q}}),
		normalize.Schema{Field: "items", BareArray: true, Numeric: itemNumeric})
	return env.Data, err
}

// ItemV2 returns an item through api2, including its imdb and kinopoisk ids.
// The item is either wrapped in "item" or is the object itself.
func (c *Client) ItemV2(ctx context.Context, id int) (domain.Item, error) {
	if err := requireID("api2 item", "id", id); err != nil {
		return domain.Item{}, err
	}
	resp, err := c.gw.Do(ctx, api2Get(pathf("api2/v1.1/items/%d", id), nil))
	if err != nil {
		return domain.Item{}, err
	}
	schema := normalize.Schema{Numeric: itemNumeric}
	if normalize.HasField(resp.Body, "item") {
		schema.Field = "item"
	}
	env, err := normalize.Decode[domain.Item](resp.StatusCode, resp.Body, schema)
	return env.Data, err
}

// ItemCollectionsV2 lists the collections an item belongs to.
func (c *Client) ItemCollectionsV2(ctx context.Context, id int) ([]domain.Collection, error) {
	if err := requireID("api2 item collections", "id", id); err != nil {
		return nil, err
	}
	env, err := call[[]domain.Collection](ctx, c, api2Get(pathf("api2/v1.1/items/collections/%d", id), nil),
		normalize.Schema{Field: "items", BareArray: true, NullOK: true})
	return env.Data, err
}

// Backdrop returns backdrop artwork for a title by imdb id, with the kinopoisk id as a hint.
func (c *Client) Backdrop(ctx context.Context, imdb, kinopoisk int) (json.RawMessage, error) {
	if err := requireID("api2 backdrop", "imdb", imdb); err != nil {
		return nil, err
	}
	q := url.Values{}
	setPositive(q, "kp_id", kinopoisk)
	env, err := call[json.RawMessage](ctx, c, api2Get(pathf("api2/v1/backdrop/%d", imdb), q), normalize.Schema{NullOK: true})
	return env.Data, err
}

// IMDb looks up titles by one or more imdb ids.
func (c *Client) IMDb(ctx context.Context, ids ...int) (json.RawMessage, error) {
	if len(ids) == 0 {
		return nil, domain.InvalidArgument("api2 imdb", "at least one id is required")
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		if err := requireID("api2 imdb", "id", id); err != nil {
			return nil, err
		}
		parts[i] = itoa(id)
	}
	env, err := call[json.RawMessage](ctx, c, api2Get("api2/v1/imdb/"+strings.Join(parts, ","), nil),
		normalize.Schema{NullOK: true, BareArray: true})
	return env.Data, err
}

// AddNotification subscribes a push device to new episodes of an item.
func (c *Client) AddNotification(ctx context.Context, id int, deviceToken string) (json.RawMessage, error) {
	return c.notification(ctx, "api2/v1.1/notifications/add/%d", id, deviceToken)
}

// Notification returns the subscription state of an item for a push device.
func (c *Client) Notification(ctx context.Context, id int, deviceToken string) (json.RawMessage, error) {
	return c.notification(ctx, "api2/v1.1/notifications/%d", id, deviceToken)
}

// DeleteNotification unsubscribes a push device from an item.
func (c *Client) DeleteNotification(ctx context.Context, id int, deviceToken string) (json.RawMessage, error) {
	return c.notification(ctx, "api2/v1.1/notifications/delete/%d", id, deviceToken)
}

func (c *Client) notification(ctx context.Context, format string, id int, deviceToken string) (json.RawMessage, error) {
	if err := requireID("api2 notifications", "id", id); err != nil {
		return nil, err
	}
	if deviceToken == "" {
		return nil, domain.InvalidArgument("api2 notifications", "device token is required")
	}
	req := api2Get(pathf(format, id), url.Values{"device_token": {deviceToken}})
	req.Mutating = true
	env, err := call[json.RawMessage](ctx, c, req, normalize.Schema{NullOK: true})
	return env.Data, err
}

// UploadReport posts a diagnostic report under filename.
func (c *Client) UploadReport(ctx context.Context, filename string, body []byte) error {
	if filename == "" || strings.ContainsAny(filename, "/\\") {
		return domain.InvalidArgument("api2 upload_report", "invalid file name %q", filename)
	}
	resp, err := c.gw.Do(ctx, gateway.Request{
		API:         gateway.API2,
		Method:      http.MethodPost,
		Path:        "api2/v1/upload_report/" + url.PathEscape(filename),
		Body:        body,
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return err
	}
	c.log.WithField("status", resp.StatusCode).Debug("report uploaded")
	return nil
}

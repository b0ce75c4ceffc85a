package kinopub

import (
	"context"
	"net/url"

	"github.com/waabox/kinopub/internal/domain"
	"github.com/waabox/kinopub/internal/normalize"
)

// Reference list names accepted by Reference.
const (
	RefServerLocation  = "server-location"
	RefStreamingType   = "streaming-type"
	RefVoiceoverType   = "voiceover-type"
	RefVoiceoverAuthor = "voiceover-author"
	RefVideoQuality    = "video-quality"
)

var referenceNames = map[string]bool{
	RefServerLocation:  true,
	RefStreamingType:   true,
	RefVoiceoverType:   true,
	RefVoiceoverAuthor: true,
	RefVideoQuality:    true,
}

// Reference lists may arrive as a bare array or wrapped in {status, items}.
var referenceSchema = normalize.Schema{Field: "items", BareArray: true}

// Types lists the content types.
func (c *Client) Types(ctx context.Context) ([]domain.ContentType, error) {
	return cached[domain.ContentType](ctx, c, "types", get("v1/types", nil), referenceSchema)
}

// Genres lists genres, optionally restricted to one content type.
func (c *Client) Genres(ctx context.Context, typ domain.ItemType) ([]domain.Genre, error) {
	var q url.Values
	if typ != "" {
		q = url.Values{"type": {string(typ)}}
	}
	return cached[domain.Genre](ctx, c, "genres:"+string(typ), get("v1/genres", q), referenceSchema)
}

// Countries lists countries.
func (c *Client) Countries(ctx context.Context) ([]domain.Country, error) {
	return cached[domain.Country](ctx, c, "countries", get("v1/countries", nil), referenceSchema)
}

// Subtitles lists the subtitle languages.
func (c *Client) Subtitles(ctx context.Context) ([]domain.Subtitle, error) {
	return cached[domain.Subtitle](ctx, c, "subtitles", get("v1/subtitles", nil), referenceSchema)
}

// Reference returns one of the /v1/references lists.
func (c *Client) Reference(ctx context.Context, name string) ([]domain.ReferenceItem, error) {
	if !referenceNames[name] {
		return nil, domain.InvalidArgument("reference", "unknown reference list %q", name)
	}
	return cached[domain.ReferenceItem](ctx, c, "ref:"+name, get("v1/references/"+name, nil), referenceSchema)
}

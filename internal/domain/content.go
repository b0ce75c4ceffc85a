package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ItemType is the catalog type of an item (movie, serial, tvshow, 3D, concert, documovie, docuserial).
type ItemType string

const (
	TypeMovie      ItemType = "movie"
	TypeSerial     ItemType = "serial"
	TypeTVShow     ItemType = "tvshow"
	Type3D         ItemType = "3D"
	TypeConcert    ItemType = "concert"
	TypeDocuMovie  ItemType = "documovie"
	TypeDocuSerial ItemType = "docuserial"
)

// FlexID is an identifier the API returns either as a number or as a string.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

// Int returns the identifier as an int, or 0 if it is not numeric.
func (f FlexID) Int() int {
	n, _ := strconv.Atoi(string(f))
	return n
}

// ContentType is one entry of /v1/types.
type ContentType struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Genre is one entry of /v1/genres.
type Genre struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type,omitempty"`
}

// Country is one entry of /v1/countries.
type Country struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// Subtitle is one entry of /v1/subtitles. Deployments return either id or lang.
type Subtitle struct {
	ID    FlexID `json:"id,omitempty"`
	Lang  string `json:"lang,omitempty"`
	Title string `json:"title,omitempty"`
}

// ReferenceItem is one entry of a /v1/references/* list.
type ReferenceItem struct {
	ID    FlexID `json:"id"`
	Title string `json:"title,omitempty"`
	Label string `json:"label,omitempty"`
}

// Posters holds poster URLs by size.
type Posters struct {
	Small  string `json:"small,omitempty"`
	Medium string `json:"medium,omitempty"`
	Big    string `json:"big,omitempty"`
	Wide   string `json:"wide,omitempty"`
}

// Duration is the runtime summary of an item, in seconds.
// Average is fractional for serials.
type Duration struct {
	Average float64 `json:"average"`
	Total   float64 `json:"total"`
}

// Item is a catalog entry (movie, serial, ...).
type Item struct {
	ID               int       `json:"id"`
	Type             ItemType  `json:"type"`
	Subtype          string    `json:"subtype,omitempty"`
	Title            string    `json:"title"`
	Year             int       `json:"year,omitempty"`
	Cast             string    `json:"cast,omitempty"`
	Director         string    `json:"director,omitempty"`
	Voice            string    `json:"voice,omitempty"`
	Plot             string    `json:"plot,omitempty"`
	Genres           []Genre   `json:"genres,omitempty"`
	Countries        []Country `json:"countries,omitempty"`
	Duration         *Duration `json:"duration,omitempty"`
	Quality          int       `json:"quality,omitempty"`
	IMDb             int       `json:"imdb,omitempty"`
	IMDbRating       float64   `json:"imdb_rating,omitempty"`
	IMDbVotes        int       `json:"imdb_votes,omitempty"`
	Kinopoisk        int       `json:"kinopoisk,omitempty"`
	KinopoiskRating  float64   `json:"kinopoisk_rating,omitempty"`
	KinopoiskVotes   int       `json:"kinopoisk_votes,omitempty"`
	Rating           float64   `json:"rating,omitempty"`
	RatingVotes      int       `json:"rating_votes,omitempty"`
	RatingPercentage float64   `json:"rating_percentage,omitempty"`
	Views            int       `json:"views,omitempty"`
	Comments         int       `json:"comments,omitempty"`
	Finished         bool      `json:"finished,omitempty"`
	InWatchlist      bool      `json:"in_watchlist,omitempty"`
	Subscribed       bool      `json:"subscribed,omitempty"`
	Posters          Posters   `json:"posters"`
	CreatedAt        int64     `json:"created_at,omitempty"`
	UpdatedAt        int64     `json:"updated_at,omitempty"`
	Videos           []Video   `json:"videos,omitempty"`
	Seasons          []Season  `json:"seasons,omitempty"`
}

// FirstMediaID returns the first video id, falling back to the first episode id.
func (it Item) FirstMediaID() (int, bool) {
	for _, v := range it.Videos {
		if v.ID != 0 {
			return v.ID, true
		}
	}
	for _, s := range it.Seasons {
		for _, e := range s.Episodes {
			if e.ID != 0 {
				return e.ID, true
			}
		}
	}
	return 0, false
}

// WatchMark is the per-media watching state embedded in item details.
type WatchMark struct {
	Status int     `json:"status"`
	Time   float64 `json:"time"`
}

// Video is a playable media entry of a movie, or an episode of a season.
type Video struct {
	ID        int         `json:"id"`
	Number    int         `json:"number,omitempty"`
	Title     string      `json:"title"`
	Thumbnail string      `json:"thumbnail,omitempty"`
	Duration  float64     `json:"duration,omitempty"`
	Watched   int         `json:"watched,omitempty"`
	Watching  WatchMark   `json:"watching"`
	Files     []MediaFile `json:"files,omitempty"`
}

// Season groups the episodes of a serial.
type Season struct {
	ID       int       `json:"id"`
	Number   int       `json:"number"`
	Title    string    `json:"title,omitempty"`
	Watching WatchMark `json:"watching"`
	Episodes []Video   `json:"episodes"`
}

// Trailers accepts both the object and the array form of the "trailer" field.
type Trailers []Trailer

// Trailer is a single trailer reference.
type Trailer struct {
	ID    FlexID      `json:"id"`
	URL   string      `json:"url,omitempty"`
	Files []MediaFile `json:"files,omitempty"`
}

func (t *Trailers) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*t = nil
		return nil
	case len(b) > 0 && b[0] == '[':
		var list []Trailer
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		*t = list
		return nil
	}
	var one Trailer
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*t = Trailers{one}
	return nil
}

// CommentAuthor is the public profile attached to a comment.
type CommentAuthor struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Comment is a user comment on an item.
type Comment struct {
	ID      int           `json:"id"`
	Depth   int           `json:"depth"`
	Text    string        `json:"message"`
	Rating  float64       `json:"rating"`
	Deleted bool          `json:"deleted"`
	Created int64         `json:"created"`
	User    CommentAuthor `json:"user"`
}

// VoteResult is the response to /v1/items/vote. Totals may arrive as strings.
type VoteResult struct {
	Voted    bool    `json:"voted"`
	Total    int     `json:"total"`
	Positive int     `json:"positive"`
	Negative int     `json:"negative"`
	Rating   float64 `json:"rating"`
}

// MediaURLs lists stream URLs by protocol.
type MediaURLs struct {
	HTTP string `json:"http,omitempty"`
	HLS  string `json:"hls,omitempty"`
	HLS2 string `json:"hls2,omitempty"`
	HLS4 string `json:"hls4,omitempty"`
}

// PreferredType returns the best stream type available, in hls4, hls2, hls, http order.
func (u MediaURLs) PreferredType() string {
	switch {
	case u.HLS4 != "":
		return "hls4"
	case u.HLS2 != "":
		return "hls2"
	case u.HLS != "":
		return "hls"
	}
	return "http"
}

// MediaFile is one encoded rendition of a media.
type MediaFile struct {
	Codec     string     `json:"codec,omitempty"`
	Width     int        `json:"w,omitempty"`
	Height    int        `json:"h,omitempty"`
	Quality   string     `json:"quality,omitempty"`
	QualityID int        `json:"quality_id,omitempty"`
	File      string     `json:"file,omitempty"`
	URLs      *MediaURLs `json:"urls,omitempty"`
	URL       *MediaURLs `json:"url,omitempty"`
}

// Streams returns whichever of urls/url the server populated.
func (f MediaFile) Streams() MediaURLs {
	if f.URLs != nil {
		return *f.URLs
	}
	if f.URL != nil {
		return *f.URL
	}
	return MediaURLs{}
}

// MediaLinks is the response of /v1/items/media-links.
type MediaLinks struct {
	ID        int         `json:"id"`
	Files     []MediaFile `json:"files"`
	Subtitles []Subtitle  `json:"subtitles,omitempty"`
}

// VideoLink is the response of /v1/items/media-video-link.
type VideoLink struct {
	URL string `json:"url"`
}

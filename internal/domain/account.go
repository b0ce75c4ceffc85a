package domain

import (
	"encoding/json"
)

// Subscription describes the account's paid subscription.
type Subscription struct {
	Active  bool    `json:"active"`
	EndTime int64   `json:"end_time,omitempty"`
	Days    float64 `json:"days,omitempty"`
}

// Profile is the public part of a user account.
type Profile struct {
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// User is the response payload of /v1/user.
type User struct {
	Username     string        `json:"username"`
	RegDate      int64         `json:"reg_date,omitempty"`
	Subscription *Subscription `json:"subscription,omitempty"`
	Profile      *Profile      `json:"profile,omitempty"`
}

// Folder is a bookmark folder.
type Folder struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Views   int    `json:"views,omitempty"`
	Count   int    `json:"count"`
	Created int64  `json:"created,omitempty"`
	Updated int64  `json:"updated,omitempty"`
}

// Collection is an editorial collection of items.
type Collection struct {
	ID       int     `json:"id"`
	Title    string  `json:"title"`
	Watchers int     `json:"watchers,omitempty"`
	Views    int     `json:"views,omitempty"`
	Created  int64   `json:"created,omitempty"`
	Updated  int64   `json:"updated,omitempty"`
	Posters  Posters `json:"posters"`
}

// Channel is a TV channel.
type Channel struct {
	ID      int               `json:"id"`
	Name    string            `json:"name"`
	Title   string            `json:"title"`
	Logos   map[string]string `json:"logos,omitempty"`
	Stream  string            `json:"stream"`
	Embed   string            `json:"embed,omitempty"`
	Playing string            `json:"playing,omitempty"`
	Current string            `json:"current,omitempty"`
}

// Device is a device linked to the account.
type Device struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Hardware  string `json:"hardware,omitempty"`
	Software  string `json:"software,omitempty"`
	Created   int64  `json:"created,omitempty"`
	Updated   int64  `json:"updated,omitempty"`
	LastSeen  int64  `json:"last_seen,omitempty"`
	IsBrowser bool   `json:"is_browser,omitempty"`
}

// DeviceInfo is sent to /v1/device/notify to describe the calling device.
type DeviceInfo struct {
	Title    string
	Hardware string
	Software string
}

// SettingOption is one choice of a list-valued device setting.
type SettingOption struct {
	ID       int      `json:"id"`
	Label    string   `json:"label"`
	Selected FlexBool `json:"selected"`
}

// DeviceSetting is one entry of the device settings map. Value is an int, a bool,
// or a list of SettingOption depending on the setting.
type DeviceSetting struct {
	Label string          `json:"label,omitempty"`
	Type  string          `json:"type,omitempty"`
	Value json.RawMessage `json:"value"`
}

// IntValue reduces the setting to the integer form the update endpoint expects:
// bools become 0/1, lists yield the selected option id (or the first id).
func (s DeviceSetting) IntValue() (int, bool) {
	var b bool
	if err := json.Unmarshal(s.Value, &b); err == nil {
		if b {
			return 1, true
		}
		return 0, true
	}
	var n int
	if err := json.Unmarshal(s.Value, &n); err == nil {
		return n, true
	}
	var opts []SettingOption
	if err := json.Unmarshal(s.Value, &opts); err != nil || len(opts) == 0 {
		return 0, false
	}
	for _, o := range opts {
		if o.Selected {
			return o.ID, true
		}
	}
	return opts[0].ID, true
}

// DeviceSettings maps a setting key (supportSsl, streamingType, ...) to its state.
type DeviceSettings map[string]DeviceSetting

// FlexBool accepts true/false as well as 1/0.
type FlexBool bool

func (f *FlexBool) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "true", "1", `"1"`:
		*f = true
	default:
		*f = false
	}
	return nil
}

// HistoryEntry is one record of the watch history.
type HistoryEntry struct {
	Time      float64 `json:"time"`
	Counter   int     `json:"counter"`
	FirstSeen int64   `json:"first_seen"`
	LastSeen  int64   `json:"last_seen"`
	Item      Item    `json:"item"`
	Media     Video   `json:"media"`
}

// WatchingInfo is the response payload of /v1/watching for a single item.
type WatchingInfo struct {
	ID      int              `json:"id"`
	Type    ItemType         `json:"type"`
	Title   string           `json:"title"`
	Videos  []WatchingMedia  `json:"videos,omitempty"`
	Seasons []WatchingSeason `json:"seasons,omitempty"`
}

// WatchingMedia is the progress of one media.
type WatchingMedia struct {
	ID       int     `json:"id"`
	Number   int     `json:"number"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
	Time     float64 `json:"time"`
	Status   int     `json:"status"`
	Updated  int64   `json:"updated,omitempty"`
}

// WatchingSeason is the progress of one season.
type WatchingSeason struct {
	ID       int             `json:"id"`
	Number   int             `json:"number"`
	Status   int             `json:"status"`
	Episodes []WatchingMedia `json:"episodes"`
}

// WatchingItem is an entry of /v1/watching/movies and /v1/watching/serials.
type WatchingItem struct {
	ID      int      `json:"id"`
	Type    ItemType `json:"type"`
	Subtype string   `json:"subtype,omitempty"`
	Title   string   `json:"title"`
	Posters Posters  `json:"posters"`
	Total   int      `json:"total,omitempty"`
	Watched int      `json:"watched,omitempty"`
	New     int      `json:"new,omitempty"`
}

// ToggleResult is returned by the watching toggles.
type ToggleResult struct {
	Status   int  `json:"status"`
	Watched  int  `json:"watched,omitempty"`
	Watching bool `json:"watching,omitempty"`
}

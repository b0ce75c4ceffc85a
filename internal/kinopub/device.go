package kinopub

import (
	"context"
	"net/url"
	"strings"

	"github.com/waabox/kinopub/internal/domain"
	"github.com/waabox/kinopub/internal/normalize"
)

// DeviceSettingsUpdate holds the settings sent to /v1/device/{id}/settings.
// Nil fields are left unchanged.
type DeviceSettingsUpdate struct {
	SupportSSL     *bool
	SupportHEVC    *bool
	SupportHDR     *bool
	Support4K      *bool
	MixedPlaylist  *bool
	StreamingType  *int
	ServerLocation *int
}

func (u DeviceSettingsUpdate) form() url.Values {
	v := url.Values{}
	for key, b := range map[string]*bool{
		"supportSsl":    u.SupportSSL,
		"supportHevc":   u.SupportHEVC,
		"supportHdr":    u.SupportHDR,
		"support4k":     u.Support4K,
		"mixedPlaylist": u.MixedPlaylist,
	} {
		if b != nil {
			v.Set(key, boolParam(*b))
		}
	}
	if u.StreamingType != nil {
		v.Set("streamingType", itoa(*u.StreamingType))
	}
	if u.ServerLocation != nil {
		v.Set("serverLocation", itoa(*u.ServerLocation))
	}
	return v
}

// SettingsUpdateFrom builds an update that re-sends the current settings, so a
// caller can change one field and keep the rest.
func SettingsUpdateFrom(s domain.DeviceSettings) DeviceSettingsUpdate {
	var u DeviceSettingsUpdate
	flag := func(key string) *bool {
		n, ok := s[key].IntValue()
		if !ok {
			return nil
		}
		b := n != 0
		return &b
	}
	num := func(key string) *int {
		n, ok := s[key].IntValue()
		if !ok {
			return nil
		}
		return &n
	}
	u.SupportSSL = flag("supportSsl")
	u.SupportHEVC = flag("supportHevc")
	u.SupportHDR = flag("supportHdr")
	u.Support4K = flag("support4k")
	u.MixedPlaylist = flag("mixedPlaylist")
	u.StreamingType = num("streamingType")
	u.ServerLocation = num("serverLocation")
	return u
}

var deviceNumeric = []string{"created", "updated", "last_seen"}

// Devices lists the devices linked to the account.
func (c *Client) Devices(ctx context.Context) ([]domain.Device, error) {
	env, err := call[[]domain.Device](ctx, c, get("v1/device", nil),
		normalize.Schema{Field: "devices", Numeric: deviceNumeric})
	return env.Data, err
}

// CurrentDevice returns the device the token was issued to.
func (c *Client) CurrentDevice(ctx context.Context) (domain.Device, error) {
	env, err := call[domain.Device](ctx, c, get("v1/device/info", nil),
		normalize.Schema{Field: "device", Numeric: deviceNumeric})
	return env.Data, err
}

// Device returns one linked device.
func (c *Client) Device(ctx context.Context, id int) (domain.Device, error) {
	if err := requireID("device", "id", id); err != nil {
		return domain.Device{}, err
	}
	env, err := call[domain.Device](ctx, c, get(pathf("v1/device/%d", id), nil),
		normalize.Schema{Field: "device", Numeric: deviceNumeric})
	return env.Data, err
}

// DeviceSettings returns the playback settings of a device.
func (c *Client) DeviceSettings(ctx context.Context, id int) (domain.DeviceSettings, error) {
	if err := requireID("device/settings", "id", id); err != nil {
		return nil, err
	}
	env, err := call[domain.DeviceSettings](ctx, c, get(pathf("v1/device/%d/settings", id), nil),
		normalize.Schema{Field: "settings"})
	return env.Data, err
}

// UpdateDeviceSettings changes the playback settings of a device.
func (c *Client) UpdateDeviceSettings(ctx context.Context, id int, u DeviceSettingsUpdate) error {
	if err := requireID("device/settings", "id", id); err != nil {
		return err
	}
	form := u.form()
	if len(form) == 0 {
		return domain.InvalidArgument("device/settings", "no settings to update")
	}
	return c.exec(ctx, postForm(pathf("v1/device/%d/settings", id), form))
}

// NotifyDevice tells the service what the current device is.
func (c *Client) NotifyDevice(ctx context.Context, info domain.DeviceInfo) error {
	if strings.TrimSpace(info.Title) == "" {
		return domain.InvalidArgument("device/notify", "title is required")
	}
	return c.exec(ctx, postForm("v1/device/notify", url.Values{
		"title":    {info.Title},
		"hardware": {info.Hardware},
		"software": {info.Software},
	}))
}

package kinopub

import (
	"context"
	"net/url"
	"strings"

	"github.com/waabox/kinopub/internal/domain"
	"github.com/waabox/kinopub/internal/normalize"
)

var folderNumeric = []string{"count", "views"}

// Folders lists the bookmark folders.
func (c *Client) Folders(ctx context.Context) ([]domain.Folder, error) {
	env, err := call[[]domain.Folder](ctx, c, get("v1/bookmarks", nil),
		normalize.Schema{Field: "items", Numeric: folderNumeric})
	return env.Data, err
}

// FolderItems lists the items of a folder.
func (c *Client) FolderItems(ctx context.Context, folder, pageNum int) (Page[domain.Item], error) {
	if err := requireID("bookmarks", "folder", folder); err != nil {
		return Page[domain.Item]{}, err
	}
	q := url.Values{}
	setPositive(q, "page", pageNum)
	return page[domain.Item](ctx, c, get(pathf("v1/bookmarks/%d", folder), q), itemsSchema)
}

// CreateFolder creates a folder and returns it.
func (c *Client) CreateFolder(ctx context.Context, title string) (domain.Folder, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Folder{}, domain.InvalidArgument("bookmarks/create", "title is required")
	}
	env, err := call[domain.Folder](ctx, c, postForm("v1/bookmarks/create", url.Values{"title": {title}}),
		normalize.Schema{Field: "folder", Numeric: []string{"id"}})
	return env.Data, err
}

// RemoveFolder deletes a folder.
func (c *Client) RemoveFolder(ctx context.Context, folder int) error {
	if err := requireID("bookmarks/remove-folder", "folder", folder); err != nil {
		return err
	}
	return c.exec(ctx, postForm("v1/bookmarks/remove-folder", url.Values{"folder": {itoa(folder)}}))
}

// AddBookmark puts an item into a folder.
func (c *Client) AddBookmark(ctx context.Context, item, folder int) error {
	if err := requireID("bookmarks/add", "item", item); err != nil {
		return err
	}
	if err := requireID("bookmarks/add", "folder", folder); err != nil {
		return err
	}
	return c.exec(ctx, postForm("v1/bookmarks/add", url.Values{"item": {itoa(item)}, "folder": {itoa(folder)}}))
}

// RemoveBookmark takes an item out of a folder.
func (c *Client) RemoveBookmark(ctx context.Context, item, folder int) error {
	if err := requireID("bookmarks/remove-item", "item", item); err != nil {
		return err
	}
	if err := requireID("bookmarks/remove-item", "folder", folder); err != nil {
		return err
	}
	return c.exec(ctx, postForm("v1/bookmarks/remove-item", url.Values{"item": {itoa(item)}, "folder": {itoa(folder)}}))
}

// ItemFolders lists the folders that contain an item.
func (c *Client) ItemFolders(ctx context.Context, item int) ([]domain.Folder, error) {
	if err := requireID("bookmarks/get-item-folders", "item", item); err != nil {
		return nil, err
	}
	env, err := call[[]domain.Folder](ctx, c, get("v1/bookmarks/get-item-folders", url.Values{"item": {itoa(item)}}),
		normalize.Schema{Field: "folders", Numeric: folderNumeric})
	return env.Data, err
}

package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/waabox/kinopub/internal/domain"
	"github.com/waabox/kinopub/internal/kinopub"
)

type pageFlags struct {
	page    int
	perPage int
}

func addPageFlags(fs *pflag.FlagSet, p *pageFlags) {
	fs.IntVar(&p.page, "page", 0, "page number")
	fs.IntVar(&p.perPage, "perpage", 0, "items per page")
}

// withClient runs fn with a ready client and prints its result as JSON.
func withClient(g *globalFlags, fn func(ctx context.Context, c *kinopub.Client) (any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		rt, err := setup(g)
		if err != nil {
			return err
		}
		defer rt.Close()
		v, err := fn(cmd.Context(), rt.client)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), v)
	}
}

func intArg(args []string, i int, name string) (int, error) {
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", name, args[i])
	}
	return n, nil
}

func newUserCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "user",
		Short: "Show the current account",
		Args:  cobra.NoArgs,
		RunE: withClient(g, func(ctx context.Context, c *kinopub.Client) (any, error) {
			return c.User(ctx)
		}),
	}
}

func newItemsCmd(g *globalFlags) *cobra.Command {
	var q kinopub.ItemsQuery
	var typ string
	var p pageFlags
	cmd := &cobra.Command{
		Use:   "items",
		Short: "List catalog items",
		Args:  cobra.NoArgs,
		RunE: withClient(g, func(ctx context.Context, c *kinopub.Client) (any, error) {
			q.Type = domain.ItemType(typ)
			q.Page, q.PerPage = p.page, p.perPage
			return c.Items(ctx, q)
		}),
	}
	fs := cmd.Flags()
	fs.StringVar(&typ, "type", "", "content type (movie, serial, ...)")
	fs.IntVar(&q.Genre, "genre", 0, "genre id")
	fs.IntVar(&q.Country, "country", 0, "country id")
	fs.StringVar(&q.Title, "title", "", "title filter")
	fs.StringVar(&q.Sort, "sort", "", "sort field, '-' suffix for descending")
	fs.StringArrayVar(&q.Conditions, "condition", nil, "extra condition, repeatable")
	addPageFlags(fs, &p)
	return cmd
}

func newItemCmd(g *globalFlags) *cobra.Command {
	var noLinks bool
	cmd := &cobra.Command{
		Use:   "item ID",
		Short: "Show one item",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		id, err := intArg(args, 0, "id")
		if err != nil {
			return err
		}
		return withClient(g, func(ctx context.Context, cl *kinopub.Client) (any, error) {
			return cl.Item(ctx, id, noLinks)
		})(c, args)
	}
	cmd.Flags().BoolVar(&noLinks, "nolinks", false, "omit media file links")
	return cmd
}

func newSearchCmd(g *globalFlags) *cobra.Command {
	var typ, field string
	var p pageFlags
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search titles",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		return withClient(g, func(ctx context.Context, cl *kinopub.Client) (any, error) {
			return cl.Search(ctx, args[0], kinopub.SearchQuery{
				Type: domain.ItemType(typ), Field: field, Page: p.page, PerPage: p.perPage,
			})
		})(c, args)
	}
	cmd.Flags().StringVar(&typ, "type", "", "content type")
	cmd.Flags().StringVar(&field, "field", "", "field to search in (title, director, cast)")
	addPageFlags(cmd.Flags(), &p)
	return cmd
}

func newHistoryCmd(g *globalFlags) *cobra.Command {
	var p pageFlags
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the watch history",
		Args:  cobra.NoArgs,
		RunE: withClient(g, func(ctx context.Context, c *kinopub.Client) (any, error) {
			return c.History(ctx, p.page, p.perPage)
		}),
	}
	addPageFlags(cmd.Flags(), &p)
	return cmd
}

func newBookmarksCmd(g *globalFlags) *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "bookmarks [FOLDER]",
		Short: "List bookmark folders, or the items of one folder",
		Args:  cobra.MaximumNArgs(1),
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		folder := 0
		if len(args) == 1 {
			n, err := intArg(args, 0, "folder")
			if err != nil {
				return err
			}
			folder = n
		}
		return withClient(g, func(ctx context.Context, cl *kinopub.Client) (any, error) {
			if folder == 0 {
				return cl.Folders(ctx)
			}
			return cl.FolderItems(ctx, folder, page)
		})(c, args)
	}
	cmd.Flags().IntVar(&page, "page", 0, "page number")
	return cmd
}

func newReferencesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "references NAME",
		Short:     "Show a reference list (types, genres, countries, subtitles, server-location, ...)",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"types", "genres", "countries", "subtitles", kinopub.RefServerLocation, kinopub.RefStreamingType, kinopub.RefVoiceoverType, kinopub.RefVoiceoverAuthor, kinopub.RefVideoQuality},
		RunE: func(c *cobra.Command, args []string) error {
			return withClient(g, func(ctx context.Context, cl *kinopub.Client) (any, error) {
				switch args[0] {
				case "types":
					return cl.Types(ctx)
				case "genres":
					return cl.Genres(ctx, "")
				case "countries":
					return cl.Countries(ctx)
				case "subtitles":
					return cl.Subtitles(ctx)
				}
				return cl.Reference(ctx, args[0])
			})(c, args)
		},
	}
}

func newDevicesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the devices linked to the account",
		Args:  cobra.NoArgs,
		RunE: withClient(g, func(ctx context.Context, c *kinopub.Client) (any, error) {
			return c.Devices(ctx)
		}),
	}
}

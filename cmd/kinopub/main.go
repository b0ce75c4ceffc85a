package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/waabox/kinopub/internal/auth"
	"github.com/waabox/kinopub/internal/config"
	"github.com/waabox/kinopub/internal/gateway"
	"github.com/waabox/kinopub/internal/kinopub"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

type globalFlags struct {
	configPath string
	token      string
	tokenFile  string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "kinopub: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:           "kinopub",
		Short:         "Command line client for the KinoPub API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", config.DefaultConfigPath(), "path to the config file")
	pf.StringVar(&g.token, "token", "", "access token to use instead of the stored one")
	pf.StringVar(&g.tokenFile, "token-file", "", "file holding an access token")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "log requests to stderr")

	root.AddCommand(
		newLoginCmd(&g),
		newLogoutCmd(&g),
		newTokenCmd(&g),
		newUserCmd(&g),
		newItemsCmd(&g),
		newItemCmd(&g),
		newSearchCmd(&g),
		newHistoryCmd(&g),
		newBookmarksCmd(&g),
		newReferencesCmd(&g),
		newDevicesCmd(&g),
	)
	return root
}

// runtime is everything a command needs to talk to the service.
type runtime struct {
	cfg      config.Config
	log      *logrus.Logger
	registry *prometheus.Registry
	tokens   *auth.TokenManager
	client   *kinopub.Client
	close    func() error
}

func setup(g *globalFlags) (*runtime, error) {
	return openRuntime(g, true)
}

// openRuntime builds the runtime. With seed unset, supplied access tokens
// are ignored and the manager only sees the stored login.
func openRuntime(g *globalFlags, seed bool) (*runtime, error) {
	cfg, err := config.LoadFrom(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)
	if cfg.LogLevel != "" {
		lvl, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("log_level: %w", err)
		}
		log.SetLevel(lvl)
	}
	if g.verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics := gateway.NewMetrics(registry)
	httpClient := &http.Client{Timeout: cfg.TimeoutOrDefault()}

	flow := auth.NewDeviceFlow(auth.Credentials{
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
	}, cfg.BaseURLOrDefault(), httpClient, nil)

	tokens, err := auth.NewTokenManager(flow,
		auth.WithStore(store),
		auth.WithLogger(log.WithField("component", "auth")),
		auth.WithRefreshMargin(cfg.RefreshMarginOrDefault()),
		auth.WithRefreshObserver(metrics.ObserveRefresh),
	)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("loading token: %w", err)
	}

	if seed {
		supplied, err := auth.ResolveAccessToken(g.token, cfg.Token.AccessToken, g.tokenFile)
		if err != nil {
			closeStore()
			return nil, err
		}
		if supplied != "" {
			if err := tokens.Seed(auth.TokenState{AccessToken: supplied, TokenType: "Bearer"}); err != nil {
				closeStore()
				return nil, fmt.Errorf("seeding token: %w", err)
			}
			log.WithField("token", auth.Mask(supplied)).Debug("using supplied access token")
		}
	}

	gw := gateway.New(tokens, gateway.Config{
		BaseURL:     cfg.BaseURLOrDefault(),
		API2BaseURL: cfg.API2BaseURLOrDefault(),
		MaxAttempts: cfg.MaxAttemptsOrDefault(),
		BaseDelay:   cfg.BaseDelayOrDefault(),
		MaxDelay:    cfg.MaxDelayOrDefault(),
		RateLimit:   cfg.API.RateLimit,
	},
		gateway.WithHTTPClient(httpClient),
		gateway.WithLogger(log.WithField("component", "gateway")),
		gateway.WithMetrics(metrics),
	)
	client := kinopub.New(gw,
		kinopub.WithReferenceCache(cfg.ReferenceCacheTTLOrDefault()),
		kinopub.WithLogger(log.WithField("component", "client")),
	)

	return &runtime{
		cfg:      cfg,
		log:      log,
		registry: registry,
		tokens:   tokens,
		client:   client,
		close:    closeStore,
	}, nil
}

// Close logs request counters at debug level and releases the token store.
func (rt *runtime) Close() {
	if rt.log.IsLevelEnabled(logrus.DebugLevel) {
		if families, err := rt.registry.Gather(); err == nil {
			for _, mf := range families {
				for _, m := range mf.GetMetric() {
					fields := logrus.Fields{"value": m.GetCounter().GetValue()}
					for _, l := range m.GetLabel() {
						fields[l.GetName()] = l.GetValue()
					}
					rt.log.WithFields(fields).Debug(mf.GetName())
				}
			}
		}
	}
	if err := rt.close(); err != nil {
		rt.log.WithError(err).Warn("closing token store")
	}
}

func openStore(cfg config.Config) (auth.TokenStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.TokenStoreOrDefault() {
	case "memory":
		return auth.NewMemoryStore(), noop, nil
	case "file":
		return auth.NewFileStore(cfg.TokenPathOrDefault()), noop, nil
	case "bolt":
		s, err := auth.OpenBoltStore(cfg.TokenPathOrDefault(), "")
		if err != nil {
			return nil, nil, fmt.Errorf("opening token store: %w", err)
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown token store %q (want memory, file or bolt)", cfg.Token.Store)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Command riptide-proxy runs the developer-facing reverse proxy: it
// loads the system config and project mapping, assembles the resolver,
// the HTTP/WebSocket proxy handlers and the Autostart Coordinator, mints
// or reloads its self-signed CA, optionally drops root privileges, and
// serves HTTP and (if configured) HTTPS until interrupted.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/autostart"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/config"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/engine"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/permission"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/privileges"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/project"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/proxyhttp"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/proxyws"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/resolver"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/rplog"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/server"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/tlscert"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/version"
)

var (
	flagConfig     string
	flagProjectDir string
	flagUser       string
	flagLogLevel   string
	flagCADir      string
)

func main() {
	root := &cobra.Command{
		Use:           "riptide-proxy",
		Short:         "A developer-facing reverse proxy that autostarts project containers on demand.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagLogLevel, "loglevel", "INFO",
		"log level: DEBUG, INFO, WARNING, ERROR, FATAL, CRITICAL")
	_, full := version.Get()
	root.Version = full

	root.AddCommand(runCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "riptide-proxy:", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the riptide-proxy version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, full := version.Get()
			fmt.Println(full)
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the proxy until interrupted",
		RunE:  runE,
	}
	cmd.Flags().StringVar(&flagConfig, "config", "riptide-proxy.yml", "path to the system config document")
	cmd.Flags().StringVar(&flagProjectDir, "project-dir", "projects", "directory of *.riptide.yml project documents")
	cmd.Flags().StringVar(&flagUser, "user", "", "drop privileges to this user before the listeners are bound")
	cmd.Flags().StringVar(&flagCADir, "ca-dir", defaultCADir(), "directory holding the persisted self-signed CA")
	return cmd
}

func defaultCADir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "riptide-proxy", "ca")
}

func runE(cmd *cobra.Command, args []string) error {
	if err := rplog.Init(flagLogLevel); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	log := rplog.Named("main")

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	loader := project.DirLoader{Dir: flagProjectDir}
	mapping, err := loader.LoadMapping()
	if err != nil {
		return fmt.Errorf("loading initial project mapping: %w", err)
	}

	eng := selectEngine(cfg.Engine)

	storage := resolver.NewStorage(loader, mapping, eng, resolver.DefaultProjectCacheTTL, resolver.DefaultAddressCacheTTL)
	storage.UseCompression = cfg.Proxy.Compression

	res := &resolver.Resolver{
		BaseURL:   cfg.Proxy.URL,
		Storage:   storage,
		Autostart: cfg.Proxy.Autostart,
	}

	tpl, err := proxyhttp.NewTemplates()
	if err != nil {
		return fmt.Errorf("building status page templates: %w", err)
	}

	httpHandler := proxyhttp.NewHandler(res, tpl, proxyhttp.DefaultUpstreamConnectTimeout, proxyhttp.DefaultUpstreamRequestTimeout)
	wsHandler := proxyws.NewHandler(res)
	gate := permission.Gate{Restrict: cfg.Proxy.AutostartRestrict}
	coordinator := autostart.NewCoordinator(storage, gate)

	mux := server.New(server.Config{
		BaseURL:     cfg.Proxy.URL,
		HTTPHandler: httpHandler,
		WSHandler:   wsHandler,
		Autostart:   coordinator,
	})

	var tlsConfig *tls.Config
	httpsAddr := ""
	if cfg.Proxy.Ports.HTTPS != 0 {
		tlsConfig, err = buildTLSConfig(flagCADir, cfg.Proxy.URL)
		if err != nil {
			return fmt.Errorf("setting up TLS: %w", err)
		}
		httpsAddr = fmt.Sprintf(":%d", cfg.Proxy.Ports.HTTPS)
	}
	httpAddr := fmt.Sprintf(":%d", cfg.Proxy.Ports.HTTP)

	// Privileges are dropped only after both listen addresses are known,
	// so the bind of a privileged port (below 1024) below still succeeds
	// under a --user drop (SUPPLEMENTED FEATURE 4: CAP_NET_BIND_SERVICE is
	// retained specifically so the listener keeps working post-drop).
	if err := privileges.Drop(flagUser); err != nil {
		return fmt.Errorf("dropping privileges: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Sugar().Infof("starting riptide-proxy for base url %q", cfg.Proxy.URL)
	return server.Run(ctx, mux, httpAddr, httpsAddr, tlsConfig)
}

// selectEngine picks the concrete Engine for name. No real container
// runtime provider is wired in (out of scope); every name currently
// falls back to the noop engine, which keeps the landing page, status
// pages, and resolver fully functional without a running container.
func selectEngine(name string) engine.Engine {
	switch name {
	default:
		rplog.Named("main").Sugar().Warnf("engine %q not recognized; no container runtime is wired in, using noop engine", name)
		return engine.Noop{}
	}
}

func buildTLSConfig(caDir, baseURL string) (*tls.Config, error) {
	store, err := tlscert.NewStore(caDir)
	if err != nil {
		return nil, err
	}
	ca, err := store.LoadOrCreateCA()
	if err != nil {
		return nil, fmt.Errorf("loading CA: %w", err)
	}
	leaf, err := store.LeafForWildcard(ca, baseURL)
	if err != nil {
		return nil, fmt.Errorf("minting wildcard leaf: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{*leaf},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/aweris/jgit"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the git HTTP server",
	Long:  "Serve git smart HTTP for every address until interrupted.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.Int("port", 8080, "listen port")
	flags.String("hostname", jgit.DefaultHostname, "public URL shown on the landing page")
	flags.Int("registry-size", jgit.DefaultRegistrySize, "cached per-address adapters")
	flags.Int("cache-size", jgit.DefaultCacheSize, "working copies kept after fetches (0 = unbounded)")
	flags.Duration("cache-ttl", jgit.DefaultCacheTTL, "idle time before a working copy is removed (0 = never)")
	flags.String("persist-mode", string(jgit.PersistSync), "when pushes are answered: sync (after upload) or async")
	flags.Bool("retain-after-push", false, "keep working copies after a push")
	flags.Bool("materialize-on-push", false, "restore missing working copies before a push")
	flags.Duration("remote-timeout", 0, "timeout for blob store calls (0 = none)")

	for key, name := range map[string]string{
		"port":                "port",
		"hostname":            "hostname",
		"registry_size":       "registry-size",
		"cache_size":          "cache-size",
		"cache_ttl":           "cache-ttl",
		"persist_mode":        "persist-mode",
		"retain_after_push":   "retain-after-push",
		"materialize_on_push": "materialize-on-push",
		"remote_timeout":      "remote-timeout",
	} {
		viper.BindPFlag(key, flags.Lookup(name))
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	mode, err := jgit.ParsePersistMode(viper.GetString("persist_mode"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	blobs, err := openStore(ctx)
	if err != nil {
		return err
	}

	srv, err := jgit.NewServer(
		jgit.WithRootDir(viper.GetString("root_dir")),
		jgit.WithHostname(viper.GetString("hostname")),
		jgit.WithMasterKey(viper.GetString("master_key")),
		jgit.WithStore(blobs),
		jgit.WithDeriver(newDeriver()),
		jgit.WithLogger(logger),
		jgit.WithConcurrency(viper.GetInt("concurrency")),
		jgit.WithRegistrySize(viper.GetInt("registry_size")),
		jgit.WithCache(viper.GetInt("cache_size"), viper.GetDuration("cache_ttl")),
		jgit.WithPersistMode(mode),
		jgit.WithRetainAfterPush(viper.GetBool("retain_after_push")),
		jgit.WithMaterializeOnPush(viper.GetBool("materialize_on_push")),
		jgit.WithRemoteTimeout(viper.GetDuration("remote_timeout")),
	)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(viper.GetInt("port"))),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(logger.Named("http")),
	}

	logger.Info("starting server",
		zap.String("addr", httpSrv.Addr),
		zap.String("store", storeURL()),
		zap.String("persist_mode", string(mode)),
		zap.Bool("master_key", viper.GetString("master_key") != ""),
	)

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(srv.Run)
	p.Go(func(context.Context) error {
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		srv.Wait()
		return err
	})
	return p.Wait()
}

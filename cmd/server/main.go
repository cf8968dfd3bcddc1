package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/devaloi/roomrelay/internal/auth"
	"github.com/devaloi/roomrelay/internal/config"
	"github.com/devaloi/roomrelay/internal/handler"
	"github.com/devaloi/roomrelay/internal/hub"
	"github.com/devaloi/roomrelay/internal/keepalive"
	"github.com/devaloi/roomrelay/internal/presence"
	"github.com/devaloi/roomrelay/internal/store"
	"github.com/devaloi/roomrelay/internal/upload"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	cmd := &cobra.Command{
		Use:           "roomrelay",
		Short:         "Real-time room relay server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
			slog.SetDefault(log)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, cfg, log); err != nil {
				log.Error("server stopped", "err", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().String("port", "", "HTTP listen port")
	cmd.Flags().String("db", "", "SQLite user directory path")
	cmd.Flags().String("log-level", "", "log level (debug, info, warn, error)")
	bindFlag(v, cmd, config.KeyPort, "port")
	bindFlag(v, cmd, config.KeyDBPath, "db")
	bindFlag(v, cmd, config.KeyLogLevel, "log-level")
	return cmd
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	started := time.Now()

	users, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer users.Close()

	files, err := upload.New(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		return err
	}

	dir := presence.NewDirectory()
	h := hub.New(dir, store.NewMemoryHistory(cfg.HistoryLimit), hub.Options{
		Password:   cfg.ChatPassword,
		FetchLimit: cfg.HistoryFetchLimit,
		Users:      users,
		Logger:     log.With("component", "hub"),
	})
	go h.Run()
	defer h.Stop()

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: handler.Routes(handler.Deps{
			Hub:       h,
			Presence:  dir,
			Users:     users,
			Tokens:    auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL),
			Uploads:   files,
			StaticDir: cfg.StaticDir,
			Started:   started,
			Logger:    log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("roomrelay listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.KeepaliveInterval > 0 {
		w := keepalive.NewWorker(log.With("component", "keepalive"), cfg.KeepaliveURL, cfg.KeepaliveInterval)
		g.Go(func() error { return w.Run(ctx) })
	}

	return g.Wait()
}

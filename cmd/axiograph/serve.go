package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/axiograph/axiograph/internal/checkeddb"
	"github.com/axiograph/axiograph/internal/config"
	"github.com/axiograph/axiograph/internal/httpapi"
	"github.com/axiograph/axiograph/internal/snapshotstore"
)

var serveAddr string
var serveRole string
var serveAdminToken string
var serveUpstream string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP query/admin surface over a PathDB snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}

		role := httpapi.Role(serveRole)
		if role != httpapi.RoleMaster && role != httpapi.RoleReplica {
			return fmt.Errorf("serve: --role must be %q or %q", httpapi.RoleMaster, httpapi.RoleReplica)
		}

		s, err := openStore()
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}

		head, err := s.WALHead()
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		db, err := s.Build(head, false)
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		env, err := checkeddb.NewTypingEnv(db)
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		canonicalText, err := s.CanonicalText(head)
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}

		srv, err := httpapi.New(role, s, serveAdminToken, db, env, head, canonicalText)
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if role == httpapi.RoleReplica {
			go watchUpstream(ctx, s, srv, cfg)
		}

		slog.Info("axiograph serving", "addr", serveAddr, "role", role, "snapshot_key", head)
		httpServer := &http.Server{Addr: serveAddr, Handler: srv.Handler()}
		go func() {
			<-ctx.Done()
			_ = httpServer.Close()
		}()
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	},
}

// watchUpstream syncs from serveUpstream and reloads whenever the
// upstream's PathDB HEAD moves, falling back to cfg.PollInterval polling
// if fsnotify isn't watching a reachable path (e.g. a remote mount).
func watchUpstream(ctx context.Context, s *snapshotstore.Store, srv *httpapi.Server, cfg config.Config) {
	reload := func() {
		if serveUpstream != "" {
			upstream, err := snapshotstore.Open(serveUpstream)
			if err != nil {
				slog.Error("replica sync: open upstream", "error", err)
				return
			}
			if err := snapshotstore.Sync(ctx, upstream, s, true); err != nil {
				slog.Error("replica sync failed", "error", err)
				return
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+serveAddr+"/admin/reload", nil)
		if err != nil {
			return
		}
		req.Header.Set("Authorization", "Bearer "+serveAdminToken)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			slog.Error("replica reload failed", "error", err)
			return
		}
		_ = resp.Body.Close()
	}

	if err := s.Watch(ctx, cfg.PollInterval, reload); err != nil {
		slog.Warn("falling back to poll-only replica sync", "error", err)
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost:8080", "address to listen on")
	serveCmd.Flags().StringVar(&serveRole, "role", "master", "master or replica")
	serveCmd.Flags().StringVar(&serveAdminToken, "admin-token", "", "bearer token required for /admin routes (admin disabled if empty)")
	serveCmd.Flags().StringVar(&serveUpstream, "upstream", "", "upstream snapshot store to sync from (replica only)")
	rootCmd.AddCommand(serveCmd)
}

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/campus-portal-api/internal/presence"
)

func newPresenceCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presence",
		Short: "Presence tooling",
	}
	cmd.AddCommand(newPresencePingCmd(app))
	return cmd
}

func newPresencePingCmd(app *App) *cobra.Command {
	var (
		baseURL      string
		page         string
		identityPath string
		interval     time.Duration
		duration     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Act as one tracked device: heartbeat until interrupted, then leave",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if baseURL == "" {
				baseURL = app.serverURL() + app.apiPrefix()
			}
			if identityPath == "" {
				identityPath = defaultIdentityPath()
			}
			if interval <= 0 && app.Config != nil {
				interval = app.Config.Presence.HeartbeatInterval
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			tracker := presence.NewTracker(
				presence.NewFileIdentityStore(identityPath),
				presence.NewHTTPBeacon(baseURL, "portalctl", app.HTTPClient),
				presence.TrackerConfig{Page: page, Interval: interval, Logger: app.Logger},
			)
			tracker.Start(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "tracking session %s on page %q via %s\n", tracker.SessionID(), page, baseURL)

			<-ctx.Done()
			tracker.Stop()
			fmt.Fprintln(cmd.OutOrStdout(), "session released")
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "API base URL including the prefix (default http://localhost:PORT/api/v1)")
	cmd.Flags().StringVar(&page, "page", "student", "page name to report")
	cmd.Flags().StringVar(&identityPath, "identity", "", "file holding the durable session id")
	cmd.Flags().DurationVar(&interval, "interval", 0, "heartbeat interval (default PRESENCE_HEARTBEAT_INTERVAL)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long; 0 runs until interrupted")
	return cmd
}

func defaultIdentityPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "campus-portal", "session-id")
}

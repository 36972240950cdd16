package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"smartshuffle/internal/core"
	"smartshuffle/internal/i18n"
	"smartshuffle/internal/spotify"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control API, metrics and housekeeping",
	RunE:  runServe,
}

var shuffleCmd = &cobra.Command{
	Use:   "shuffle [playlist-id]",
	Short: "Start a shuffle session and queue the next batch",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runShuffle,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show shuffle progress for every tracked playlist",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var resetCmd = &cobra.Command{
	Use:   "reset [playlist-id]",
	Short: "Forget the shuffle history of a playlist",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReset,
}

var playlistsCmd = &cobra.Command{
	Use:   "playlists",
	Short: "List your Spotify playlists",
	Args:  cobra.NoArgs,
	RunE:  runPlaylists,
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available playback devices",
	Args:  cobra.NoArgs,
	RunE:  runDevices,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize Spotify access and save the token",
	Args:  cobra.NoArgs,
	RunE:  runLogin,
}

func init() {
	shuffleCmd.Flags().String("device", "", "Playback device ID (default: configured or active device)")
	resetCmd.Flags().Bool("all", false, "Forget the history of every playlist")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if viper.GetBool("generate-env-example") {
		return generateEnvExample(cmd.Root())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting Smart Shuffle",
		zap.String("storage", config.Storage.Path),
		zap.String("defaultPlaylist", config.Shuffle.DefaultPlaylistID),
		zap.Bool("telegramEnabled", config.Notify.TelegramEnabled),
		zap.String("language", config.App.Language))

	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	svcs, err := initializeServices()
	if err != nil {
		return err
	}

	if err := svcs.authenticate(ctx, false); err != nil {
		if !errors.Is(err, spotify.ErrNotAuthenticated) {
			svcs.close()
			return fmt.Errorf("failed to authenticate with Spotify: %w", err)
		}
		logger.Warn("Spotify is not connected yet, open /login to authorize",
			zap.String("redirectURL", config.Spotify.RedirectURL))
	}

	return runServices(ctx, svcs)
}

// withServices runs fn against an authenticated service set, then closes it.
func withServices(fn func(ctx context.Context, svcs *services) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	svcs, err := initializeServices()
	if err != nil {
		return err
	}
	defer svcs.close()

	if err := svcs.authenticate(ctx, true); err != nil {
		return fmt.Errorf("failed to authenticate with Spotify: %w", err)
	}

	return fn(ctx, svcs)
}

// withStorage runs fn against the local stores only.
func withStorage(fn func(ctx context.Context, svcs *services) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svcs, err := initializeServices()
	if err != nil {
		return err
	}
	defer svcs.close()

	return fn(ctx, svcs)
}

func runShuffle(cmd *cobra.Command, args []string) error {
	playlistID := ""
	if len(args) > 0 {
		playlistID = args[0]
	}
	deviceID, _ := cmd.Flags().GetString("device")
	localizer := i18n.NewLocalizer(config.App.Language)

	return withServices(func(ctx context.Context, svcs *services) error {
		result, err := svcs.shuffler.Shuffle(ctx, playlistID, deviceID)
		if err != nil {
			return localizedError(localizer, err)
		}

		if result.Stats.CycleComplete {
			fmt.Println(localizer.T("shuffle.cycle_complete", result.PlaylistName, result.Stats.CycleNumber))
		}
		fmt.Println(localizer.T("shuffle.started", result.PlaylistName, result.DeviceName, result.Queued))

		waitForDelivery(ctx, svcs.delivery)
		return nil
	})
}

// waitForDelivery blocks until the background delivery finishes. An interrupt leaves
// the delivery record in place so the next serve resumes it.
func waitForDelivery(ctx context.Context, delivery *core.DeliveryOrchestrator) {
	done := make(chan struct{})
	go func() {
		delivery.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logger.Info("Interrupted, delivery will resume on the next start")
		delivery.Close()
		<-done
	}
}

func localizedError(localizer *i18n.Localizer, err error) error {
	switch {
	case errors.Is(err, core.ErrDeliveryActive):
		return fmt.Errorf("%s: %w", localizer.T("error.delivery_active"), err)
	case errors.Is(err, core.ErrNoDevice):
		return fmt.Errorf("%s: %w", localizer.T("error.no_device"), err)
	case errors.Is(err, core.ErrDeliveryFatal):
		return errors.New(localizer.T("error.delivery", err.Error()))
	case errors.Is(err, core.ErrPlaylistRequired):
		return fmt.Errorf("%s: %w", localizer.T("error.playlist_missing"), err)
	case errors.Is(err, core.ErrPlaylistEmpty):
		return fmt.Errorf("%s: %w", localizer.T("error.playlist_empty"), err)
	case errors.Is(err, core.ErrStorage):
		return fmt.Errorf("%s: %w", localizer.T("error.generic"), err)
	default:
		return err
	}
}

func runStats(_ *cobra.Command, _ []string) error {
	localizer := i18n.NewLocalizer(config.App.Language)

	return withStorage(func(ctx context.Context, svcs *services) error {
		stats, err := svcs.stats.Aggregate(ctx)
		if err != nil {
			return err
		}

		for _, p := range stats.Playlists {
			fmt.Println(localizer.T("shuffle.progress", p.PlaylistID, p.Played, p.Total, p.Percentage, p.CycleNumber))
		}
		fmt.Printf("\n%d playlists, %d of %d tracks heard, %d completed cycles\n",
			stats.TrackedPlaylists, stats.TotalPlayed, stats.TotalTracks, stats.CompletedCycles)
		return nil
	})
}

func runReset(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	if all == (len(args) > 0) {
		return fmt.Errorf("give either a playlist ID or --all")
	}
	localizer := i18n.NewLocalizer(config.App.Language)

	return withStorage(func(ctx context.Context, svcs *services) error {
		if all {
			if err := svcs.engine.ResetAll(ctx); err != nil {
				return err
			}
			fmt.Println(localizer.T("shuffle.reset_all"))
			return nil
		}

		if err := svcs.engine.Reset(ctx, args[0]); err != nil {
			return err
		}
		fmt.Println(localizer.T("shuffle.reset", args[0]))
		return nil
	})
}

func runPlaylists(_ *cobra.Command, _ []string) error {
	return withServices(func(ctx context.Context, svcs *services) error {
		playlists, err := svcs.spotify.ListPlaylists(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tOWNER\tTRACKS\tHEARD")
		for _, p := range playlists {
			heard := "-"
			if stats, ok := svcs.engine.GetProgress(ctx, p.ID, p.TrackCount); ok {
				heard = fmt.Sprintf("%d%%", stats.Percentage)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", p.ID, p.Name, p.Owner, p.TrackCount, heard)
		}
		return w.Flush()
	})
}

func runDevices(_ *cobra.Command, _ []string) error {
	return withServices(func(ctx context.Context, svcs *services) error {
		devices, err := svcs.spotify.ListDevices(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tACTIVE\tRESTRICTED")
		for _, d := range devices {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\n", d.ID, d.Name, d.Type, d.Active, d.Restricted)
		}
		return w.Flush()
	})
}

func runLogin(_ *cobra.Command, _ []string) error {
	return withServices(func(_ context.Context, _ *services) error {
		fmt.Printf("✅ Spotify token saved to %s\n", config.Spotify.TokenPath)
		return nil
	})
}

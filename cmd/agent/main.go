package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"example.com/shiftsync/internal/agent"
	"example.com/shiftsync/internal/domain"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "shiftsync",
	Short: "Offline-first shift clock for trainers",
	Long:  "shiftsync records clock-ins and clock-outs, queues them while the server is unreachable, and syncs them in order once connectivity returns.",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync agent in the foreground",
	RunE:  runAgent,
}

var clockInCmd = &cobra.Command{
	Use:   "clock-in",
	Short: "Clock in, queueing the action if the server is unreachable",
	RunE:  runClockIn,
}

var clockOutCmd = &cobra.Command{
	Use:   "clock-out",
	Short: "Clock out, queueing the action if the server is unreachable",
	RunE:  runClockOut,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue and connection state",
	RunE:  runStatus,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain the pending queue now",
	RunE:  runSync,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(clockInCmd)
	rootCmd.AddCommand(clockOutCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(syncCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newApp() (*agent.App, error) {
	cfg, err := agent.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.Server.Token == "" {
		return nil, fmt.Errorf("server token not configured, set SHIFTSYNC_TOKEN or server.token in config.toml")
	}
	return agent.NewApp(cfg, log.Default())
}

func runAgent(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SIGTSTP/SIGCONT map to the agent losing and regaining its chance to
	// run: flush on the way down, repopulate on the way back.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGTSTP, syscall.SIGCONT)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGTSTP:
				app.Suspend()
			case syscall.SIGCONT:
				app.Resume(ctx)
			default:
				app.Suspend()
				cancel()
				return
			}
		}
	}()

	return app.Run(ctx)
}

func runClockIn(cmd *cobra.Command, args []string) error {
	return clockAction(func(ctx context.Context, app *agent.App) error {
		return app.ClockIn(ctx)
	}, "clocked in")
}

func runClockOut(cmd *cobra.Command, args []string) error {
	return clockAction(func(ctx context.Context, app *agent.App) error {
		return app.ClockOut(ctx)
	}, "clocked out")
}

func clockAction(action func(context.Context, *agent.App) error, done string) error {
	app, err := newApp()
	if err != nil {
		return err
	}

	defer app.Close()

	ctx := context.Background()
	app.CheckConnection(ctx)
	if err := action(ctx, app); err != nil {
		if domain.IsRejection(err) {
			return fmt.Errorf("server rejected the action: %s", err.Error())
		}
		return err
	}

	status := app.Status()
	if status.Pending > 0 {
		fmt.Printf("queued (%d pending, will sync when the server is reachable)\n", status.Pending)
	} else {
		fmt.Println(done)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}

	defer app.Close()

	status := app.Status()
	fmt.Printf("state:     %s\n", status.State)
	fmt.Printf("pending:   %d\n", status.Pending)
	fmt.Printf("online:    %t\n", status.Online)
	fmt.Printf("reachable: %t\n", status.Reachable)
	if status.ActiveShift != nil {
		fmt.Printf("shift:     active since %s\n", status.ActiveShift.StartTime)
	} else {
		fmt.Println("shift:     none active")
	}
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}

	defer app.Close()

	report := app.SyncNow(context.Background())
	fmt.Printf("synced: %d, failed: %d, expired: %d\n", report.Synced, report.Failed, report.Expired)
	for _, msg := range report.Messages {
		fmt.Println("  " + msg)
	}
	if report.Halted {
		fmt.Println("sync halted on a network failure, remaining actions kept in order")
	}
	return nil
}

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/surfgoffdude/optiq/internal/coordinator"
	"github.com/surfgoffdude/optiq/internal/storage"
	"github.com/surfgoffdude/optiq/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch configured folders and optimize new files as they settle",
		Long: `watch runs the standard pipeline against every enabled watch folder as
new, stable files appear. Folders are managed with the add/remove/list/
toggle subcommands; this command starts the long-running observer.`,
	}

	cmd.AddCommand(newWatchRunCmd())
	cmd.AddCommand(newWatchAddCmd())
	cmd.AddCommand(newWatchRemoveCmd())
	cmd.AddCommand(newWatchListCmd())
	cmd.AddCommand(newWatchToggleCmd())
	return cmd
}

func newWatchRunCmd() *cobra.Command {
	var dbPath, configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start watching every enabled folder (blocks until interrupted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyConfigFile(configPath); err != nil {
				return err
			}

			store, err := storage.New(dbPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer func() { _ = store.Close() }()

			folders, err := store.ListWatchFolders()
			if err != nil {
				return fmt.Errorf("loading watch folders: %w", err)
			}
			if len(folders) == 0 {
				return fmt.Errorf("no watch folders configured; add one with 'optiq watch add'")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				fmt.Println("\nstopping watch service...")
				cancel()
			}()

			co := coordinator.New(cfg, store)
			dispatch, err := co.BuildDispatcher(commonRootOf(folders))
			if err != nil {
				return err
			}

			svc := watcher.New(store, dispatch)
			go logWatchEvents(svc)

			fmt.Printf("watching %d folder(s); press Ctrl+C to stop\n", len(folders))
			return svc.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "optiq.sqlite", "Path to the SQLite job/index database")
	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML config file for watch-triggered runs")
	return cmd
}

func commonRootOf(folders []storage.WatchFolder) string {
	if len(folders) == 0 {
		return "."
	}
	root := folders[0].Path
	for _, f := range folders[1:] {
		if len(f.Path) < len(root) {
			root = f.Path
		}
	}
	return filepath.Dir(root)
}

func logWatchEvents(svc *watcher.Service) {
	for ev := range svc.Events() {
		switch ev.Status {
		case "success":
			fmt.Printf("[watch] optimized %s\n", ev.Path)
		case "skipped":
			fmt.Printf("[watch] skipped %s (%s)\n", ev.Path, ev.Reason)
		case "failed":
			fmt.Printf("[watch] failed %s: %s\n", ev.Path, ev.Reason)
		}
	}
}

func newWatchAddCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "add [path]",
		Short: "Add a folder to the watch list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.New(dbPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer func() { _ = store.Close() }()

			svc := watcher.New(store, nil)
			if err := svc.AddFolder(args[0], true, ""); err != nil {
				return err
			}
			fmt.Printf("watching %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "optiq.sqlite", "Path to the SQLite job/index database")
	return cmd
}

func newWatchRemoveCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "remove [path]",
		Short: "Remove a folder from the watch list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.New(dbPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer func() { _ = store.Close() }()

			svc := watcher.New(store, nil)
			if err := svc.RemoveFolder(args[0]); err != nil {
				return err
			}
			fmt.Printf("no longer watching %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "optiq.sqlite", "Path to the SQLite job/index database")
	return cmd
}

func newWatchListCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured watch folders",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.New(dbPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer func() { _ = store.Close() }()

			folders, err := store.ListWatchFolders()
			if err != nil {
				return err
			}
			if len(folders) == 0 {
				fmt.Println("no watch folders configured")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tENABLED")
			for _, f := range folders {
				fmt.Fprintf(w, "%s\t%v\n", f.Path, f.Enabled)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "optiq.sqlite", "Path to the SQLite job/index database")
	return cmd
}

func newWatchToggleCmd() *cobra.Command {
	var dbPath string
	var enable bool
	cmd := &cobra.Command{
		Use:   "toggle [path]",
		Short: "Enable or disable a watch folder without removing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.New(dbPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer func() { _ = store.Close() }()

			svc := watcher.New(store, nil)
			if err := svc.ToggleFolder(args[0], enable); err != nil {
				return err
			}
			fmt.Printf("%s: enabled=%v\n", args[0], enable)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "optiq.sqlite", "Path to the SQLite job/index database")
	cmd.Flags().BoolVar(&enable, "enable", true, "Enable (true) or disable (false) the folder")
	return cmd
}

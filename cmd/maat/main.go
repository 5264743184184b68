package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"maat-go/internal/app"
	"maat-go/internal/config"
	"maat-go/internal/maat"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a MaatApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Serve", "Publish").
func newApp(cmd *cobra.Command, operation string) (*app.MaatApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	a, err := app.NewMaatApp(cfg, operation, verbose)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// withApp runs fn against a fresh MaatApp and records a failure on it.
func withApp(cmd *cobra.Command, operation string, fn func(ctx context.Context, a *app.MaatApp) error) error {
	a, err := newApp(cmd, operation)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(cmd.Context(), a); err != nil {
		a.Fail(err)
		return err
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "maat",
	Short: "Content index for scenes, collections and web-apps",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		instanceID := uuid.New().String()
		cfg := config.NewConfig(instanceID, defaults["base_dir"])
		if root, _ := cmd.Flags().GetString("root"); root != "" {
			cfg.Root = root
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Instance ID: %s\n", instanceID)
		fmt.Printf("Base Dir:    %s\n", defaults["base_dir"])
		fmt.Printf("Data Root:   %s\n", cfg.Root)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Name:        %s\n", cfg.Name)
		fmt.Printf("Instance ID: %s\n", cfg.InstanceID)
		fmt.Printf("Data Root:   %s\n", cfg.Root)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Interval:    %s\n", cfg.Maat.Interval)
		fmt.Printf("Users File:  %s\n", cfg.Users.File)
		fmt.Printf("Database:    %s\n", cfg.Database.Type)
		fmt.Printf("Publish:     %s\n", cfg.Publish.Type)
		fmt.Printf("Listen:      %s\n", cfg.Server.Addr)
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the index over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		cmd.SetContext(ctx)

		return withApp(cmd, "Serve", func(ctx context.Context, a *app.MaatApp) error {
			return a.Serve(ctx, addr)
		})
	},
}

// scenes command
var scenesCmd = &cobra.Command{
	Use:   "scenes",
	Short: "List scenes",
	RunE: func(cmd *cobra.Command, args []string) error {
		public, _ := cmd.Flags().GetBool("public")
		owner, _ := cmd.Flags().GetString("owner")
		keyword, _ := cmd.Flags().GetString("keyword")

		return withApp(cmd, "Scenes", func(ctx context.Context, a *app.MaatApp) error {
			scenes, err := a.Scenes(ctx, maat.SceneQuery{Public: public, Owner: owner, Keyword: keyword})
			if err != nil {
				return err
			}
			return newPrinter(cmd).scenes(scenes)
		})
	},
}

var sceneCmd = &cobra.Command{
	Use:   "scene ID",
	Short: "Show one scene",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Scene", func(ctx context.Context, a *app.MaatApp) error {
			e, ok, err := a.Scene(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("scene not found: %s", args[0])
			}
			return newPrinter(cmd).scene(e)
		})
	},
}

var keywordsCmd = &cobra.Command{
	Use:   "keywords",
	Short: "Show the keyword histogram",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Keywords", func(ctx context.Context, a *app.MaatApp) error {
			h, err := a.Keywords(ctx)
			if err != nil {
				return err
			}
			return newPrinter(cmd).keywords(h)
		})
	},
}

var collectionCmd = &cobra.Command{
	Use:   "collection OWNER",
	Short: "List the assets visible to an owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Collection", func(ctx context.Context, a *app.MaatApp) error {
			c, err := a.Collection(ctx, args[0])
			if err != nil {
				return err
			}
			return newPrinter(cmd).collection(c)
		})
	},
}

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List web-apps",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Apps", func(ctx context.Context, a *app.MaatApp) error {
			apps, err := a.Apps(ctx)
			if err != nil {
				return err
			}
			return newPrinter(cmd).apps(apps)
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregated counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Stats", func(ctx context.Context, a *app.MaatApp) error {
			st, err := a.Stats(ctx)
			if err != nil {
				return err
			}
			p := newPrinter(cmd)
			if err := p.stats(st); err != nil {
				return err
			}
			if p.json {
				return nil
			}
			fmt.Println()
			return p.status(a.Status())
		})
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View rebuild history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		prune, _ := cmd.Flags().GetDuration("prune")
		ns, _ := cmd.Flags().GetString("namespace")

		return withApp(cmd, "History", func(ctx context.Context, a *app.MaatApp) error {
			if prune > 0 {
				n, err := a.PruneHistory(ctx, prune)
				if err != nil {
					return err
				}
				fmt.Printf("Pruned %d record(s)\n", n)
				return nil
			}

			recs, err := a.History(ctx, limit, maat.Namespace(ns))
			if err != nil {
				return err
			}
			return newPrinter(cmd).history(recs)
		})
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Write the catalog documents to the publish target",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Publish", func(ctx context.Context, a *app.MaatApp) error {
			start := time.Now()
			n, err := a.Publish(ctx)
			if err != nil {
				return fmt.Errorf("publish failed: %w", err)
			}
			fmt.Printf("Published %d document(s) in %s\n", n, time.Since(start).Truncate(time.Millisecond))
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug messages")
	rootCmd.PersistentFlags().Bool("json", false, "Print JSON even on a terminal")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("root", "", "Data root holding scenes/, collections/ and webapps/")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
	rootCmd.AddCommand(scenesCmd)
	scenesCmd.Flags().Bool("public", false, "Only public scenes")
	scenesCmd.Flags().StringP("owner", "o", "", "Only scenes of this owner")
	scenesCmd.Flags().StringP("keyword", "k", "", "Only scenes carrying this keyword")
	rootCmd.AddCommand(sceneCmd)
	rootCmd.AddCommand(keywordsCmd)
	rootCmd.AddCommand(collectionCmd)
	rootCmd.AddCommand(appsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of rebuilds to show")
	historyCmd.Flags().String("namespace", "", "Only rebuilds of this namespace (e.g. scenes, collection:alice)")
	historyCmd.Flags().Duration("prune", 0, "Delete records older than this instead of listing")
	rootCmd.AddCommand(publishCmd)
}

package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"codeberg.org/snonux/virtualtourist/internal"
	"codeberg.org/snonux/virtualtourist/internal/geo"
	"codeberg.org/snonux/virtualtourist/internal/image"
	"codeberg.org/snonux/virtualtourist/internal/logging"
	"codeberg.org/snonux/virtualtourist/internal/server"
	"codeberg.org/snonux/virtualtourist/internal/store"
)

// runner carries state from the root command into its subcommands
type runner struct {
	flags  *Flags
	viper  *viper.Viper
	cfg    *Config
	logger zerolog.Logger
}

// CreateRootCommand creates the root cobra command with all subcommands
func CreateRootCommand(flags *Flags) *cobra.Command {
	r := &runner{flags: flags, viper: viper.New(), logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "virtualtourist",
		Short: "Photo albums for places on the map",
		Long: `virtualtourist drops pins on the map and fills an album for each pin
with photos taken nearby, found through the Flickr photo search.

Examples:
  virtualtourist pin add --lat 48.8566 --lon 2.3522
  virtualtourist album <pin-id>           # Search once, then served from the store
  virtualtourist album reload <pin-id>    # Replace the album with a new collection
  virtualtourist export <pin-id> --dir paris`,
		Version:           internal.Version,
		SilenceUsage:      true,
		PersistentPreRunE: r.setup,
	}

	setupFlags(rootCmd, flags)
	bindFlagsToViper(r.viper, rootCmd)

	rootCmd.AddCommand(
		r.pinCommand(),
		r.albumCommand(),
		r.photoCommand(),
		r.searchCommand(),
		r.exportCommand(),
		r.serveCommand(),
	)

	return rootCmd
}

func setupFlags(cmd *cobra.Command, flags *Flags) {
	cmd.PersistentFlags().StringVar(&flags.CfgFile, "config", "", "config file (default is $HOME/.virtualtourist.yaml)")
	cmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", flags.LogLevel, "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&flags.LogFormat, "log-format", flags.LogFormat, "Log format: console or json")
	cmd.PersistentFlags().StringVar(&flags.StoreDriver, "store", flags.StoreDriver, "Store driver: sqlite, mongo or memory")
	cmd.PersistentFlags().StringVar(&flags.StorePath, "db", "", "SQLite database path")
}

func bindFlagsToViper(v *viper.Viper, cmd *cobra.Command) {
	v.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log-level"))
	v.BindPFlag("log.format", cmd.PersistentFlags().Lookup("log-format"))
	v.BindPFlag("store.driver", cmd.PersistentFlags().Lookup("store"))
	v.BindPFlag("store.path", cmd.PersistentFlags().Lookup("db"))
}

// setup loads the configuration before any subcommand runs
func (r *runner) setup(cmd *cobra.Command, args []string) error {
	if err := InitConfig(r.viper, r.flags.CfgFile); err != nil {
		return err
	}
	cfg, err := LoadConfig(r.viper)
	if err != nil {
		return err
	}
	r.cfg = cfg
	r.logger = logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Out:    cmd.ErrOrStderr(),
	})

	if used := r.viper.ConfigFileUsed(); used != "" {
		r.logger.Debug().Str("file", used).Msg("config loaded")
	}
	return nil
}

// withApp runs fn with an App built from the loaded configuration
func (r *runner) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	ctx := cmd.Context()

	app, err := NewApp(ctx, r.cfg, r.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(context.Background()); err != nil {
			r.logger.Error().Err(err).Msg("shutdown failed")
		}
	}()

	return fn(ctx, app)
}

// location reads --lat and --lon, both are required
func (r *runner) location(cmd *cobra.Command) (geo.Location, error) {
	if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lon") {
		return geo.Location{}, fmt.Errorf("both --lat and --lon are required")
	}
	loc := geo.Location{Latitude: r.flags.Latitude, Longitude: r.flags.Longitude}
	return loc, loc.Validate()
}

func (r *runner) addLocationFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&r.flags.Latitude, "lat", 0, "Latitude in degrees (-90 to 90)")
	cmd.Flags().Float64Var(&r.flags.Longitude, "lon", 0, "Longitude in degrees (-180 to 180)")
}

func (r *runner) pinCommand() *cobra.Command {
	pinCmd := &cobra.Command{
		Use:   "pin",
		Short: "Drop, list and delete pins",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Drop a pin at --lat/--lon or one per line of --batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, func(ctx context.Context, app *App) error {
				out := cmd.OutOrStdout()

				if r.flags.BatchFile != "" {
					pins, err := app.Processor.DropPins(ctx, r.flags.BatchFile)
					for _, pin := range pins {
						printPin(out, pin)
					}
					return err
				}

				loc, err := r.location(cmd)
				if err != nil {
					return err
				}
				pin, err := app.Processor.DropPin(ctx, loc)
				if err != nil {
					return err
				}
				printPin(out, pin)
				return nil
			})
		},
	}
	r.addLocationFlags(addCmd)
	addCmd.Flags().StringVar(&r.flags.BatchFile, "batch", "", "Drop pins from file (one \"lat,lon\" per line)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all pins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, func(ctx context.Context, app *App) error {
				pins, err := app.Processor.ListPins(ctx)
				if err != nil {
					return err
				}
				for _, pin := range pins {
					printPin(cmd.OutOrStdout(), pin)
				}
				return nil
			})
		},
	}

	nearCmd := &cobra.Command{
		Use:   "near",
		Short: "List the pins closest to --lat/--lon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := r.location(cmd)
			if err != nil {
				return err
			}
			return r.withApp(cmd, func(ctx context.Context, app *App) error {
				pins, err := app.Processor.NearestPins(ctx, loc, r.flags.Nearest)
				if err != nil {
					return err
				}
				for _, pin := range pins {
					printPin(cmd.OutOrStdout(), pin)
				}
				return nil
			})
		},
	}
	r.addLocationFlags(nearCmd)
	nearCmd.Flags().IntVarP(&r.flags.Nearest, "count", "k", r.flags.Nearest, "Number of pins to list")

	deleteCmd := &cobra.Command{
		Use:   "delete <pin-id>",
		Short: "Delete a pin with its album",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, func(ctx context.Context, app *App) error {
				if err := app.Processor.DeletePin(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted pin %s\n", args[0])
				return nil
			})
		},
	}

	pinCmd.AddCommand(addCmd, listCmd, nearCmd, deleteCmd)
	return pinCmd
}

func (r *runner) albumCommand() *cobra.Command {
	albumCmd := &cobra.Command{
		Use:   "album <pin-id>",
		Short: "Show the album of a pin, searching for photos if it is empty",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, func(ctx context.Context, app *App) error {
				photos, err := app.Processor.ListPhotos(ctx, args[0])
				if err != nil {
					return err
				}
				if len(photos) == 0 {
					if err := app.RequireSearch(); err != nil {
						return err
					}
				}

				photos, err = app.Processor.LoadAlbum(ctx, args[0])
				if err != nil {
					return err
				}
				printPhotos(cmd.OutOrStdout(), photos)
				return nil
			})
		},
	}

	reloadCmd := &cobra.Command{
		Use:   "reload <pin-id>",
		Short: "Replace the album of a pin with a new collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, func(ctx context.Context, app *App) error {
				if err := app.RequireSearch(); err != nil {
					return err
				}
				photos, err := app.Processor.NewCollection(ctx, args[0])
				if err != nil {
					return err
				}
				printPhotos(cmd.OutOrStdout(), photos)
				return nil
			})
		},
	}

	albumCmd.AddCommand(reloadCmd)
	return albumCmd
}

func (r *runner) photoCommand() *cobra.Command {
	photoCmd := &cobra.Command{
		Use:   "photo",
		Short: "Manage single photos",
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <photo-id>",
		Short: "Remove a photo from its album",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, func(ctx context.Context, app *App) error {
				if err := app.Processor.DeletePhoto(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted photo %s\n", args[0])
				return nil
			})
		},
	}

	photoCmd.AddCommand(deleteCmd)
	return photoCmd
}

func (r *runner) searchCommand() *cobra.Command {
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Search photos around --lat/--lon without storing them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := r.location(cmd)
			if err != nil {
				return err
			}
			return r.withApp(cmd, func(ctx context.Context, app *App) error {
				if err := app.RequireSearch(); err != nil {
					return err
				}
				records, err := app.Processor.Search(ctx, loc)
				if err != nil {
					return err
				}
				printRecords(cmd.OutOrStdout(), records)
				return nil
			})
		},
	}
	r.addLocationFlags(searchCmd)
	return searchCmd
}

func (r *runner) exportCommand() *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export <pin-id>",
		Short: "Write the images of a pin's album to a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := r.flags.ExportDir
			if dir == "" {
				dir = filepath.Join(DefaultStatePath(), "exports", internal.SanitizeFilename(args[0]))
			}

			return r.withApp(cmd, func(ctx context.Context, app *App) error {
				result, err := app.Processor.Export(ctx, args[0], dir, r.flags.Archive)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if result.Archived != "" {
					fmt.Fprintf(out, "previous export archived to %s\n", result.Archived)
				}
				fmt.Fprintf(out, "exported %d images to %s\n", len(result.Files), result.Dir)
				if len(result.Missing) > 0 {
					fmt.Fprintf(out, "%d photos without image: %v\n", len(result.Missing), result.Missing)
				}
				return nil
			})
		},
	}
	exportCmd.Flags().StringVarP(&r.flags.ExportDir, "dir", "d", "", "Export directory (default is the state directory)")
	exportCmd.Flags().BoolVar(&r.flags.Archive, "archive", false, "Archive a previous export in the directory first")
	return exportCmd
}

func (r *runner) serveCommand() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve pins and albums over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := r.cfg.Server.Address
			if cmd.Flags().Changed("addr") {
				addr = r.flags.Addr
			}
			return r.withApp(cmd, func(ctx context.Context, app *App) error {
				if app.RequireSearch() != nil {
					app.Logger.Warn().Msg("no flickr.api_key, empty albums cannot be filled")
				}
				return server.New(app.Processor, app.Logger).ListenAndServe(ctx, addr)
			})
		},
	}
	serveCmd.Flags().StringVar(&r.flags.Addr, "addr", r.flags.Addr, "Listen address")
	return serveCmd
}

func printPin(w io.Writer, pin store.Pin) {
	fmt.Fprintf(w, "%s\t%s\n", pin.ID, pin.Location())
}

func printPhotos(w io.Writer, photos []store.Photo) {
	for _, photo := range photos {
		url := photo.ImageURL
		if url == "" {
			url = "(no image)"
		}
		fmt.Fprintf(w, "%3d\t%s\t%s\t%s\n", photo.Position, photo.ID, url, photo.Title)
	}
}

func printRecords(w io.Writer, records []image.PhotoRecord) {
	for i, rec := range records {
		url := rec.ImageURL
		if !rec.HasImage() {
			url = "(no image)"
		}
		fmt.Fprintf(w, "%3d\t%s\t%s\t%s\n", i, rec.ID, url, rec.Title)
	}
}

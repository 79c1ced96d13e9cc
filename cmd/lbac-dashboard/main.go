package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/config"
	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/dashboard"
	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/platform/lbacclient"
	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/platform/sandbox"
	"github.com/openmrs/openmrs-module-locationbasedaccess/pkg/counts"
)

var version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lbac-dashboard",
		Short:         "Location based access dashboard",
		Version:       version,
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(countsCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(seedCmd())
	return root
}

// newLogger writes JSON to out, or console output in development. The level
// comes from LOG_LEVEL and falls back to info.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	logger := zerolog.New(out).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cfg, newLogger(cfg, os.Stdout))
		},
	}
}

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	m, err := dashboard.NewFromConfig(cfg, logger)
	if err != nil {
		return fmt.Errorf("assemble dashboard: %w", err)
	}
	defer m.Close()

	e := m.NewEcho(dashboard.ServerOptions{
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
		BodyLimit:      "1M",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.CountsStore != "" {
		store, err := dashboard.OpenStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		err = dashboard.MountCountAPI(e, store, dashboard.APIOptions{
			SigningKey: []byte(cfg.AuthSigningKey),
			Dev:        cfg.IsDev(),
			Sandbox:    cfg.IsDev(),
		}, logger)
		if err != nil {
			return err
		}
		logger.Info().Str("store", store.Driver).Msg("count API mounted")
	}

	go m.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// countViews maps the names accepted by "counts" to resource paths, in the
// order they are printed when no names are given.
var countViews = []struct {
	name string
	path string
}{
	{"users", lbacclient.UsersCountPath},
	{"patients", lbacclient.PatientsCountPath},
	{"encounters", lbacclient.EncountersCountPath},
}

type viewCounts struct {
	View   string
	Counts counts.Counts
}

func resolveViews(names []string) ([]string, error) {
	if len(names) == 0 {
		out := make([]string, len(countViews))
		for i, v := range countViews {
			out[i] = v.name
		}
		return out, nil
	}
	for _, n := range names {
		if viewPath(n) == "" {
			return nil, fmt.Errorf("unknown view %q (want users, patients or encounters)", n)
		}
	}
	return names, nil
}

func viewPath(name string) string {
	for _, v := range countViews {
		if v.name == name {
			return v.path
		}
	}
	return ""
}

// fetchAll requests every view concurrently; results keep the order of
// names.
func fetchAll(ctx context.Context, client *lbacclient.Client, names []string) ([]viewCounts, error) {
	out := make([]viewCounts, len(names))
	g, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			c, err := client.FetchCounts(ctx, viewPath(name))
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			out[i] = viewCounts{View: name, Counts: c}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func writeCounts(w io.Writer, format string, results []viewCounts) error {
	switch format {
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "VIEW\tLOCATION\tCOUNT")
		for _, r := range results {
			if len(r.Counts) == 0 {
				fmt.Fprintf(tw, "%s\t-\t-\n", r.View)
				continue
			}
			for _, c := range r.Counts {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.View, c.Label, strconv.FormatFloat(c.Value, 'f', -1, 64))
			}
		}
		return tw.Flush()

	case "json":
		doc := make([]json.RawMessage, 0, len(results))
		for _, r := range results {
			body, err := json.Marshal(struct {
				View    string        `json:"view"`
				Results counts.Counts `json:"results"`
			}{r.View, r.Counts})
			if err != nil {
				return err
			}
			doc = append(doc, body)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)

	case "yaml":
		doc := &yaml.Node{Kind: yaml.MappingNode}
		for _, r := range results {
			entries := &yaml.Node{Kind: yaml.MappingNode}
			for _, c := range r.Counts {
				entries.Content = append(entries.Content,
					&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: c.Label},
					yamlNumber(c.Value),
				)
			}
			if len(r.Counts) == 0 {
				entries.Style = yaml.FlowStyle
			}
			doc.Content = append(doc.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: r.View},
				entries,
			)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
}

func yamlNumber(v float64) *yaml.Node {
	tag := "!!float"
	if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
		tag = "!!int"
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: strconv.FormatFloat(v, 'f', -1, 64)}
}

func countsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counts [view...]",
		Short: "Fetch location-wise counts once and print them",
		Long:  "Fetch location-wise counts through the dashboard's data client. Views are users, patients and encounters; all three when none are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			askPassword, _ := cmd.Flags().GetBool("ask-password")

			names, err := resolveViews(args)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if askPassword {
				pw, err := readPassword(cmd.ErrOrStderr(), cfg.APIUsername)
				if err != nil {
					return err
				}
				cfg.APIPassword = pw
			}

			client, err := dashboard.NewClient(cfg, newLogger(cfg, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			results, err := fetchAll(cmd.Context(), client, names)
			if err != nil {
				return err
			}
			return writeCounts(cmd.OutOrStdout(), output, results)
		},
	}
	cmd.Flags().StringP("output", "o", "table", "Output format: table, json or yaml")
	cmd.Flags().Bool("ask-password", false, "Prompt for API_PASSWORD on the terminal")
	return cmd
}

func readPassword(prompt io.Writer, username string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("--ask-password needs an interactive terminal")
	}
	fmt.Fprintf(prompt, "Password for %s: ", username)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run counts store migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			to, _ := cmd.Flags().GetInt("to")

			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			var count int
			if to > 0 {
				count, err = store.Migrator.UpTo(cmd.Context(), to)
			} else {
				count, err = store.Migrator.Up(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) to %s store.\n", count, store.Driver)
			return nil
		},
	}
	upCmd.Flags().Int("to", 0, "Stop after this migration version")
	cmd.AddCommand(upCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			statuses, err := store.Migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Version, s.Name, status, appliedAt)
			}
			return tw.Flush()
		},
	})

	return cmd
}

func openStore(ctx context.Context) (*dashboard.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.CountsStore == "" {
		return nil, fmt.Errorf("COUNTS_STORE must be %q or %q", config.StorePostgres, config.StoreSQLite)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return dashboard.OpenStore(ctx, cfg, newLogger(cfg, os.Stderr))
}

func seedCmd() *cobra.Command {
	defaults := sandbox.DefaultSeedConfig()
	var sc sandbox.SeedConfig

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load synthetic locations, patients, users and encounters",
		Long:  "Generate a deterministic synthetic dataset and store it in the counts store. Seed an empty store; location names and usernames are unique.",
		RunE: func(cmd *cobra.Command, args []string) error {
			export, _ := cmd.Flags().GetBool("export")
			if export {
				ds, err := sandbox.NewSeeder(sc, zerolog.Nop()).Generate()
				if err != nil {
					return err
				}
				return sandbox.ExportJSON(cmd.OutOrStdout(), ds)
			}

			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if store.Driver == config.StorePostgres {
				if _, err := store.Migrator.Up(cmd.Context()); err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
			}

			result, err := sandbox.NewSeeder(sc, zerolog.Nop()).Seed(cmd.Context(), store.Repo)
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"Seeded %d locations, %d patients, %d users, %d encounters in %s.\n",
				result.Locations, result.Patients, result.Users, result.Encounters, result.Duration.Round(time.Millisecond))
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&sc.LocationCount, "locations", defaults.LocationCount, "Number of locations")
	f.IntVar(&sc.PatientCount, "patients", defaults.PatientCount, "Number of patients")
	f.IntVar(&sc.UserCount, "users", defaults.UserCount, "Number of users")
	f.IntVar(&sc.EncountersPerPatient, "encounters-per-patient", defaults.EncountersPerPatient, "Encounters generated per patient")
	f.IntVar(&sc.MaxUserLocations, "max-user-locations", defaults.MaxUserLocations, "Most locations one user can access")
	f.IntVar(&sc.UnassignedPercent, "unassigned-percent", defaults.UnassignedPercent, "Share of patients without a location")
	f.Int64Var(&sc.Seed, "seed", defaults.Seed, "Random seed")
	f.Bool("export", false, "Print the generated dataset as JSON instead of storing it")
	return cmd
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/galepedia/galepedia/internal/config"
	"github.com/galepedia/galepedia/internal/domain/compounding"
	"github.com/galepedia/galepedia/internal/domain/planning"
	"github.com/galepedia/galepedia/internal/platform/db"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "galepedia-server",
		Short: "Compounding pharmacy calculator and renewal planner",
	}

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(calcCmd())
	root.AddCommand(lotsCmd())
	root.AddCommand(suggestCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env, cfg.LogLevel)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, cfg.Timezone)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := db.NewMigrator(pool, migrationsDir(dir, cfg)).WithLogger(logger).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", n)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, cfg.Timezone)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationsDir(dir, cfg)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")

	cmd.AddCommand(upCmd)
	cmd.AddCommand(statusCmd)
	return cmd
}

func migrationsDir(flag string, cfg *config.Config) string {
	if flag != "" {
		return flag
	}
	return cfg.MigrationsDir
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

// calcCmd runs the calculator on one line given as flags.
func calcCmd() *cobra.Command {
	var (
		drug      string
		capsule   string
		dose      float64
		units     int
		tablets   float64
		frequency int
		duration  int
	)

	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Compute one preparation line",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := compounding.DefaultFormulary()
			if _, ok := f.Drug(drug); !ok {
				return fmt.Errorf("unknown drug %q", drug)
			}

			line := compounding.PreparationLine{
				DrugKey:      drug,
				Feasible:     true,
				CapsuleKey:   capsule,
				DurationDays: duration,
			}
			if cmd.Flags().Changed("dose") {
				line.TargetDoseMg = &dose
			}
			if cmd.Flags().Changed("tablets") {
				line.ForcedTabletCount = &tablets
			}
			if cmd.Flags().Changed("frequency") {
				line.FrequencyPerDay = &frequency
			}
			if cmd.Flags().Changed("units") {
				line.TotalUnits = &units
			} else if line.FrequencyPerDay != nil {
				if n, ok := compounding.DeriveTotalUnits(f, drug, line.TargetDoseMg, frequency, duration); ok {
					line.TotalUnits = &n
				}
			}

			return writeJSON(cmd.OutOrStdout(), calcOutput(f, line))
		},
	}

	cmd.Flags().StringVar(&drug, "drug", "", "Formulary drug key")
	cmd.Flags().StringVar(&capsule, "capsule", "", "Capsule size key (defaults to the drug's)")
	cmd.Flags().Float64Var(&dose, "dose", 0, "Target dose per unit, mg")
	cmd.Flags().IntVar(&units, "units", 0, "Total units to prepare")
	cmd.Flags().Float64Var(&tablets, "tablets", 0, "Forced tablet count")
	cmd.Flags().IntVar(&frequency, "frequency", 0, "Intakes per day, used to derive units")
	cmd.Flags().IntVar(&duration, "duration", 0, "Treatment duration, days")
	_ = cmd.MarkFlagRequired("drug")
	return cmd
}

type calcResult struct {
	Readiness compounding.Readiness       `json:"readiness"`
	Units     *int                        `json:"units,omitempty"`
	Result    *compounding.Result         `json:"result,omitempty"`
	Lots      *compounding.LotSuggestions `json:"lots,omitempty"`
	LotMasses []float64                   `json:"lot_masses_g,omitempty"`
}

func calcOutput(f *compounding.Formulary, line compounding.PreparationLine) calcResult {
	out := calcResult{Readiness: compounding.CheckLine(f, line), Units: line.TotalUnits}
	res, ok := compounding.Calculate(f, line)
	if !ok {
		return out
	}
	out.Result = &res
	if res.Kind == compounding.ResultBicarbonate {
		if s, ok := compounding.SplitLots(*line.TotalUnits); ok {
			out.Lots = &s
			out.LotMasses = compounding.LotMasses(res.Bicarbonate.ContentPerCapsuleMg, compounding.EffectiveLots(line))
		}
	}
	return out
}

func lotsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lots <total>",
		Short: "Split a batch into production lots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			total, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("total must be an integer: %w", err)
			}
			s, ok := compounding.SplitLots(total)
			if !ok {
				return fmt.Errorf("total must be positive, got %d", total)
			}
			return writeJSON(cmd.OutOrStdout(), s)
		},
	}
}

// suggestCmd plans a renewal against the configured appointment store.
func suggestCmd() *cobra.Command {
	var (
		patientRef string
		molecule   string
		duration   int
		lastPrep   string
	)

	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest a renewal date",
		RunE: func(cmd *cobra.Command, args []string) error {
			if duration < 0 || duration > planning.MaxDurationDays {
				return fmt.Errorf("--duration must be between 0 and %d", planning.MaxDurationDays)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			last, err := parseLastPrep(lastPrep, loc)
			if err != nil {
				return err
			}

			ctx := context.Background()
			st, err := openStores(ctx, cfg, zerolog.Nop())
			if err != nil {
				return err
			}
			defer st.Close()

			book := planning.NewBook(planning.NewCalendar(loc), nil, planning.Options{
				MaxCapacity:      cfg.PlanningMaxCapacity,
				SearchAttempts:   cfg.PlanningSearchAttempts,
				SafetyBufferDays: cfg.PlanningSafetyBufferDays,
			})
			svc := planning.NewService(book, st.appointments)
			if err := svc.Load(ctx); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), svc.Suggest(patientRef, molecule, duration, last))
		},
	}

	cmd.Flags().StringVar(&patientRef, "patient", "", "Patient reference")
	cmd.Flags().StringVar(&molecule, "molecule", "", "Molecule to renew")
	cmd.Flags().IntVar(&duration, "duration", 0, "Treatment duration, days")
	cmd.Flags().StringVar(&lastPrep, "last-prep", "", "Last preparation, YYYY-MM-DD or RFC 3339 (defaults to now)")
	return cmd
}

func parseLastPrep(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Now().In(loc), nil
	}
	if t, err := time.ParseInLocation(planning.DateLayout, s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --last-prep %q", s)
	}
	return t, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		logger := newLogger(os.Getenv("ENV"), "info")
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg.Env, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	for _, w := range cfg.Warnings() {
		logger.Warn().Msg(w)
	}

	ctx := context.Background()
	srv, err := newServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize server")
	}
	defer srv.Close()
	srv.jobs.Start()

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := srv.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.echo.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

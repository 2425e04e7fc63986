package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/autograde/internal/export"
	"github.com/pavelanni/autograde/internal/grading"
	"github.com/pavelanni/autograde/internal/handler"
	appI18n "github.com/pavelanni/autograde/internal/i18n"
	"github.com/pavelanni/autograde/internal/integrity"
	"github.com/pavelanni/autograde/internal/llm"
	"github.com/pavelanni/autograde/internal/llm/prompts"
	"github.com/pavelanni/autograde/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file, using process environment")
	}
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "autograde",
		Short: "Automated grading of handwritten exam work",
	}

	serve := serveCmd()
	root.AddCommand(serve, scanCmd(), exportCmd(), clearCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `autograde --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addStoreFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db-driver", string(store.DriverSQLite), "Database driver (sqlite, postgres)")
	f.String("db", "autograde.db", "SQLite path or Postgres DSN")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	f.StringP("lang", "l", "en", "Default language (en, vi)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP grading server",
		RunE:  runServe,
	}
	addStoreFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /grade)")
	f.StringSlice("cors-origins", []string{"http://localhost:3000"}, "Allowed CORS origins")
	f.String("judge", "gemini", "Evaluation backend (gemini, openai)")
	f.String("gemini-key", "", "Gemini API key (or set AUTOGRADE_GEMINI_KEY)")
	f.String("gemini-model", llm.DefaultGeminiModel, "Gemini model name")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the OpenAI-compatible backend")
	f.String("llm-model", "", "Model name for the OpenAI-compatible backend")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
	f.Duration("timeout", llm.DefaultOptions().Timeout, "Per-call evaluation timeout")
	f.Int("retries", llm.DefaultOptions().Retries, "Retries after a transport failure")
	f.Bool("record-failures", false, "Store an ERROR submission when evaluation fails")
	f.Bool("persist-remediation", true, "Replace the stored result with the remediation result")
	f.Float64("scan-threshold", integrity.DefaultThreshold, "Similarity above which submissions are flagged")
	f.Int("scan-min-length", integrity.DefaultMinLength, "Minimum transcription length compared by the scan")
	f.String("operator-user", "operator", "Operator username for the management API")
	f.String("operator-password", "", "Operator password (or set AUTOGRADE_OPERATOR_PASSWORD)")
	return cmd
}

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Recompute plagiarism flags over the stored submissions",
		RunE:  runScan,
	}
	addStoreFlags(cmd)
	f := cmd.Flags()
	f.Float64("scan-threshold", integrity.DefaultThreshold, "Similarity above which submissions are flagged")
	f.Int("scan-min-length", integrity.DefaultMinLength, "Minimum transcription length compared by the scan")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export exam results as JSON or a spreadsheet",
		RunE:  runExport,
	}
	addStoreFlags(cmd)
	f := cmd.Flags()
	f.StringP("format", "f", "json", "Output format (json, xlsml)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func clearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all stored submissions",
		RunE:  runClear,
	}
	addStoreFlags(cmd)
	cmd.Flags().Bool("exam", false, "Also delete the exam configuration")
	return cmd
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("AUTOGRADE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("autograde")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/autograde")
	v.AddConfigPath("/etc/autograde")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// setup configures logging and i18n and opens the store.
func setup(cmd *cobra.Command) (*viper.Viper, *store.Store, error) {
	v := viperForCmd(cmd)
	setupLogging(v)

	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return nil, nil, fmt.Errorf("init i18n: %w", err)
	}

	db, err := store.Open(cmd.Context(), store.Driver(v.GetString("db-driver")), v.GetString("db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return v, db, nil
}

func scanOptions(v *viper.Viper) (integrity.Options, error) {
	opts := integrity.Options{
		Threshold: v.GetFloat64("scan-threshold"),
		MinLength: v.GetInt("scan-min-length"),
	}
	return opts, opts.Validate()
}

func newJudge(v *viper.Viper) (llm.Judge, error) {
	switch name := strings.ToLower(v.GetString("judge")); name {
	case "gemini":
		return llm.NewGemini(v.GetString("gemini-key"), v.GetString("gemini-model")), nil
	case "openai":
		return llm.NewOpenAI(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model")), nil
	default:
		return nil, fmt.Errorf("unknown judge %q", name)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	v, db, err := setup(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := seedOperator(cmd.Context(), db, v.GetString("operator-password")); err != nil {
		return fmt.Errorf("seed operator: %w", err)
	}

	judge, err := newJudge(v)
	if err != nil {
		return err
	}
	promptVariant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(promptVariant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", promptVariant)
		promptVariant = string(prompts.PromptStandard)
	}
	gwOpts := llm.DefaultOptions()
	gwOpts.Variant = prompts.PromptVariant(promptVariant)
	gwOpts.Timeout = v.GetDuration("timeout")
	gwOpts.Retries = v.GetInt("retries")
	gwOpts.Language = v.GetString("lang")
	gateway, err := llm.New(judge, gwOpts)
	if err != nil {
		return fmt.Errorf("create evaluation gateway: %w", err)
	}

	grader := grading.New(gateway, db, grading.Options{
		RecordFailures:     v.GetBool("record-failures"),
		PersistRemediation: v.GetBool("persist-remediation"),
	})

	scanOpts, err := scanOptions(v)
	if err != nil {
		return err
	}
	h, err := handler.New(db, grader, handler.Config{
		OperatorUser: v.GetString("operator-user"),
		Scan:         &scanOpts,
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	lang := v.GetString("lang")
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   v.GetStringSlice("cors-origins"),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept-Language"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(appI18n.Middleware(lang))

	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if basePath != "" {
		r.Route(basePath, h.Routes)
	} else {
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"judge", judge.Name(),
		"prompt_variant", promptVariant,
		"timeout", gwOpts.Timeout,
		"retries", gwOpts.Retries,
		"lang", lang,
		"base_path", basePath,
	)
	return http.ListenAndServe(addr, r)
}

func runScan(cmd *cobra.Command, _ []string) error {
	v, db, err := setup(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	opts, err := scanOptions(v)
	if err != nil {
		return err
	}
	opts.Warning = appI18n.IntegrityWarning(ctx)
	report, err := integrity.New(db, opts).Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), appI18n.Tp(ctx, "ScanFlagged", len(report.Flagged)))
	for _, id := range report.Flagged {
		fmt.Fprintln(cmd.OutOrStdout(), "  "+id)
	}
	slog.Info("scan complete", "pairs", report.Pairs, "flagged", len(report.Flagged), "persisted", report.Persisted)
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	v, db, err := setup(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	exp, err := db.ExportAll(ctx)
	if err != nil {
		return fmt.Errorf("export submissions: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format := strings.ToLower(v.GetString("format")); format {
	case "json":
		data, err := json.MarshalIndent(exp, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		// Ensure trailing newline.
		_, _ = fmt.Fprintln(w)
	case "xlsml":
		if err := export.WriteSpreadsheet(w, exp, func(id string) string { return appI18n.T(ctx, id) }); err != nil {
			return fmt.Errorf("write spreadsheet: %w", err)
		}
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	slog.Info("exported results", "submissions", len(exp.Results), "output", outPath)
	return nil
}

func runClear(cmd *cobra.Command, _ []string) error {
	v, db, err := setup(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	n, err := db.Count(ctx)
	if err != nil {
		return err
	}
	if err := db.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear submissions: %w", err)
	}
	if v.GetBool("exam") {
		if err := db.ClearExam(ctx); err != nil {
			return fmt.Errorf("clear exam: %w", err)
		}
	}
	slog.Info("cleared submissions", "count", n, "exam", v.GetBool("exam"))
	return nil
}

func seedOperator(ctx context.Context, db *store.Store, password string) error {
	existing, err := db.OperatorPasswordHash(ctx)
	if err != nil {
		return err
	}
	if password == "" {
		if existing == "" {
			slog.Warn("no operator password set, management API is disabled: set --operator-password or AUTOGRADE_OPERATOR_PASSWORD")
		}
		return nil
	}

	hash, err := handler.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash operator password: %w", err)
	}
	return db.SetOperatorPasswordHash(ctx, hash)
}

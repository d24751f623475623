package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/DeusData/importgraph/internal/config"
	"github.com/DeusData/importgraph/internal/discover"
	"github.com/DeusData/importgraph/internal/pipeline"
	"github.com/DeusData/importgraph/internal/store"
	"github.com/DeusData/importgraph/internal/tools"
	"github.com/DeusData/importgraph/internal/watcher"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// analyzeFlags are shared by analyze and watch.
type analyzeFlags struct {
	root       string
	configPath string
	entries    []string
	exits      []string
	dirs       []string
	include    string
	exclude    string
	workers    int
	jsonOut    bool
	save       bool
	dbPath     string
}

func newRootCmd() *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:          "importgraph",
		Short:        "Module dependency and dead code analysis for JavaScript/TypeScript projects",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log progress and non-fatal issues")

	var af analyzeFlags
	analyzeCmd := &cobra.Command{
		Use:   "analyze [root]",
		Short: "Build the dependency graph and report dead files and unused exports",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				af.root = args[0]
			}
			return runAnalyze(cmd, &af)
		},
	}
	addAnalyzeFlags(analyzeCmd, &af)

	var wf analyzeFlags
	watchCmd := &cobra.Command{
		Use:   "watch [root]",
		Short: "Re-run the analysis whenever scanned source files change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				wf.root = args[0]
			}
			return runWatch(cmd, &wf)
		},
	}
	addAnalyzeFlags(watchCmd, &wf)

	var serveDB string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP tool server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), serveDB)
		},
	}
	serveCmd.Flags().StringVar(&serveDB, "db", "", "Analysis database (default ~/.cache/importgraph/importgraph.db)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "importgraph", version)
		},
	}

	rootCmd.AddCommand(analyzeCmd, watchCmd, serveCmd, versionCmd)
	return rootCmd
}

func addAnalyzeFlags(cmd *cobra.Command, f *analyzeFlags) {
	f.root = "."
	cmd.Flags().StringVar(&f.configPath, "config", "", "Config file (default <root>/"+config.FileName+")")
	cmd.Flags().StringSliceVar(&f.entries, "entry", nil, "Entry file, repeatable (relative to root)")
	cmd.Flags().StringSliceVar(&f.exits, "exit", nil, "Exit file, repeatable; prunes the graph to files leading to one")
	cmd.Flags().StringSliceVar(&f.dirs, "dir", nil, "Scan directory, repeatable (default: root)")
	cmd.Flags().StringVar(&f.include, "include", "", "Only analyze paths matching this regex")
	cmd.Flags().StringVar(&f.exclude, "exclude", "", "Skip paths matching this regex")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Worker pool size per wave (default: number of CPUs)")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "Print the graph and report as JSON")
	cmd.Flags().BoolVar(&f.save, "save", false, "Store the analysis for the MCP tools")
	cmd.Flags().StringVar(&f.dbPath, "db", "", "Analysis database (default: db_path from config, then ~/.cache/importgraph/importgraph.db)")
}

// options merges the config file with flags that were set explicitly.
func (f *analyzeFlags) options(cmd *cobra.Command) (pipeline.Options, *config.Config, error) {
	root, err := filepath.Abs(f.root)
	if err != nil {
		return pipeline.Options{}, nil, fmt.Errorf("root: %w", err)
	}

	cfg := config.LoadConfig(root)
	if f.configPath != "" {
		if cfg, err = config.LoadFile(f.configPath); err != nil {
			return pipeline.Options{}, nil, err
		}
	}

	opts, err := pipeline.OptionsFromConfig(root, cfg)
	if err != nil {
		return pipeline.Options{}, nil, fmt.Errorf("config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("entry") {
		opts.Entries = f.entries
	}
	if flags.Changed("exit") {
		opts.Exits = f.exits
	}
	if flags.Changed("dir") {
		opts.ScanDirs = f.dirs
	}
	if flags.Changed("include") {
		if opts.Include, err = regexp.Compile(f.include); err != nil {
			return pipeline.Options{}, nil, fmt.Errorf("include: %w", err)
		}
	}
	if flags.Changed("exclude") {
		if opts.Exclude, err = regexp.Compile(f.exclude); err != nil {
			return pipeline.Options{}, nil, fmt.Errorf("exclude: %w", err)
		}
	}
	if flags.Changed("workers") && f.workers > 0 {
		opts.Workers = f.workers
	}
	return opts, cfg, nil
}

func (f *analyzeFlags) openStore(cfg *config.Config) (*store.Store, error) {
	switch {
	case f.dbPath != "":
		return store.OpenPath(f.dbPath)
	case cfg != nil && cfg.DBPath != "":
		return store.OpenPath(cfg.DBPath)
	default:
		return store.Open()
	}
}

func runAnalyze(cmd *cobra.Command, f *analyzeFlags) error {
	opts, cfg, err := f.options(cmd)
	if err != nil {
		return err
	}
	a, err := tools.Analyze(cmd.Context(), opts)
	if err != nil {
		return err
	}
	if f.save {
		st, err := f.openStore(cfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
		if _, err := a.Save(st); err != nil {
			return err
		}
	}
	return printAnalysis(cmd.OutOrStdout(), a, f.jsonOut)
}

func printAnalysis(w io.Writer, a *tools.Analysis, jsonOut bool) error {
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"summary": a.Summary(),
			"graph":   a.Snapshot,
			"report":  a.Report,
		})
	}

	sum := a.Summary()
	root := a.Snapshot.Root
	rel := func(id string) string {
		if r, err := filepath.Rel(root, id); err == nil {
			return r
		}
		return id
	}

	fmt.Fprintf(w, "%s: %d files (%d internal, %d external), %d edges, %d cyclic\n",
		sum.Project, sum.Files, sum.InternalFiles, sum.ExternalFiles, sum.Edges, sum.CyclicEdges)
	if sum.Unresolved > 0 || sum.Unparsable > 0 {
		fmt.Fprintf(w, "unresolved imports: %d, unparsable files: %d\n", sum.Unresolved, sum.Unparsable)
	}

	fmt.Fprintf(w, "\ndead files (%d):\n", len(a.Report.DeadFiles))
	for _, id := range a.Report.DeadFiles {
		fmt.Fprintf(w, "  %s\n", rel(id))
	}
	if extra := len(a.Report.UnreachableFiles) - len(a.Report.DeadFiles); extra > 0 {
		fmt.Fprintf(w, "\nunreachable files (%d):\n", len(a.Report.UnreachableFiles))
		for _, id := range a.Report.UnreachableFiles {
			fmt.Fprintf(w, "  %s\n", rel(id))
		}
	}

	fmt.Fprintf(w, "\nunused exports (%d):\n", sum.UnusedExports)
	for _, rec := range a.Snapshot.Files {
		names := a.Report.Unused(rec.ID)
		if len(names) == 0 {
			continue
		}
		fmt.Fprintf(w, "  %s:", rel(rec.ID))
		for _, n := range names {
			fmt.Fprintf(w, " %s", n)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func runWatch(cmd *cobra.Command, f *analyzeFlags) error {
	opts, cfg, err := f.options(cmd)
	if err != nil {
		return err
	}

	var st *store.Store
	if f.save {
		if st, err = f.openStore(cfg); err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
	}

	out := cmd.OutOrStdout()
	analyze := func(ctx context.Context) error {
		a, err := tools.Analyze(ctx, opts)
		if err != nil {
			return err
		}
		if st != nil {
			if _, err := a.Save(st); err != nil {
				return err
			}
		}
		return printAnalysis(out, a, f.jsonOut)
	}
	if err := analyze(cmd.Context()); err != nil {
		return err
	}

	filter := &discover.Options{
		FS:          opts.FS,
		IgnoreDirs:  opts.IgnoreDirs,
		Include:     opts.Include,
		Exclude:     opts.Exclude,
		NoGitignore: opts.NoGitignore,
	}
	scanDirs := opts.ScanDirs
	if len(scanDirs) == 0 {
		scanDirs = []string{opts.Root}
	}
	targets := make([]watcher.Target, 0, len(scanDirs))
	for _, dir := range scanDirs {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(opts.Root, dir)
		}
		targets = append(targets, watcher.Target{Name: dir, Root: dir, Filter: filter})
	}

	w := watcher.New(func(ctx context.Context, name string, changed []string) error {
		fmt.Fprintf(out, "\n%d file(s) changed in %s\n", len(changed), name)
		return analyze(ctx)
	}, targets...)
	w.Run(cmd.Context())
	return nil
}

func runServe(ctx context.Context, dbPath string) error {
	var (
		st  *store.Store
		err error
	)
	if dbPath != "" {
		st, err = store.OpenPath(dbPath)
	} else {
		st, err = store.Open()
	}
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	tools.Version = version
	srv := tools.NewServer(st, nil)
	slog.Info("serve.start", "db", st.Path())
	if err := srv.MCPServer().Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

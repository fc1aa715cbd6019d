package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen/internal/config"
	"github.com/paveg/whenthen/internal/engine"
	wio "github.com/paveg/whenthen/internal/io"
	"github.com/paveg/whenthen/internal/logutil"
	"github.com/paveg/whenthen/internal/parallel"
	"github.com/paveg/whenthen/internal/sql"
	"github.com/paveg/whenthen/internal/version"
	"go.uber.org/zap"
)

func customUsage(fs *flag.FlagSet) func() {
	return func() {
		out := fs.Output()
		fmt.Fprintf(out, "whenthen conditional query tool (version %s)\n\n", version.Version)
		fmt.Fprintf(out, "Usage: whenthen -input FILE -query SQL [options]\n\n")
		fmt.Fprintf(out, "Options:\n")
		fmt.Fprintf(out, "  -input FILE\n\t\tCSV or Parquet file to query\n")
		fmt.Fprintf(out, "  -table NAME\n\t\tTable name of the input in the query (default: t)\n")
		fmt.Fprintf(out, "  -query SQL\n\t\tSELECT statement to run\n")
		fmt.Fprintf(out, "  -output FILE\n\t\tWrite the result as CSV or Parquet instead of CSV on stdout\n")
		fmt.Fprintf(out, "  -config FILE\n\t\tJSON, YAML or TOML configuration (default: WHENTHEN_* environment)\n")
		fmt.Fprintf(out, "  -partitions N\n\t\tPartitions for grouped aggregation, 0 disables (default: from config)\n")
		fmt.Fprintf(out, "  -explain\n\t\tPrint the plan instead of running it\n")
		fmt.Fprintf(out, "  -metrics\n\t\tPrint operation metrics to stderr after the run\n")
		fmt.Fprintf(out, "  -v, -version\n\t\tPrint version information and exit\n")
		fmt.Fprintf(out, "  -h, -help\n\t\tShow this help message and exit\n")
	}
}

type options struct {
	input      string
	table      string
	query      string
	output     string
	config     string
	partitions int
	explain    bool
	metrics    bool
	version    bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("whenthen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.input, "input", "", "CSV or Parquet file to query")
	fs.StringVar(&opts.table, "table", "t", "Table name of the input")
	fs.StringVar(&opts.query, "query", "", "SELECT statement to run")
	fs.StringVar(&opts.output, "output", "", "Output file")
	fs.StringVar(&opts.config, "config", "", "Configuration file")
	fs.IntVar(&opts.partitions, "partitions", -1, "Partitions for grouped aggregation")
	fs.BoolVar(&opts.explain, "explain", false, "Print the plan")
	fs.BoolVar(&opts.metrics, "metrics", false, "Print operation metrics")
	fs.BoolVar(&opts.version, "v", false, "Print version and exit")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit") // alias
	fs.Usage = customUsage(fs)

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.version {
		return opts, nil
	}
	if opts.input == "" || opts.query == "" {
		fs.Usage()
		return opts, fmt.Errorf("-input and -query are required")
	}
	return opts, nil
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.LoadFromEnv(), nil
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// run executes one query and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}
	if opts.version {
		fmt.Fprint(stdout, version.Info().String())
		return 0
	}

	cfg, err := loadConfig(opts.config)
	if err != nil {
		fmt.Fprintf(stderr, "loading configuration: %v\n", err)
		return 1
	}
	if opts.metrics {
		cfg.MetricsCollection = true
	}
	config.SetGlobalConfig(cfg)
	logger, err := logutil.SetupLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(stderr, "setting up logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	if err := query(ctx, cfg, opts, stdout, stderr); err != nil {
		logutil.Error("query failed", zap.String("query", opts.query), zap.Error(err))
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func query(ctx context.Context, cfg config.Config, opts options, stdout, stderr io.Writer) error {
	partitions := cfg.Partitions()
	if opts.partitions >= 0 {
		partitions = opts.partitions
	}

	pool, err := parallel.NewPool(cfg.Workers())
	if err != nil {
		return err
	}
	defer pool.Close()

	mem := memory.NewGoAllocator()
	e := engine.New(engine.WithPool(pool), engine.WithAllocator(mem))
	ex := sql.NewExecutor(e, partitions)

	df, err := wio.ReadFile(opts.input, mem)
	if err != nil {
		return err
	}
	defer df.Release()
	logutil.Info("table loaded",
		zap.String("table", opts.table),
		zap.String("file", opts.input),
		zap.Int("rows", df.Len()),
		zap.Strings("columns", df.Columns()))
	ex.RegisterTable(opts.table, df)

	if opts.explain {
		plan, err := ex.Explain(opts.query)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, plan)
		return nil
	}

	result, err := ex.Execute(ctx, opts.query)
	if err != nil {
		return err
	}
	defer result.Release()

	if opts.output != "" {
		err = wio.WriteFile(opts.output, result)
	} else {
		err = wio.NewCSVWriter(stdout, wio.DefaultCSVOptions()).Write(result)
	}
	if err != nil {
		return err
	}

	if opts.metrics {
		printMetrics(stderr, e)
	}
	return nil
}

func printMetrics(w io.Writer, e *engine.Engine) {
	summary := e.Metrics().GetSummary()
	fmt.Fprintf(w, "operations: %d, failures: %d, total: %s\n",
		summary.TotalOperations, summary.Failures, summary.TotalDuration)
	for _, op := range summary.Operations() {
		fmt.Fprintf(w, "  %s: %d\n", op, summary.OperationCounts[op])
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

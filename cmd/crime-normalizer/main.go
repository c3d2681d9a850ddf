// Command crime-normalizer cleans a crime incident extract, writes the cleaned
// table and prints the aggregate reports.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/David-Botos/crime-normalizer/pkg/config"
	"github.com/David-Botos/crime-normalizer/pkg/connector"
	"github.com/David-Botos/crime-normalizer/pkg/logging"
	"github.com/David-Botos/crime-normalizer/pkg/pipeline"
	"github.com/David-Botos/crime-normalizer/pkg/store"
)

func main() {
	envFile := flag.String("env", ".env", "Path to an env file with connection settings")
	inputPath := flag.String("input", "", "Path to the raw CSV extract (overrides INPUT_PATH)")
	outputPath := flag.String("output", "", "Path for the cleaned CSV (overrides OUTPUT_PATH)")
	excelPath := flag.String("excel", "", "Path for the xlsx report (overrides EXCEL_PATH)")
	rulesPath := flag.String("rules", "", "Path to a YAML column rules file (overrides RULES_FILE)")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *inputPath != "" {
		cfg.InputPath = *inputPath
	}
	if *outputPath != "" {
		cfg.OutputPath = *outputPath
	}
	if *excelPath != "" {
		cfg.ExcelPath = *excelPath
	}
	if *rulesPath != "" {
		cfg.RulesPath = *rulesPath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		flag.PrintDefaults()
		os.Exit(1)
	}

	logger, restore, err := logging.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, logger)
	stop()
	restore()
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) int {
	logger.Info("Starting crime normalizer", zap.String("config", cfg.String()))

	snowConn, pgConn, err := connector.NewConnectorFactory(cfg, logger).CreateConfiguredConnectors(ctx)
	if err != nil {
		logger.Error("Failed to create connectors", zap.Error(err))
		return 1
	}
	if snowConn != nil {
		defer snowConn.Close()
	}
	if pgConn != nil {
		defer pgConn.Close()
	}

	runner := pipeline.NewRunner(pipeline.Options{
		InputPath:        cfg.InputPath,
		OutputPath:       cfg.OutputPath,
		ExcelPath:        cfg.ExcelPath,
		RulesPath:        cfg.RulesPath,
		TableName:        cfg.TableName,
		RecordOperations: cfg.RecordOperations,
		BatchSize:        cfg.BatchSize,
		Console:          os.Stdout,
	}, logger)
	if snowConn != nil {
		runner.WithSource(snowConn)
	}
	if pgConn != nil {
		runner.WithSink(store.New(pgConn, logger, cfg.BatchSize), pgConn.Schema())
	}

	res, err := runner.Run(ctx)
	if res != nil && res.Metrics != nil {
		fmt.Fprintln(os.Stderr, res.Metrics.GenerateMetricsReport())
	}
	if err != nil {
		logger.Error("Run failed", zap.String("run_id", runner.RunID()), zap.Error(err))
		return 1
	}

	logger.Info("Run complete",
		zap.String("run_id", res.RunID),
		zap.Int("rows", res.Cleaned.Nrow()),
		zap.String("output", cfg.OutputPath))
	return 0
}

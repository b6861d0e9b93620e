package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"birchdb"
	"birchdb/internal/config"
	"birchdb/internal/output"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "birchdb",
		Short: "Embeddable SQL database",
	}

	var (
		configPath string
		storePath  string
		format     string
	)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML config file")
	rootCmd.PersistentFlags().StringVar(&storePath, "path", "", "data directory (overrides config; empty runs in memory)")
	rootCmd.PersistentFlags().StringVar(&format, "format", "human", "output format: human or json")

	openDatabase := func() (*birchdb.Database, error) {
		cfg := config.Default()
		if configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		}
		if storePath != "" {
			cfg.Store.Path = storePath
		}
		logger, err := buildLogger(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		return birchdb.Open(birchdb.Options{
			Path:      cfg.Store.Path,
			CacheSize: cfg.Store.CacheSize,
			Logger:    logger,
		})
	}

	runAndPrint := func(db *birchdb.Database, sql string) error {
		rows, err := db.Run(sql)
		if err != nil {
			return err
		}
		formatter, err := output.NewFormatter(format)
		if err != nil {
			return err
		}
		formatted, err := formatter.FormatRows(rows.Schema(), rows.All())
		if err != nil {
			return err
		}
		fmt.Print(formatted)
		return nil
	}

	execCmd := &cobra.Command{
		Use:   "exec <file.sql | statement>",
		Short: "Run SQL from a file or a literal statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql := args[0]
			if data, err := os.ReadFile(args[0]); err == nil {
				sql = string(data)
			}
			db, err := openDatabase()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			return runAndPrint(db, sql)
		},
	}

	replCmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive SQL shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
			fmt.Print("birchdb> ")
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				switch {
				case line == "":
				case strings.EqualFold(line, "quit"), strings.EqualFold(line, "exit"):
					return nil
				default:
					if err := runAndPrint(db, line); err != nil {
						fmt.Fprintln(os.Stderr, "error:", err)
					}
				}
				fmt.Print("birchdb> ")
			}
			return scanner.Err()
		},
	}

	rootCmd.AddCommand(execCmd, replCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

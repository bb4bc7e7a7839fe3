package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"pickings/internal/apperrors"
	"pickings/internal/bootstrap"
	"pickings/internal/config"
	"pickings/internal/importer"
	"pickings/internal/logging"
)

func main() {
	file := flag.String("file", "", "Path to the .xlsx workbook to import")
	configFile := flag.String("config", "", "Config file (defaults to ./config.yaml)")
	audit := flag.Bool("audit", false, "Audit document counts instead of importing")
	repair := flag.Bool("repair", false, "With -audit, rewrite drifted counts")
	flag.Parse()

	if *file == "" && !*audit {
		fmt.Println("Usage: import -file <workbook.xlsx> [-config <config.yaml>]")
		fmt.Println("       import -audit [-repair] [-config <config.yaml>]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	_ = godotenv.Load()
	loader := config.NewConfigLoader()
	if *configFile != "" {
		loader.SetConfigFile(*configFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.InitGlobalLogger(logging.LogLevel(cfg.Logging.Level), "console")

	ctx := context.Background()
	rt, err := bootstrap.New(ctx, cfg, logger, nil)
	if err != nil {
		fmt.Printf("Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	if *audit {
		report, err := rt.Folios.AuditCounts(ctx, *repair)
		if err != nil {
			fmt.Printf("Error auditing counts: %s\n", apperrors.Message(err))
			os.Exit(1)
		}
		fmt.Printf("Checked %d folios, %d with drifted counts, %d repaired\n", report.Checked, len(report.Drift), report.Repaired)
		for _, d := range report.Drift {
			fmt.Printf("  %s (row %d): stored %q, list has %d\n", d.Folio, d.Row, d.Stored, d.Actual)
		}
		return
	}

	sheet, sum, err := importer.ReadFile(*file)
	if err != nil {
		fmt.Printf("Error reading %s: %v\n", *file, err)
		os.Exit(1)
	}
	fmt.Printf("Read %d rows from %s (checksum %s)\n", len(sheet.Rows), *file, sum)

	res, err := rt.Folios.Import(ctx, sheet)
	if err != nil {
		fmt.Printf("Import failed: %s\n", apperrors.Message(err))
		os.Exit(1)
	}
	fmt.Println(res.Message())
}

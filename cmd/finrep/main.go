package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"finrep/internal/amqp"
	"finrep/internal/cli"
	"finrep/internal/config"
	"finrep/internal/core"
	"finrep/internal/fx"
	"finrep/internal/ingestion"
	"finrep/internal/log"
	"finrep/internal/normalize"
	"finrep/internal/report"
	"finrep/internal/source"
	"finrep/internal/validation"
)

const usage = `Usage: finrep <command> [flags]

Commands:
  ingest      fetch records from sources and append them to the ledger
  report      generate a report over a period
  quarantine  list quarantined records

Run 'finrep <command> -h' for command flags.
`

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := cli.LoadAndValidateConfig(logger)

	var err error
	switch os.Args[1] {
	case "ingest":
		err = runIngest(logger, cfg, os.Args[2:])
	case "report":
		err = runReport(logger, cfg, os.Args[2:])
	case "quarantine":
		err = runQuarantine(logger, cfg, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("Command failed", "command", os.Args[1], log.FieldError, err)
		os.Exit(1)
	}
}

// multiFlag collects repeated name=value flags.
type multiFlag []string

func (m *multiFlag) String() string     { return strings.Join(*m, ",") }
func (m *multiFlag) Set(v string) error { *m = append(*m, v); return nil }

func splitNameValue(s string) (string, string, error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" || value == "" {
		return "", "", fmt.Errorf("expected name=value, got %q", s)
	}
	return name, value, nil
}

func runIngest(logger *log.Logger, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	var files, dbs, sheetRanges multiFlag
	fs.Var(&files, "file", "CSV or xlsx extract as name=path (repeatable)")
	fs.Var(&dbs, "db", "sqlite source as name=dsn (repeatable)")
	fs.Var(&sheetRanges, "sheet", "Google Sheets source as name=spreadsheetID/range (repeatable)")
	dbQuery := fs.String("db-query",
		"SELECT id, date, amount, currency, category, vendor FROM transactions",
		"query to run against -db sources")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(files)+len(dbs)+len(sheetRanges) == 0 {
		return fmt.Errorf("no sources given; use -file, -db, or -sheet")
	}

	ctx, cancel := cli.GracefulShutdown(logger)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, cfg.FetchTimeout)
	defer cancelTimeout()

	repo := cli.InitStorage(logger, cfg.SQLiteDBPath)
	defer repo.Close()
	aliases := cli.InitAliases(logger, cfg)
	rates := cli.InitRates(logger, cfg)

	var sources []source.Source
	for _, f := range files {
		name, path, err := splitNameValue(f)
		if err != nil {
			return err
		}
		src, closer, err := source.OpenFile(name, path)
		if err != nil {
			return err
		}
		defer closer.Close()
		sources = append(sources, src)
	}
	for _, d := range dbs {
		name, dsn, err := splitNameValue(d)
		if err != nil {
			return err
		}
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return fmt.Errorf("open source db %s: %w", name, err)
		}
		defer db.Close()
		sources = append(sources, source.NewSQLSource(name, db, *dbQuery))
	}
	if len(sheetRanges) > 0 {
		svc, err := source.NewSheetsService(ctx)
		if err != nil {
			return fmt.Errorf("sheets service: %w", err)
		}
		for _, s := range sheetRanges {
			name, ref, err := splitNameValue(s)
			if err != nil {
				return err
			}
			spreadsheetID, readRange, ok := strings.Cut(ref, "/")
			if !ok {
				return fmt.Errorf("expected spreadsheetID/range, got %q", ref)
			}
			sources = append(sources, source.NewSheetsSource(name, svc, spreadsheetID, readRange))
		}
	}

	var publisher ingestion.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			// Alerts are best-effort; ingestion proceeds without a broker.
			logger.Warn("AMQP unavailable, events will not be published", log.FieldError, err)
		} else {
			defer client.Close()
			publisher = client
		}
	}

	engine := validation.NewEngine(aliases, repo, validation.Rules{
		BackdateLimitDays:   cfg.BackdateLimitDays,
		FutureGraceDays:     cfg.FutureGraceDays,
		OutlierCeilingCents: cfg.OutlierCeilingCents,
	})
	var rateProvider fx.RateProvider = rates
	if cfg.FXLiveRates {
		rateProvider = fx.NewLiveProvider(rates, fx.NewClient())
	}
	transformer := normalize.NewTransformer(aliases, rateProvider, cfg.ReportingCurrency)
	svc := ingestion.NewService(repo, engine, transformer, publisher, cfg.FetchConcurrency, logger)

	results, errs := svc.IngestAll(ctx, sources)
	for _, r := range results {
		fmt.Printf("%s: accepted=%d duplicates=%d quarantined=%d\n",
			r.Source, r.AcceptedCount, r.DuplicateCount, len(r.Quarantined))
	}
	if len(errs) > 0 {
		for name, err := range errs {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		}
		return fmt.Errorf("%d of %d sources failed", len(errs), len(sources))
	}
	return nil
}

func runReport(logger *log.Logger, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	kindFlag := fs.String("kind", "pnl", "report kind: pnl, expense, vendor, or compliance")
	periodFlag := fs.String("period", "", "calendar month as YYYY-MM")
	fromFlag := fs.String("from", "", "period start date (inclusive)")
	toFlag := fs.String("to", "", "period end date (exclusive)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	kind, err := report.ParseKind(*kindFlag)
	if err != nil {
		return err
	}
	p, err := resolvePeriod(*periodFlag, *fromFlag, *toFlag)
	if err != nil {
		return err
	}

	repo := cli.InitStorage(logger, cfg.SQLiteDBPath)
	defer repo.Close()
	aliases := cli.InitAliases(logger, cfg)

	engine := report.NewEngine(repo, cfg.ReportingCurrency, cfg.QuarantineRateThreshold, aliases, logger)
	rep, err := engine.Generate(context.Background(), kind, p)
	if err != nil {
		return err
	}
	return printJSON(rep)
}

func runQuarantine(logger *log.Logger, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("quarantine", flag.ExitOnError)
	periodFlag := fs.String("period", "", "calendar month as YYYY-MM (empty lists everything)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var p *core.Period
	if *periodFlag != "" {
		period, err := resolvePeriod(*periodFlag, "", "")
		if err != nil {
			return err
		}
		p = &period
	}

	repo := cli.InitStorage(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	recs, err := repo.ListQuarantine(context.Background(), p)
	if err != nil {
		return err
	}
	return printJSON(recs)
}

func resolvePeriod(month, from, to string) (core.Period, error) {
	if month != "" {
		t, err := time.Parse("2006-01", month)
		if err != nil {
			return core.Period{}, fmt.Errorf("invalid period %q: want YYYY-MM", month)
		}
		return core.MonthPeriod(t.Year(), t.Month()), nil
	}
	if from == "" || to == "" {
		return core.Period{}, fmt.Errorf("give either -period or both -from and -to")
	}
	start, err := core.ParseDate(from)
	if err != nil {
		return core.Period{}, err
	}
	end, err := core.ParseDate(to)
	if err != nil {
		return core.Period{}, err
	}
	return core.NewPeriod(start, end)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

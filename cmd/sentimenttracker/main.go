package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"SentimentTracker/internal/app"
	"SentimentTracker/internal/config"
	"SentimentTracker/internal/domain"
	"SentimentTracker/internal/logging"
	"SentimentTracker/internal/usecase"
)

const usage = `usage: sentimenttracker <command> [flags]

commands:
  run     fetch, score and summarize news for one ticker
  ask     answer a question over stored sentiment data
  serve   run the HTTP API and the scheduled refresh
  schema  apply the Postgres schema
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		slog.Error("application stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return flag.ErrHelp
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	command, rest := args[0], args[1:]
	switch command {
	case "run":
		return runRefresh(ctx, cfg, logger, rest, out)
	case "ask":
		return runAsk(ctx, cfg, logger, rest, out)
	case "serve":
		return withApp(ctx, cfg, logger, func(a *app.Application) error { return a.Serve(ctx) })
	case "schema":
		return withApp(ctx, cfg, logger, func(a *app.Application) error { return a.EnsureSchema(ctx) })
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func runRefresh(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	ticker := fs.String("ticker", cfg.Tickers.Default, "ticker symbol")
	days := fs.Int("days", cfg.Pipeline.LookbackDays, "lookback in days")
	sources := fs.String("sources", cfg.Pipeline.SourceFilter, "source filter: all|quality")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter, err := domain.ParseSourceFilter(*sources)
	if err != nil {
		return err
	}

	return withApp(ctx, cfg, logger, func(a *app.Application) error {
		result, err := a.Refresh(ctx, usecase.RunRequest{
			Ticker:       strings.ToUpper(*ticker),
			LookbackDays: *days,
			SourceFilter: filter,
		})
		if err != nil {
			return err
		}
		return writeJSON(out, result)
	})
}

func runAsk(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string, out io.Writer) error {
	today := domain.Day(time.Now())

	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	ticker := fs.String("ticker", cfg.Tickers.Default, "ticker symbol")
	from := fs.String("from", today.AddDate(0, 0, -6).Format(domain.DateLayout), "start date (YYYY-MM-DD)")
	to := fs.String("to", today.Format(domain.DateLayout), "end date (YYYY-MM-DD)")
	question := fs.String("q", "", "question to answer")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*question) == "" {
		return fmt.Errorf("-q is required")
	}

	start, err := domain.ParseDay(*from)
	if err != nil {
		return fmt.Errorf("-from: %w", err)
	}
	end, err := domain.ParseDay(*to)
	if err != nil {
		return fmt.Errorf("-to: %w", err)
	}

	return withApp(ctx, cfg, logger, func(a *app.Application) error {
		answer, err := a.Ask(ctx, usecase.Question{
			Ticker: strings.ToUpper(*ticker),
			Text:   *question,
			Start:  start,
			End:    end,
		})
		if err != nil {
			return err
		}
		return writeJSON(out, answer)
	})
}

func withApp(ctx context.Context, cfg config.Config, logger *slog.Logger, fn func(*app.Application) error) error {
	application, err := app.New(ctx, cfg, logger, app.Overrides{})
	if err != nil {
		return err
	}
	defer application.Close()
	return fn(application)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

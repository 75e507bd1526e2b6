// cmd/indicators dumps indicator series for a daily bar file as CSV, for
// checking values against a charting package.
//
// Usage:
//
//	go run ./cmd/indicators -csv data/nifty.csv -specs EMA:5,EMA:200,RSI:14,ADX:14
//	go run ./cmd/indicators -db data/bars.db -symbol NIFTY -weekly -ready
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"swing-backtest/internal/indicator"
	"swing-backtest/internal/logger"
	"swing-backtest/internal/marketdata"
	"swing-backtest/internal/model"
	sqlitestore "swing-backtest/internal/store/sqlite"
)

const defaultSpecs = "EMA:5,EMA:10,EMA:21,EMA:51,EMA:150,EMA:200,SMA:20,RSI:14,ATR:14,ADX:14"

func main() {
	csvPath := flag.String("csv", "", "Daily bars file (.csv or .xlsx)")
	dbPath := flag.String("db", "", "SQLite database holding the bars table")
	symbol := flag.String("symbol", "", "Symbol to read from -db")
	specs := flag.String("specs", defaultSpecs, "Indicators as TYPE:PERIOD,...")
	weekly := flag.Bool("weekly", false, "Resample to weekly bars first")
	readyOnly := flag.Bool("ready", false, "Skip rows until every indicator is ready")
	flag.Parse()

	log := logger.Init(os.Stderr, "indicators", "text", slog.LevelInfo)

	configs, err := indicator.ParseSpecs(*specs)
	if err != nil {
		log.Error("bad -specs", slog.Any("error", err))
		os.Exit(2)
	}

	var src marketdata.Source
	switch {
	case *csvPath != "":
		src = marketdata.FileSource{Path: *csvPath}
	case *dbPath != "":
		r, err := sqlitestore.NewReader(*dbPath)
		if err != nil {
			log.Error("open db", slog.Any("error", err))
			os.Exit(1)
		}
		defer r.Close()
		src = marketdata.StoreSource{Reader: r}
	default:
		log.Error("one of -csv or -db is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	series, err := marketdata.Load(ctx, src, *symbol)
	if err != nil {
		log.Error("load bars", slog.Any("error", err))
		os.Exit(1)
	}
	bars := series.Daily
	if *weekly {
		bars = series.Weekly
	}

	if err := dump(ctx, os.Stdout, indicator.NewEngine(configs), bars, *readyOnly); err != nil {
		log.Error("dump", slog.Any("error", err))
		os.Exit(1)
	}
}

// dump writes one row per bar: date, close, then each indicator column.
// Unavailable values are left empty.
func dump(ctx context.Context, out io.Writer, eng *indicator.Engine, bars []model.Bar, readyOnly bool) error {
	w := csv.NewWriter(out)
	header := append([]string{"date", "close"}, eng.Columns()...)
	if err := w.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	err := eng.Run(ctx, bars, func(bar model.Bar, results []indicator.Result) error {
		row[0] = bar.Date.Format(time.DateOnly)
		row[1] = strconv.FormatFloat(bar.Close, 'f', 2, 64)
		allReady := true
		for i, r := range results {
			row[i+2] = ""
			if r.Ready {
				row[i+2] = strconv.FormatFloat(r.Value, 'f', 4, 64)
			} else {
				allReady = false
			}
		}
		if readyOnly && !allReady {
			return nil
		}
		return w.Write(row)
	})
	w.Flush()
	if err != nil {
		return err
	}
	if err := w.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"sp500-backtest/services/engine"
	"sp500-backtest/services/marketdata"
)

func main() {
	in := flag.String("in", "", "Input CSV (Date,Open,High,Low,Close,Volume)")
	out := flag.String("out", "", "Output CSV path")
	every := flag.Duration("every", 24*time.Hour, "Target bar width (e.g. 15m, 1h, 24h)")
	flag.Parse()

	if *in == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "-in and -out are required")
		flag.Usage()
		os.Exit(2)
	}

	bars, err := marketdata.LoadCSV(*in)
	if err != nil {
		log.Fatalf("Failed to read input: %v", err)
	}
	resampled, err := marketdata.Resample(bars, *every)
	if err != nil {
		log.Fatalf("Failed to resample: %v", err)
	}
	if err := engine.ValidateSeries(resampled); err != nil {
		log.Fatalf("Resampled series is invalid: %v", err)
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("Failed to create output: %v", err)
	}
	defer f.Close()
	if err := marketdata.WriteCSV(f, resampled); err != nil {
		log.Fatalf("Failed to write output: %v", err)
	}
	fmt.Printf("Resampled %d bars into %d bars of %s\n", len(bars), len(resampled), *every)
}

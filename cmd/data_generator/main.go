// Data Generator - writes sample daily OHLCV datasets in the dashboard's
// Date,Open,High,Low,Close,Volume format.
package main

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"sp500-backtest/services/engine"
	"sp500-backtest/services/marketdata"
)

type preset struct {
	price    float64
	places   int32
	volume   float64
	dailyVol float64
	minPrice float64
	maxPrice float64
}

var presets = map[string]preset{
	"SPX":    {price: 2050, places: 2, volume: 3.5e9, dailyVol: 0.011, minPrice: 600, maxPrice: 9000},
	"EURUSD": {price: 1.2, places: 5, volume: 150000, dailyVol: 0.005, minPrice: 0.8, maxPrice: 1.8},
	"GOLD":   {price: 1180, places: 2, volume: 220000, dailyVol: 0.009, minPrice: 700, maxPrice: 4000},
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: data_generator <output_dir> [bars] [asset...]")
		fmt.Println("Example: data_generator data 2500 SPX GOLD")
		os.Exit(1)
	}

	outputDir := os.Args[1]
	bars := 2500
	if len(os.Args) > 2 {
		fmt.Sscanf(os.Args[2], "%d", &bars)
	}
	assets := marketdata.Assets
	if len(os.Args) > 3 {
		assets = os.Args[3:]
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		log.Fatalf("Failed to create output dir: %v", err)
	}
	for i, asset := range assets {
		p, ok := presets[asset]
		if !ok {
			log.Fatalf("No preset for asset %s", asset)
		}
		path := marketdata.DatasetPath(outputDir, asset)
		fmt.Printf("Generating %d bars of %s data to %s\n", bars, asset, path)
		// Fixed seed per asset for reproducibility
		if err := generate(path, p, bars, rand.New(rand.NewSource(42+int64(i)))); err != nil {
			log.Fatalf("Failed to generate %s: %v", asset, err)
		}
	}
}

func generate(path string, p preset, n int, rng *rand.Rand) error {
	bars := make([]engine.Bar, 0, n)
	price := p.price
	day := time.Date(2015, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		// Trending regimes over a random walk
		trend := 0.0
		switch phase := i % 500; {
		case phase < 150:
			trend = 0.0006
		case phase >= 250 && phase < 330:
			trend = -0.0009
		}
		change := rng.NormFloat64()*p.dailyVol + trend

		open := price
		price *= 1 + change
		price = math.Min(math.Max(price, p.minPrice), p.maxPrice)
		cls := price

		wick := p.dailyVol * (0.3 + rng.Float64())
		high := math.Max(open, cls) * (1 + wick*rng.Float64())
		low := math.Min(open, cls) * (1 - wick*rng.Float64())

		// Volume expands on large moves
		volume := p.volume * (0.6 + 0.8*rng.Float64() + math.Abs(change)*20)

		bars = append(bars, engine.Bar{
			Date:   day,
			Open:   decimal.NewFromFloat(open).Round(p.places),
			High:   decimal.NewFromFloat(high).Round(p.places),
			Low:    decimal.NewFromFloat(low).Round(p.places),
			Close:  decimal.NewFromFloat(cls).Round(p.places),
			Volume: decimal.NewFromFloat(volume).Round(0),
		})
		day = nextWeekday(day)
	}

	file, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()
	return marketdata.WriteCSV(file, bars)
}

func nextWeekday(t time.Time) time.Time {
	t = t.AddDate(0, 0, 1)
	for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

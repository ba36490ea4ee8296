package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tunogya/augur/pkg/config"
	"github.com/tunogya/augur/pkg/data"
	"github.com/tunogya/augur/pkg/model"
	"github.com/tunogya/augur/pkg/rerank"
	"github.com/tunogya/augur/pkg/store/milvus"
)

// Options selects the query context
type Options struct {
	ConfigPath string
	Ticker     string
	ModelType  string
	Date       string
	TopK       int
	MinScore   float64
	AllTickers bool
	Segmented  bool
}

func main() {
	opts := parseFlags()
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "similar: %v\n", err)
		os.Exit(1)
	}
}

func run(opts Options) error {
	cfg, err := config.LoadWithEnv(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if cfg.Milvus.Address == "" {
		return errors.New("milvus.address is not configured")
	}
	mt, err := model.ParseModelType(opts.ModelType)
	if err != nil {
		return err
	}
	date, err := data.ParseDate(opts.Date)
	if err != nil {
		return fmt.Errorf("invalid -date: %w", err)
	}
	ticker := config.SplitList(opts.Ticker)
	if len(ticker) != 1 {
		return errors.New("exactly one -ticker is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client, err := milvus.NewClient(ctx, cfg.Milvus)
	if err != nil {
		return err
	}
	defer client.Close()
	coll := cfg.Milvus.Collection
	if err := client.LoadCollection(ctx, coll); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	id := model.GenerateContextID(ticker[0], mt, date, cfg.Model.NSteps)
	embedding, err := client.Embedding(ctx, coll, id)
	if err != nil {
		return err
	}

	// Only contexts strictly before the query date can inform it.
	filterTicker := ticker[0]
	if opts.AllTickers {
		filterTicker = ""
	}
	results, err := client.Search(ctx, coll, embedding, milvus.Filter(filterTicker, mt, date), opts.TopK)
	if err != nil {
		return err
	}

	decay := rerank.DefaultTimeDecayConfig()
	if opts.Segmented {
		decay = rerank.SegmentConfig()
	}
	ranked := rerank.FilterByMinScore(rerank.NewReranker(decay).Rerank(results, date), opts.MinScore)

	fmt.Printf("Query: %s %s %s (context %s)\n\n", ticker[0], mt, date.Format("2006-01-02"), id)
	fmt.Printf("%-5s %-8s %-12s %-8s %-8s %-8s %-10s\n", "Rank", "Ticker", "Date", "Sim", "Weight", "Final", "PredRet%")
	fmt.Println("---------------------------------------------------------------------")
	for i, r := range ranked {
		fmt.Printf("%-5d %-8s %-12s %-8.4f %-8.4f %-8.4f %-10.4f\n",
			i+1, r.Ticker, r.Date.Format("2006-01-02"), r.Score, r.TimeWeight, r.FinalScore, r.PredictedReturn*100)
	}
	if len(ranked) > 0 {
		fmt.Printf("\nMean predicted return of neighbours: %.4f%%\n", rerank.MeanPredictedReturn(ranked)*100)
	}
	return nil
}

func parseFlags() Options {
	var o Options
	flag.StringVar(&o.ConfigPath, "config", "", "config file path (defaults only when empty)")
	flag.StringVar(&o.Ticker, "ticker", "", "ticker of the query prediction")
	flag.StringVar(&o.ModelType, "model", "LSTM", "model type of the query prediction")
	flag.StringVar(&o.Date, "date", "", "date of the query prediction (YYYY-MM-DD)")
	flag.IntVar(&o.TopK, "topk", 10, "number of neighbours to fetch")
	flag.Float64Var(&o.MinScore, "min-score", 0, "drop neighbours below this final score")
	flag.BoolVar(&o.AllTickers, "all-tickers", false, "search across every ticker")
	flag.BoolVar(&o.Segmented, "segmented", false, "use segmented time weights instead of exponential decay")
	flag.Parse()

	if o.Ticker == "" || o.Date == "" {
		fmt.Println("Usage: similar -ticker <TICKER> -date <YYYY-MM-DD> [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}
	return o
}

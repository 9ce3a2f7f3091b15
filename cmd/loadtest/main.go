package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type loadMode string

const (
	modeCreate           loadMode = "create"
	modeCreateCancel     loadMode = "create-cancel"
	modeCreateCancelItem loadMode = "create-cancel-item"
)

// Скидка 10% начинается с четырёх единиц: по умолчанию нагрузка идёт через расчёт скидки.
const defaultQuantity = 4

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	rate        float64
	timeout     time.Duration
	mode        loadMode
	cancelRate  int
	quantity    int
	unitPrice   float64
	branch      string
	customerTag string
	outputPath  string
}

func parseConfig(args []string) (config, error) {
	var (
		cfg       config
		modeValue string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "sales REST API base URL")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios in count mode; with -duration only used when set explicitly")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.Float64Var(&cfg.rate, "rate", 0, "max scenarios per second, 0 = unlimited")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-cancel | create-cancel-item")
	fs.IntVar(&cfg.cancelRate, "cancel-rate", 0, "cancel probability in percent for create mode (0..100)")
	fs.IntVar(&cfg.quantity, "quantity", defaultQuantity, "quantity of the sale item (1..20)")
	fs.Float64Var(&cfg.unitPrice, "unit-price", 10, "unit price of the sale item")
	fs.StringVar(&cfg.branch, "branch", "load-branch", "branch of generated sales")
	fs.StringVar(&cfg.customerTag, "customer-tag", "load", "customer name prefix")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")

	switch {
	case cfg.baseURL == "":
		return cfg, errors.New("url is required")
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.rate < 0:
		return cfg, errors.New("rate must be >= 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.quantity < 1 || cfg.quantity > 20:
		return cfg, errors.New("quantity must be between 1 and 20")
	case cfg.unitPrice <= 0:
		return cfg, errors.New("unit-price must be > 0")
	case cfg.cancelRate < 0 || cfg.cancelRate > 100:
		return cfg, errors.New("cancel-rate must be between 0 and 100")
	case strings.TrimSpace(cfg.branch) == "":
		return cfg, errors.New("branch is required")
	case strings.TrimSpace(cfg.customerTag) == "":
		return cfg, errors.New("customer-tag is required")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCreate, modeCreateCancel, modeCreateCancelItem:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result := run(context.Background(), cfg)
	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// run гоняет сценарии пулом воркеров. Ошибка сценария не останавливает прогон:
// она попадает в отчёт.
func run(ctx context.Context, cfg config) report {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()
	client := newSalesClient(cfg.baseURL, cfg.timeout, col)

	var limiter *rate.Limiter
	if cfg.rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.rate), 1)
	}

	jobs := make(chan int, cfg.concurrency*2)
	g, gctx := errgroup.WithContext(ctx)
	for range cfg.concurrency {
		g.Go(func() error {
			for id := range jobs {
				if limiter != nil {
					if err := limiter.Wait(gctx); err != nil {
						continue
					}
				}
				_ = runScenario(gctx, client, cfg, id, runID, col)
			}
			return nil
		})
	}

	dispatchJobs(ctx, jobs, cfg)
	_ = g.Wait()

	return col.buildReport(startedAt, time.Since(startedAt))
}

func dispatchJobs(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := range cfg.total {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; !cfg.totalSet || i < cfg.total; i++ {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

func runScenario(ctx context.Context, client *salesClient, cfg config, index int, runID string, col *collector) (err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "failed"
		}
		col.record(scenarioMethod, time.Since(start), status, err == nil)
	}()

	sale, err := client.CreateSale(ctx, createRequest{
		SaleNumber: fmt.Sprintf("LT-%s-%d", runID, index),
		Date:       time.Now().UTC(),
		Customer:   fmt.Sprintf("%s-%d", cfg.customerTag, index),
		Branch:     cfg.branch,
		Items: []createItem{{
			ProductID:   fmt.Sprintf("product-%d", index%10),
			ProductName: "Load test product",
			Quantity:    cfg.quantity,
			UnitPrice:   cfg.unitPrice,
		}},
	}, fmt.Sprintf("lt-create-%s-%d", runID, index))
	if err != nil {
		return err
	}
	if sale.ID == "" {
		return errors.New("create response returned empty sale id")
	}

	switch {
	case cfg.mode == modeCreateCancelItem:
		if len(sale.Items) == 0 {
			return errors.New("create response returned no items")
		}
		if err := client.CancelItem(ctx, sale.ID, sale.Items[0].ID); err != nil {
			return err
		}
		return client.CancelSale(ctx, sale.ID, "load-cancel")
	case cfg.mode == modeCreateCancel, shouldCancelScenario(index, cfg.cancelRate):
		return client.CancelSale(ctx, sale.ID, "load-cancel")
	}
	return nil
}

// shouldCancelScenario детерминированно отбирает cancelRate процентов сценариев.
func shouldCancelScenario(index, cancelRate int) bool {
	switch {
	case cancelRate <= 0:
		return false
	case cancelRate >= 100:
		return true
	default:
		return index%100 < cancelRate
	}
}

// Команда loadtest нагружает REST API остатков конкурентными резервированиями
// и проверяет, что итоговый остаток сходится с числом удержанных резервов.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type loadMode string

const (
	modeReserveRelease loadMode = "reserve-release"
	modeReserve        loadMode = "reserve"
	modeValidate       loadMode = "validate"
)

type config struct {
	addr         string
	total        int
	totalSet     bool
	duration     time.Duration
	concurrency  int
	timeout      time.Duration
	mode         loadMode
	productID    string
	quantity     int64
	initialStock int64
	ttlMinutes   int
	actor        string
	outputPath   string
}

func parseConfig(args []string) (config, error) {
	var cfg config
	var modeValue string

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.StringVar(&cfg.addr, "addr", "http://localhost:8080", "stock service base URL")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 1m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeReserveRelease), "load mode: reserve-release | reserve | validate")
	fs.StringVar(&cfg.productID, "product", "p-load", "product id to contend on")
	fs.Int64Var(&cfg.quantity, "quantity", 1, "units per reservation")
	fs.Int64Var(&cfg.initialStock, "initial-stock", -1, "set stock before the run (-1 keeps current stock)")
	fs.IntVar(&cfg.ttlMinutes, "reservation-ttl", 15, "reservation timeout in minutes")
	fs.StringVar(&cfg.actor, "actor", "loadtest", "actor id sent in "+actorHeader)
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

	switch {
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.quantity <= 0:
		return cfg, errors.New("quantity must be > 0")
	case cfg.initialStock < -1:
		return cfg, errors.New("initial-stock must be >= 0 or -1")
	case cfg.ttlMinutes < 0 || cfg.ttlMinutes > 1440:
		return cfg, errors.New("reservation-ttl must be between 0 and 1440")
	case strings.TrimSpace(cfg.addr) == "":
		return cfg, errors.New("addr is required")
	case strings.TrimSpace(cfg.productID) == "":
		return cfg, errors.New("product is required")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeReserveRelease, modeReserve, modeValidate:
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

	result, err := run(context.Background(), cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 || (result.Stock != nil && !result.Stock.Conserved) {
		os.Exit(1)
	}
}

// run выполняет сценарии и сверяет итоговый остаток.
func run(ctx context.Context, cfg config) (report, error) {
	client := newStockClient(cfg.addr, cfg.timeout, cfg.actor)

	initial := cfg.initialStock
	if initial >= 0 {
		resp, err := client.setStock(ctx, cfg.productID, initial)
		if err != nil {
			return report{}, fmt.Errorf("set initial stock: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return report{}, fmt.Errorf("set initial stock: unexpected status %d: %s", resp.StatusCode(), resp.String())
		}
	} else {
		current, err := client.stock(ctx, cfg.productID)
		if err != nil {
			return report{}, err
		}
		initial = current
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()
	var held atomic.Int64

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for w := 0; w < cfg.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if runScenario(ctx, client, cfg, fmt.Sprintf("lt-%s-%d", runID, id), col) {
					held.Add(1)
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()
	result := col.buildReport(startedAt, time.Since(startedAt))

	actual, err := client.stock(ctx, cfg.productID)
	if err != nil {
		return result, err
	}
	expected := initial - held.Load()*cfg.quantity
	result.Stock = &stockCheck{
		ProductID: cfg.productID,
		Initial:   initial,
		Held:      held.Load(),
		Expected:  expected,
		Actual:    actual,
		Conserved: expected == actual,
	}
	return result, nil
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}
		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario выполняет один сценарий и сообщает, остался ли резерв удержанным.
func runScenario(ctx context.Context, client *stockClient, cfg config, orderID string, col *collector) (held bool) {
	start := time.Now()
	status, result := "200", outcomeSuccess
	defer func() {
		col.record(scenarioMethod, time.Since(start), status, result)
	}()

	if cfg.mode == modeValidate {
		callStart := time.Now()
		resp, err := client.validate(ctx, cfg.productID, cfg.quantity)
		status, result = classify(resp, err, http.StatusOK)
		col.record("ValidateStock", time.Since(callStart), status, result)
		return false
	}

	callStart := time.Now()
	resp, err := client.reserve(ctx, orderID, cfg.productID, cfg.quantity, cfg.ttlMinutes)
	status, result = classify(resp, err, http.StatusCreated)
	col.record("ReserveInventory", time.Since(callStart), status, result)
	if result != outcomeSuccess {
		return false
	}
	if cfg.mode == modeReserve {
		return true
	}

	callStart = time.Now()
	resp, err = client.release(ctx, orderID)
	status, result = classify(resp, err, http.StatusOK)
	col.record("ReleaseReservation", time.Since(callStart), status, result)
	return result != outcomeSuccess
}

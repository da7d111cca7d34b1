package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stockd/internal/service/httpapi"
	"github.com/vladislavdragonenkov/stockd/internal/service/inventory"
	"github.com/vladislavdragonenkov/stockd/internal/service/txn"
	"github.com/vladislavdragonenkov/stockd/internal/storage/memory"
)

// newStockServer поднимает REST API поверх in-memory хранилища.
func newStockServer(t *testing.T, productIDs ...string) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	logger := log.WithField("test", t.Name())
	svc := inventory.NewService(txn.NewOrchestrator(store), store.Products(), store.Ledger(), store.Catalog(),
		inventory.WithLogger(logger),
		inventory.WithRetry(50, time.Millisecond),
		inventory.WithOptimisticRetry(10, time.Millisecond),
	)
	for _, id := range productIDs {
		if _, err := svc.SyncProduct(context.Background(), inventory.ProductInfo{ID: id, Name: id}); err != nil {
			t.Fatalf("sync product: %v", err)
		}
	}

	server := httptest.NewServer(httpapi.NewRouter(httpapi.NewHandler(svc, logger), "loadtest"))
	t.Cleanup(server.Close)
	return server
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    loadMode
		wantErr string
	}{
		{name: "reserve-release", input: "reserve-release", want: modeReserveRelease},
		{name: "reserve", input: " reserve ", want: modeReserve},
		{name: "validate", input: "validate", want: modeValidate},
		{name: "unsupported", input: "bad", wantErr: "unsupported mode"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseMode(tc.input)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("unexpected mode: got %q want %q", got, tc.want)
			}
		})
	}
}

func TestParseConfig(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		cfg, err := parseConfig([]string{
			"-addr=http://127.0.0.1:8080",
			"-mode=reserve",
			"-total=12",
			"-concurrency=3",
			"-timeout=2s",
			"-product=p-9",
			"-quantity=2",
			"-initial-stock=100",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.mode != modeReserve || cfg.total != 12 || !cfg.totalSet || cfg.concurrency != 3 {
			t.Fatalf("unexpected config: %+v", cfg)
		}
		if cfg.productID != "p-9" || cfg.quantity != 2 || cfg.initialStock != 100 {
			t.Fatalf("unexpected stock settings: %+v", cfg)
		}
	})

	t.Run("duration mode keeps total unset", func(t *testing.T) {
		cfg, err := parseConfig([]string{"-duration=1m"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.duration != time.Minute || cfg.totalSet {
			t.Fatalf("unexpected config: %+v", cfg)
		}
		if cfg.initialStock != -1 {
			t.Fatalf("expected initial stock to be kept by default, got %d", cfg.initialStock)
		}
	})

	invalid := map[string][]string{
		"zero total":         {"-total=0"},
		"negative duration":  {"-duration=-1s"},
		"zero concurrency":   {"-concurrency=0"},
		"zero quantity":      {"-quantity=0"},
		"bad initial stock":  {"-initial-stock=-5"},
		"ttl out of range":   {"-reservation-ttl=2000"},
		"empty product":      {"-product= "},
		"unknown mode":       {"-mode=create"},
		"unparsable timeout": {"-timeout=soon"},
	}
	for name, args := range invalid {
		t.Run(name, func(t *testing.T) {
			if _, err := parseConfig(args); err == nil {
				t.Fatalf("expected error for %v", args)
			}
		})
	}
}

func TestDispatchJobs(t *testing.T) {
	jobs := make(chan int, 10)
	dispatchJobs(jobs, config{total: 5})
	count := 0
	for range jobs {
		count++
	}
	if count != 5 {
		t.Fatalf("expected 5 jobs, got %d", count)
	}

	capped := make(chan int, 10)
	dispatchJobs(capped, config{duration: time.Second, total: 3, totalSet: true})
	count = 0
	for range capped {
		count++
	}
	if count != 3 {
		t.Fatalf("expected 3 capped jobs, got %d", count)
	}
}

func TestCollectorAndReport(t *testing.T) {
	c := newCollector()
	c.record(scenarioMethod, 10*time.Millisecond, "201", outcomeSuccess)
	c.record(scenarioMethod, 20*time.Millisecond, "409", outcomeRejected)
	c.record(scenarioMethod, 30*time.Millisecond, "500", outcomeFailed)
	c.record("ReserveInventory", 15*time.Millisecond, "201", outcomeSuccess)

	r := c.buildReport(time.Now(), 2*time.Second)
	if r.TotalScenarios != 3 || r.SuccessScenarios != 1 || r.RejectedScenarios != 1 || r.FailedScenarios != 1 {
		t.Fatalf("unexpected report totals: %+v", r)
	}
	if r.RPS != 1.5 {
		t.Fatalf("unexpected rps: %f", r.RPS)
	}
	scenario := r.Methods[scenarioMethod]
	if scenario.Statuses["409"] != 1 || scenario.Statuses["500"] != 1 {
		t.Fatalf("unexpected statuses: %+v", scenario.Statuses)
	}
	if _, ok := r.Methods["ReserveInventory"]; !ok {
		t.Fatalf("expected ReserveInventory stats in report")
	}
}

func TestUtilityFunctions(t *testing.T) {
	if got := ratio(1, 4); got != 0.25 {
		t.Fatalf("ratio mismatch: %f", got)
	}
	if got := ratio(1, 0); got != 0 {
		t.Fatalf("ratio with zero total must be 0, got %f", got)
	}

	values := []float64{10, 20, 30, 40}
	summary := buildLatencySummary(values)
	if summary.Min != 10 || summary.Max != 40 || summary.Avg != 25 || summary.P50 != 25 {
		t.Fatalf("unexpected latency summary: %+v", summary)
	}
	if p := percentile(values, 100); p != 40 {
		t.Fatalf("unexpected percentile: %f", p)
	}

	if got := runTarget(config{total: 50}); got != "count:50" {
		t.Fatalf("unexpected run target: %s", got)
	}
	if got := runTarget(config{duration: 2 * time.Second, total: 10, totalSet: true}); got != "duration:2s,max-total:10" {
		t.Fatalf("unexpected capped duration run target: %s", got)
	}
}

func TestWriteJSONReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")

	sample := report{TotalScenarios: 2, SuccessScenarios: 2, Stock: &stockCheck{ProductID: "p-1", Conserved: true}}
	if err := writeJSONReport(path, sample); err != nil {
		t.Fatalf("writeJSONReport error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var decoded report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.TotalScenarios != 2 || decoded.Stock == nil || !decoded.Stock.Conserved {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}

	if err := writeJSONReport("../escape.json", sample); err == nil {
		t.Fatal("expected error for path outside current directory")
	}
}

func TestRun_ReserveReleaseConservesStock(t *testing.T) {
	server := newStockServer(t, "p-load")

	result, err := run(context.Background(), config{
		addr:         server.URL,
		total:        60,
		concurrency:  8,
		timeout:      5 * time.Second,
		mode:         modeReserveRelease,
		productID:    "p-load",
		quantity:     1,
		initialStock: 10,
		ttlMinutes:   15,
		actor:        "loadtest",
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.TotalScenarios != 60 || result.FailedScenarios != 0 {
		t.Fatalf("unexpected totals: %+v", result)
	}
	if result.Stock == nil || !result.Stock.Conserved || result.Stock.Actual != 10 {
		t.Fatalf("stock not conserved: %+v", result.Stock)
	}
}

func TestRun_ReserveHoldsUntilStockRunsOut(t *testing.T) {
	server := newStockServer(t, "p-load")

	result, err := run(context.Background(), config{
		addr:         server.URL,
		total:        30,
		concurrency:  6,
		timeout:      5 * time.Second,
		mode:         modeReserve,
		productID:    "p-load",
		quantity:     2,
		initialStock: 21,
		ttlMinutes:   15,
		actor:        "loadtest",
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.SuccessScenarios != 10 || result.RejectedScenarios != 20 {
		t.Fatalf("expected 10 held and 20 rejected, got %+v", result)
	}
	if !result.Stock.Conserved || result.Stock.Actual != 1 {
		t.Fatalf("unexpected stock check: %+v", result.Stock)
	}
}

func TestRun_UnknownProduct(t *testing.T) {
	server := newStockServer(t)

	_, err := run(context.Background(), config{
		addr:         server.URL,
		total:        1,
		concurrency:  1,
		timeout:      time.Second,
		mode:         modeValidate,
		productID:    "missing",
		quantity:     1,
		initialStock: -1,
	})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/inventory/reservations":
			w.WriteHeader(http.StatusConflict)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	client := newStockClient(server.URL, time.Second, "test")
	resp, err := client.reserve(context.Background(), "o-1", "p-1", 1, 0)
	status, result := classify(resp, err, http.StatusCreated)
	if status != "409" || result != outcomeRejected {
		t.Fatalf("unexpected classification: %s %v", status, result)
	}
}

func TestPrintReport(t *testing.T) {
	out := captureStdout(t, func() {
		printReport(report{
			TotalScenarios: 1,
			Methods:        map[string]methodReport{"ReserveInventory": {Calls: 1, Success: 1}},
			Stock:          &stockCheck{Initial: 5, Expected: 4, Actual: 4, Held: 1, Conserved: true},
		}, config{mode: modeReserve, total: 1, productID: "p-1"})
	})
	for _, want := range []string{"Stock load test summary", "ReserveInventory: calls=1", "conserved=true"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q does not contain %q", out, want)
		}
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = oldStdout

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read captured output: %v", err)
	}
	_ = r.Close()

	return string(data)
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	salesHTTP "github.com/vladislavdragonenkov/sales/internal/http"
	"github.com/vladislavdragonenkov/sales/internal/http/handlers"
	"github.com/vladislavdragonenkov/sales/internal/service/sales"
	"github.com/vladislavdragonenkov/sales/internal/storage/memory"
)

func newSalesAPI(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := sales.NewService(memory.NewSaleRepository())
	router := salesHTTP.NewRouter(salesHTTP.RouterConfig{
		SaleHandler:    handlers.NewSaleHandler(svc, nil),
		Idempotency:    memory.NewIdempotencyRepository(),
		IdempotencyTTL: time.Hour,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestParseMode(t *testing.T) {
	for _, mode := range []loadMode{modeCreate, modeCreateCancel, modeCreateCancelItem} {
		got, err := parseMode(" " + string(mode) + " ")
		if err != nil || got != mode {
			t.Fatalf("parseMode(%s) = %s, %v", mode, got, err)
		}
	}
	if _, err := parseMode("create-pay"); err == nil {
		t.Fatal("expected error for unsupported mode")
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig(nil)
	if err != nil {
		t.Fatalf("defaults must be valid: %v", err)
	}
	if cfg.baseURL != "http://localhost:8080" || cfg.total != 400 || cfg.totalSet || cfg.mode != modeCreate || cfg.quantity != defaultQuantity {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	cfg, err = parseConfig([]string{"-url", "http://api:8080/", "-total", "5", "-duration", "1m", "-rate", "50", "-mode", "create-cancel-item"})
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if cfg.baseURL != "http://api:8080" || !cfg.totalSet || cfg.duration != time.Minute || cfg.rate != 50 || cfg.mode != modeCreateCancelItem {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestParseConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"-url", " "}, "url is required"},
		{[]string{"-duration", "-1s"}, "duration must be >= 0"},
		{[]string{"-total", "0"}, "total must be > 0 when duration is not set"},
		{[]string{"-total", "0", "-duration", "1s"}, "explicitly set"},
		{[]string{"-concurrency", "0"}, "concurrency must be > 0"},
		{[]string{"-rate", "-1"}, "rate must be >= 0"},
		{[]string{"-timeout", "0s"}, "timeout must be > 0"},
		{[]string{"-quantity", "21"}, "quantity must be between 1 and 20"},
		{[]string{"-unit-price", "0"}, "unit-price must be > 0"},
		{[]string{"-cancel-rate", "101"}, "cancel-rate must be between 0 and 100"},
		{[]string{"-branch", " "}, "branch is required"},
		{[]string{"-customer-tag", ""}, "customer-tag is required"},
		{[]string{"-mode", "pay"}, "unsupported mode"},
	}
	for _, tt := range tests {
		_, err := parseConfig(tt.args)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("args %v: expected %q, got %v", tt.args, tt.want, err)
		}
	}
}

func TestDispatchJobs(t *testing.T) {
	jobs := make(chan int, 10)
	dispatchJobs(context.Background(), jobs, config{total: 3})
	var got []int
	for id := range jobs {
		got = append(got, id)
	}
	if len(got) != 3 || got[2] != 2 {
		t.Fatalf("unexpected jobs: %v", got)
	}

	jobs = make(chan int, 10)
	dispatchJobs(context.Background(), jobs, config{total: 2, totalSet: true, duration: time.Minute})
	if n := len(jobs); n != 2 {
		t.Fatalf("explicit total must cap duration mode, got %d", n)
	}

	jobs = make(chan int)
	start := time.Now()
	go func() {
		for range jobs {
		}
	}()
	dispatchJobs(context.Background(), jobs, config{duration: 30 * time.Millisecond})
	if time.Since(start) > time.Second {
		t.Fatal("duration mode must stop on timer")
	}
}

func TestRun_AgainstSalesAPI(t *testing.T) {
	srv := newSalesAPI(t)

	for _, mode := range []loadMode{modeCreate, modeCreateCancel, modeCreateCancelItem} {
		t.Run(string(mode), func(t *testing.T) {
			cfg := config{
				baseURL:     srv.URL,
				total:       6,
				concurrency: 3,
				timeout:     2 * time.Second,
				mode:        mode,
				quantity:    defaultQuantity,
				unitPrice:   10,
				branch:      "main",
				customerTag: "load",
			}

			result := run(context.Background(), cfg)
			if result.TotalScenarios != 6 || result.FailedScenarios != 0 {
				t.Fatalf("unexpected result: %+v", result)
			}
			if result.Methods["CreateSale"].Statuses["201"] != 6 {
				t.Fatalf("expected 6 created sales, got %+v", result.Methods["CreateSale"])
			}
			switch mode {
			case modeCreate:
				if _, ok := result.Methods["CancelSale"]; ok {
					t.Fatal("create mode must not cancel")
				}
			case modeCreateCancel:
				if result.Methods["CancelSale"].Success != 6 {
					t.Fatalf("expected 6 cancellations, got %+v", result.Methods["CancelSale"])
				}
			case modeCreateCancelItem:
				if result.Methods["CancelItem"].Success != 6 || result.Methods["CancelSale"].Success != 6 {
					t.Fatalf("expected item and sale cancellations, got %+v", result.Methods)
				}
			}
		})
	}
}

func TestRun_WithRateLimit(t *testing.T) {
	srv := newSalesAPI(t)
	cfg := config{
		baseURL: srv.URL, total: 3, concurrency: 3, rate: 1000, timeout: time.Second,
		mode: modeCreate, quantity: 1, unitPrice: 1, branch: "b", customerTag: "c",
	}
	if result := run(context.Background(), cfg); result.SuccessScenarios != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRunScenario_APIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"message":"Validation failed"}`))
	}))
	defer srv.Close()

	col := newCollector()
	client := newSalesClient(srv.URL, time.Second, col)
	err := runScenario(context.Background(), client, config{mode: modeCreate, quantity: 1, unitPrice: 1}, 0, "run", col)

	var statusErr *statusError
	if !errors.As(err, &statusErr) || statusErr.status != http.StatusBadRequest {
		t.Fatalf("expected status error, got %v", err)
	}
	result := col.buildReport(time.Now(), time.Second)
	if result.FailedScenarios != 1 || result.Methods["CreateSale"].Statuses["400"] != 1 {
		t.Fatalf("failure must be recorded: %+v", result)
	}
}

func TestSalesClient_TransportError(t *testing.T) {
	col := newCollector()
	client := newSalesClient("http://127.0.0.1:1", 100*time.Millisecond, col)
	if err := client.CancelSale(context.Background(), "sale-1", "r"); err == nil {
		t.Fatal("expected transport error")
	}
	if col.buildReport(time.Now(), 0).Methods["CancelSale"].Statuses["transport_error"] != 1 {
		t.Fatal("transport error must be recorded")
	}
}

func TestCollectorAndReport(t *testing.T) {
	col := newCollector()
	col.record(scenarioMethod, 10*time.Millisecond, "ok", true)
	col.record(scenarioMethod, 30*time.Millisecond, "failed", false)
	col.record("CreateSale", 5*time.Millisecond, "201", true)

	result := col.buildReport(time.Now(), 2*time.Second)
	if result.TotalScenarios != 2 || result.FailedScenarios != 1 || result.ErrorRate != 0.5 {
		t.Fatalf("unexpected scenario stats: %+v", result)
	}
	if result.RPS != 1 {
		t.Fatalf("expected rps 1, got %f", result.RPS)
	}
	if result.ScenarioLatencyMs.Min != 10 || result.ScenarioLatencyMs.Max != 30 || result.ScenarioLatencyMs.P50 != 20 {
		t.Fatalf("unexpected latency: %+v", result.ScenarioLatencyMs)
	}

	var out bytes.Buffer
	printReport(&out, result, config{mode: modeCreate, total: 2})
	if !strings.Contains(out.String(), "CreateSale: calls=1") || strings.Contains(out.String(), "scenario: calls") {
		t.Fatalf("unexpected report output:\n%s", out.String())
	}
}

func TestUtilityFunctions(t *testing.T) {
	if percentile(nil, 50) != 0 || percentile([]float64{7}, 99) != 7 {
		t.Fatal("unexpected percentile edge cases")
	}
	if got := percentile([]float64{0, 10}, 95); got != 9.5 {
		t.Fatalf("unexpected interpolation: %f", got)
	}
	if ratio(1, 0) != 0 || ratio(1, 4) != 0.25 {
		t.Fatal("unexpected ratio")
	}
	if !shouldCancelScenario(5, 10) || shouldCancelScenario(15, 10) || shouldCancelScenario(0, 0) || !shouldCancelScenario(99, 100) {
		t.Fatal("unexpected cancel selection")
	}
	if runTarget(config{total: 3}) != "count:3" ||
		runTarget(config{duration: time.Minute}) != "duration:1m0s" ||
		runTarget(config{duration: time.Minute, total: 3, totalSet: true}) != "duration:1m0s,max-total:3" {
		t.Fatal("unexpected run target")
	}
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if err := writeJSONReport("report.json", report{TotalScenarios: 3}); err != nil {
		t.Fatalf("writeJSONReport failed: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "report.json"))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var decoded report
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded.TotalScenarios != 3 {
		t.Fatalf("unexpected report: %s (%v)", raw, err)
	}

	if err := writeJSONReport(".", report{}); err == nil {
		t.Fatal("expected error for directory path")
	}
	if err := writeJSONReport("../escape.json", report{}); err == nil {
		t.Fatal("expected error for path outside current directory")
	}
}

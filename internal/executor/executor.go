// Package executor runs validated graph queries under safety constraints:
// a read-only gate, row-limit enforcement, timeouts, and a circuit breaker
// in front of the store.
package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/spf13/cast"

	"graphrag/internal/generator"
	"graphrag/internal/graph"
	"graphrag/internal/logging"
	"graphrag/internal/types"
)

// Config carries the executor's operating limits.
type Config struct {
	DefaultTimeout       time.Duration `yaml:"default_timeout" json:"default_timeout"`
	MaxTimeout           time.Duration `yaml:"max_timeout" json:"max_timeout"`
	DefaultLimit         int           `yaml:"default_limit" json:"default_limit"`
	MaxLimit             int           `yaml:"max_limit" json:"max_limit"`
	ReadOnlyMode         bool          `yaml:"read_only_mode" json:"read_only_mode"`
	DefaultFormat        string        `yaml:"default_format" json:"default_format"`
	EnableExplain        bool          `yaml:"enable_explain" json:"enable_explain"`
	SlowQueryThresholdMs int64         `yaml:"slow_query_threshold_ms" json:"slow_query_threshold_ms"`
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:       30 * time.Second,
		MaxTimeout:           5 * time.Minute,
		DefaultLimit:         25,
		MaxLimit:             1000,
		ReadOnlyMode:         true,
		DefaultFormat:        "table",
		EnableExplain:        true,
		SlowQueryThresholdMs: 1000,
	}
}

// Options bound one execution call. Zero values fall back to the config.
type Options struct {
	Timeout  time.Duration
	Limit    int
	ReadOnly bool
	Format   string // table | graph | json
}

// Result is the outcome of an execution.
type Result struct {
	Success    bool                     `json:"success"`
	Data       []map[string]interface{} `json:"data"`
	Stats      types.ExecutionStats     `json:"stats"`
	Metadata   map[string]interface{}   `json:"metadata,omitempty"`
	Warnings   []string                 `json:"warnings,omitempty"`
	Errors     []string                 `json:"errors,omitempty"`
	Pagination *types.Pagination        `json:"pagination,omitempty"`
}

// Executor dispatches queries to the graph store.
type Executor struct {
	store   graph.Store
	cfg     Config
	breaker *gobreaker.CircuitBreaker
}

// NewExecutor wires an executor over a graph store.
func NewExecutor(store graph.Store, cfg Config) *Executor {
	def := DefaultConfig()
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = def.MaxTimeout
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = def.DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = def.MaxLimit
	}
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = def.DefaultFormat
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "graph-store",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Executor("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	return &Executor{store: store, cfg: cfg, breaker: breaker}
}

var (
	limitValueRe  = regexp.MustCompile(`(?i)\blimit\s+(\d+)`)
	skipClauseRe  = regexp.MustCompile(`(?i)\bskip\s+\d+`)
	finalReturnRe = regexp.MustCompile(`(?i)\breturn\b`)
)

// Execute runs one query.
//
// Empty queries are rejected up front. When read-only is requested (by the
// call or by config) the write detector runs again and any hit aborts the
// call before the store is touched. A row limit is injected when absent
// and clamped to MaxLimit when present.
func (e *Executor) Execute(ctx context.Context, query string, params map[string]interface{}, opts Options) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryExecutor, "Execute")
	defer timer.Stop()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, types.NewValidationError("query", "query must not be empty")
	}

	readOnly := opts.ReadOnly || e.cfg.ReadOnlyMode
	if readOnly {
		if clauses := generator.WriteClauses(query); len(clauses) > 0 {
			return nil, &types.ReadOnlyViolation{Query: query, Clauses: clauses}
		}
	}

	res := &Result{Metadata: map[string]interface{}{}}
	query = e.enforceLimit(query, opts.Limit, res)

	timeout := e.timeout(opts.Timeout)
	res.Metadata["timeout"] = timeout.Seconds()
	format := opts.Format
	if format == "" {
		format = e.cfg.DefaultFormat
	}
	res.Metadata["format"] = format

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("execution cancelled: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	rows, err := e.query(callCtx, query, params)
	elapsed := time.Since(start)

	res.Stats.ExecutionTimeMs = elapsed.Milliseconds()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			logging.Get(logging.CategoryExecutor).Error("Query timed out after %s: %s", timeout, truncateQuery(query))
			return nil, &types.QueryTimeout{Query: query, Seconds: timeout.Seconds()}
		}
		return nil, &types.QueryExecutionError{Query: query, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("execution cancelled: %w", err)
	}

	res.Success = true
	res.Data = formatRows(rows, format)
	res.Stats.RowsReturned = len(res.Data)

	if e.cfg.SlowQueryThresholdMs > 0 && res.Stats.ExecutionTimeMs >= e.cfg.SlowQueryThresholdMs {
		logging.Executor("SLOW QUERY (%dms): %s", res.Stats.ExecutionTimeMs, truncateQuery(query))
	} else {
		logging.ExecutorDebug("Executed in %dms, %d rows", res.Stats.ExecutionTimeMs, res.Stats.RowsReturned)
	}
	return res, nil
}

// ExecuteCount rewrites the query's final return clause to a count and
// returns the total.
func (e *Executor) ExecuteCount(ctx context.Context, query string, params map[string]interface{}, opts Options) (int64, error) {
	counting, err := countQuery(query)
	if err != nil {
		return 0, err
	}
	opts.Limit = 1
	res, err := e.Execute(ctx, counting, params, opts)
	if err != nil {
		return 0, err
	}
	if len(res.Data) == 0 {
		return 0, nil
	}
	return cast.ToInt64(res.Data[0]["total"]), nil
}

// ExecutePaginated runs a count plus a windowed query. Page numbers below 1
// are coerced to 1; per-page is clamped to [1, MaxLimit].
func (e *Executor) ExecutePaginated(ctx context.Context, query string, params map[string]interface{}, page, perPage int, opts Options) (*Result, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = e.cfg.DefaultLimit
	}
	if perPage > e.cfg.MaxLimit {
		perPage = e.cfg.MaxLimit
	}

	total, err := e.ExecuteCount(ctx, query, params, opts)
	if err != nil {
		return nil, err
	}

	windowed := fmt.Sprintf("%s SKIP %d LIMIT %d", stripWindow(query), (page-1)*perPage, perPage)
	opts.Limit = perPage
	res, err := e.Execute(ctx, windowed, params, opts)
	if err != nil {
		return nil, err
	}

	res.Pagination = &types.Pagination{
		CurrentPage: page,
		PerPage:     perPage,
		Total:       int(total),
		LastPage:    int(math.Ceil(float64(total) / float64(perPage))),
	}
	return res, nil
}

// Explain returns the store's plan for a query, verbatim.
func (e *Executor) Explain(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error) {
	if !e.cfg.EnableExplain {
		return nil, types.NewValidationError("explain", "explain is disabled by configuration")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, types.NewValidationError("query", "query must not be empty")
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.DefaultTimeout)
	defer cancel()
	rows, err := e.query(callCtx, "EXPLAIN "+query, params)
	if err != nil {
		return nil, &types.QueryExecutionError{Query: query, Err: err}
	}
	return rows, nil
}

// Test reports whether the store accepts the query's plan.
func (e *Executor) Test(ctx context.Context, query string, params map[string]interface{}) bool {
	_, err := e.Explain(ctx, query, params)
	return err == nil
}

// query routes the store call through the circuit breaker.
func (e *Executor) query(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error) {
	out, err := e.breaker.Execute(func() (interface{}, error) {
		return e.store.Query(ctx, query, params)
	})
	if err != nil {
		return nil, err
	}
	return out.([]map[string]interface{}), nil
}

func (e *Executor) timeout(requested time.Duration) time.Duration {
	if requested <= 0 {
		return e.cfg.DefaultTimeout
	}
	if requested > e.cfg.MaxTimeout {
		return e.cfg.MaxTimeout
	}
	return requested
}

// enforceLimit guarantees a row limit on the query: requested limits are
// clamped to MaxLimit with a warning, and a missing limit clause gets the
// effective limit appended.
func (e *Executor) enforceLimit(query string, requested int, res *Result) string {
	effective := requested
	if effective <= 0 {
		effective = e.cfg.DefaultLimit
	}
	if effective > e.cfg.MaxLimit {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("requested limit %d exceeds maximum %d; clamped", effective, e.cfg.MaxLimit))
		effective = e.cfg.MaxLimit
	}

	if m := limitValueRe.FindStringSubmatch(query); m != nil {
		existing, _ := strconv.Atoi(m[1])
		if existing > e.cfg.MaxLimit {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("query limit %d exceeds maximum %d; clamped", existing, e.cfg.MaxLimit))
			return limitValueRe.ReplaceAllString(query, fmt.Sprintf("LIMIT %d", e.cfg.MaxLimit))
		}
		return query
	}
	return fmt.Sprintf("%s LIMIT %d", query, effective)
}

// countQuery replaces everything from the final RETURN onward with a count
// over the same match set.
func countQuery(query string) (string, error) {
	query = strings.TrimSpace(query)
	locs := finalReturnRe.FindAllStringIndex(query, -1)
	if len(locs) == 0 {
		return "", types.NewValidationError("query", "query has no RETURN clause to count over")
	}
	last := locs[len(locs)-1]
	return query[:last[0]] + "RETURN count(*) AS total", nil
}

// stripWindow removes any trailing SKIP/LIMIT so pagination can impose its
// own window.
func stripWindow(query string) string {
	query = limitValueRe.ReplaceAllString(query, "")
	query = skipClauseRe.ReplaceAllString(query, "")
	return strings.TrimSpace(query)
}

// formatRows applies the output format. table flattens one level of nested
// maps into dotted columns; graph and json pass rows through untouched.
func formatRows(rows []map[string]interface{}, format string) []map[string]interface{} {
	if rows == nil {
		return []map[string]interface{}{}
	}
	if format != "table" {
		return rows
	}
	out := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		flat := make(map[string]interface{}, len(row))
		for col, v := range row {
			nested, ok := v.(map[string]interface{})
			if !ok {
				flat[col] = v
				continue
			}
			for k, nv := range nested {
				flat[col+"."+k] = nv
			}
		}
		out[i] = flat
	}
	return out
}

func truncateQuery(q string) string {
	if len(q) > 200 {
		return q[:200] + "..."
	}
	return q
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	braintrust "github.com/braintrustdata/braintrust-sdk-go"
	"github.com/braintrustdata/braintrust-sdk-go/eval"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type slotContext struct {
	Project      string `json:"project,omitempty"`
	Microprocess string `json:"microprocess,omitempty"`
	DocType      string `json:"doc_type,omitempty"`
	Stage        string `json:"stage,omitempty"`
}

// evalInput is one filename as an uploader would submit it. When
// CurrentState is set the name is also checked as a reviewer decision.
type evalInput struct {
	Name           string       `json:"name"`
	Filename       string       `json:"filename"`
	Context        *slotContext `json:"context,omitempty"`
	CurrentVersion string       `json:"current_version,omitempty"`
	CurrentState   string       `json:"current_state,omitempty"`
	Action         string       `json:"action,omitempty"`
}

type evalOutput struct {
	Valid      bool     `json:"valid"`
	ErrorCount int      `json:"error_count"`
	Errors     []string `json:"errors,omitempty"`
	Version    string   `json:"version,omitempty"`
	State      string   `json:"state,omitempty"`
	Progress   int      `json:"progress"`
	Submitter  string   `json:"submitter,omitempty"`
	// Set only when the case carries a decision.
	DecisionValid *bool  `json:"decision_valid,omitempty"`
	Rule          string `json:"rule,omitempty"`
}

type rawCase struct {
	Input    evalInput  `json:"input"`
	Expected evalOutput `json:"expected"`
}

type config struct {
	APIURL         string
	CasesPath      string
	Project        string
	Experiment     string
	RequestTimeout time.Duration
	Parallelism    int
}

type evalRunner struct {
	cfg    config
	client *http.Client
}

type parseResponse struct {
	Valid  bool `json:"valid"`
	Tokens *struct {
		Nomenclature string `json:"nomenclature"`
	} `json:"tokens"`
	Errors []string `json:"errors"`
}

type resolveResponse struct {
	Display   string `json:"display"`
	State     string `json:"state"`
	Progress  int    `json:"progress"`
	Submitter string `json:"submitter"`
}

type validateResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error"`
	Rule  string `json:"rule"`
}

func main() {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		fail(err)
	}

	if strings.TrimSpace(os.Getenv("BRAINTRUST_API_KEY")) == "" {
		fail(errors.New("BRAINTRUST_API_KEY is required"))
	}

	cases, err := loadCases(cfg.CasesPath)
	if err != nil {
		fail(err)
	}

	runner := &evalRunner{
		cfg:    cfg,
		client: &http.Client{},
	}

	if err := runner.healthCheck(ctx); err != nil {
		fail(err)
	}

	tp := sdktrace.NewTracerProvider()
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()

	bt, err := braintrust.New(
		tp,
		braintrust.WithProject(cfg.Project),
		braintrust.WithBlockingLogin(true),
	)
	if err != nil {
		fail(fmt.Errorf("failed to initialize Braintrust: %w", err))
	}

	evaluator := braintrust.NewEvaluator[evalInput, evalOutput](bt)

	result, err := evaluator.Run(ctx, eval.Opts[evalInput, evalOutput]{
		Experiment: cfg.Experiment,
		Dataset:    eval.NewDataset(cases),
		Task:       eval.T(runner.runCase),
		Scorers: []eval.Scorer[evalInput, evalOutput]{
			eval.NewScorer("validity", scoreValidity),
			eval.NewScorer("error_count", scoreErrorCount),
			eval.NewScorer("state", scoreState),
			eval.NewScorer("progress", scoreProgress),
			eval.NewScorer("submitter", scoreSubmitter),
			eval.NewScorer("decision", scoreDecision),
		},
		Tags: []string{"approval-tracker", "nomenclature", "workflow-api"},
		Metadata: map[string]any{
			"service": "approval-tracker",
			"api_url": cfg.APIURL,
		},
		Parallelism: cfg.Parallelism,
	})
	if err != nil {
		fail(fmt.Errorf("eval run failed: %w", err))
	}

	if runErr := result.Error(); runErr != nil {
		fail(fmt.Errorf("eval completed with errors: %w", runErr))
	}

	if link, err := result.Permalink(); err == nil && link != "" {
		fmt.Println("Braintrust report:", link)
	}

	fmt.Println(result.String())
}

func loadConfig() (config, error) {
	cfg := config{
		APIURL:         getenv("EVAL_API_URL", "http://localhost:8080"),
		CasesPath:      getenv("EVAL_CASES_PATH", "cases.json"),
		Project:        getenv("BRAINTRUST_PROJECT", "approval-tracker"),
		Experiment:     getenv("EVAL_EXPERIMENT", "nomenclature-eval"),
		RequestTimeout: time.Duration(getenvInt("EVAL_REQUEST_TIMEOUT_SEC", 20)) * time.Second,
		Parallelism:    getenvInt("EVAL_PARALLELISM", 4),
	}

	if cfg.RequestTimeout <= 0 {
		return config{}, errors.New("EVAL_REQUEST_TIMEOUT_SEC must be > 0")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}

	return cfg, nil
}

func loadCases(path string) ([]eval.Case[evalInput, evalOutput], error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read cases file %s: %w", resolved, err)
	}

	var raw []rawCase
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse cases file %s: %w", resolved, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("cases file is empty: %s", resolved)
	}

	cases := make([]eval.Case[evalInput, evalOutput], 0, len(raw))
	for _, row := range raw {
		cases = append(cases, eval.Case[evalInput, evalOutput]{
			Input:    row.Input,
			Expected: row.Expected,
			Metadata: map[string]any{"name": row.Input.Name, "filename": row.Input.Filename},
		})
	}
	return cases, nil
}

// runCase parses the filename, resolves whatever version it encodes and,
// for decision cases, asks the validator about the hand-off.
func (r *evalRunner) runCase(ctx context.Context, input evalInput) (evalOutput, error) {
	var parsed parseResponse
	req := map[string]any{"filename": input.Filename}
	if input.Context != nil {
		req["context"] = input.Context
	}
	if err := r.doJSON(ctx, http.MethodPost, "/v1/nomenclature/parse", req, &parsed); err != nil {
		return evalOutput{}, err
	}

	out := evalOutput{
		Valid:      parsed.Valid,
		ErrorCount: len(parsed.Errors),
		Errors:     parsed.Errors,
	}
	if parsed.Tokens != nil && parsed.Tokens.Nomenclature != "" {
		var resolved resolveResponse
		path := "/v1/nomenclature/resolve?version=" + url.QueryEscape(parsed.Tokens.Nomenclature)
		if err := r.doJSON(ctx, http.MethodGet, path, nil, &resolved); err != nil {
			return evalOutput{}, err
		}
		out.Version = resolved.Display
		out.State = resolved.State
		out.Progress = resolved.Progress
		out.Submitter = resolved.Submitter
	}

	if input.CurrentState != "" {
		var decision validateResponse
		if err := r.doJSON(ctx, http.MethodPost, "/v1/nomenclature/validate", map[string]any{
			"filename":        input.Filename,
			"current_version": input.CurrentVersion,
			"current_state":   input.CurrentState,
			"action":          firstNonEmpty(input.Action, "APPROVE"),
		}, &decision); err != nil {
			return evalOutput{}, err
		}
		out.DecisionValid = &decision.Valid
		out.Rule = decision.Rule
	}
	return out, nil
}

func (r *evalRunner) healthCheck(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := r.doJSON(ctx, http.MethodGet, "/healthz", nil, &resp); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if strings.ToLower(resp.Status) != "ok" {
		return fmt.Errorf("health check returned non-ok status: %s", resp.Status)
	}
	return nil
}

func (r *evalRunner) doJSON(ctx context.Context, method, path string, in any, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, strings.TrimRight(r.cfg.APIURL, "/")+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed: method=%s path=%s status=%d body=%s", method, path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode failed: %w (payload=%s)", err, string(payload))
		}
	}
	return nil
}

func scoreValidity(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	return boolScore(tr.Output.Valid == tr.Expected.Valid), nil
}

func scoreErrorCount(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	return boolScore(tr.Output.ErrorCount == tr.Expected.ErrorCount), nil
}

func scoreState(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	expected := normalizeString(tr.Expected.State)
	if expected == "" {
		return eval.S(1), nil
	}
	return boolScore(normalizeString(tr.Output.State) == expected), nil
}

func scoreProgress(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	if tr.Expected.State == "" {
		return eval.S(1), nil
	}
	return boolScore(tr.Output.Progress == tr.Expected.Progress), nil
}

func scoreSubmitter(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	expected := normalizeString(tr.Expected.Submitter)
	if expected == "" {
		return eval.S(1), nil
	}
	return boolScore(normalizeString(tr.Output.Submitter) == expected), nil
}

// scoreDecision gives half credit for the verdict and half for naming the rule that decided it.
func scoreDecision(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	if tr.Expected.DecisionValid == nil {
		return eval.S(1), nil
	}
	if tr.Output.DecisionValid == nil {
		return eval.S(0), nil
	}
	score := 0.0
	if *tr.Output.DecisionValid == *tr.Expected.DecisionValid {
		score += 0.5
	}
	if tr.Output.Rule == tr.Expected.Rule {
		score += 0.5
	}
	return eval.S(score), nil
}

func boolScore(ok bool) eval.Scores {
	if ok {
		return eval.S(1)
	}
	return eval.S(0)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func normalizeString(v any) string {
	if v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprintf("%v", v)
	}
	return strings.ToLower(strings.TrimSpace(s))
}

func resolvePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("path is empty")
	}
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("path not found: %s", path)
	}

	candidates := []string{
		path,
		filepath.Join("..", "..", path),
	}

	for _, c := range candidates {
		absPath, err := filepath.Abs(c)
		if err != nil {
			continue
		}
		if _, err := os.Stat(absPath); err == nil {
			return absPath, nil
		}
	}

	return "", fmt.Errorf("path not found: %s", path)
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out int
	if _, err := fmt.Sscanf(v, "%d", &out); err != nil {
		return fallback
	}
	return out
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

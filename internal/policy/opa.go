package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/storage/inmem"
	"github.com/open-policy-agent/opa/v1/topdown"

	"github.com/tkingovr/procfilter/api"
)

// OPAEngine implements the Engine interface using embedded OPA/Rego.
type OPAEngine struct {
	path string
	sets *ExitCodeSets

	// Compiled query for evaluation
	query rego.PreparedEvalQuery
}

// NewOPAEngine creates an engine from a .rego policy file. The exit code
// sets are passed to the policy as input.keep and input.drop.
func NewOPAEngine(path string, sets *ExitCodeSets) (*OPAEngine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading OPA policy file: %w", err)
	}
	e := &OPAEngine{path: path, sets: sets}
	if err := e.loadSource(string(data)); err != nil {
		return nil, err
	}
	return e, nil
}

// NewOPAEngineFromSource creates an engine from raw Rego source.
func NewOPAEngineFromSource(source string, sets *ExitCodeSets) (*OPAEngine, error) {
	e := &OPAEngine{sets: sets}
	if err := e.loadSource(source); err != nil {
		return nil, err
	}
	return e, nil
}

// Evaluate runs the Rego policy against the outcome of a filter run.
//
// The policy must define the following in package procfilter:
//
//	verdict: "keep" | "drop" | "error"
//	rule_name: string (optional)
//	message: string (optional)
//
// Input available to the policy:
//
//	input.filter: string
//	input.exit_code: number
//	input.stderr: string
//	input.keep: array of numbers
//	input.drop: array of numbers
func (e *OPAEngine) Evaluate(ctx context.Context, input *EvalInput) (*EvalResult, error) {
	inputMap := map[string]any{
		"filter":    input.Filter,
		"exit_code": input.ExitCode,
		"stderr":    input.Stderr,
		"keep":      []int{},
		"drop":      []int{},
	}
	if e.sets != nil {
		inputMap["keep"] = e.sets.Keep()
		inputMap["drop"] = e.sets.Drop()
	}

	rs, err := e.query.Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		if topdown.IsError(err) {
			return &EvalResult{
				Verdict: api.VerdictError,
				Rule:    "_opa_error",
				Message: "OPA evaluation error: " + err.Error(),
			}, nil
		}
		return nil, fmt.Errorf("OPA evaluation failed: %w", err)
	}

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return &EvalResult{
			Verdict: api.VerdictError,
			Rule:    "_opa_default",
			Message: "OPA policy returned no result",
		}, nil
	}

	resultMap, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return &EvalResult{
			Verdict: api.VerdictError,
			Rule:    "_opa_parse_error",
			Message: "unexpected OPA result type",
		}, nil
	}

	return parseOPAResult(resultMap), nil
}

func (e *OPAEngine) loadSource(source string) error {
	_, err := ast.ParseModuleWithOpts("outcome.rego", source, ast.ParserOptions{RegoVersion: ast.RegoV1})
	if err != nil {
		return fmt.Errorf("parsing Rego policy: %w", err)
	}

	r := rego.New(
		rego.Query("data.procfilter"),
		rego.Module("outcome.rego", source),
		rego.Store(inmem.New()),
	)

	query, err := r.PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("preparing OPA query: %w", err)
	}
	e.query = query
	return nil
}

func parseOPAResult(m map[string]any) *EvalResult {
	result := &EvalResult{
		Verdict: api.VerdictError, // default if not set
		Rule:    "_opa_default",
	}

	if v, ok := m["verdict"].(string); ok && api.Verdict(v).Valid() {
		result.Verdict = api.Verdict(v)
		result.Rule = ""
	}
	if r, ok := m["rule_name"].(string); ok {
		result.Rule = r
	}
	if msg, ok := m["message"].(string); ok {
		result.Message = msg
	}

	return result
}

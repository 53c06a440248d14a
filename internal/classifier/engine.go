package classifier

import (
	"context"
	"io"
	"log/slog"
)

// Result carries the two independent classifier verdicts for one message.
type Result struct {
	RuleMatch   bool
	OracleMatch bool
}

// IsSale is the combined verdict.
func (r Result) IsSale() bool {
	return r.RuleMatch || r.OracleMatch
}

// Engine combines the rule matcher and the oracle. Oracle failures are
// fail-closed: the verdict degrades to rule-only rather than failing the
// caller.
type Engine struct {
	rule   *RuleMatcher
	oracle Oracle
	log    *slog.Logger
}

// NewEngine builds an Engine from its two classifiers.
func NewEngine(rule *RuleMatcher, oracle Oracle, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		rule:   rule,
		oracle: oracle,
		log:    log.With("component", "classifier"),
	}
}

// Classify evaluates both classifiers for text. It never returns an error:
// an unreachable or misbehaving oracle yields OracleMatch=false.
func (e *Engine) Classify(ctx context.Context, text string) Result {
	result := Result{
		RuleMatch: e.rule.Match(text),
	}

	oracleMatch, err := e.oracle.IsSaleAd(ctx, text)
	if err != nil {
		e.log.WarnContext(ctx, "Oracle classification failed, degrading to rule-only verdict", "error", err)
		oracleMatch = false
	}
	result.OracleMatch = oracleMatch

	return result
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	userdomain "auth-session/backend/internal/user/domain"
)

const admissionQuery = "data.auth.admission.allow"

// DefaultPolicy admits active accounts only.
const DefaultPolicy = `package auth.admission

default allow := false

allow if {
	input.user.is_active
}
`

// OPAEvaluator evaluates the session admission policy using OPA Rego.
// The query is compiled once; Admit is safe for concurrent use.
type OPAEvaluator struct {
	query  rego.PreparedEvalQuery
	logger *slog.Logger
}

// NewOPAEvaluator compiles policy (DefaultPolicy when empty) and prepares the admission query.
func NewOPAEvaluator(ctx context.Context, policy string, logger *slog.Logger) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultPolicy
	}
	if logger == nil {
		logger = slog.Default()
	}
	compiler, err := ast.CompileModules(map[string]string{"admission.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile admission policy: %w", err)
	}
	pq, err := rego.New(
		rego.Query(admissionQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare admission query: %w", err)
	}
	return &OPAEvaluator{query: pq, logger: logger}, nil
}

// NewOPAEvaluatorFromFile reads a rego module from path. An empty path uses DefaultPolicy.
func NewOPAEvaluatorFromFile(ctx context.Context, path string, logger *slog.Logger) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator(ctx, "", logger)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read admission policy: %w", err)
	}
	return NewOPAEvaluator(ctx, string(b), logger)
}

// Admit evaluates data.auth.admission.allow for user and action. On evaluation failure the
// decision falls back to the account's active flag.
func (e *OPAEvaluator) Admit(ctx context.Context, user *userdomain.User, action string) (bool, error) {
	if user == nil {
		return false, nil
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(user, action)))
	if err != nil {
		e.logger.WarnContext(ctx, "admission policy evaluation failed, using fallback", "action", action, "error", err)
		return user.IsActive, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		// allow undefined: the policy did not admit.
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return user.IsActive, fmt.Errorf("admission policy returned %T, want bool", rs[0].Expressions[0].Value)
	}
	return allowed, nil
}

// HealthCheck evaluates the prepared query against a minimal input.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.query.Eval(ctx, rego.EvalInput(buildInput(&userdomain.User{}, ActionLogin)))
	if err != nil {
		return fmt.Errorf("eval admission policy: %w", err)
	}
	return nil
}

func buildInput(user *userdomain.User, action string) map[string]interface{} {
	return map[string]interface{}{
		"action": action,
		"user": map[string]interface{}{
			"id":        user.ID,
			"email":     user.Email,
			"role":      user.Role,
			"is_active": user.IsActive,
			"provider":  user.Provider,
		},
	}
}

package governance

import (
	"fmt"
	"regexp"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the item about to be shopped for.
type Request struct {
	Item string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine screens extracted items before any of them reach the
// cart.
type PolicyEngine interface {
	Evaluate(req Request) Result
}

// DefaultPolicyEngine is a basic implementation of PolicyEngine.
type DefaultPolicyEngine struct {
	DeniedItems []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedItems: make([]*regexp.Regexp, 0),
	}
}

func (e *DefaultPolicyEngine) DenyItem(pattern string) error {
	re, err := regexp.Compile(`(?i)` + pattern)
	if err != nil {
		return err
	}
	e.DeniedItems = append(e.DeniedItems, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(req Request) Result {
	for _, re := range e.DeniedItems {
		if re.MatchString(req.Item) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("Item matches restricted pattern: %s", re.String()),
			}
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}
}

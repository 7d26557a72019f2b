package governance

import "testing"

func TestDefaultPolicyEngine_Evaluate(t *testing.T) {
	engine := NewDefaultPolicyEngine()

	// Test Allow (Default)
	res1 := engine.Evaluate(Request{Item: "spinach"})
	if res1.Effect != EffectAllow {
		t.Errorf("Expected EffectAllow, got %s", res1.Effect)
	}

	// Test Deny
	if err := engine.DenyItem(`\bwine\b`); err != nil {
		t.Fatal(err)
	}
	res2 := engine.Evaluate(Request{Item: "Red Wine"})
	if res2.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny, got %s", res2.Effect)
	}

	// Case-insensitive matching is part of the contract.
	res3 := engine.Evaluate(Request{Item: "WINE cooler"})
	if res3.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny for uppercase match, got %s", res3.Effect)
	}
}

func TestDenyItemRejectsBadPattern(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	if err := engine.DenyItem(`([`); err == nil {
		t.Error("Expected error for invalid pattern")
	}
}

package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cartpilot/cartpilot/internal/browser"
	"github.com/cartpilot/cartpilot/internal/llm"
)

type fakeCompleter struct {
	planText string
	listText string
	subs     map[string]string
	err      error
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	switch {
	case strings.Contains(system, "nutritionist"):
		return f.planText, nil
	case strings.Contains(system, "comma-separated"):
		return f.listText, nil
	default:
		for item, sub := range f.subs {
			if strings.Contains(user, item) {
				return sub, nil
			}
		}
		return "generic item", nil
	}
}

type fakeCart struct {
	outcomes      map[string]browser.AddOutcome
	addCalls      []string
	checkoutCalls int
	checkoutErr   error
}

func (f *fakeCart) AddItem(ctx context.Context, name string) browser.AddOutcome {
	f.addCalls = append(f.addCalls, name)
	if o, ok := f.outcomes[name]; ok {
		return o
	}
	return browser.AddOutcome{Status: browser.AddNotFound, Reason: "no results"}
}

func (f *fakeCart) Checkout(ctx context.Context) error {
	f.checkoutCalls++
	return f.checkoutErr
}

type memStore struct {
	states map[string]State
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]State)}
}

func (m *memStore) Get(ctx context.Context, runID string) (State, bool, error) {
	st, ok := m.states[runID]
	return st, ok, nil
}

func (m *memStore) Put(ctx context.Context, st State) error {
	m.states[st.RunID] = st
	return nil
}

func newTestOrchestrator(t *testing.T, completer llm.Completer, cart Cart, cps CheckpointStore) *Orchestrator {
	t.Helper()
	return &Orchestrator{
		LLM:         completer,
		Prompts:     llm.NewPromptManager(t.TempDir()),
		Cart:        cart,
		Checkpoints: cps,
	}
}

func TestRunSuspendsAtApprovalGate(t *testing.T) {
	completer := &fakeCompleter{
		planText: "Day 1: milk and widgets",
		listText: "milk, bespoke-unobtainium-widget",
		subs:     map[string]string{"bespoke-unobtainium-widget": "generic widget"},
	}
	cart := &fakeCart{
		outcomes: map[string]browser.AddOutcome{
			"milk": {Status: browser.AddAdded, Price: 3.49},
		},
	}
	cps := newMemStore()
	orch := newTestOrchestrator(t, completer, cart, cps)

	st, err := orch.Run(context.Background(), "run-1", "buy milk")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if st.Stage != StageAwaitingApproval {
		t.Fatalf("Expected stage %s, got %s", StageAwaitingApproval, st.Stage)
	}

	res := st.CartResult()
	if len(res.Added) != 1 || res.Added[0].ResolvedName != "milk" {
		t.Errorf("Expected added=[milk], got %+v", res.Added)
	}
	if len(res.Missing) != 1 || res.Missing[0].RequestedName != "bespoke-unobtainium-widget" {
		t.Errorf("Expected missing=[bespoke-unobtainium-widget], got %+v", res.Missing)
	}

	// The missing item got exactly one substitute round: original
	// attempt plus one retry, nothing more.
	want := []string{"milk", "bespoke-unobtainium-widget", "generic widget"}
	if len(cart.addCalls) != len(want) {
		t.Fatalf("Expected %d AddItem calls, got %v", len(want), cart.addCalls)
	}
	for i, name := range want {
		if cart.addCalls[i] != name {
			t.Errorf("AddItem call %d: expected %s, got %s", i, name, cart.addCalls[i])
		}
	}

	// Suspended state must be durable.
	saved, ok, _ := cps.Get(context.Background(), "run-1")
	if !ok || saved.Stage != StageAwaitingApproval {
		t.Errorf("Expected persisted checkpoint at approval gate, got %+v", saved)
	}
}

func TestSubstitutedItemCarriesOrigin(t *testing.T) {
	completer := &fakeCompleter{
		planText: "Day 1: oat milk",
		listText: "oat milk",
		subs:     map[string]string{"oat milk": "soy milk"},
	}
	cart := &fakeCart{
		outcomes: map[string]browser.AddOutcome{
			"soy milk": {Status: browser.AddAdded, Price: 2.99},
		},
	}
	orch := newTestOrchestrator(t, completer, cart, newMemStore())

	st, err := orch.Run(context.Background(), "run-sub", "milk please")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	it := st.ShoppingList[0]
	if it.Status != ItemSubstituted {
		t.Fatalf("Expected status %s, got %s", ItemSubstituted, it.Status)
	}
	if it.ResolvedName != "soy milk" || it.SubstituteOf != "oat milk" {
		t.Errorf("Unexpected substitution record: %+v", it)
	}
	if it.Price != 2.99 {
		t.Errorf("Expected substitute price 2.99, got %v", it.Price)
	}
}

func TestShoppingReplayAddsNothing(t *testing.T) {
	cps := newMemStore()
	cps.Put(context.Background(), State{
		RunID: "run-replay",
		Stage: StageShopping,
		ShoppingList: []ShoppingItem{
			{RequestedName: "milk", ResolvedName: "milk", Status: ItemAdded},
			{RequestedName: "eggs", ResolvedName: "eggs", Status: ItemAdded},
		},
	})

	cart := &fakeCart{}
	orch := newTestOrchestrator(t, &fakeCompleter{}, cart, cps)

	st, err := orch.Run(context.Background(), "run-replay", "")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(cart.addCalls) != 0 {
		t.Errorf("Replay performed %d AddItem calls, expected 0: %v", len(cart.addCalls), cart.addCalls)
	}
	if st.Stage != StageAwaitingApproval {
		t.Errorf("Expected stage %s, got %s", StageAwaitingApproval, st.Stage)
	}
}

func TestResumeApproved(t *testing.T) {
	cps := newMemStore()
	cps.Put(context.Background(), State{
		RunID: "run-ok",
		Stage: StageAwaitingApproval,
		ShoppingList: []ShoppingItem{
			{RequestedName: "milk", ResolvedName: "milk", Status: ItemAdded},
		},
	})

	cart := &fakeCart{}
	orch := newTestOrchestrator(t, &fakeCompleter{}, cart, cps)

	st, err := orch.Resume(context.Background(), "run-ok", true, "5-7pm")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if st.Stage != StageDone {
		t.Fatalf("Expected stage %s, got %s", StageDone, st.Stage)
	}
	if !strings.Contains(st.Message, "5-7pm") {
		t.Errorf("Expected message to mention the delivery window, got %q", st.Message)
	}
	if cart.checkoutCalls != 1 {
		t.Errorf("Expected 1 checkout call, got %d", cart.checkoutCalls)
	}
}

func TestResumeRejected(t *testing.T) {
	cps := newMemStore()
	cps.Put(context.Background(), State{
		RunID: "run-no",
		Stage: StageAwaitingApproval,
	})

	cart := &fakeCart{}
	orch := newTestOrchestrator(t, &fakeCompleter{}, cart, cps)

	st, err := orch.Resume(context.Background(), "run-no", false, "")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if st.Stage != StageAborted {
		t.Fatalf("Expected stage %s, got %s", StageAborted, st.Stage)
	}
	if cart.checkoutCalls != 0 {
		t.Errorf("Rejection must not trigger checkout, got %d calls", cart.checkoutCalls)
	}
	if st.Message == "" {
		t.Error("Expected a recorded cancellation message")
	}
}

func TestResumeUnknownRun(t *testing.T) {
	orch := newTestOrchestrator(t, &fakeCompleter{}, &fakeCart{}, newMemStore())
	if _, err := orch.Resume(context.Background(), "missing", true, ""); err == nil {
		t.Error("Expected error for unknown run id")
	}
}

func TestRunRejectsUnknownRunWithoutRequest(t *testing.T) {
	// A mistyped resume id must fail loudly instead of silently
	// starting a fresh run at Planning with an empty request.
	cps := newMemStore()
	orch := newTestOrchestrator(t, &fakeCompleter{}, &fakeCart{}, cps)

	if _, err := orch.Run(context.Background(), "no-such-run", ""); err == nil {
		t.Fatal("Expected error for unknown run id with no request")
	}
	if _, ok, _ := cps.Get(context.Background(), "no-such-run"); ok {
		t.Error("Rejected run must not leave a checkpoint behind")
	}
}

func TestPlannerFailureLeavesCheckpointIntact(t *testing.T) {
	cps := newMemStore()
	orch := newTestOrchestrator(t, &fakeCompleter{err: errors.New("model down")}, &fakeCart{}, cps)

	if _, err := orch.Run(context.Background(), "run-fail", "anything"); err == nil {
		t.Fatal("Expected planning failure to surface")
	}

	st, ok, _ := cps.Get(context.Background(), "run-fail")
	if !ok {
		t.Fatal("Expected initial checkpoint to exist")
	}
	if st.Stage != StagePlanning {
		t.Errorf("Expected checkpoint frozen at %s, got %s", StagePlanning, st.Stage)
	}
}

func TestEmptyExtractionIsFatal(t *testing.T) {
	completer := &fakeCompleter{planText: "plan", listText: " , ,"}
	orch := newTestOrchestrator(t, completer, &fakeCart{}, newMemStore())

	if _, err := orch.Run(context.Background(), "run-empty", "anything"); err == nil {
		t.Error("Expected error when extraction produces no items")
	}
}

func TestCartResultPartition(t *testing.T) {
	st := State{ShoppingList: []ShoppingItem{
		{RequestedName: "a", ResolvedName: "a", Status: ItemAdded},
		{RequestedName: "b", ResolvedName: "b2", Status: ItemSubstituted},
		{RequestedName: "c", Status: ItemMissing},
		{RequestedName: "d", Status: ItemError},
		{RequestedName: "e", Status: ItemPending},
	}}

	res := st.CartResult()
	if len(res.Added) != 2 {
		t.Errorf("Expected 2 added, got %d", len(res.Added))
	}
	if len(res.Missing) != 2 {
		t.Errorf("Expected 2 missing, got %d", len(res.Missing))
	}
	for _, it := range res.Added {
		if it.ResolvedName == "" {
			t.Errorf("Added item %s has empty resolved name", it.RequestedName)
		}
	}
}

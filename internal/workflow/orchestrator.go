package workflow

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cartpilot/cartpilot/internal/browser"
	"github.com/cartpilot/cartpilot/internal/governance"
	"github.com/cartpilot/cartpilot/internal/llm"
	"github.com/cartpilot/cartpilot/internal/observability"
)

// Cart is the slice of the browser session controller the workflow
// needs: item-level adds during Shopping, the checkout trigger after
// approval.
type Cart interface {
	AddItem(ctx context.Context, name string) browser.AddOutcome
	Checkout(ctx context.Context) error
}

// RecipeFetcher enriches extraction with the text of recipe links the
// planner put in the plan. Optional.
type RecipeFetcher interface {
	FetchAll(ctx context.Context, planText string) string
}

// Notifier pushes the cart summary to a human channel when the run
// suspends at the approval gate. Optional.
type Notifier interface {
	Notify(text string) error
}

// History records finished plans and feeds previously bought items back
// into planning. Optional.
type History interface {
	SavePlan(prompt, planText string, items []string) error
	PastItems() (string, error)
}

// Orchestrator sequences planning, extraction, shopping, the approval
// gate and checkout, checkpointing state between stages so a run can be
// resumed after the process exits.
type Orchestrator struct {
	LLM         llm.Completer
	Prompts     *llm.PromptManager
	Cart        Cart
	Checkpoints CheckpointStore

	Recipes RecipeFetcher
	Gateway Notifier
	Plans   History
	Policy  governance.PolicyEngine
	Events  *observability.Logger
}

// Run advances a run from its checkpointed stage until it either
// completes or suspends at the approval gate. A fresh run id starts at
// Planning with the given request text; an empty request with no
// checkpoint is rejected so a mistyped resume id cannot silently start
// a new run.
func (o *Orchestrator) Run(ctx context.Context, runID, request string) (State, error) {
	st, ok, err := o.Checkpoints.Get(ctx, runID)
	if err != nil {
		return State{}, fmt.Errorf("failed to load checkpoint: %v", err)
	}
	if !ok {
		if request == "" {
			return State{}, fmt.Errorf("no checkpoint found for run %s", runID)
		}
		st = State{RunID: runID, RawRequest: request, Stage: StagePlanning}
		if err := o.Checkpoints.Put(ctx, st); err != nil {
			return st, fmt.Errorf("failed to persist initial state: %v", err)
		}
	}

	for {
		o.logStage(st)

		switch st.Stage {
		case StagePlanning:
			st, err = o.runPlanning(ctx, st)
		case StageExtracting:
			st, err = o.runExtracting(ctx, st)
		case StageShopping:
			st, err = o.runShopping(ctx, st)
		case StageAwaitingApproval:
			// The designed suspension point. State is already
			// persisted; the caller resumes with the decision.
			return st, nil
		case StageCheckout:
			st, err = o.runCheckout(ctx, st)
		case StageDone, StageAborted:
			return st, nil
		default:
			return st, fmt.Errorf("unknown stage %q", st.Stage)
		}

		if err != nil {
			// Stage faults halt the run; the last persisted
			// checkpoint stays intact for diagnosis or resume.
			return st, err
		}
		if perr := o.Checkpoints.Put(ctx, st); perr != nil {
			return st, fmt.Errorf("failed to checkpoint stage %s: %v", st.Stage, perr)
		}
	}
}

// Resume applies the human decision to a run suspended at the approval
// gate. Rejection transitions straight to Aborted with no checkout side
// effects.
func (o *Orchestrator) Resume(ctx context.Context, runID string, approved bool, deliveryWindow string) (State, error) {
	st, ok, err := o.Checkpoints.Get(ctx, runID)
	if err != nil {
		return State{}, fmt.Errorf("failed to load checkpoint: %v", err)
	}
	if !ok {
		return State{}, fmt.Errorf("unknown run %q", runID)
	}
	if st.Stage != StageAwaitingApproval {
		return st, fmt.Errorf("run %s is in stage %s, not awaiting approval", runID, st.Stage)
	}

	st.Approved = approved
	st.DeliveryWindow = deliveryWindow

	if !approved {
		st.Stage = StageAborted
		st.Message = "Checkout cancelled by user."
		if err := o.Checkpoints.Put(ctx, st); err != nil {
			return st, err
		}
		return st, nil
	}

	st.Stage = StageCheckout
	if err := o.Checkpoints.Put(ctx, st); err != nil {
		return st, err
	}
	return o.Run(ctx, runID, st.RawRequest)
}

func (o *Orchestrator) runPlanning(ctx context.Context, st State) (State, error) {
	userText := st.RawRequest
	if o.Plans != nil {
		if past, err := o.Plans.PastItems(); err == nil && past != "" {
			userText += "\n\nItems I have bought before (prefer these when they fit): " + past
		}
	}

	plan, err := o.LLM.Complete(ctx, o.Prompts.PlannerPrompt(), userText)
	if err != nil {
		return st, fmt.Errorf("planning failed: %v", err)
	}
	o.logLLM(st.RunID, "planner", plan)

	st.PlanText = plan
	st.Stage = StageExtracting
	return st, nil
}

func (o *Orchestrator) runExtracting(ctx context.Context, st State) (State, error) {
	input := st.PlanText
	if o.Recipes != nil {
		if extra := o.Recipes.FetchAll(ctx, st.PlanText); extra != "" {
			input += "\n\n-- LINKED RECIPES --\n" + extra
		}
	}

	raw, err := o.LLM.Complete(ctx, o.Prompts.ExtractorPrompt(), input)
	if err != nil {
		return st, fmt.Errorf("extraction failed: %v", err)
	}
	o.logLLM(st.RunID, "extractor", raw)

	names := llm.ParseItemList(raw)
	if len(names) == 0 {
		return st, fmt.Errorf("extraction produced no items")
	}

	items := make([]ShoppingItem, 0, len(names))
	for _, n := range names {
		if o.Policy != nil {
			if res := o.Policy.Evaluate(governance.Request{Item: n}); res.Effect == governance.EffectDeny {
				log.Printf("Skipping %s: %s", n, res.Reason)
				continue
			}
		}
		items = append(items, ShoppingItem{RequestedName: n, Status: ItemPending})
	}
	if len(items) == 0 {
		return st, fmt.Errorf("extraction produced no shoppable items")
	}
	log.Printf("Extracted %d items to buy", len(items))

	if o.Plans != nil {
		if err := o.Plans.SavePlan(st.RawRequest, st.PlanText, names); err != nil {
			log.Printf("Warning: failed to record plan: %v", err)
		}
	}

	st.ShoppingList = items
	st.Stage = StageShopping
	return st, nil
}

// runShopping adds every still-pending item, asking the model for
// exactly one substitute when an item cannot be located. Re-running the
// stage after a crash touches only Pending items, so already-added
// items are never added twice.
func (o *Orchestrator) runShopping(ctx context.Context, st State) (State, error) {
	for i := range st.ShoppingList {
		item := &st.ShoppingList[i]
		if item.Status != ItemPending {
			continue
		}
		observability.SetStatus(observability.PhaseShopping, item.RequestedName)

		outcome := o.Cart.AddItem(ctx, item.RequestedName)
		if outcome.Status == browser.AddAdded {
			item.Status = ItemAdded
			item.ResolvedName = item.RequestedName
			item.Price = outcome.Price
			o.logItem(st.RunID, *item)
			continue
		}

		log.Printf("%s unavailable (%s), asking for a substitute", item.RequestedName, outcome.Reason)
		sub, err := o.suggestSubstitute(ctx, item.RequestedName)
		if err != nil {
			return st, fmt.Errorf("substitute suggestion failed: %v", err)
		}

		log.Printf("Trying substitute: %s", sub)
		retry := o.Cart.AddItem(ctx, sub)
		switch retry.Status {
		case browser.AddAdded:
			item.Status = ItemSubstituted
			item.ResolvedName = sub
			item.SubstituteOf = item.RequestedName
			item.Price = retry.Price
		case browser.AddTransientError:
			item.Status = ItemError
		default:
			item.Status = ItemMissing
		}
		o.logItem(st.RunID, *item)
	}

	st.Stage = StageAwaitingApproval
	o.notifyApprovalGate(st)
	return st, nil
}

func (o *Orchestrator) runCheckout(ctx context.Context, st State) (State, error) {
	if err := o.Cart.Checkout(ctx); err != nil {
		return st, fmt.Errorf("checkout failed: %v", err)
	}
	st.Stage = StageDone
	st.Message = fmt.Sprintf("Process complete. Delivery window: %s", st.DeliveryWindow)
	return st, nil
}

func (o *Orchestrator) suggestSubstitute(ctx context.Context, name string) (string, error) {
	resp, err := o.LLM.Complete(ctx, o.Prompts.SubstitutePrompt(),
		fmt.Sprintf("Item '%s' unavailable. Name ONE generic substitute.", name))
	if err != nil {
		return "", err
	}
	line := strings.SplitN(resp, "\n", 2)[0]
	sub := strings.Trim(strings.TrimSpace(line), `"'.`)
	if sub == "" {
		return "", fmt.Errorf("model returned no substitute name")
	}
	return sub, nil
}

func (o *Orchestrator) notifyApprovalGate(st State) {
	if o.Gateway == nil {
		return
	}
	res := st.CartResult()
	var b strings.Builder
	fmt.Fprintf(&b, "Cart ready for run %s\n", st.RunID)
	fmt.Fprintf(&b, "In cart (%d):\n", len(res.Added))
	for _, it := range res.Added {
		fmt.Fprintf(&b, "  - %s\n", it.ResolvedName)
	}
	if len(res.Missing) > 0 {
		fmt.Fprintf(&b, "Missing (%d):\n", len(res.Missing))
		for _, it := range res.Missing {
			fmt.Fprintf(&b, "  - %s\n", it.RequestedName)
		}
	}
	b.WriteString("Reply in the CLI to approve checkout.")
	if err := o.Gateway.Notify(b.String()); err != nil {
		log.Printf("Warning: approval notification failed: %v", err)
	}
}

func (o *Orchestrator) logStage(st State) {
	if o.Events != nil {
		o.Events.LogStage(st.RunID, string(st.Stage))
	}
	observability.SetStatus(observability.Phase(st.Stage), "")
}

func (o *Orchestrator) logItem(runID string, it ShoppingItem) {
	if o.Events != nil {
		o.Events.LogItem(runID, it.RequestedName, string(it.Status), it.Price)
	}
}

func (o *Orchestrator) logLLM(runID, role, response string) {
	if o.Events != nil {
		o.Events.LogLLM(runID, role, response)
	}
}

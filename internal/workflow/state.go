package workflow

import "context"

// ItemStatus is the lifecycle of one requested grocery item. Items are
// created Pending by the extractor, mutated only by the shopping stage
// and immutable once the run reaches human review.
type ItemStatus string

const (
	ItemPending     ItemStatus = "pending"
	ItemAdded       ItemStatus = "added"
	ItemSubstituted ItemStatus = "substituted"
	ItemMissing     ItemStatus = "missing"
	ItemError       ItemStatus = "error"
)

type ShoppingItem struct {
	RequestedName string     `json:"requested_name"`
	ResolvedName  string     `json:"resolved_name,omitempty"`
	Status        ItemStatus `json:"status"`
	Price         float64    `json:"price,omitempty"`
	SubstituteOf  string     `json:"substitute_of,omitempty"`
}

// Stage names the workflow's strictly linear state machine. The one
// designed interrupt is AwaitingApproval: the run suspends durably
// before Checkout so a later process can inspect the cart and supply
// the approval decision.
type Stage string

const (
	StagePlanning         Stage = "planning"
	StageExtracting       Stage = "extracting"
	StageShopping         Stage = "shopping"
	StageAwaitingApproval Stage = "awaiting_approval"
	StageCheckout         Stage = "checkout"
	StageDone             Stage = "done"
	StageAborted          Stage = "aborted"
)

// State is the single per-run workflow record, incrementally filled by
// each stage and checkpointed between them.
type State struct {
	RunID          string         `json:"run_id"`
	RawRequest     string         `json:"raw_request"`
	PlanText       string         `json:"plan_text,omitempty"`
	ShoppingList   []ShoppingItem `json:"shopping_list,omitempty"`
	Approved       bool           `json:"approved"`
	DeliveryWindow string         `json:"delivery_window,omitempty"`
	Stage          Stage          `json:"stage"`
	Message        string         `json:"message,omitempty"`
}

// CartResult partitions the shopping list into items that made it into
// the cart (including substitutions) and items that did not.
type CartResult struct {
	Added   []ShoppingItem
	Missing []ShoppingItem
}

func (s *State) CartResult() CartResult {
	var res CartResult
	for _, it := range s.ShoppingList {
		switch it.Status {
		case ItemAdded, ItemSubstituted:
			res.Added = append(res.Added, it)
		case ItemMissing, ItemError:
			res.Missing = append(res.Missing, it)
		}
	}
	return res
}

// CheckpointStore persists workflow state keyed by run id, durable
// enough to survive the process exiting between suspend and resume.
type CheckpointStore interface {
	Get(ctx context.Context, runID string) (State, bool, error)
	Put(ctx context.Context, state State) error
}

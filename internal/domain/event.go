package domain

// EventKind names an applied instruction in the journal.
type EventKind string

const (
	EventInitialized       EventKind = "initialized"
	EventPriceUpdated      EventKind = "price_updated"
	EventActivated         EventKind = "activated"
	EventDeactivated       EventKind = "deactivated"
	EventSwapped           EventKind = "swapped"
	EventProceedsWithdrawn EventKind = "proceeds_withdrawn"
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a known value.
func (k EventKind) IsValid() bool {
	switch k {
	case EventInitialized, EventPriceUpdated, EventActivated,
		EventDeactivated, EventSwapped, EventProceedsWithdrawn:
		return true
	}
	return false
}

// Event is one journal entry describing an instruction that was applied.
// Corresponds to swap_events table in ClickHouse.
type Event struct {
	EventID     string    // uuid
	StateKey    PublicKey // configuration the instruction targeted
	Kind        EventKind
	Actor       PublicKey // signer
	Asset       string    // asset name, swaps only
	Amount      uint64    // settlement units moved (swap paid, proceeds withdrawn)
	Price       uint64    // price in force after the instruction
	TimestampMs int64
}

// Receipt summarizes the balances touched by a money-moving instruction.
type Receipt struct {
	StateKey      PublicKey
	Asset         Asset
	Paid          uint64 // settlement units moved
	Received      uint64 // tradable units moved
	SourceBalance uint64 // payer balance after the instruction
	VaultBalance  uint64 // selected vault (swap) or proceeds vault (withdraw) after
	ProceedsTotal uint64 // proceeds vault balance after
	DestBalance   uint64 // receiving account balance after
}

package domain

// ErrorKind is the closed set of failure classes the engine reports.
type ErrorKind string

const (
	KindNotFound     ErrorKind = "not_found"
	KindBusinessRule ErrorKind = "business_rule_violation"
	KindDuplicateKey ErrorKind = "duplicate_key"
	KindConflict     ErrorKind = "transient_conflict"
)

// Error tags a failure with its kind and a short machine-readable detail
// (the missing resource, the violated rule, or the duplicated field).
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Detail
}

// Is matches another *Error by kind and detail. A target with an empty
// detail matches any error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Detail == "" || t.Detail == e.Detail)
}

// NotFound reports that a referenced entity is absent.
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Detail: resource}
}

// RuleViolation reports a well-formed operation that breaks a domain rule.
func RuleViolation(reason string) *Error {
	return &Error{Kind: KindBusinessRule, Detail: reason}
}

// DuplicateKey reports a uniqueness violation surfaced by the store.
func DuplicateKey(field string) *Error {
	return &Error{Kind: KindDuplicateKey, Detail: field}
}

var (
	ErrLotNotFound        = NotFound("lot")
	ErrEntryPointNotFound = NotFound("entry_point")
	ErrSlotNotFound       = NotFound("slot")
	ErrInvoiceNotFound    = NotFound("invoice")
	ErrVehicleNotFound    = NotFound("vehicle")

	ErrNoSlotsAvailable = RuleViolation("no_slots_available")
	ErrAlreadySettled   = RuleViolation("already_settled")
	ErrInvalidEndDate   = RuleViolation("invalid_end_date")

	// ErrSlotTaken means a reserve lost the race for a selected slot; the
	// whole select+reserve sequence is safe to retry, the write alone is not.
	ErrSlotTaken = &Error{Kind: KindConflict, Detail: "slot_taken"}
	// ErrTxConflict means the store aborted a transaction on a detected
	// write conflict; the operation may be retried from the top.
	ErrTxConflict = &Error{Kind: KindConflict, Detail: "transaction_conflict"}
)

package core

import (
	"errors"
	"strings"
	"time"
)

// Well-known field keys. Source adapters map their native columns onto these
// before records enter the pipeline.
const (
	FieldTransactionID = "transaction_id"
	FieldDate          = "date"
	FieldAmount        = "amount"
	FieldCurrency      = "currency"
	FieldCategory      = "category"
	FieldVendor        = "vendor"
	FieldDescription   = "description"
)

// Rule identifies the validation rule a diagnostic refers to.
type Rule string

const (
	RuleStructural  Rule = "structural"
	RuleReferential Rule = "referential"
	RuleRange       Rule = "range"
	RuleDuplicate   Rule = "duplicate"
	RuleMissingRate Rule = "missing_rate"
)

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

var (
	ErrStructural      = errors.New("unparseable field")
	ErrReferential     = errors.New("unmapped alias")
	ErrOutOfRange      = errors.New("value out of range")
	ErrDuplicate       = errors.New("entry already ledgered")
	ErrRateUnavailable = errors.New("exchange rate unavailable")

	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
)

// RawRecord is an unvalidated record as emitted by a source adapter. It is
// ephemeral: after screening it either becomes a LedgerEntry or is quarantined.
type RawRecord struct {
	Source     string
	Fields     map[string]string
	IngestedAt time.Time
}

// Field returns the trimmed value for a well-known field key.
func (r RawRecord) Field(key string) string {
	return strings.TrimSpace(r.Fields[key])
}

// NativeID returns the source-native transaction identifier.
func (r RawRecord) NativeID() string {
	return r.Field(FieldTransactionID)
}

// Diagnostic explains why a record was quarantined.
type Diagnostic struct {
	Rule     Rule     `json:"rule"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail"`
}

// QuarantineRecord is a RawRecord held back by validation, pending remediation.
// It is never promoted to a LedgerEntry without manual override.
type QuarantineRecord struct {
	AttemptID     string       `json:"attempt_id"`
	Record        RawRecord    `json:"record"`
	Diagnostics   []Diagnostic `json:"diagnostics"`
	QuarantinedAt time.Time    `json:"quarantined_at"`
}

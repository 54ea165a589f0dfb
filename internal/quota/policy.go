// Package quota decides whether a tenant with a given usage count may be
// admitted and how its usage should be classified on the dashboard.
package quota

type Decision int

const (
	Allow Decision = iota
	Deny
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

type Status int

const (
	Normal Status = iota
	Warning
	Blocked
)

func (s Status) String() string {
	switch s {
	case Warning:
		return "Warning"
	case Blocked:
		return "BLOCKED"
	default:
		return "Normal"
	}
}

// Class is the CSS hint the dashboard uses to color a status badge.
func (s Status) Class() string {
	switch s {
	case Warning:
		return "bg-yellow-200 text-yellow-800"
	case Blocked:
		return "bg-red-600 text-white font-bold"
	default:
		return "bg-green-200 text-green-800"
	}
}

// Decide denies once count reaches limit. A negative count is never
// produced by the ledger and is denied.
func Decide(count, limit int64) Decision {
	if count < 0 || count >= limit {
		return Deny
	}
	return Allow
}

// Classify reports Warning when count is strictly above 80% of limit but
// still below it. The comparison 5*count > 4*limit is the exact integer
// form of count > limit*0.8.
func Classify(count, limit int64) Status {
	if Decide(count, limit) == Deny {
		return Blocked
	}
	if 5*count > 4*limit {
		return Warning
	}
	return Normal
}

// Policy binds the configured limit.
type Policy struct {
	Limit int64
}

func NewPolicy(limit int64) Policy {
	return Policy{Limit: limit}
}

func (p Policy) Decide(count int64) Decision {
	return Decide(count, p.Limit)
}

func (p Policy) Classify(count int64) Status {
	return Classify(count, p.Limit)
}

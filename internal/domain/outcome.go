package domain

// OutcomeKind discriminates the result of one validate-return call. The core
// API reports valid/isLate/refreshed as independent booleans; the client maps
// them into this single tag at the boundary so nothing downstream ever
// inspects raw boolean combinations.
type OutcomeKind string

const (
	OutcomeInvalid OutcomeKind = "INVALID"
	OutcomeRotated OutcomeKind = "ROTATED"
	OutcomeOnTime  OutcomeKind = "ON_TIME"
	OutcomeLate    OutcomeKind = "LATE"
)

// ValidationOutcome is the tagged result of resolving a return token.
// Only the fields belonging to Kind are populated:
//   - INVALID: Reason
//   - ROTATED: NewToken
//   - ON_TIME: Transaction
//   - LATE:    Transaction, PenaltyAmount, SnapToken
type ValidationOutcome struct {
	Kind          OutcomeKind
	Reason        string
	NewToken      string
	Transaction   *TransactionSnapshot
	PenaltyAmount int64
	SnapToken     string
}

func InvalidOutcome(reason string) ValidationOutcome {
	return ValidationOutcome{Kind: OutcomeInvalid, Reason: reason}
}

func RotatedOutcome(newToken string) ValidationOutcome {
	return ValidationOutcome{Kind: OutcomeRotated, NewToken: newToken}
}

func OnTimeOutcome(tx *TransactionSnapshot) ValidationOutcome {
	return ValidationOutcome{Kind: OutcomeOnTime, Transaction: tx}
}

func LateOutcome(tx *TransactionSnapshot, penalty int64, snapToken string) ValidationOutcome {
	return ValidationOutcome{Kind: OutcomeLate, Transaction: tx, PenaltyAmount: penalty, SnapToken: snapToken}
}

package domain

import "time"

type SessionState string

const (
	StateLoading   SessionState = "LOADING"
	StateValidated SessionState = "VALIDATED"
	StateSuccess   SessionState = "SUCCESS"
	StateLate      SessionState = "LATE"
	StateTimeout   SessionState = "TIMEOUT"
	StateError     SessionState = "ERROR"
)

// Terminal reports whether the state only changes via an explicit user retry.
func (s SessionState) Terminal() bool {
	return s == StateSuccess || s == StateTimeout || s == StateError
}

// TransactionSnapshot is a read-only projection of the rental transaction,
// captured once per successful validation call and never mutated afterwards.
type TransactionSnapshot struct {
	RentCode       string `json:"rent_code"`
	UserName       string `json:"user_name"`
	BorrowLocation string `json:"borrow_location"`
	ReturnLocation string `json:"return_location"`
	CreatedOn      string `json:"created_on"`
	Duration       string `json:"duration"`
}

// SessionView is the JSON projection of one return-validation session.
// Fields belonging to other states are omitted: penalty and the payment
// handle only appear in LATE, the locker code only in SUCCESS, and the
// error message only in ERROR.
type SessionView struct {
	ID               string               `json:"id"`
	State            SessionState         `json:"state"`
	Transaction      *TransactionSnapshot `json:"transaction,omitempty"`
	PenaltyAmount    int64                `json:"penalty_amount,omitempty"`
	SnapToken        string               `json:"snap_token,omitempty"`
	RemainingSeconds int                  `json:"remaining_seconds,omitempty"`
	LockerCode       string               `json:"locker_code,omitempty"`
	RentDuration     string               `json:"rent_duration,omitempty"`
	ErrorMessage     string               `json:"error_message,omitempty"`
	Notice           string               `json:"notice,omitempty"`
}

// ResumeState is the convenience cache persisted between page loads so the
// return flow can resume after a reload. It is not a source of truth; the
// core rental API remains the authority on the rental itself.
type ResumeState struct {
	DeviceID         string    `json:"device_id"`
	ReturnLocationID string    `json:"return_location_id"`
	RentToken        string    `json:"rent_token"`
	UpdatedOn        time.Time `json:"updated_on"`
}

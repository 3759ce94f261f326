package entities

import "time"

type Outcome string

const (
	// OutcomeRejected means the text did not contain a supported link
	OutcomeRejected Outcome = "rejected"

	// OutcomeUnresolved means the resolver could not produce a direct link
	OutcomeUnresolved Outcome = "unresolved"

	// OutcomeUploaded means the file was delivered to the target channel
	OutcomeUploaded Outcome = "uploaded"

	// OutcomeFailed means the link was resolved but download or upload failed
	OutcomeFailed Outcome = "failed"
)

// TransferRecord is a history entry written once per handled text message.
type TransferRecord struct {
	ID         string
	ChatID     int64
	UserID     int64
	Link       string
	Title      string
	Size       string
	DirectLink string
	Outcome    Outcome
	Reason     string
	CreatedAt  time.Time
	FinishedAt time.Time
}

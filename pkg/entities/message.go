package entities

type User struct {
	ID     int64
	Name   string
	ChatID int64
}

// Message is an inbound text message, alive only while it is being handled.
type Message struct {
	Sender User
	ID     int
	Text   string
}

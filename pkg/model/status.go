package model

// Status is the delivery state of a self-authored message.
type Status string

const (
	StatusNone      Status = ""
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// transitions lists, for every state, the states it may move to. Anything not
// listed would be a regression or a skipped acknowledgement and is rejected.
var transitions = map[Status][]Status{
	StatusNone:      {StatusSending, StatusSent},
	StatusSending:   {StatusSent},
	StatusSent:      {StatusDelivered, StatusRead},
	StatusDelivered: {StatusRead},
}

// CanAdvance reports whether s may move to next.
func (s Status) CanAdvance(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Advance returns next if the transition is allowed and s otherwise.
// The boolean is true only when the state actually changed.
func (s Status) Advance(next Status) (Status, bool) {
	if s.CanAdvance(next) {
		return next, true
	}
	return s, false
}

func (s Status) Valid() bool {
	switch s {
	case StatusNone, StatusSending, StatusSent, StatusDelivered, StatusRead:
		return true
	}
	return false
}

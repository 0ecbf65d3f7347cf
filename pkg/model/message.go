package model

// Message is one entry of a direct-message thread.
//
// ID holds the server-assigned identifier once the backend confirmed the
// message, or the locally generated temporary identifier before that.
type Message struct {
	ID     string `json:"id"`
	TempID string `json:"tempId,omitempty"`
	From   string `json:"from"`
	To     string `json:"to"`
	Text   string `json:"text"`
	TS     int64  `json:"ts"`
	Status Status `json:"status,omitempty"`
}

// Between reports whether the message belongs to the thread of a and b, in
// either direction.
func (m Message) Between(a, b string) bool {
	return (m.From == a && m.To == b) || (m.From == b && m.To == a)
}

// ThreadSummary is one row of the recent conversations sidebar.
type ThreadSummary struct {
	OtherID   string `json:"otherId"`
	OtherName string `json:"otherName"`
	LastText  string `json:"lastText"`
	LastTS    int64  `json:"lastTs"`
	Unread    int    `json:"unread"`
}

type Contact struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

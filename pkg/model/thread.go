package model

// ThreadID derives the room key shared by both participants of a direct
// thread. Ids are sorted so both sides compute the same key.
func ThreadID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

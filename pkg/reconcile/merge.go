package reconcile

import (
	"sort"

	"github.com/mahaj/chat-client/pkg/model"
)

// thread is the ordered, identity-keyed message list of one conversation.
// Entries are unique by ID and sorted by TS; equal timestamps keep arrival
// order.
type thread struct {
	msgs  []model.Message
	index map[string]int
}

func newThread() *thread {
	return &thread{index: make(map[string]int)}
}

func (t *thread) reset() {
	t.msgs = nil
	t.index = make(map[string]int)
}

func (t *thread) get(id string) (model.Message, bool) {
	i, ok := t.index[id]
	if !ok {
		return model.Message{}, false
	}
	return t.msgs[i], true
}

func (t *thread) findTemp(tempID string) (model.Message, bool) {
	m, ok := t.get(tempID)
	if !ok || m.TempID != tempID {
		return model.Message{}, false
	}
	return m, true
}

// upsert merges in under its ID and reports whether the list changed.
func (t *thread) upsert(in model.Message) bool {
	if in.ID == "" {
		return false
	}
	i, ok := t.index[in.ID]
	if !ok {
		t.msgs = append(t.msgs, in)
		t.index[in.ID] = len(t.msgs) - 1
		t.order()
		return true
	}
	merged := mergeMessage(t.msgs[i], in)
	if merged == t.msgs[i] {
		return false
	}
	resort := merged.TS != t.msgs[i].TS
	t.msgs[i] = merged
	if resort {
		t.order()
	}
	return true
}

func (t *thread) remove(id string) (model.Message, bool) {
	i, ok := t.index[id]
	if !ok {
		return model.Message{}, false
	}
	m := t.msgs[i]
	t.msgs = append(t.msgs[:i], t.msgs[i+1:]...)
	t.reindex()
	return m, true
}

func (t *thread) snapshot() []model.Message {
	return append([]model.Message(nil), t.msgs...)
}

func (t *thread) order() {
	sort.SliceStable(t.msgs, func(a, b int) bool { return t.msgs[a].TS < t.msgs[b].TS })
	t.reindex()
}

func (t *thread) reindex() {
	clear(t.index)
	for i, m := range t.msgs {
		t.index[m.ID] = i
	}
}

// mergeMessage overlays the non-zero fields of in onto old. Status only moves
// forward through the delivery state machine.
func mergeMessage(old, in model.Message) model.Message {
	out := old
	if in.TempID != "" {
		out.TempID = in.TempID
	}
	if in.From != "" {
		out.From = in.From
	}
	if in.To != "" {
		out.To = in.To
	}
	if in.Text != "" {
		out.Text = in.Text
	}
	if in.TS != 0 {
		out.TS = in.TS
	}
	if in.Status != model.StatusNone && in.Status != old.Status {
		out.Status, _ = old.Status.Advance(in.Status)
	}
	return out
}

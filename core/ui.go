package core

// UIMode selects how a UIEvent is merged into the state's UIList.
type UIMode string

const (
	// UIModeCreate inserts (or replaces) a component instance.
	UIModeCreate UIMode = "create"
	// UIModeUpdate replaces an existing component instance in place.
	UIModeUpdate UIMode = "update"
	// UIModeDelete removes a component instance.
	UIModeDelete UIMode = "delete"
)

// UIEvent is a directive for the rendering layer to create, update or remove a
// named component instance. ToolCallID, when set, must reference a tool call of
// the most recent AI message in the same turn.
type UIEvent struct {
	ID           string         `json:"id"`
	ComponentKey string         `json:"componentKey"`
	Props        map[string]any `json:"props"`
	ToolCallID   string         `json:"toolCallId,omitempty"`
	Mode         UIMode         `json:"mode"`
}

// UIList is an ordered map of UIEvents keyed by id. Position is the order of
// first insertion; replacing an event keeps its position.
type UIList struct {
	order []string
	items map[string]UIEvent
}

// NewUIList creates a list seeded with events (merged in order).
func NewUIList(events ...UIEvent) *UIList {
	l := &UIList{items: make(map[string]UIEvent, len(events))}
	for _, ev := range events {
		l.Merge(ev)
	}
	return l
}

// Merge applies a single event according to its mode.
func (l *UIList) Merge(ev UIEvent) {
	if ev.Mode == UIModeDelete {
		l.Delete(ev.ID)
		return
	}
	l.Upsert(ev)
}

// Upsert replaces the event with the same id in place or appends it.
func (l *UIList) Upsert(ev UIEvent) {
	if l.items == nil {
		l.items = map[string]UIEvent{}
	}
	if _, ok := l.items[ev.ID]; !ok {
		l.order = append(l.order, ev.ID)
	}
	l.items[ev.ID] = ev
}

// Delete removes the event with id. Unknown ids are ignored.
func (l *UIList) Delete(id string) {
	if _, ok := l.items[id]; !ok {
		return
	}
	delete(l.items, id)
	for i, oid := range l.order {
		if oid == id {
			l.order = append(l.order[:i:i], l.order[i+1:]...)
			break
		}
	}
}

// Get returns the event with id.
func (l *UIList) Get(id string) (UIEvent, bool) {
	if l == nil {
		return UIEvent{}, false
	}
	ev, ok := l.items[id]
	return ev, ok
}

// Len returns the number of events.
func (l *UIList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.order)
}

// Events returns the events in list order. The slice is a copy.
func (l *UIList) Events() []UIEvent {
	if l == nil {
		return nil
	}
	out := make([]UIEvent, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.items[id])
	}
	return out
}

// Clone returns an independent copy of the list.
func (l *UIList) Clone() *UIList {
	if l == nil {
		return NewUIList()
	}
	return NewUIList(l.Events()...)
}

// ByComponent returns events whose ComponentKey equals key, in list order.
func (l *UIList) ByComponent(key string) []UIEvent {
	var out []UIEvent
	for _, ev := range l.Events() {
		if ev.ComponentKey == key {
			out = append(out, ev)
		}
	}
	return out
}

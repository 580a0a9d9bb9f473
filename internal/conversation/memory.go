package conversation

// Role tags a turn as coming from the caller or from the model.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Part is one piece of a turn: either inline text or a reference to a
// previously uploaded image.
type Part struct {
	Text     string
	FileURI  string
	MIMEType string
}

func TextPart(text string) Part { return Part{Text: text} }

func ImagePart(uri, mimeType string) Part { return Part{FileURI: uri, MIMEType: mimeType} }

// Turn is a single role-tagged message in the conversation.
type Turn struct {
	Role  Role
	Parts []Part
}

// Memory is a FIFO sliding window over conversation turns. The limit counts
// user/model turn pairs, so the window holds at most 2*limit turns. Eviction
// always removes the two oldest turns together, keeping user/model pairing
// intact; there is no reordering on access.
type Memory struct {
	limit int
	turns []Turn
}

// NewMemory returns a memory bounded to limit turn pairs.
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = 1
	}
	return &Memory{limit: limit}
}

// Push appends a turn, then trims whole pairs from the head while the window
// is over capacity.
func (m *Memory) Push(t Turn) {
	m.turns = append(m.turns, t)
	for len(m.turns) > 2*m.limit {
		m.turns = m.turns[2:]
	}
}

// Messages returns a snapshot of the live turn sequence, oldest first.
func (m *Memory) Messages() []Turn {
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// Len reports the number of turns currently held.
func (m *Memory) Len() int { return len(m.turns) }

// Clear empties the window.
func (m *Memory) Clear() { m.turns = nil }

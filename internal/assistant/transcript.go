package assistant

// DefaultTranscriptTurns bounds the retained conversation to the ten most
// recent exchanges.
const DefaultTranscriptTurns = 20

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a conversation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Transcript is a fixed-capacity ring of turns. Appending to a full
// transcript evicts the oldest turn, so older context is silently lost.
//
// Transcript is not safe for concurrent use; Bridge serializes access.
type Transcript struct {
	buf   []Turn
	start int
	n     int
}

func NewTranscript(capacity int) *Transcript {
	if capacity <= 0 {
		capacity = DefaultTranscriptTurns
	}
	return &Transcript{buf: make([]Turn, capacity)}
}

func (t *Transcript) Cap() int { return len(t.buf) }

func (t *Transcript) Len() int { return t.n }

func (t *Transcript) Append(turn Turn) {
	if t.n < len(t.buf) {
		t.buf[(t.start+t.n)%len(t.buf)] = turn
		t.n++
		return
	}
	t.buf[t.start] = turn
	t.start = (t.start + 1) % len(t.buf)
}

// Turns returns the retained turns oldest first.
func (t *Transcript) Turns() []Turn {
	out := make([]Turn, t.n)
	for i := 0; i < t.n; i++ {
		out[i] = t.buf[(t.start+i)%len(t.buf)]
	}
	return out
}

func (t *Transcript) Reset() {
	for i := range t.buf {
		t.buf[i] = Turn{}
	}
	t.start = 0
	t.n = 0
}

package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionNavigate Action = "navigate"
	ActionFlag     Action = "flag"
	ActionSubmit   Action = "submit"
	ActionState    Action = "state"
	ActionPing     Action = "ping"
)

// RequestPayload is the single shape of every client message. Fields not
// used by an action are ignored.
//
//	{"action":"answer","question_id":"…","answer":"B"}
//	{"action":"navigate","direction":"goto","index":4}
//	{"action":"flag","question_id":"…"}
//	{"action":"submit"}
type RequestPayload struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id,omitempty"`
	Answer     string `json:"answer,omitempty"`
	Direction  string `json:"direction,omitempty"`
	Index      int    `json:"index,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

// Event names match session.EventType for streamed events; state, pong
// and error are replies to a client message.
type Event string

const (
	EventState     Event = "state"
	EventTick      Event = "tick"
	EventAnswer    Event = "answer"
	EventNavigate  Event = "navigate"
	EventFlag      Event = "flag"
	EventCompleted Event = "completed"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// ResponsePayload wraps every server message.
type ResponsePayload struct {
	Event Event       `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

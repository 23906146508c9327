package models

// Button is one inline keyboard button. Action is what the chat transport echoes back.
type Button struct {
	Text   string `json:"text"`
	Action string `json:"callback_data"`
}

// Keyboard is a grid of buttons, row by row.
type Keyboard [][]Button

// Actions flattens the keyboard into its callback identifiers.
func (k Keyboard) Actions() []string {
	actions := make([]string, 0)
	for _, row := range k {
		for _, b := range row {
			actions = append(actions, b.Action)
		}
	}
	return actions
}

// Rendering is a message body with an optional keyboard.
type Rendering struct {
	Text     string   `json:"text"`
	Keyboard Keyboard `json:"keyboard,omitempty"`
	// Notice marks a plain informational message that replaces the roster.
	Notice bool `json:"notice,omitempty"`
	// HTML asks the transport to parse Text as HTML.
	HTML bool `json:"html,omitempty"`
}

// MessageRef points at a chat message the service may edit.
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

// IsZero reports an absent message.
func (m MessageRef) IsZero() bool {
	return m.ChatID == 0 || m.MessageID == 0
}

package models

// FormStep is the position inside the add-student form.
type FormStep string

const (
	FormStepName FormStep = "name"
	FormStepKind FormStep = "kind"
)

// FormState is the pending add-student form of one chat.
type FormState struct {
	ChatID    int64         `json:"chat_id"`
	Address   LessonAddress `json:"address"`
	Ref       AddressRef    `json:"ref"`
	Mode      Mode          `json:"mode"`
	Step      FormStep      `json:"step"`
	Name      string        `json:"name,omitempty"`
	MessageID int           `json:"message_id"`
}

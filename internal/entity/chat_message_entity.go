package entity

import "time"

// Role is a closed variant: a message is either from a human connection or from the assistant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AssistantAuthor is the author sentinel stored on every assistant message.
const AssistantAuthor = "ai"

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one turn of a session's append-only log.
// Citations are only ever populated on assistant messages; use the constructors.
type Message struct {
	Id        string
	Body      string
	Timestamp time.Time
	Author    string
	Role      Role
	Citations []Citation
}

// Citation is an advisory reference to a page, asserted by the reasoning service.
type Citation struct {
	Page int
	Text string
}

func NewUserMessage(id, body, author string, ts time.Time) Message {
	return Message{
		Id:        id,
		Body:      body,
		Timestamp: ts,
		Author:    author,
		Role:      RoleUser,
	}
}

func NewAssistantMessage(id, body string, ts time.Time, citations []Citation) Message {
	if citations == nil {
		citations = []Citation{}
	}
	return Message{
		Id:        id,
		Body:      body,
		Timestamp: ts,
		Author:    AssistantAuthor,
		Role:      RoleAssistant,
		Citations: citations,
	}
}

func (m Message) IsAssistant() bool {
	return m.Role == RoleAssistant
}

func (m Message) clone() Message {
	if m.Citations != nil {
		m.Citations = append([]Citation{}, m.Citations...)
	}
	return m
}

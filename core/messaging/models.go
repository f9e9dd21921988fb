package messaging

import (
	"time"

	"github.com/MoonNight31/AppCaryamil/core"
)

// Conversation kinds. Group conversations are the per-classroom rooms kept in
// sync by the admin command; private ones are created ad hoc by staff.
const (
	KindGroup   = "group"
	KindPrivate = "private"
)

// VisibleConversationsLimit caps messenger listings; posts listings are capped
// by PostsLimit. Older entries stay in storage but are not served.
const (
	VisibleConversationsLimit = 50
	PostsLimit                = 100
)

type (
	// Conversation is a discussion thread. ClassroomID is set only for group
	// conversations; private ones reach their audience through participants.
	Conversation struct {
		ID             string    `json:"id"`
		Name           string    `json:"name"`
		Kind           string    `json:"kind"`
		ClassroomID    string    `json:"classroom_id,omitempty"`
		CreatedByID    string    `json:"created_by_id,omitempty"`
		ParticipantIDs []string  `json:"participant_ids"`
		CreatedAt      time.Time `json:"created_at"`
		LastMessageAt  time.Time `json:"last_message_at"`
	}

	// Post is an entry in a conversation feed, text and/or image.
	Post struct {
		ID             string    `json:"id"`
		ConversationID string    `json:"conversation_id"`
		AuthorID       string    `json:"author_id,omitempty"`
		Title          string    `json:"title,omitempty"`
		Body           string    `json:"body"`
		ImageURL       string    `json:"image_url,omitempty"`
		Published      bool      `json:"is_published"`
		CreatedAt      time.Time `json:"created_at"`
	}

	// Message is a direct user-to-user note, outside any conversation.
	Message struct {
		ID          string    `json:"id"`
		SenderID    string    `json:"sender_id"`
		RecipientID string    `json:"recipient_id"`
		Subject     string    `json:"subject,omitempty"`
		Body        string    `json:"body"`
		Read        bool      `json:"is_read"`
		CreatedAt   time.Time `json:"created_at"`
	}
)

func (c Conversation) IsGroup() bool   { return c.Kind == KindGroup }
func (c Conversation) IsPrivate() bool { return c.Kind == KindPrivate }

// HasParticipant reports whether usrID was explicitly added to c.
func (c Conversation) HasParticipant(usrID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == usrID {
			return true
		}
	}
	return false
}

// NewConversation selects students; the audience is their parents. An empty
// name falls back to "Discussion <level>".
type NewConversation struct {
	Name       string   `json:"name"`
	StudentIDs []string `json:"student_ids" validate:"required,min=1"`
}

func (nc *NewConversation) Validate() error {
	nc.Name = core.CleanString(nc.Name)
	return core.Validate.Struct(nc)
}

type NewPost struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	ImageURL string `json:"-"`
}

func (np *NewPost) Validate() error {
	np.Title = core.CleanString(np.Title)
	np.Body = core.CleanString(np.Body)
	return nil
}

// IsEmpty reports whether the post carries no content at all; empty posts
// are silently dropped instead of rejected. A bare title does not count as
// content.
func (np NewPost) IsEmpty() bool { return np.Body == "" && np.ImageURL == "" }

type NewMessage struct {
	RecipientID string `json:"recipient_id" validate:"required"`
	Subject     string `json:"subject"`
	Body        string `json:"body" validate:"required"`
}

func (nm *NewMessage) Validate() error {
	nm.Subject = core.CleanString(nm.Subject)
	nm.Body = core.CleanString(nm.Body)
	return core.Validate.Struct(nm)
}

// AddParticipantsResult reports the outcome of an idempotent participant add.
type AddParticipantsResult struct {
	Added          int `json:"added"`
	AlreadyPresent int `json:"already_present"`
}

// ConversationFilter narrows conversation queries; fields AND together.
// ParticipantID matches explicit membership, CreatedByID authorship.
type ConversationFilter struct {
	Kind          string
	ClassroomIDs  []string
	ParticipantID string
	CreatedByID   string
}

// MessageFilter narrows direct-message queries; fields AND together.
type MessageFilter struct {
	SenderID    string
	RecipientID string
}

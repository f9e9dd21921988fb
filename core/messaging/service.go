package messaging

import (
	"context"

	"github.com/pkg/errors"

	"github.com/MoonNight31/AppCaryamil/core"
	"github.com/MoonNight31/AppCaryamil/core/school"
	"github.com/MoonNight31/AppCaryamil/core/user"
)

var (
	ErrNotFound         = errors.New("conversation not found")
	ErrMessageNotFound  = errors.New("message not found")
	ErrPermissionDenied = errors.New("permission denied")
	// ErrEmptyPost flags a post with neither text nor image; callers treat
	// it as a no-op, not a failure.
	ErrEmptyPost = errors.New("empty post")
)

type (
	Repository interface {
		QueryConversations(ctx context.Context, filter ConversationFilter, ordering ...core.DBOrdering) ([]Conversation, error)
		GetConversationByID(ctx context.Context, id string) (Conversation, error)
		// CreateConversation persists conv and its participant set atomically.
		CreateConversation(ctx context.Context, conv Conversation) (Conversation, error)
		// AddParticipants adds the given users to a conversation, skipping
		// those already in it.
		AddParticipants(ctx context.Context, convID string, usrIDs ...string) (AddParticipantsResult, error)
		DeleteConversationsByID(ctx context.Context, ids ...string) error

		// CreatePost persists the post and bumps the conversation's
		// last-activity timestamp in the same transaction.
		CreatePost(ctx context.Context, post Post) (Post, error)
		// QueryPosts returns conv's published posts, newest first, at most
		// limit of them.
		QueryPosts(ctx context.Context, convID string, limit int) ([]Post, error)
		QueryLatestImagePosts(ctx context.Context, convIDs []string, limit int) ([]Post, error)
		// QueryRecentPosts returns the latest published posts across every
		// conversation, for the admin dashboard.
		QueryRecentPosts(ctx context.Context, limit int) ([]Post, error)

		CreateMessage(ctx context.Context, msg Message) (Message, error)
		GetMessageByID(ctx context.Context, id string) (Message, error)
		QueryMessages(ctx context.Context, filter MessageFilter) ([]Message, error)
		MarkMessageRead(ctx context.Context, id string) error
		CountUnreadMessages(ctx context.Context, usrID string) (int, error)

		CountConversations(ctx context.Context) (int, error)
		CountPosts(ctx context.Context) (int, error)
		CountMessages(ctx context.Context) (int, error)
		CountAllUnreadMessages(ctx context.Context) (int, error)
	}

	Service struct {
		repo   Repository
		school SchoolDirectory
		access *Access
	}
)

func NewService(repo Repository, dir SchoolDirectory) *Service {
	return &Service{
		repo:   repo,
		school: dir,
		access: NewAccess(dir, repo),
	}
}

// Access exposes the visibility rules backing this service.
func (svc *Service) Access() *Access { return svc.access }

// CreateConversation opens a private conversation in lvl reaching the parents
// of the selected students. The participant set is the union of those parents
// plus the creator; the conversation itself is not bound to any single
// classroom so it may span classes.
func (svc *Service) CreateConversation(ctx context.Context, usr user.User, lvl school.Level, nc NewConversation) (Conversation, error) {
	if !svc.access.CanCreateConversation(usr) {
		return Conversation{}, ErrPermissionDenied
	}
	if err := nc.Validate(); err != nil {
		return Conversation{}, err
	}

	name := nc.Name
	if name == "" {
		name = "Discussion " + lvl.Name
	}

	parentIDs, err := svc.school.QueryStudentParentIDs(ctx, nc.StudentIDs...)
	if err != nil {
		return Conversation{}, err
	}
	participants := []string{usr.ID}
	for _, id := range parentIDs {
		if id != usr.ID {
			participants = append(participants, id)
		}
	}

	conv := Conversation{
		Name:           name,
		Kind:           KindPrivate,
		CreatedByID:    usr.ID,
		ParticipantIDs: participants,
	}
	conv, err = svc.repo.CreateConversation(ctx, conv)
	return conv, errors.Wrap(err, "creating conversation")
}

// EnsureGroupConversations makes sure every classroom has its group
// conversation, creating the missing ones and topping up participants on the
// existing ones. Safe to run repeatedly. Returns the number of conversations
// created.
func (svc *Service) EnsureGroupConversations(ctx context.Context) (int, error) {
	rooms, err := svc.school.QueryClassrooms(ctx, school.ClassroomFilter{})
	if err != nil {
		return 0, err
	}

	var created int
	for _, room := range rooms {
		participants, err := svc.classroomAudience(ctx, room)
		if err != nil {
			return created, err
		}

		existing, err := svc.repo.QueryConversations(ctx, ConversationFilter{Kind: KindGroup, ClassroomIDs: []string{room.ID}})
		if err != nil {
			return created, err
		}
		if len(existing) > 0 {
			if _, err := svc.repo.AddParticipants(ctx, existing[0].ID, participants...); err != nil {
				return created, errors.Wrapf(err, "syncing group conversation for classroom %s", room.Name)
			}
			continue
		}

		conv := Conversation{
			Name:           room.Name,
			Kind:           KindGroup,
			ClassroomID:    room.ID,
			ParticipantIDs: participants,
		}
		if _, err := svc.repo.CreateConversation(ctx, conv); err != nil {
			return created, errors.Wrapf(err, "creating group conversation for classroom %s", room.Name)
		}
		created++
	}
	return created, nil
}

// AddParticipants grows conv's audience with the parents of the selected
// students; raw user ids are never accepted. Already-present parents are
// counted but not duplicated.
func (svc *Service) AddParticipants(ctx context.Context, usr user.User, convID string, stdIDs ...string) (AddParticipantsResult, error) {
	conv, err := svc.repo.GetConversationByID(ctx, convID)
	if err != nil {
		return AddParticipantsResult{}, err
	}
	if !svc.access.CanAddParticipants(usr, conv) {
		return AddParticipantsResult{}, ErrPermissionDenied
	}

	parentIDs, err := svc.school.QueryStudentParentIDs(ctx, stdIDs...)
	if err != nil {
		return AddParticipantsResult{}, err
	}
	return svc.repo.AddParticipants(ctx, convID, parentIDs...)
}

// CreatePost publishes a post in conv on behalf of usr and refreshes the
// conversation's activity timestamp. A post with no body and no image is
// dropped with ErrEmptyPost.
func (svc *Service) CreatePost(ctx context.Context, usr user.User, convID string, np NewPost) (Post, error) {
	conv, err := svc.repo.GetConversationByID(ctx, convID)
	if err != nil {
		return Post{}, err
	}
	if !svc.access.CanPost(usr, conv) {
		return Post{}, ErrPermissionDenied
	}
	if err := np.Validate(); err != nil {
		return Post{}, err
	}
	if np.IsEmpty() {
		return Post{}, ErrEmptyPost
	}

	post := Post{
		ConversationID: conv.ID,
		AuthorID:       usr.ID,
		Title:          np.Title,
		Body:           np.Body,
		ImageURL:       np.ImageURL,
		Published:      true,
	}
	post, err = svc.repo.CreatePost(ctx, post)
	return post, errors.Wrap(err, "creating post")
}

// QueryPosts returns the visible feed of a conversation the user may read.
func (svc *Service) QueryPosts(ctx context.Context, usr user.User, convID string) ([]Post, error) {
	conv, err := svc.repo.GetConversationByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !svc.access.CanPost(usr, conv) {
		return nil, ErrPermissionDenied
	}
	return svc.repo.QueryPosts(ctx, convID, PostsLimit)
}

// PhotoFeed returns the latest image posts from the conversations usr takes
// part in, for the parent home page.
func (svc *Service) PhotoFeed(ctx context.Context, usr user.User, limit int) ([]Post, error) {
	convs, err := svc.repo.QueryConversations(ctx, ConversationFilter{ParticipantID: usr.ID})
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, nil
	}
	convIDs := make([]string, 0, len(convs))
	for _, conv := range convs {
		convIDs = append(convIDs, conv.ID)
	}
	return svc.repo.QueryLatestImagePosts(ctx, convIDs, limit)
}

// SendMessage delivers a direct message from usr to the recipient.
func (svc *Service) SendMessage(ctx context.Context, usr user.User, nm NewMessage) (Message, error) {
	if err := nm.Validate(); err != nil {
		return Message{}, err
	}
	msg := Message{
		SenderID:    usr.ID,
		RecipientID: nm.RecipientID,
		Subject:     nm.Subject,
		Body:        nm.Body,
	}
	msg, err := svc.repo.CreateMessage(ctx, msg)
	return msg, errors.Wrap(err, "creating message")
}

// Inbox returns the direct messages usr received, newest first.
func (svc *Service) Inbox(ctx context.Context, usr user.User) ([]Message, error) {
	return svc.repo.QueryMessages(ctx, MessageFilter{RecipientID: usr.ID})
}

// Outbox returns the direct messages usr sent, newest first.
func (svc *Service) Outbox(ctx context.Context, usr user.User) ([]Message, error) {
	return svc.repo.QueryMessages(ctx, MessageFilter{SenderID: usr.ID})
}

// MarkRead marks a received message as read; only its recipient may do so.
func (svc *Service) MarkRead(ctx context.Context, usr user.User, msgID string) error {
	msg, err := svc.repo.GetMessageByID(ctx, msgID)
	if err != nil {
		return err
	}
	if msg.RecipientID != usr.ID {
		return ErrPermissionDenied
	}
	return svc.repo.MarkMessageRead(ctx, msgID)
}

func (svc *Service) UnreadCount(ctx context.Context, usr user.User) (int, error) {
	return svc.repo.CountUnreadMessages(ctx, usr.ID)
}

func (svc *Service) DeleteConversation(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteConversationsByID(ctx, ids...)
}

func (svc *Service) CountConversations(ctx context.Context) (int, error) {
	return svc.repo.CountConversations(ctx)
}
func (svc *Service) CountPosts(ctx context.Context) (int, error)    { return svc.repo.CountPosts(ctx) }
func (svc *Service) CountMessages(ctx context.Context) (int, error) { return svc.repo.CountMessages(ctx) }

// CountAllUnreadMessages totals unread messages platform-wide, for the admin
// dashboard.
func (svc *Service) CountAllUnreadMessages(ctx context.Context) (int, error) {
	return svc.repo.CountAllUnreadMessages(ctx)
}

// RecentPosts returns the latest published posts across every conversation.
func (svc *Service) RecentPosts(ctx context.Context, limit int) ([]Post, error) {
	return svc.repo.QueryRecentPosts(ctx, limit)
}

// classroomAudience is the default participant set of a classroom's group
// conversation: its teacher plus the parents of its students.
func (svc *Service) classroomAudience(ctx context.Context, room school.Classroom) ([]string, error) {
	var participants []string
	if room.TeacherID != "" {
		participants = append(participants, room.TeacherID)
	}
	stds, err := svc.school.QueryStudents(ctx, school.StudentFilter{ClassroomIDs: []string{room.ID}})
	if err != nil {
		return nil, err
	}
	if len(stds) > 0 {
		parentIDs, err := svc.school.QueryStudentParentIDs(ctx, studentIDs(stds)...)
		if err != nil {
			return nil, err
		}
		for _, id := range parentIDs {
			if id != room.TeacherID {
				participants = append(participants, id)
			}
		}
	}
	return participants, nil
}

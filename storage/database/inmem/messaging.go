package inmemdb

import (
	"context"
	"sort"

	"github.com/MoonNight31/AppCaryamil/core"
	"github.com/MoonNight31/AppCaryamil/core/messaging"
)

type messagingRepository struct {
	db *messagingTables
}

func NewMessagingRepository(db *DB) messaging.Repository {
	return &messagingRepository{db: db.messaging}
}

func (repo *messagingRepository) QueryConversations(ctx context.Context, filter messaging.ConversationFilter, ordering ...core.DBOrdering) ([]messaging.Conversation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var convs []messaging.Conversation
	for _, conv := range repo.db.conversations {
		if matchesConversationFilter(*conv, filter) {
			convs = append(convs, cloneConversation(*conv))
		}
	}
	sort.Slice(convs, func(i, j int) bool { return convs[i].LastMessageAt.After(convs[j].LastMessageAt) })
	return convs, nil
}

func (repo *messagingRepository) GetConversationByID(ctx context.Context, id string) (messaging.Conversation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if conv, ok := repo.db.conversations[id]; ok {
		return cloneConversation(*conv), nil
	}
	return messaging.Conversation{}, messaging.ErrNotFound
}

func (repo *messagingRepository) CreateConversation(ctx context.Context, conv messaging.Conversation) (messaging.Conversation, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	conv.ID = newPK()
	conv.CreatedAt = now()
	conv.LastMessageAt = conv.CreatedAt
	conv.ParticipantIDs = dedup(conv.ParticipantIDs)
	repo.db.conversations[conv.ID] = &conv
	return cloneConversation(conv), nil
}

func (repo *messagingRepository) AddParticipants(ctx context.Context, convID string, usrIDs ...string) (messaging.AddParticipantsResult, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	conv, ok := repo.db.conversations[convID]
	if !ok {
		return messaging.AddParticipantsResult{}, messaging.ErrNotFound
	}

	present := make(map[string]bool, len(conv.ParticipantIDs))
	for _, id := range conv.ParticipantIDs {
		present[id] = true
	}

	var res messaging.AddParticipantsResult
	for _, id := range dedup(usrIDs) {
		if present[id] {
			res.AlreadyPresent++
			continue
		}
		conv.ParticipantIDs = append(conv.ParticipantIDs, id)
		present[id] = true
		res.Added++
	}
	return res, nil
}

func (repo *messagingRepository) DeleteConversationsByID(ctx context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		delete(repo.db.conversations, id)
		for pid, post := range repo.db.posts {
			if post.ConversationID == id {
				delete(repo.db.posts, pid)
			}
		}
	}
	return nil
}

func (repo *messagingRepository) CreatePost(ctx context.Context, post messaging.Post) (messaging.Post, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	conv, ok := repo.db.conversations[post.ConversationID]
	if !ok {
		return messaging.Post{}, messaging.ErrNotFound
	}

	post.ID = newPK()
	post.CreatedAt = now()
	repo.db.posts[post.ID] = &post
	conv.LastMessageAt = post.CreatedAt
	return post, nil
}

func (repo *messagingRepository) QueryPosts(ctx context.Context, convID string, limit int) ([]messaging.Post, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var posts []messaging.Post
	for _, post := range repo.db.posts {
		if post.ConversationID == convID && post.Published {
			posts = append(posts, *post)
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].CreatedAt.After(posts[j].CreatedAt) })
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (repo *messagingRepository) QueryLatestImagePosts(ctx context.Context, convIDs []string, limit int) ([]messaging.Post, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	wanted := make(map[string]bool, len(convIDs))
	for _, id := range convIDs {
		wanted[id] = true
	}

	var posts []messaging.Post
	for _, post := range repo.db.posts {
		if wanted[post.ConversationID] && post.Published && post.ImageURL != "" {
			posts = append(posts, *post)
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].CreatedAt.After(posts[j].CreatedAt) })
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (repo *messagingRepository) QueryRecentPosts(ctx context.Context, limit int) ([]messaging.Post, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var posts []messaging.Post
	for _, post := range repo.db.posts {
		if post.Published {
			posts = append(posts, *post)
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].CreatedAt.After(posts[j].CreatedAt) })
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (repo *messagingRepository) CreateMessage(ctx context.Context, msg messaging.Message) (messaging.Message, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	msg.ID = newPK()
	msg.CreatedAt = now()
	repo.db.messages[msg.ID] = &msg
	return msg, nil
}

func (repo *messagingRepository) GetMessageByID(ctx context.Context, id string) (messaging.Message, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if msg, ok := repo.db.messages[id]; ok {
		return *msg, nil
	}
	return messaging.Message{}, messaging.ErrMessageNotFound
}

func (repo *messagingRepository) QueryMessages(ctx context.Context, filter messaging.MessageFilter) ([]messaging.Message, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var msgs []messaging.Message
	for _, msg := range repo.db.messages {
		if filter.SenderID != "" && msg.SenderID != filter.SenderID {
			continue
		}
		if filter.RecipientID != "" && msg.RecipientID != filter.RecipientID {
			continue
		}
		msgs = append(msgs, *msg)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.After(msgs[j].CreatedAt) })
	return msgs, nil
}

func (repo *messagingRepository) MarkMessageRead(ctx context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	msg, ok := repo.db.messages[id]
	if !ok {
		return messaging.ErrMessageNotFound
	}
	msg.Read = true
	return nil
}

func (repo *messagingRepository) CountUnreadMessages(ctx context.Context, usrID string) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var n int
	for _, msg := range repo.db.messages {
		if msg.RecipientID == usrID && !msg.Read {
			n++
		}
	}
	return n, nil
}

func (repo *messagingRepository) CountAllUnreadMessages(ctx context.Context) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var n int
	for _, msg := range repo.db.messages {
		if !msg.Read {
			n++
		}
	}
	return n, nil
}

func (repo *messagingRepository) CountConversations(ctx context.Context) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return len(repo.db.conversations), nil
}

func (repo *messagingRepository) CountPosts(ctx context.Context) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return len(repo.db.posts), nil
}

func (repo *messagingRepository) CountMessages(ctx context.Context) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return len(repo.db.messages), nil
}

func matchesConversationFilter(conv messaging.Conversation, filter messaging.ConversationFilter) bool {
	if filter.Kind != "" && conv.Kind != filter.Kind {
		return false
	}
	if len(filter.ClassroomIDs) > 0 {
		var in bool
		for _, id := range filter.ClassroomIDs {
			if conv.ClassroomID == id {
				in = true
				break
			}
		}
		if !in {
			return false
		}
	}
	if filter.ParticipantID != "" && !conv.HasParticipant(filter.ParticipantID) {
		return false
	}
	if filter.CreatedByID != "" && conv.CreatedByID != filter.CreatedByID {
		return false
	}
	return true
}

func cloneConversation(conv messaging.Conversation) messaging.Conversation {
	conv.ParticipantIDs = append([]string(nil), conv.ParticipantIDs...)
	return conv
}

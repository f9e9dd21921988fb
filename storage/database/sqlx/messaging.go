package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/MoonNight31/AppCaryamil/core"
	"github.com/MoonNight31/AppCaryamil/core/messaging"
)

type messagingRepository struct {
	db *sqlx.DB
}

var _ messaging.Repository = (*messagingRepository)(nil) // interface compliance check

func NewMessagingRepository(db *sqlx.DB) *messagingRepository {
	return &messagingRepository{db: db}
}

type (
	conversationRow struct {
		ID            string      `db:"id"`
		Name          string      `db:"name"`
		Kind          string      `db:"kind"`
		ClassroomID   null.String `db:"classroom_id"`
		CreatedByID   null.String `db:"created_by_id"`
		CreatedAt     time.Time   `db:"created_at"`
		LastMessageAt time.Time   `db:"last_message_at"`
	}

	postRow struct {
		ID             string      `db:"id"`
		ConversationID string      `db:"conversation_id"`
		AuthorID       null.String `db:"author_id"`
		Title          null.String `db:"title"`
		Body           null.String `db:"body"`
		ImageURL       null.String `db:"image_url"`
		IsPublished    bool        `db:"is_published"`
		CreatedAt      time.Time   `db:"created_at"`
	}

	messageRow struct {
		ID          string      `db:"id"`
		SenderID    string      `db:"sender_id"`
		RecipientID string      `db:"recipient_id"`
		Subject     null.String `db:"subject"`
		Body        string      `db:"body"`
		IsRead      bool        `db:"is_read"`
		CreatedAt   time.Time   `db:"created_at"`
	}
)

func unrowConversation(row conversationRow) messaging.Conversation {
	return messaging.Conversation{
		ID:            row.ID,
		Name:          row.Name,
		Kind:          row.Kind,
		ClassroomID:   row.ClassroomID.String,
		CreatedByID:   row.CreatedByID.String,
		CreatedAt:     row.CreatedAt,
		LastMessageAt: row.LastMessageAt,
	}
}

func unrowPost(row postRow) messaging.Post {
	return messaging.Post{
		ID:             row.ID,
		ConversationID: row.ConversationID,
		AuthorID:       row.AuthorID.String,
		Title:          row.Title.String,
		Body:           row.Body.String,
		ImageURL:       row.ImageURL.String,
		Published:      row.IsPublished,
		CreatedAt:      row.CreatedAt,
	}
}

func unrowMessage(row messageRow) messaging.Message {
	return messaging.Message{
		ID:          row.ID,
		SenderID:    row.SenderID,
		RecipientID: row.RecipientID,
		Subject:     row.Subject.String,
		Body:        row.Body,
		Read:        row.IsRead,
		CreatedAt:   row.CreatedAt,
	}
}

const (
	conversationCols = `id, name, kind, classroom_id, created_by_id, created_at, last_message_at`
	postCols         = `id, conversation_id, author_id, title, body, image_url, is_published, created_at`
	messageCols      = `id, sender_id, recipient_id, subject, body, is_read, created_at`
)

var conversationSortCols = map[string]string{
	"name":            "name",
	"created_at":      "created_at",
	"last_message_at": "last_message_at",
}

func (repo messagingRepository) QueryConversations(ctx context.Context, filter messaging.ConversationFilter, ordering ...core.DBOrdering) ([]messaging.Conversation, error) {
	query := `SELECT ` + conversationCols + ` FROM conversations`
	var conds []string
	var args []interface{}

	if filter.Kind != "" {
		conds = append(conds, `kind = ?`)
		args = append(args, filter.Kind)
	}
	if len(filter.ClassroomIDs) > 0 {
		q, inArgs, err := sqlx.In(`classroom_id IN (?)`, filter.ClassroomIDs)
		if err != nil {
			return nil, errors.Wrap(err, "querying conversations")
		}
		conds = append(conds, q)
		args = append(args, inArgs...)
	}
	if filter.ParticipantID != "" {
		conds = append(conds, `id IN (SELECT conversation_id FROM conversation_participants WHERE user_id = ?)`)
		args = append(args, filter.ParticipantID)
	}
	if filter.CreatedByID != "" {
		conds = append(conds, `created_by_id = ?`)
		args = append(args, filter.CreatedByID)
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += orderBy(ordering, conversationSortCols, "last_message_at DESC")

	var rows []conversationRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying conversations")
	}

	convs := make([]messaging.Conversation, 0, len(rows))
	for _, row := range rows {
		conv := unrowConversation(row)
		pids, err := repo.participantIDs(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
		conv.ParticipantIDs = pids
		convs = append(convs, conv)
	}
	return convs, nil
}

func (repo messagingRepository) GetConversationByID(ctx context.Context, id string) (messaging.Conversation, error) {
	var row conversationRow
	query := `SELECT ` + conversationCols + ` FROM conversations WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return messaging.Conversation{}, messaging.ErrNotFound
		}
		return messaging.Conversation{}, errors.Wrap(err, "getting conversation")
	}
	conv := unrowConversation(row)
	pids, err := repo.participantIDs(ctx, conv.ID)
	if err != nil {
		return messaging.Conversation{}, err
	}
	conv.ParticipantIDs = pids
	return conv, nil
}

func (repo messagingRepository) CreateConversation(ctx context.Context, conv messaging.Conversation) (messaging.Conversation, error) {
	conv.ID = uuid.NewString()
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.LastMessageAt = now

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return messaging.Conversation{}, errors.Wrap(err, "creating conversation")
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO conversations (` + conversationCols + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = tx.ExecContext(ctx, query, conv.ID, conv.Name, conv.Kind,
		null.NewString(conv.ClassroomID, conv.ClassroomID != ""),
		null.NewString(conv.CreatedByID, conv.CreatedByID != ""),
		conv.CreatedAt, conv.LastMessageAt)
	if err != nil {
		return messaging.Conversation{}, errors.Wrap(err, "creating conversation")
	}

	for _, pid := range conv.ParticipantIDs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			conv.ID, pid)
		if err != nil {
			return messaging.Conversation{}, errors.Wrap(err, "adding participant")
		}
	}
	if err = tx.Commit(); err != nil {
		return messaging.Conversation{}, errors.Wrap(err, "creating conversation")
	}
	return repo.GetConversationByID(ctx, conv.ID)
}

func (repo messagingRepository) AddParticipants(ctx context.Context, convID string, usrIDs ...string) (messaging.AddParticipantsResult, error) {
	present, err := repo.participantIDs(ctx, convID)
	if err != nil {
		return messaging.AddParticipantsResult{}, err
	}
	inConv := make(map[string]bool, len(present))
	for _, id := range present {
		inConv[id] = true
	}

	var res messaging.AddParticipantsResult
	seen := make(map[string]bool, len(usrIDs))
	for _, id := range usrIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if inConv[id] {
			res.AlreadyPresent++
			continue
		}
		_, err = repo.db.ExecContext(ctx,
			`INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			convID, id)
		if err != nil {
			return res, errors.Wrap(err, "adding participant")
		}
		res.Added++
	}
	return res, nil
}

func (repo messagingRepository) DeleteConversationsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM conversations WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "deleting conversations")
	}
	_, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...)
	return errors.Wrap(err, "deleting conversations")
}

func (repo messagingRepository) CreatePost(ctx context.Context, post messaging.Post) (messaging.Post, error) {
	post.ID = uuid.NewString()
	post.CreatedAt = time.Now().UTC()

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return messaging.Post{}, errors.Wrap(err, "creating post")
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO posts (` + postCols + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = tx.ExecContext(ctx, query, post.ID, post.ConversationID,
		null.NewString(post.AuthorID, post.AuthorID != ""),
		null.NewString(post.Title, post.Title != ""),
		null.NewString(post.Body, post.Body != ""),
		null.NewString(post.ImageURL, post.ImageURL != ""),
		post.Published, post.CreatedAt)
	if err != nil {
		return messaging.Post{}, errors.Wrap(err, "creating post")
	}

	// keep the feed ordering in step with the new post
	_, err = tx.ExecContext(ctx, `UPDATE conversations SET last_message_at = $2 WHERE id = $1`,
		post.ConversationID, post.CreatedAt)
	if err != nil {
		return messaging.Post{}, errors.Wrap(err, "bumping conversation activity")
	}
	return post, errors.Wrap(tx.Commit(), "creating post")
}

func (repo messagingRepository) QueryPosts(ctx context.Context, convID string, limit int) ([]messaging.Post, error) {
	query := `SELECT ` + postCols + `
FROM posts WHERE conversation_id = $1 AND is_published = TRUE ORDER BY created_at DESC LIMIT $2`

	var rows []postRow
	if err := repo.db.SelectContext(ctx, &rows, query, convID, limit); err != nil {
		return nil, errors.Wrap(err, "querying posts")
	}
	posts := make([]messaging.Post, 0, len(rows))
	for _, row := range rows {
		posts = append(posts, unrowPost(row))
	}
	return posts, nil
}

func (repo messagingRepository) QueryRecentPosts(ctx context.Context, limit int) ([]messaging.Post, error) {
	query := `SELECT ` + postCols + `
FROM posts WHERE is_published = TRUE ORDER BY created_at DESC LIMIT $1`

	var rows []postRow
	if err := repo.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, errors.Wrap(err, "querying recent posts")
	}
	posts := make([]messaging.Post, 0, len(rows))
	for _, row := range rows {
		posts = append(posts, unrowPost(row))
	}
	return posts, nil
}

func (repo messagingRepository) QueryLatestImagePosts(ctx context.Context, convIDs []string, limit int) ([]messaging.Post, error) {
	if len(convIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+postCols+`
FROM posts WHERE conversation_id IN (?) AND is_published = TRUE AND image_url IS NOT NULL
ORDER BY created_at DESC LIMIT ?`, convIDs, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying image posts")
	}

	var rows []postRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying image posts")
	}
	posts := make([]messaging.Post, 0, len(rows))
	for _, row := range rows {
		posts = append(posts, unrowPost(row))
	}
	return posts, nil
}

func (repo messagingRepository) CreateMessage(ctx context.Context, msg messaging.Message) (messaging.Message, error) {
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()

	query := `INSERT INTO messages (` + messageCols + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := repo.db.ExecContext(ctx, query, msg.ID, msg.SenderID, msg.RecipientID,
		null.NewString(msg.Subject, msg.Subject != ""), msg.Body, msg.Read, msg.CreatedAt)
	if err != nil {
		return messaging.Message{}, errors.Wrap(err, "creating message")
	}
	return msg, nil
}

func (repo messagingRepository) GetMessageByID(ctx context.Context, id string) (messaging.Message, error) {
	var row messageRow
	query := `SELECT ` + messageCols + ` FROM messages WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return messaging.Message{}, messaging.ErrMessageNotFound
		}
		return messaging.Message{}, errors.Wrap(err, "getting message")
	}
	return unrowMessage(row), nil
}

func (repo messagingRepository) QueryMessages(ctx context.Context, filter messaging.MessageFilter) ([]messaging.Message, error) {
	query := `SELECT ` + messageCols + ` FROM messages`
	var conds []string
	var args []interface{}

	if filter.SenderID != "" {
		conds = append(conds, `sender_id = ?`)
		args = append(args, filter.SenderID)
	}
	if filter.RecipientID != "" {
		conds = append(conds, `recipient_id = ?`)
		args = append(args, filter.RecipientID)
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY created_at DESC`

	var rows []messageRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}
	msgs := make([]messaging.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, unrowMessage(row))
	}
	return msgs, nil
}

func (repo messagingRepository) MarkMessageRead(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE messages SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "marking message read")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return messaging.ErrMessageNotFound
	}
	return nil
}

func (repo messagingRepository) CountUnreadMessages(ctx context.Context, usrID string) (int, error) {
	var n int
	err := repo.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM messages WHERE recipient_id = $1 AND is_read = FALSE`, usrID)
	return n, errors.Wrap(err, "counting unread messages")
}

func (repo messagingRepository) CountAllUnreadMessages(ctx context.Context) (int, error) {
	var n int
	err := repo.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM messages WHERE is_read = FALSE`)
	return n, errors.Wrap(err, "counting unread messages")
}

func (repo messagingRepository) CountConversations(ctx context.Context) (int, error) {
	var n int
	err := repo.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM conversations`)
	return n, errors.Wrap(err, "counting conversations")
}

func (repo messagingRepository) CountPosts(ctx context.Context) (int, error) {
	var n int
	err := repo.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM posts`)
	return n, errors.Wrap(err, "counting posts")
}

func (repo messagingRepository) CountMessages(ctx context.Context) (int, error) {
	var n int
	err := repo.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM messages`)
	return n, errors.Wrap(err, "counting messages")
}

func (repo messagingRepository) participantIDs(ctx context.Context, convID string) ([]string, error) {
	var ids []string
	err := repo.db.SelectContext(ctx, &ids,
		`SELECT user_id FROM conversation_participants WHERE conversation_id = $1`, convID)
	return ids, errors.Wrap(err, "querying participants")
}

package messaging_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MoonNight31/AppCaryamil/core/messaging"
	"github.com/MoonNight31/AppCaryamil/core/user"
)

func TestCreateConversationSeedsParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// second child sharing a parent with the first
	otherParent := f.createUser("parent.bis", func(u *user.User) { u.Parent = true })
	emma := f.createStudent("Emma", "Abad", f.roomCP, f.parentCP, otherParent)

	conv, err := f.msgSvc.CreateConversation(ctx, f.teachCP, f.primaire, messaging.NewConversation{
		Name:       "Réunion de rentrée",
		StudentIDs: []string{f.stdCP.ID, emma.ID},
	})
	require.NoError(t, err)

	assert.Equal(t, messaging.KindPrivate, conv.Kind)
	assert.Empty(t, conv.ClassroomID)
	assert.Equal(t, f.teachCP.ID, conv.CreatedByID)
	// creator + union of the selected students' parents, no duplicates
	assert.ElementsMatch(t, []string{f.teachCP.ID, f.parentCP.ID, otherParent.ID}, conv.ParticipantIDs)
}

func TestCreateConversationDefaultName(t *testing.T) {
	f := newFixture(t)

	conv, err := f.msgSvc.CreateConversation(context.Background(), f.teachCP, f.primaire, messaging.NewConversation{
		StudentIDs: []string{f.stdCP.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "Discussion Primaire", conv.Name)
}

func TestCreateConversationRequiresStudents(t *testing.T) {
	f := newFixture(t)

	_, err := f.msgSvc.CreateConversation(context.Background(), f.teachCP, f.primaire, messaging.NewConversation{
		Name: "Sans destinataires",
	})
	assert.Error(t, err)
}

func TestCreateConversationSpansClassrooms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.msgSvc.CreateConversation(ctx, f.director, f.primaire, messaging.NewConversation{
		Name:       "Kermesse",
		StudentIDs: []string{f.stdCP.ID, f.std6e.ID},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{f.director.ID, f.parentCP.ID, f.parent6e.ID}, conv.ParticipantIDs)
}

func TestCreateConversationDeniedToParents(t *testing.T) {
	f := newFixture(t)

	_, err := f.msgSvc.CreateConversation(context.Background(), f.parentCP, f.primaire, messaging.NewConversation{
		Name:       "Entre parents",
		StudentIDs: []string{f.stdCP.ID},
	})
	assert.ErrorIs(t, err, messaging.ErrPermissionDenied)
}

func TestAddParticipantsIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.msgSvc.CreateConversation(ctx, f.teachCP, f.primaire, messaging.NewConversation{
		Name:       "Sortie musée",
		StudentIDs: []string{f.stdCP.ID},
	})
	require.NoError(t, err)

	res, err := f.msgSvc.AddParticipants(ctx, f.teachCP, conv.ID, f.std6e.ID, f.stdCP.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)          // parent6e
	assert.Equal(t, 1, res.AlreadyPresent) // parentCP was seeded

	res, err = f.msgSvc.AddParticipants(ctx, f.teachCP, conv.ID, f.std6e.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Added)
	assert.Equal(t, 1, res.AlreadyPresent)
}

func TestAddParticipantsGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.msgSvc.CreateConversation(ctx, f.teachCP, f.primaire, messaging.NewConversation{
		Name:       "Cantine",
		StudentIDs: []string{f.stdCP.ID},
	})
	require.NoError(t, err)

	// outsider may not touch the audience; a seeded participant may
	_, err = f.msgSvc.AddParticipants(ctx, f.nobody, conv.ID, f.std6e.ID)
	assert.ErrorIs(t, err, messaging.ErrPermissionDenied)

	_, err = f.msgSvc.AddParticipants(ctx, f.parentCP, conv.ID, f.std6e.ID)
	assert.NoError(t, err)

	_, err = f.msgSvc.AddParticipants(ctx, f.teachCP, "nope", f.std6e.ID)
	assert.ErrorIs(t, err, messaging.ErrNotFound)
}

func TestEnsureGroupConversationsIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.msgSvc.EnsureGroupConversations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, created) // one per classroom

	created, err = f.msgSvc.EnsureGroupConversations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	n, err := f.msgSvc.CountConversations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEnsureGroupConversationsTopsUpNewFamilies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.msgSvc.EnsureGroupConversations(ctx)
	require.NoError(t, err)

	// family arrives mid-year
	newParent := f.createUser("parent.new", func(u *user.User) { u.Parent = true })
	f.createStudent("Sara", "Diaz", f.roomCP, newParent)

	_, err = f.msgSvc.EnsureGroupConversations(ctx)
	require.NoError(t, err)

	convs, err := f.access.VisibleConversations(ctx, newParent, f.primaire)
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestCreatePost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.msgSvc.CreateConversation(ctx, f.teachCP, f.primaire, messaging.NewConversation{
		Name:       "Devoirs",
		StudentIDs: []string{f.stdCP.ID},
	})
	require.NoError(t, err)

	t.Run("participant posts and activity is bumped", func(t *testing.T) {
		post, err := f.msgSvc.CreatePost(ctx, f.parentCP, conv.ID, messaging.NewPost{Body: "Merci !"})
		require.NoError(t, err)
		assert.Equal(t, f.parentCP.ID, post.AuthorID)
		assert.True(t, post.Published)

		convs, err := f.access.VisibleConversations(ctx, f.parentCP, f.primaire)
		require.NoError(t, err)
		require.NotEmpty(t, convs)
		assert.True(t, convs[0].LastMessageAt.After(conv.LastMessageAt))
	})

	t.Run("empty post is a no-op", func(t *testing.T) {
		_, err := f.msgSvc.CreatePost(ctx, f.teachCP, conv.ID, messaging.NewPost{Body: "   "})
		assert.ErrorIs(t, err, messaging.ErrEmptyPost)
	})

	t.Run("image alone is enough", func(t *testing.T) {
		post, err := f.msgSvc.CreatePost(ctx, f.teachCP, conv.ID, messaging.NewPost{ImageURL: "/media/posts/2026/08/a.jpg"})
		require.NoError(t, err)
		assert.Empty(t, post.Body)
	})

	t.Run("outsider is denied", func(t *testing.T) {
		_, err := f.msgSvc.CreatePost(ctx, f.nobody, conv.ID, messaging.NewPost{Body: "coucou"})
		assert.ErrorIs(t, err, messaging.ErrPermissionDenied)
	})

	t.Run("unknown conversation", func(t *testing.T) {
		_, err := f.msgSvc.CreatePost(ctx, f.teachCP, "nope", messaging.NewPost{Body: "hey"})
		assert.ErrorIs(t, err, messaging.ErrNotFound)
	})
}

func TestQueryPosts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.msgSvc.CreateConversation(ctx, f.teachCP, f.primaire, messaging.NewConversation{
		Name:       "Photos",
		StudentIDs: []string{f.stdCP.ID},
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.msgSvc.CreatePost(ctx, f.teachCP, conv.ID, messaging.NewPost{Body: "post"})
		require.NoError(t, err)
	}

	posts, err := f.msgSvc.QueryPosts(ctx, f.parentCP, conv.ID)
	require.NoError(t, err)
	assert.Len(t, posts, 3)
	for i := 1; i < len(posts); i++ {
		assert.False(t, posts[i].CreatedAt.After(posts[i-1].CreatedAt))
	}

	_, err = f.msgSvc.QueryPosts(ctx, f.nobody, conv.ID)
	assert.ErrorIs(t, err, messaging.ErrPermissionDenied)
}

func TestPhotoFeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.msgSvc.CreateConversation(ctx, f.teachCP, f.primaire, messaging.NewConversation{
		Name:       "Classe verte",
		StudentIDs: []string{f.stdCP.ID},
	})
	require.NoError(t, err)

	_, err = f.msgSvc.CreatePost(ctx, f.teachCP, conv.ID, messaging.NewPost{Body: "texte seul"})
	require.NoError(t, err)
	_, err = f.msgSvc.CreatePost(ctx, f.teachCP, conv.ID, messaging.NewPost{ImageURL: "/media/posts/2026/08/b.jpg"})
	require.NoError(t, err)

	feed, err := f.msgSvc.PhotoFeed(ctx, f.parentCP, 10)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.NotEmpty(t, feed[0].ImageURL)

	feed, err = f.msgSvc.PhotoFeed(ctx, f.parent6e, 10)
	require.NoError(t, err)
	assert.Empty(t, feed)
}

func TestDirectMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.msgSvc.SendMessage(ctx, f.parentCP, messaging.NewMessage{
		RecipientID: f.teachCP.ID,
		Subject:     "Absence",
		Body:        "Lina sera absente demain.",
	})
	require.NoError(t, err)

	inbox, err := f.msgSvc.Inbox(ctx, f.teachCP)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.False(t, inbox[0].Read)
	assert.Equal(t, "Absence", inbox[0].Subject)

	// the sender sees it in the outbox, not the inbox
	outbox, err := f.msgSvc.Outbox(ctx, f.parentCP)
	require.NoError(t, err)
	require.Len(t, outbox, 1)
	assert.Equal(t, msg.ID, outbox[0].ID)
	inbox, err = f.msgSvc.Inbox(ctx, f.parentCP)
	require.NoError(t, err)
	assert.Empty(t, inbox)

	n, err := f.msgSvc.UnreadCount(ctx, f.teachCP)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// only the recipient may mark it read
	err = f.msgSvc.MarkRead(ctx, f.parentCP, msg.ID)
	assert.ErrorIs(t, err, messaging.ErrPermissionDenied)

	require.NoError(t, f.msgSvc.MarkRead(ctx, f.teachCP, msg.ID))
	n, err = f.msgSvc.UnreadCount(ctx, f.teachCP)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

package messaging_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MoonNight31/AppCaryamil/core/messaging"
	"github.com/MoonNight31/AppCaryamil/core/school"
	"github.com/MoonNight31/AppCaryamil/core/user"
	inmemdb "github.com/MoonNight31/AppCaryamil/storage/database/inmem"
)

// fixture wires services on the in-memory storage and seeds a small school:
// two levels (primaire, college), one classroom per level, one student per
// classroom, a parent per student, a teacher per classroom and a director.
type fixture struct {
	t *testing.T

	userRepo  user.Repository
	schoolSvc *school.Service
	msgSvc    *messaging.Service
	access    *messaging.Access

	primaire school.Level
	college  school.Level
	roomCP   school.Classroom // primaire, taught by teachCP
	room6e   school.Classroom // college, taught by teach6e

	stdCP school.Student // child of parentCP
	std6e school.Student // child of parent6e

	parentCP user.User
	parent6e user.User
	teachCP  user.User
	teach6e  user.User
	director user.User
	nobody   user.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := inmemdb.Open()
	require.NoError(t, err)

	f := &fixture{t: t}
	f.userRepo = inmemdb.NewUserRepository(db)
	f.schoolSvc = school.NewService(inmemdb.NewSchoolRepository(db), f.userRepo)
	f.msgSvc = messaging.NewService(inmemdb.NewMessagingRepository(db), f.schoolSvc)
	f.access = f.msgSvc.Access()

	f.primaire = f.createLevel("Primaire", "primaire")
	f.college = f.createLevel("Collège", "college")

	f.parentCP = f.createUser("parent.cp", func(u *user.User) { u.Parent = true })
	f.parent6e = f.createUser("parent.6e", func(u *user.User) { u.Parent = true })
	f.teachCP = f.createUser("teach.cp", func(u *user.User) { u.Teacher = true })
	f.teach6e = f.createUser("teach.6e", func(u *user.User) { u.Teacher = true })
	f.director = f.createUser("director", func(u *user.User) { u.Director = true })
	f.nobody = f.createUser("nobody", nil)

	f.roomCP = f.createClassroom("CP A", f.primaire, f.teachCP)
	f.room6e = f.createClassroom("6e B", f.college, f.teach6e)

	f.stdCP = f.createStudent("Lina", "Abad", f.roomCP, f.parentCP)
	f.std6e = f.createStudent("Noah", "Brun", f.room6e, f.parent6e)

	return f
}

func (f *fixture) createLevel(name, slug string) school.Level {
	f.t.Helper()
	lvl, err := f.schoolSvc.CreateLevel(context.Background(), school.NewLevel{Name: name, Slug: slug})
	require.NoError(f.t, err)
	return lvl
}

func (f *fixture) createUser(uname string, set func(*user.User)) user.User {
	f.t.Helper()
	usr := user.User{Username: uname, Active: true}
	if set != nil {
		set(&usr)
	}
	usr, err := f.userRepo.CreateUser(context.Background(), usr)
	require.NoError(f.t, err)
	return usr
}

func (f *fixture) createClassroom(name string, lvl school.Level, teacher user.User) school.Classroom {
	f.t.Helper()
	room, err := f.schoolSvc.CreateClassroom(context.Background(), school.NewClassroom{
		LevelID:   lvl.ID,
		TeacherID: teacher.ID,
		Name:      name,
	})
	require.NoError(f.t, err)
	return room
}

func (f *fixture) createStudent(first, last string, room school.Classroom, parents ...user.User) school.Student {
	f.t.Helper()
	parentIDs := make([]string, 0, len(parents))
	for _, p := range parents {
		parentIDs = append(parentIDs, p.ID)
	}
	std, err := f.schoolSvc.CreateStudent(context.Background(), school.NewStudent{
		FirstName:   first,
		LastName:    last,
		ClassroomID: room.ID,
		ParentIDs:   parentIDs,
	})
	require.NoError(f.t, err)
	return std
}

func levelSlugs(lvls []school.Level) []string {
	slugs := make([]string, 0, len(lvls))
	for _, lvl := range lvls {
		slugs = append(slugs, lvl.Slug)
	}
	return slugs
}

func conversationIDs(convs []messaging.Conversation) []string {
	ids := make([]string, 0, len(convs))
	for _, conv := range convs {
		ids = append(ids, conv.ID)
	}
	return ids
}

func TestVisibleLevels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		usr  user.User
		want []string
	}{
		{"parent sees only the child's level", f.parentCP, []string{"primaire"}},
		{"teacher sees only the taught level", f.teach6e, []string{"college"}},
		{"director sees every level", f.director, []string{"college", "primaire"}},
		{"user with no role sees nothing", f.nobody, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lvls, err := f.access.VisibleLevels(ctx, tt.usr)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, levelSlugs(lvls))
		})
	}
}

func TestVisibleLevelsDualRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// teaches in primaire, child schooled in college
	dual := f.createUser("dual", func(u *user.User) { u.Teacher = true; u.Parent = true })
	_, err := f.schoolSvc.UpdateClassroom(ctx, f.roomCP.ID, school.UpdateClassroom{TeacherID: &dual.ID})
	require.NoError(t, err)
	require.NoError(t, f.schoolSvc.SetStudentParents(ctx, f.std6e.ID, f.parent6e.ID, dual.ID))

	lvls, err := f.access.VisibleLevels(ctx, dual)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"primaire", "college"}, levelSlugs(lvls))
}

func TestVisibleClassrooms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	otherRoom := f.createClassroom("CP B", f.primaire, f.teach6e)

	tests := []struct {
		name string
		usr  user.User
		lvl  school.Level
		want []string
	}{
		{"teacher gets own rooms only", f.teachCP, f.primaire, []string{f.roomCP.ID}},
		{"parent gets the child's room only", f.parentCP, f.primaire, []string{f.roomCP.ID}},
		{"director gets every room of the level", f.director, f.primaire, []string{f.roomCP.ID, otherRoom.ID}},
		{"no tie to the level means no rooms", f.parentCP, f.college, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rooms, err := f.access.VisibleClassrooms(ctx, tt.usr, tt.lvl)
			require.NoError(t, err)
			ids := make([]string, 0, len(rooms))
			for _, room := range rooms {
				ids = append(ids, room.ID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}
}

func TestVisibleStudents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		usr  user.User
		want []string
	}{
		{"parent sees own children", f.parentCP, []string{f.stdCP.ID}},
		{"teacher sees the room's students", f.teach6e, []string{f.std6e.ID}},
		{"director sees everyone", f.director, []string{f.stdCP.ID, f.std6e.ID}},
		{"no role, no students", f.nobody, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stds, err := f.access.VisibleStudents(ctx, tt.usr)
			require.NoError(t, err)
			ids := make([]string, 0, len(stds))
			for _, std := range stds {
				ids = append(ids, std.ID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}
}

func TestVisibleConversations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// group conversations for both rooms; private one started by the CP teacher
	_, err := f.msgSvc.EnsureGroupConversations(ctx)
	require.NoError(t, err)
	private, err := f.msgSvc.CreateConversation(ctx, f.teachCP, f.primaire, messaging.NewConversation{
		Name:       "Sortie piscine",
		StudentIDs: []string{f.stdCP.ID},
	})
	require.NoError(t, err)

	t.Run("participant parent sees group and private in own level", func(t *testing.T) {
		convs, err := f.access.VisibleConversations(ctx, f.parentCP, f.primaire)
		require.NoError(t, err)
		assert.Len(t, convs, 2)
		assert.Contains(t, conversationIDs(convs), private.ID)
	})

	t.Run("conversation does not leak into another level", func(t *testing.T) {
		convs, err := f.access.VisibleConversations(ctx, f.parent6e, f.college)
		require.NoError(t, err)
		for _, conv := range convs {
			assert.NotEqual(t, private.ID, conv.ID)
		}
	})

	t.Run("non participant sees nothing", func(t *testing.T) {
		convs, err := f.access.VisibleConversations(ctx, f.nobody, f.primaire)
		require.NoError(t, err)
		assert.Empty(t, convs)
	})

	t.Run("creator sees it", func(t *testing.T) {
		convs, err := f.access.VisibleConversations(ctx, f.teachCP, f.primaire)
		require.NoError(t, err)
		assert.Contains(t, conversationIDs(convs), private.ID)
	})

	t.Run("director sees everything in the level", func(t *testing.T) {
		convs, err := f.access.VisibleConversations(ctx, f.director, f.primaire)
		require.NoError(t, err)
		assert.Len(t, convs, 2)
	})

	t.Run("private thread stays off the other levels' dashboards", func(t *testing.T) {
		// no participant has a child in college, so not even the
		// director finds it there
		convs, err := f.access.VisibleConversations(ctx, f.director, f.college)
		require.NoError(t, err)
		assert.NotContains(t, conversationIDs(convs), private.ID)
	})
}

func TestVisibleConversationsOrderAndCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var last messaging.Conversation
	for i := 0; i < messaging.VisibleConversationsLimit+5; i++ {
		conv, err := f.msgSvc.CreateConversation(ctx, f.teachCP, f.primaire, messaging.NewConversation{
			Name:       "Info",
			StudentIDs: []string{f.stdCP.ID},
		})
		require.NoError(t, err)
		last = conv
	}

	convs, err := f.access.VisibleConversations(ctx, f.parentCP, f.primaire)
	require.NoError(t, err)
	assert.Len(t, convs, messaging.VisibleConversationsLimit)
	// newest activity first
	assert.Equal(t, last.ID, convs[0].ID)
	for i := 1; i < len(convs); i++ {
		assert.False(t, convs[i].LastMessageAt.After(convs[i-1].LastMessageAt))
	}
}

func TestSelectedConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.msgSvc.EnsureGroupConversations(ctx)
	require.NoError(t, err)
	cpConvs, err := f.access.VisibleConversations(ctx, f.parentCP, f.primaire)
	require.NoError(t, err)
	require.Len(t, cpConvs, 1)

	t.Run("explicit visible id is honored", func(t *testing.T) {
		conv, err := f.access.SelectedConversation(ctx, f.parentCP, f.primaire, cpConvs[0].ID)
		require.NoError(t, err)
		assert.Equal(t, cpConvs[0].ID, conv.ID)
	})

	t.Run("unknown id falls back to the most recent", func(t *testing.T) {
		conv, err := f.access.SelectedConversation(ctx, f.parentCP, f.primaire, "nope")
		require.NoError(t, err)
		assert.Equal(t, cpConvs[0].ID, conv.ID)
	})

	t.Run("existing but foreign conversation is denied", func(t *testing.T) {
		collegeConvs, err := f.access.VisibleConversations(ctx, f.parent6e, f.college)
		require.NoError(t, err)
		require.NotEmpty(t, collegeConvs)

		_, err = f.access.SelectedConversation(ctx, f.parentCP, f.primaire, collegeConvs[0].ID)
		assert.ErrorIs(t, err, messaging.ErrPermissionDenied)
	})

	t.Run("nothing visible yields not found", func(t *testing.T) {
		_, err := f.access.SelectedConversation(ctx, f.nobody, f.primaire, "")
		assert.ErrorIs(t, err, messaging.ErrNotFound)
	})
}

func TestCanCreateConversation(t *testing.T) {
	f := newFixture(t)

	assert.False(t, f.access.CanCreateConversation(f.parentCP))
	assert.False(t, f.access.CanCreateConversation(f.nobody))
	assert.True(t, f.access.CanCreateConversation(f.teachCP))
	assert.True(t, f.access.CanCreateConversation(f.director))
}

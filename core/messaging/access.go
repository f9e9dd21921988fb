package messaging

import (
	"context"
	"sort"

	"github.com/MoonNight31/AppCaryamil/core"
	"github.com/MoonNight31/AppCaryamil/core/school"
	"github.com/MoonNight31/AppCaryamil/core/user"
)

// SchoolDirectory is the slice of the school service the access rules need.
type SchoolDirectory interface {
	QueryLevels(ctx context.Context) ([]school.Level, error)
	GetLevelBySlug(ctx context.Context, slug string) (school.Level, error)
	QueryClassrooms(ctx context.Context, filter school.ClassroomFilter, ordering ...core.DBOrdering) ([]school.Classroom, error)
	QueryStudents(ctx context.Context, filter school.StudentFilter, ordering ...core.DBOrdering) ([]school.Student, error)
	QueryStudentParentIDs(ctx context.Context, stdIDs ...string) ([]string, error)
}

// Access resolves what a given user may see and do. Every messenger read goes
// through it; handlers never query conversations directly.
type Access struct {
	school SchoolDirectory
	repo   Repository
}

func NewAccess(dir SchoolDirectory, repo Repository) *Access {
	return &Access{school: dir, repo: repo}
}

// VisibleLevels returns the levels usr may enter: directors see them all,
// teachers the levels of their classrooms, parents the levels of their
// children's classrooms. A user holding several roles gets the union; a user
// with no role gets nothing.
func (a *Access) VisibleLevels(ctx context.Context, usr user.User) ([]school.Level, error) {
	lvls, err := a.school.QueryLevels(ctx)
	if err != nil {
		return nil, err
	}
	if usr.IsAdmin() {
		return lvls, nil
	}

	allowed := make(map[string]bool)
	if usr.IsTeacher() {
		rooms, err := a.school.QueryClassrooms(ctx, school.ClassroomFilter{TeacherID: usr.ID})
		if err != nil {
			return nil, err
		}
		for _, room := range rooms {
			allowed[room.LevelID] = true
		}
	}
	if usr.IsParent() {
		stds, err := a.school.QueryStudents(ctx, school.StudentFilter{ParentID: usr.ID})
		if err != nil {
			return nil, err
		}
		if stdIDs := studentIDs(stds); len(stdIDs) > 0 {
			rooms, err := a.school.QueryClassrooms(ctx, school.ClassroomFilter{StudentIDs: stdIDs})
			if err != nil {
				return nil, err
			}
			for _, room := range rooms {
				allowed[room.LevelID] = true
			}
		}
	}

	visible := lvls[:0:0]
	for _, lvl := range lvls {
		if allowed[lvl.ID] {
			visible = append(visible, lvl)
		}
	}
	return visible, nil
}

// VisibleClassrooms returns the classrooms of lvl that usr is tied to:
// the rooms they teach, the rooms their children are in, or both. Directors
// get every room of the level.
func (a *Access) VisibleClassrooms(ctx context.Context, usr user.User, lvl school.Level) ([]school.Classroom, error) {
	rooms, err := a.school.QueryClassrooms(ctx, school.ClassroomFilter{LevelID: lvl.ID})
	if err != nil {
		return nil, err
	}
	if usr.IsAdmin() {
		return rooms, nil
	}

	allowed := make(map[string]bool)
	if usr.IsTeacher() {
		for _, room := range rooms {
			if room.TeacherID == usr.ID {
				allowed[room.ID] = true
			}
		}
	}
	if usr.IsParent() {
		roomIDs, err := a.childrenClassroomIDs(ctx, usr)
		if err != nil {
			return nil, err
		}
		for id := range roomIDs {
			allowed[id] = true
		}
	}

	visible := rooms[:0:0]
	for _, room := range rooms {
		if allowed[room.ID] {
			visible = append(visible, room)
		}
	}
	return visible, nil
}

// VisibleStudents returns the students usr may see: their own children for
// parents, the students of their rooms for teachers, everyone for directors.
func (a *Access) VisibleStudents(ctx context.Context, usr user.User) ([]school.Student, error) {
	if usr.IsAdmin() {
		return a.school.QueryStudents(ctx, school.StudentFilter{})
	}

	seen := make(map[string]bool)
	var visible []school.Student
	if usr.IsParent() {
		stds, err := a.school.QueryStudents(ctx, school.StudentFilter{ParentID: usr.ID})
		if err != nil {
			return nil, err
		}
		for _, std := range stds {
			if !seen[std.ID] {
				seen[std.ID] = true
				visible = append(visible, std)
			}
		}
	}
	if usr.IsTeacher() {
		rooms, err := a.school.QueryClassrooms(ctx, school.ClassroomFilter{TeacherID: usr.ID})
		if err != nil {
			return nil, err
		}
		for _, room := range rooms {
			stds, err := a.school.QueryStudents(ctx, school.StudentFilter{ClassroomIDs: []string{room.ID}})
			if err != nil {
				return nil, err
			}
			for _, std := range stds {
				if !seen[std.ID] {
					seen[std.ID] = true
					visible = append(visible, std)
				}
			}
		}
	}
	return visible, nil
}

// VisibleConversations returns the conversations usr may read within lvl,
// most recently active first, capped at VisibleConversationsLimit.
//
// A conversation belongs to lvl either through its classroom, or, when it has
// no classroom, through a participant with a child schooled in lvl. This
// holds for directors too: each level's dashboard only carries the threads
// of its own families. Non-directors must also be a participant or the
// creator.
func (a *Access) VisibleConversations(ctx context.Context, usr user.User, lvl school.Level) ([]Conversation, error) {
	var convs []Conversation
	var err error
	if usr.IsAdmin() {
		convs, err = a.repo.QueryConversations(ctx, ConversationFilter{})
	} else if usr.IsTeacher() || usr.IsParent() {
		convs, err = a.queryInvolvedConversations(ctx, usr)
	} else {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	levelRooms, err := a.levelClassroomIDs(ctx, lvl)
	if err != nil {
		return nil, err
	}
	levelParents, err := a.levelParentIDs(ctx, lvl)
	if err != nil {
		return nil, err
	}

	visible := convs[:0:0]
	for _, conv := range convs {
		switch {
		case conv.ClassroomID != "":
			if levelRooms[conv.ClassroomID] {
				visible = append(visible, conv)
			}
		default:
			if hasParticipantIn(conv, levelParents) {
				visible = append(visible, conv)
			}
		}
	}

	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].LastMessageAt.After(visible[j].LastMessageAt)
	})
	if len(visible) > VisibleConversationsLimit {
		visible = visible[:VisibleConversationsLimit]
	}
	return visible, nil
}

// SelectedConversation resolves the conversation to open in lvl's messenger.
// An empty or unknown convID falls back to the most recently active visible
// conversation; an existing conversation the user may not read yields
// ErrPermissionDenied.
func (a *Access) SelectedConversation(ctx context.Context, usr user.User, lvl school.Level, convID string) (Conversation, error) {
	visible, err := a.VisibleConversations(ctx, usr, lvl)
	if err != nil {
		return Conversation{}, err
	}
	if convID != "" {
		for _, conv := range visible {
			if conv.ID == convID {
				return conv, nil
			}
		}
		if _, err := a.repo.GetConversationByID(ctx, convID); err == nil {
			return Conversation{}, ErrPermissionDenied
		}
	}
	if len(visible) == 0 {
		return Conversation{}, ErrNotFound
	}
	return visible[0], nil
}

// CanCreateConversation reports whether usr may open new conversations.
// Parents cannot; they only take part in conversations staff opened.
func (a *Access) CanCreateConversation(usr user.User) bool {
	return usr.IsTeacher() || usr.IsAdmin()
}

// CanAddParticipants reports whether usr may grow conv's audience.
func (a *Access) CanAddParticipants(usr user.User, conv Conversation) bool {
	return usr.IsAdmin() || conv.CreatedByID == usr.ID || conv.HasParticipant(usr.ID)
}

// CanPost reports whether usr may publish in conv.
func (a *Access) CanPost(usr user.User, conv Conversation) bool {
	return usr.IsAdmin() || conv.CreatedByID == usr.ID || conv.HasParticipant(usr.ID)
}

func (a *Access) queryInvolvedConversations(ctx context.Context, usr user.User) ([]Conversation, error) {
	asParticipant, err := a.repo.QueryConversations(ctx, ConversationFilter{ParticipantID: usr.ID})
	if err != nil {
		return nil, err
	}
	asCreator, err := a.repo.QueryConversations(ctx, ConversationFilter{CreatedByID: usr.ID})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(asParticipant))
	convs := asParticipant
	for _, conv := range asParticipant {
		seen[conv.ID] = true
	}
	for _, conv := range asCreator {
		if !seen[conv.ID] {
			convs = append(convs, conv)
		}
	}
	return convs, nil
}

func studentIDs(stds []school.Student) []string {
	ids := make([]string, 0, len(stds))
	for _, std := range stds {
		ids = append(ids, std.ID)
	}
	return ids
}

// childrenClassroomIDs returns the classrooms usr's children are assigned to.
func (a *Access) childrenClassroomIDs(ctx context.Context, usr user.User) (map[string]bool, error) {
	stds, err := a.school.QueryStudents(ctx, school.StudentFilter{ParentID: usr.ID})
	if err != nil {
		return nil, err
	}
	roomIDs := make(map[string]bool, len(stds))
	for _, std := range stds {
		if std.ClassroomID != "" {
			roomIDs[std.ClassroomID] = true
		}
	}
	return roomIDs, nil
}

func (a *Access) levelClassroomIDs(ctx context.Context, lvl school.Level) (map[string]bool, error) {
	rooms, err := a.school.QueryClassrooms(ctx, school.ClassroomFilter{LevelID: lvl.ID})
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(rooms))
	for _, room := range rooms {
		ids[room.ID] = true
	}
	return ids, nil
}

// levelParentIDs returns the users with a child schooled in lvl.
func (a *Access) levelParentIDs(ctx context.Context, lvl school.Level) (map[string]bool, error) {
	stds, err := a.school.QueryStudents(ctx, school.StudentFilter{LevelID: lvl.ID})
	if err != nil {
		return nil, err
	}
	parents := make(map[string]bool)
	for _, std := range stds {
		for _, pid := range std.ParentIDs {
			parents[pid] = true
		}
	}
	return parents, nil
}

func hasParticipantIn(conv Conversation, usrIDs map[string]bool) bool {
	for _, id := range conv.ParticipantIDs {
		if usrIDs[id] {
			return true
		}
	}
	return false
}

package school_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MoonNight31/AppCaryamil/core"
	"github.com/MoonNight31/AppCaryamil/core/school"
	"github.com/MoonNight31/AppCaryamil/core/user"
	inmemdb "github.com/MoonNight31/AppCaryamil/storage/database/inmem"
)

func newService(t *testing.T) (*school.Service, user.Repository) {
	t.Helper()
	db, err := inmemdb.Open()
	require.NoError(t, err)
	usrRepo := inmemdb.NewUserRepository(db)
	return school.NewService(inmemdb.NewSchoolRepository(db), usrRepo), usrRepo
}

func createUser(t *testing.T, repo user.Repository, uname string, set func(*user.User)) user.User {
	t.Helper()
	usr := user.User{Username: uname, Active: true}
	if set != nil {
		set(&usr)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	require.NoError(t, err)
	return usr
}

func createParent(t *testing.T, repo user.Repository, uname string) user.User {
	return createUser(t, repo, uname, func(u *user.User) { u.Parent = true })
}

func createTeacher(t *testing.T, repo user.Repository, uname string) user.User {
	return createUser(t, repo, uname, func(u *user.User) { u.Teacher = true })
}

func TestCreateLevelRejectsDuplicateSlug(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.CreateLevel(ctx, school.NewLevel{Name: "Primaire", Slug: "primaire"})
	require.NoError(t, err)

	_, err = svc.CreateLevel(ctx, school.NewLevel{Name: "Primaire bis", Slug: "Primaire"})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestSetClassroomsTeacher(t *testing.T) {
	svc, usrRepo := newService(t)
	ctx := context.Background()

	teacher := createTeacher(t, usrRepo, "prof")
	lvl, err := svc.CreateLevel(ctx, school.NewLevel{Name: "Primaire", Slug: "primaire"})
	require.NoError(t, err)
	roomA, err := svc.CreateClassroom(ctx, school.NewClassroom{LevelID: lvl.ID, Name: "CP A", TeacherID: teacher.ID})
	require.NoError(t, err)
	roomB, err := svc.CreateClassroom(ctx, school.NewClassroom{LevelID: lvl.ID, Name: "CP B"})
	require.NoError(t, err)

	// reassignment replaces the previous set, it does not extend it
	require.NoError(t, svc.SetClassroomsTeacher(ctx, teacher.ID, roomB.ID))

	roomA, err = svc.GetClassroomByID(ctx, roomA.ID)
	require.NoError(t, err)
	assert.Empty(t, roomA.TeacherID)

	roomB, err = svc.GetClassroomByID(ctx, roomB.ID)
	require.NoError(t, err)
	assert.Equal(t, teacher.ID, roomB.TeacherID)
}

func TestClassroomTeacherMustBeTeacher(t *testing.T) {
	svc, usrRepo := newService(t)
	ctx := context.Background()

	parent := createParent(t, usrRepo, "maman")
	teacher := createTeacher(t, usrRepo, "prof")
	lvl, err := svc.CreateLevel(ctx, school.NewLevel{Name: "Primaire", Slug: "primaire"})
	require.NoError(t, err)

	var vErr *core.ValidationError
	_, err = svc.CreateClassroom(ctx, school.NewClassroom{LevelID: lvl.ID, Name: "CP A", TeacherID: parent.ID})
	require.ErrorAs(t, err, &vErr)

	room, err := svc.CreateClassroom(ctx, school.NewClassroom{LevelID: lvl.ID, Name: "CP A", TeacherID: teacher.ID})
	require.NoError(t, err)

	_, err = svc.UpdateClassroom(ctx, room.ID, school.UpdateClassroom{TeacherID: &parent.ID})
	require.ErrorAs(t, err, &vErr)

	// unknown accounts are rejected too
	bogus := "nope"
	_, err = svc.UpdateClassroom(ctx, room.ID, school.UpdateClassroom{TeacherID: &bogus})
	require.ErrorAs(t, err, &vErr)
}

func TestStudentParents(t *testing.T) {
	svc, usrRepo := newService(t)
	ctx := context.Background()

	p1 := createParent(t, usrRepo, "p1")
	p2 := createParent(t, usrRepo, "p2")

	std, err := svc.CreateStudent(ctx, school.NewStudent{
		FirstName: "Lina",
		LastName:  "Abad",
		ParentIDs: []string{p1.ID, p2.ID, p1.ID},
	})
	require.NoError(t, err)

	std, err = svc.GetStudentByID(ctx, std.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{p1.ID, p2.ID}, std.ParentIDs)

	ids, err := svc.QueryStudentParentIDs(ctx, std.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{p1.ID, p2.ID}, ids)
}

func TestStudentParentsMustBeParents(t *testing.T) {
	svc, usrRepo := newService(t)
	ctx := context.Background()

	teacher := createTeacher(t, usrRepo, "prof")
	parent := createParent(t, usrRepo, "maman")

	var vErr *core.ValidationError
	_, err := svc.CreateStudent(ctx, school.NewStudent{FirstName: "Lina", LastName: "Abad", ParentIDs: []string{teacher.ID}})
	require.ErrorAs(t, err, &vErr)

	std, err := svc.CreateStudent(ctx, school.NewStudent{FirstName: "Lina", LastName: "Abad", ParentIDs: []string{parent.ID}})
	require.NoError(t, err)

	err = svc.SetStudentParents(ctx, std.ID, teacher.ID)
	require.ErrorAs(t, err, &vErr)

	_, err = svc.UpdateStudent(ctx, std.ID, school.UpdateStudent{ParentIDs: []string{teacher.ID}})
	require.ErrorAs(t, err, &vErr)
}

func TestQueryStudentParentIDsIsAUnion(t *testing.T) {
	svc, usrRepo := newService(t)
	ctx := context.Background()

	p1 := createParent(t, usrRepo, "p1")
	p2 := createParent(t, usrRepo, "p2")
	p3 := createParent(t, usrRepo, "p3")

	// siblings share p1
	a, err := svc.CreateStudent(ctx, school.NewStudent{FirstName: "Lina", LastName: "Abad", ParentIDs: []string{p1.ID, p2.ID}})
	require.NoError(t, err)
	b, err := svc.CreateStudent(ctx, school.NewStudent{FirstName: "Emma", LastName: "Abad", ParentIDs: []string{p1.ID, p3.ID}})
	require.NoError(t, err)

	ids, err := svc.QueryStudentParentIDs(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{p1.ID, p2.ID, p3.ID}, ids)
}

func TestDeleteClassroomKeepsStudents(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	lvl, err := svc.CreateLevel(ctx, school.NewLevel{Name: "Primaire", Slug: "primaire"})
	require.NoError(t, err)
	room, err := svc.CreateClassroom(ctx, school.NewClassroom{LevelID: lvl.ID, Name: "CP A"})
	require.NoError(t, err)
	std, err := svc.CreateStudent(ctx, school.NewStudent{FirstName: "Lina", LastName: "Abad", ClassroomID: room.ID})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteClassroom(ctx, room.ID))

	std, err = svc.GetStudentByID(ctx, std.ID)
	require.NoError(t, err)
	assert.Empty(t, std.ClassroomID)
}

func TestUpdateStudentValidatesClassroom(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	std, err := svc.CreateStudent(ctx, school.NewStudent{FirstName: "Lina", LastName: "Abad"})
	require.NoError(t, err)

	bogus := "nope"
	_, err = svc.UpdateStudent(ctx, std.ID, school.UpdateStudent{ClassroomID: &bogus})
	require.Error(t, err)

	// detaching is always allowed
	empty := ""
	std, err = svc.UpdateStudent(ctx, std.ID, school.UpdateStudent{ClassroomID: &empty})
	require.NoError(t, err)
	assert.Empty(t, std.ClassroomID)
}

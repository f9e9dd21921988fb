package echoapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MoonNight31/AppCaryamil/core/school"
	"github.com/MoonNight31/AppCaryamil/core/user"
)

func (app *testApp) createLevel(t *testing.T, name, slug string) school.Level {
	t.Helper()
	lvl, err := app.schSvc.CreateLevel(context.Background(), school.NewLevel{Name: name, Slug: slug})
	require.NoError(t, err)
	return lvl
}

func (app *testApp) createClassroom(t *testing.T, lvl school.Level, name, teacherID string) school.Classroom {
	t.Helper()
	room, err := app.schSvc.CreateClassroom(context.Background(), school.NewClassroom{
		LevelID:   lvl.ID,
		TeacherID: teacherID,
		Name:      name,
	})
	require.NoError(t, err)
	return room
}

func (app *testApp) createStudent(t *testing.T, room school.Classroom, first, last string, parentIDs ...string) school.Student {
	t.Helper()
	std, err := app.schSvc.CreateStudent(context.Background(), school.NewStudent{
		FirstName:   first,
		LastName:    last,
		ClassroomID: room.ID,
		ParentIDs:   parentIDs,
	})
	require.NoError(t, err)
	return std
}

func Test_schoolApi_levels(t *testing.T) {
	app := setupApp(t)
	director := app.createUser(t, "dir", func(u *user.User) { u.Director = true })
	teacher := app.createUser(t, "prof", func(u *user.User) { u.Teacher = true })
	parent := app.createUser(t, "parent", func(u *user.User) { u.Parent = true })

	primaire := app.createLevel(t, "Primaire", school.SlugPrimaire)
	college := app.createLevel(t, "Collège", school.SlugCollege)
	cp := app.createClassroom(t, primaire, "CP", teacher.ID)
	app.createStudent(t, cp, "Aminata", "Keïta", parent.ID)

	listLevels := func(t *testing.T, tok string) []school.Level {
		rec := app.request(http.MethodGet, "/v1/school/levels", tok)
		requireCode(t, rec, http.StatusOK)
		var lvls []school.Level
		decodeBody(t, rec, &lvls)
		return lvls
	}

	t.Run("requires auth", func(t *testing.T) {
		rec := app.request(http.MethodGet, "/v1/school/levels", "")
		requireCode(t, rec, http.StatusUnauthorized)
	})

	t.Run("admin sees all levels", func(t *testing.T) {
		assert.Len(t, listLevels(t, app.token(t, director)), 2)
	})

	t.Run("teacher sees taught levels only", func(t *testing.T) {
		lvls := listLevels(t, app.token(t, teacher))
		require.Len(t, lvls, 1)
		assert.Equal(t, primaire.ID, lvls[0].ID)
	})

	t.Run("parent sees levels of their children", func(t *testing.T) {
		lvls := listLevels(t, app.token(t, parent))
		require.Len(t, lvls, 1)
		assert.Equal(t, primaire.ID, lvls[0].ID)
	})

	t.Run("create requires admin", func(t *testing.T) {
		body := marshalObj(t, school.NewLevel{Name: "Maternelle", Slug: school.SlugMaternelle})
		rec := app.request(http.MethodPost, "/v1/school/levels", app.token(t, teacher), body)
		requireCode(t, rec, http.StatusForbidden)

		rec = app.request(http.MethodPost, "/v1/school/levels", app.token(t, director), body)
		requireCode(t, rec, http.StatusCreated)
	})

	t.Run("duplicate slug rejected", func(t *testing.T) {
		body := marshalObj(t, school.NewLevel{Name: "Collège bis", Slug: college.Slug})
		rec := app.request(http.MethodPost, "/v1/school/levels", app.token(t, director), body)
		requireCode(t, rec, http.StatusBadRequest)
	})
}

func Test_schoolApi_classrooms(t *testing.T) {
	app := setupApp(t)
	director := app.createUser(t, "dir", func(u *user.User) { u.Director = true })
	teacher := app.createUser(t, "prof", func(u *user.User) { u.Teacher = true })
	parent := app.createUser(t, "parent", func(u *user.User) { u.Parent = true })

	primaire := app.createLevel(t, "Primaire", school.SlugPrimaire)
	cp := app.createClassroom(t, primaire, "CP", teacher.ID)
	ce1 := app.createClassroom(t, primaire, "CE1", "")
	app.createStudent(t, ce1, "Sékou", "Traoré", parent.ID)

	t.Run("level classrooms scoped to caller", func(t *testing.T) {
		rec := app.request(http.MethodGet, "/v1/school/levels/"+primaire.Slug+"/classrooms", app.token(t, teacher))
		requireCode(t, rec, http.StatusOK)

		var rooms []school.Classroom
		decodeBody(t, rec, &rooms)
		require.Len(t, rooms, 1)
		assert.Equal(t, cp.ID, rooms[0].ID)
	})

	t.Run("unknown level is a 404", func(t *testing.T) {
		rec := app.request(http.MethodGet, "/v1/school/levels/lycee/classrooms", app.token(t, director))
		requireCode(t, rec, http.StatusNotFound)
	})

	t.Run("create and update", func(t *testing.T) {
		body := marshalObj(t, school.NewClassroom{LevelID: primaire.ID, Name: "CE2"})
		rec := app.request(http.MethodPost, "/v1/school/classrooms", app.token(t, director), body)
		requireCode(t, rec, http.StatusCreated)

		var room school.Classroom
		decodeBody(t, rec, &room)

		name := "CE2 B"
		rec = app.request(http.MethodPut, "/v1/school/classrooms/"+room.ID, app.token(t, director),
			marshalObj(t, school.UpdateClassroom{Name: &name}))
		requireCode(t, rec, http.StatusOK)
		decodeBody(t, rec, &room)
		assert.Equal(t, "CE2 B", room.Name)
	})

	t.Run("reassign teacher in bulk", func(t *testing.T) {
		body := marshalObj(t, SetClassroomsRequest{ClassroomIDs: []string{ce1.ID}})
		rec := app.request(http.MethodPut, "/v1/school/teachers/"+teacher.ID+"/classrooms", app.token(t, director), body)
		requireCode(t, rec, http.StatusOK)

		var rooms []school.Classroom
		decodeBody(t, rec, &rooms)
		require.Len(t, rooms, 1)
		assert.Equal(t, ce1.ID, rooms[0].ID)
	})

	t.Run("cannot assign rooms to a parent", func(t *testing.T) {
		body := marshalObj(t, SetClassroomsRequest{ClassroomIDs: []string{cp.ID}})
		rec := app.request(http.MethodPut, "/v1/school/teachers/"+parent.ID+"/classrooms", app.token(t, director), body)
		requireCode(t, rec, http.StatusBadRequest)
	})

	t.Run("parents roster for staff", func(t *testing.T) {
		rec := app.request(http.MethodGet, "/v1/school/classrooms/"+ce1.ID+"/parents", app.token(t, teacher))
		requireCode(t, rec, http.StatusOK)

		var roster []ClassroomFamily
		decodeBody(t, rec, &roster)
		require.Len(t, roster, 1)
		require.Len(t, roster[0].Parents, 1)
		assert.Equal(t, parent.ID, roster[0].Parents[0].ID)
	})

	t.Run("parents roster hidden from parents", func(t *testing.T) {
		rec := app.request(http.MethodGet, "/v1/school/classrooms/"+ce1.ID+"/parents", app.token(t, parent))
		requireCode(t, rec, http.StatusForbidden)
	})
}

func Test_schoolApi_students(t *testing.T) {
	app := setupApp(t)
	director := app.createUser(t, "dir", func(u *user.User) { u.Director = true })
	teacher := app.createUser(t, "prof", func(u *user.User) { u.Teacher = true })
	parent := app.createUser(t, "parent", func(u *user.User) { u.Parent = true })
	otherParent := app.createUser(t, "parent2", func(u *user.User) { u.Parent = true })

	primaire := app.createLevel(t, "Primaire", school.SlugPrimaire)
	cp := app.createClassroom(t, primaire, "CP", teacher.ID)
	mine := app.createStudent(t, cp, "Aminata", "Keïta", parent.ID)
	app.createStudent(t, cp, "Mariam", "Cissé", otherParent.ID)

	t.Run("parent sees own children only", func(t *testing.T) {
		rec := app.request(http.MethodGet, "/v1/school/students", app.token(t, parent))
		requireCode(t, rec, http.StatusOK)

		var stds []school.Student
		decodeBody(t, rec, &stds)
		require.Len(t, stds, 1)
		assert.Equal(t, mine.ID, stds[0].ID)
	})

	t.Run("teacher sees the whole classroom", func(t *testing.T) {
		rec := app.request(http.MethodGet, "/v1/school/students", app.token(t, teacher))
		requireCode(t, rec, http.StatusOK)

		var stds []school.Student
		decodeBody(t, rec, &stds)
		assert.Len(t, stds, 2)
	})

	t.Run("admin filters by classroom", func(t *testing.T) {
		rec := app.request(http.MethodGet, "/v1/school/students?classroom_id="+cp.ID, app.token(t, director))
		requireCode(t, rec, http.StatusOK)

		var stds []school.Student
		decodeBody(t, rec, &stds)
		assert.Len(t, stds, 2)
	})

	t.Run("create requires admin", func(t *testing.T) {
		body := marshalObj(t, school.NewStudent{FirstName: "Moussa", LastName: "Diarra", ClassroomID: cp.ID})
		rec := app.request(http.MethodPost, "/v1/school/students", app.token(t, teacher), body)
		requireCode(t, rec, http.StatusForbidden)

		rec = app.request(http.MethodPost, "/v1/school/students", app.token(t, director), body)
		requireCode(t, rec, http.StatusCreated)
	})

	t.Run("reassign parents", func(t *testing.T) {
		body := marshalObj(t, SetParentsRequest{ParentIDs: []string{parent.ID, otherParent.ID}})
		rec := app.request(http.MethodPut, "/v1/school/students/"+mine.ID+"/parents", app.token(t, director), body)
		requireCode(t, rec, http.StatusOK)

		var std school.Student
		decodeBody(t, rec, &std)
		assert.ElementsMatch(t, []string{parent.ID, otherParent.ID}, std.ParentIDs)
	})

	t.Run("photo upload by staff", func(t *testing.T) {
		rec := app.formRequest(http.MethodPost, "/v1/school/students/"+mine.ID+"/photo", app.token(t, teacher),
			nil, map[string]string{"photo": "aminata.jpg"})
		requireCode(t, rec, http.StatusOK)

		var std school.Student
		decodeBody(t, rec, &std)
		assert.NotEmpty(t, std.PhotoURL)
		assert.Len(t, app.storage.saved, 1)
	})

	t.Run("photo field required", func(t *testing.T) {
		rec := app.formRequest(http.MethodPost, "/v1/school/students/"+mine.ID+"/photo", app.token(t, teacher), nil, nil)
		requireCode(t, rec, http.StatusBadRequest)
	})

	t.Run("delete", func(t *testing.T) {
		rec := app.request(http.MethodDelete, "/v1/school/students/"+mine.ID, app.token(t, director))
		requireCode(t, rec, http.StatusNoContent)
	})
}

func Test_schoolApi_stats(t *testing.T) {
	app := setupApp(t)
	director := app.createUser(t, "dir", func(u *user.User) { u.Director = true })
	teacher := app.createUser(t, "prof", func(u *user.User) { u.Teacher = true })

	primaire := app.createLevel(t, "Primaire", school.SlugPrimaire)
	cp := app.createClassroom(t, primaire, "CP", teacher.ID)
	app.createStudent(t, cp, "Aminata", "Keïta")

	t.Run("admin only", func(t *testing.T) {
		rec := app.request(http.MethodGet, "/v1/admin/stats", app.token(t, teacher))
		requireCode(t, rec, http.StatusForbidden)
	})

	t.Run("counts", func(t *testing.T) {
		rec := app.request(http.MethodGet, "/v1/admin/stats", app.token(t, director))
		requireCode(t, rec, http.StatusOK)

		var stats AdminStats
		decodeBody(t, rec, &stats)
		assert.Equal(t, 2, stats.Users)
		assert.Equal(t, 1, stats.Levels)
		assert.Equal(t, 1, stats.Classrooms)
		assert.Equal(t, 1, stats.Students)
		assert.Equal(t, 0, stats.UnreadMessages)
		assert.Empty(t, stats.RecentPosts)
		require.Len(t, stats.RecentStudents, 1)
		assert.Equal(t, "Aminata", stats.RecentStudents[0].FirstName)
	})
}

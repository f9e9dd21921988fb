package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/MoonNight31/AppCaryamil/core"
	"github.com/MoonNight31/AppCaryamil/core/messaging"
	"github.com/MoonNight31/AppCaryamil/core/school"
	"github.com/MoonNight31/AppCaryamil/core/user"
)

type schoolApi struct {
	svc     *school.Service
	usrSvc  *user.Service
	msgSvc  *messaging.Service
	storage core.FileStorage
}

func registerSchoolAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *school.Service,
	usrSvc *user.Service,
	msgSvc *messaging.Service,
	storage core.FileStorage,
) {
	api := schoolApi{svc: svc, usrSvc: usrSvc, msgSvc: msgSvc, storage: storage}

	sg := g.Group("/school", jwt)

	sg.GET("/levels", api.queryLevels)
	sg.POST("/levels", api.createLevel, adminMiddleware())
	sg.GET("/levels/:slug/classrooms", api.queryLevelClassrooms)

	sg.GET("/classrooms", api.queryClassrooms, adminMiddleware())
	sg.POST("/classrooms", api.createClassroom, adminMiddleware())
	sg.PUT("/classrooms/:id", api.updateClassroom, adminMiddleware())
	sg.DELETE("/classrooms/:id", api.destroyClassroom, adminMiddleware())
	sg.GET("/classrooms/:id/parents", api.queryClassroomParents, staffMiddleware())
	sg.PUT("/teachers/:id/classrooms", api.setTeacherClassrooms, adminMiddleware())

	sg.GET("/students", api.queryStudents)
	sg.POST("/students", api.createStudent, adminMiddleware())
	sg.PUT("/students/:id", api.updateStudent, adminMiddleware())
	sg.DELETE("/students/:id", api.destroyStudent, adminMiddleware())
	sg.PUT("/students/:id/parents", api.setStudentParents, adminMiddleware())
	sg.POST("/students/:id/photo", api.uploadStudentPhoto, staffMiddleware())

	g.GET("/admin/stats", api.stats, jwt, adminMiddleware())
}

// Handlers

// queryLevels lists the levels the caller may enter, not the full table.
func (api *schoolApi) queryLevels(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	lvls, err := api.msgSvc.Access().VisibleLevels(ctx.Request().Context(), ctxUsr)
	if err != nil {
		return errors.Wrap(err, "querying visible levels")
	}
	if lvls == nil {
		lvls = []school.Level{}
	}
	return ctx.JSON(http.StatusOK, lvls)
}

func (api *schoolApi) createLevel(ctx echo.Context) error {
	var data school.NewLevel
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLevel")
	}
	lvl, err := api.svc.CreateLevel(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, lvl)
}

func (api *schoolApi) queryLevelClassrooms(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	lvl, err := api.svc.GetLevelBySlug(reqCtx, ctx.Param("slug"))
	if err != nil {
		return err
	}

	rooms, err := api.msgSvc.Access().VisibleClassrooms(reqCtx, ctxUsr, lvl)
	if err != nil {
		return errors.Wrap(err, "querying visible classrooms")
	}
	if rooms == nil {
		rooms = []school.Classroom{}
	}
	return ctx.JSON(http.StatusOK, rooms)
}

func (api *schoolApi) queryClassrooms(ctx echo.Context) error {
	var filter school.ClassroomFilter
	filter.LevelID = ctx.QueryParam("level_id")
	filter.TeacherID = ctx.QueryParam("teacher_id")
	filter.Search = ctx.QueryParam("search")

	var ord Ordering
	ord.Bind(ctx)

	rooms, err := api.svc.QueryClassrooms(ctx.Request().Context(), filter, ord.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying classrooms")
	}
	if rooms == nil {
		rooms = []school.Classroom{}
	}
	return ctx.JSON(http.StatusOK, rooms)
}

func (api *schoolApi) createClassroom(ctx echo.Context) error {
	var data school.NewClassroom
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClassroom")
	}
	room, err := api.svc.CreateClassroom(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, room)
}

func (api *schoolApi) updateClassroom(ctx echo.Context) error {
	var data school.UpdateClassroom
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClassroom")
	}
	room, err := api.svc.UpdateClassroom(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, room)
}

func (api *schoolApi) destroyClassroom(ctx echo.Context) error {
	if _, err := api.svc.GetClassroomByID(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	if err := api.svc.DeleteClassroom(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting classroom")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// queryClassroomParents returns the room's families: each student with
// their parent accounts, for the teacher's contact roster.
func (api *schoolApi) queryClassroomParents(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	room, err := api.svc.GetClassroomByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}

	stds, err := api.svc.QueryStudents(reqCtx, school.StudentFilter{ClassroomIDs: []string{room.ID}})
	if err != nil {
		return errors.Wrap(err, "querying students")
	}

	roster := make([]ClassroomFamily, 0, len(stds))
	for _, std := range stds {
		family := ClassroomFamily{Student: std, Parents: []user.User{}}
		for _, pid := range std.ParentIDs {
			parent, err := api.usrSvc.GetByID(reqCtx, pid)
			if err != nil {
				if errors.Cause(err) == user.ErrNotFound {
					continue
				}
				return errors.Wrap(err, "getting parent")
			}
			family.Parents = append(family.Parents, parent)
		}
		roster = append(roster, family)
	}
	return ctx.JSON(http.StatusOK, roster)
}

func (api *schoolApi) setTeacherClassrooms(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	usr, err := api.usrSvc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}
	if !usr.IsTeacher() {
		return core.NewValidationError(nil, core.FieldError{Field: "id", Error: "user is not a teacher"})
	}

	var data SetClassroomsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetClassroomsRequest")
	}
	if err := api.svc.SetClassroomsTeacher(reqCtx, usr.ID, data.ClassroomIDs...); err != nil {
		return err
	}

	rooms, err := api.svc.QueryClassrooms(reqCtx, school.ClassroomFilter{TeacherID: usr.ID})
	if err != nil {
		return errors.Wrap(err, "querying classrooms")
	}
	if rooms == nil {
		rooms = []school.Classroom{}
	}
	return ctx.JSON(http.StatusOK, rooms)
}

// queryStudents lists the students the caller may see; admins may narrow the
// listing with filters.
func (api *schoolApi) queryStudents(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var stds []school.Student
	if ctxUsr.IsAdmin() {
		var filter school.StudentFilter
		filter.LevelID = ctx.QueryParam("level_id")
		filter.Search = ctx.QueryParam("search")
		if roomID := ctx.QueryParam("classroom_id"); roomID != "" {
			filter.ClassroomIDs = []string{roomID}
		}
		var ord Ordering
		ord.Bind(ctx)
		stds, err = api.svc.QueryStudents(reqCtx, filter, ord.Orderings...)
	} else {
		stds, err = api.msgSvc.Access().VisibleStudents(reqCtx, ctxUsr)
	}
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if stds == nil {
		stds = []school.Student{}
	}
	return ctx.JSON(http.StatusOK, stds)
}

func (api *schoolApi) createStudent(ctx echo.Context) error {
	var data school.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	std, err := api.svc.CreateStudent(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, std)
}

func (api *schoolApi) updateStudent(ctx echo.Context) error {
	var data school.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	std, err := api.svc.UpdateStudent(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *schoolApi) destroyStudent(ctx echo.Context) error {
	if _, err := api.svc.GetStudentByID(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	if err := api.svc.DeleteStudent(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *schoolApi) setStudentParents(ctx echo.Context) error {
	var data SetParentsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetParentsRequest")
	}

	reqCtx := ctx.Request().Context()
	if err := api.svc.SetStudentParents(reqCtx, ctx.Param("id"), data.ParentIDs...); err != nil {
		return err
	}
	std, err := api.svc.GetStudentByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *schoolApi) uploadStudentPhoto(ctx echo.Context) error {
	fh, err := ctx.FormFile("photo")
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "photo", Error: "this field is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening upload")
	}
	defer func() { _ = f.Close() }()

	url, err := api.storage.Save(f, "students/"+time.Now().Format("2006"), fh.Filename)
	if err != nil {
		return errors.Wrap(err, "saving photo")
	}

	std, err := api.svc.SetStudentPhoto(ctx.Request().Context(), ctx.Param("id"), url)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, std)
}

// stats backs the direction dashboard.
func (api *schoolApi) stats(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	var s AdminStats
	var err error
	if s.Users, err = api.usrSvc.Count(reqCtx, user.QueryFilter{}); err != nil {
		return errors.Wrap(err, "counting users")
	}
	if s.Levels, err = api.svc.CountLevels(reqCtx); err != nil {
		return errors.Wrap(err, "counting levels")
	}
	if s.Classrooms, err = api.svc.CountClassrooms(reqCtx); err != nil {
		return errors.Wrap(err, "counting classrooms")
	}
	if s.Students, err = api.svc.CountStudents(reqCtx); err != nil {
		return errors.Wrap(err, "counting students")
	}
	if s.Conversations, err = api.msgSvc.CountConversations(reqCtx); err != nil {
		return errors.Wrap(err, "counting conversations")
	}
	if s.Posts, err = api.msgSvc.CountPosts(reqCtx); err != nil {
		return errors.Wrap(err, "counting posts")
	}
	if s.Messages, err = api.msgSvc.CountMessages(reqCtx); err != nil {
		return errors.Wrap(err, "counting messages")
	}
	if s.UnreadMessages, err = api.msgSvc.CountAllUnreadMessages(reqCtx); err != nil {
		return errors.Wrap(err, "counting unread messages")
	}
	if s.RecentPosts, err = api.msgSvc.RecentPosts(reqCtx, recentItemsLimit); err != nil {
		return errors.Wrap(err, "querying recent posts")
	}
	if s.RecentPosts == nil {
		s.RecentPosts = []messaging.Post{}
	}
	if s.RecentStudents, err = api.svc.RecentStudents(reqCtx, recentItemsLimit); err != nil {
		return errors.Wrap(err, "querying recent students")
	}
	if s.RecentStudents == nil {
		s.RecentStudents = []school.Student{}
	}
	return ctx.JSON(http.StatusOK, s)
}

type (
	ClassroomFamily struct {
		Student school.Student `json:"student"`
		Parents []user.User    `json:"parents"`
	}

	SetClassroomsRequest struct {
		ClassroomIDs []string `json:"classroom_ids"`
	}

	SetParentsRequest struct {
		ParentIDs []string `json:"parent_ids"`
	}

	AdminStats struct {
		Users          int              `json:"users"`
		Levels         int              `json:"levels"`
		Classrooms     int              `json:"classrooms"`
		Students       int              `json:"students"`
		Conversations  int              `json:"conversations"`
		Posts          int              `json:"posts"`
		Messages       int              `json:"messages"`
		UnreadMessages int              `json:"unread_messages"`
		RecentPosts    []messaging.Post `json:"recent_posts"`
		RecentStudents []school.Student `json:"recent_students"`
	}
)

package school

import (
	"context"

	"github.com/pkg/errors"

	"github.com/MoonNight31/AppCaryamil/core"
	"github.com/MoonNight31/AppCaryamil/core/user"
)

var (
	ErrLevelNotFound     = errors.New("level not found")
	ErrClassroomNotFound = errors.New("classroom not found")
	ErrStudentNotFound   = errors.New("student not found")
	ErrSlugExists        = errors.New("a level with this slug already exists")
)

type (
	Repository interface {
		QueryLevels(ctx context.Context, ordering ...core.DBOrdering) ([]Level, error)
		GetLevelByID(ctx context.Context, id string) (Level, error)
		GetLevelBySlug(ctx context.Context, slug string) (Level, error)
		CreateLevel(ctx context.Context, lvl Level) (Level, error)
		UpdateLevel(ctx context.Context, lvl Level) error

		QueryClassrooms(ctx context.Context, filter ClassroomFilter, ordering ...core.DBOrdering) ([]Classroom, error)
		GetClassroomByID(ctx context.Context, id string) (Classroom, error)
		CreateClassroom(ctx context.Context, room Classroom) (Classroom, error)
		UpdateClassroom(ctx context.Context, room Classroom) error
		DeleteClassroomsByID(ctx context.Context, ids ...string) error
		// SetClassroomsTeacher detaches usrID from all its current rooms,
		// then attaches it to the given ones, atomically.
		SetClassroomsTeacher(ctx context.Context, usrID string, roomIDs ...string) error

		QueryStudents(ctx context.Context, filter StudentFilter, ordering ...core.DBOrdering) ([]Student, error)
		// QueryRecentStudents returns the latest enrollments, newest first.
		QueryRecentStudents(ctx context.Context, limit int) ([]Student, error)
		GetStudentByID(ctx context.Context, id string) (Student, error)
		CreateStudent(ctx context.Context, std Student) (Student, error)
		UpdateStudent(ctx context.Context, std Student) error
		DeleteStudentsByID(ctx context.Context, ids ...string) error
		SetStudentParents(ctx context.Context, stdID string, parentIDs ...string) error
		// QueryStudentParentIDs returns the deduplicated union of the
		// parents of the given students.
		QueryStudentParentIDs(ctx context.Context, stdIDs ...string) ([]string, error)

		CountLevels(ctx context.Context) (int, error)
		CountClassrooms(ctx context.Context) (int, error)
		CountStudents(ctx context.Context) (int, error)
	}

	// UserDirectory is the slice of the user storage the role checks need.
	UserDirectory interface {
		GetUserByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo  Repository
		users UserDirectory
	}
)

func NewService(repo Repository, users UserDirectory) *Service {
	return &Service{repo: repo, users: users}
}

func (svc *Service) QueryLevels(ctx context.Context) ([]Level, error) {
	return svc.repo.QueryLevels(ctx, core.DBOrdering{Field: "name"})
}

func (svc *Service) GetLevelByID(ctx context.Context, id string) (Level, error) {
	return svc.repo.GetLevelByID(ctx, id)
}

func (svc *Service) GetLevelBySlug(ctx context.Context, slug string) (Level, error) {
	return svc.repo.GetLevelBySlug(ctx, core.CleanString(slug, true))
}

func (svc *Service) CreateLevel(ctx context.Context, nl NewLevel) (Level, error) {
	if err := nl.Validate(); err != nil {
		return Level{}, err
	}
	if _, err := svc.repo.GetLevelBySlug(ctx, nl.Slug); err == nil {
		return Level{}, core.NewValidationError(ErrSlugExists, core.FieldError{Field: "slug", Error: ErrSlugExists.Error()})
	} else if !errors.Is(err, ErrLevelNotFound) {
		return Level{}, err
	}
	lvl := Level{
		Name:        nl.Name,
		Slug:        nl.Slug,
		Description: nl.Description,
	}
	lvl, err := svc.repo.CreateLevel(ctx, lvl)
	return lvl, errors.Wrap(err, "creating level")
}

// checkTeacher rejects a teacher assignment when id does not belong to a
// teacher account.
func (svc *Service) checkTeacher(ctx context.Context, id string) error {
	usr, err := svc.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "teacher_id", Error: err.Error()})
		}
		return errors.Wrap(err, "getting teacher")
	}
	if !usr.IsTeacher() {
		return core.NewValidationError(nil, core.FieldError{Field: "teacher_id", Error: "user is not a teacher"})
	}
	return nil
}

// checkParents rejects any id that does not belong to a parent account.
func (svc *Service) checkParents(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		usr, err := svc.users.GetUserByID(ctx, id)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				return core.NewValidationError(err, core.FieldError{Field: "parent_ids", Error: err.Error()})
			}
			return errors.Wrap(err, "getting parent")
		}
		if !usr.IsParent() {
			return core.NewValidationError(nil, core.FieldError{Field: "parent_ids", Error: "user is not a parent"})
		}
	}
	return nil
}

func (svc *Service) QueryClassrooms(ctx context.Context, filter ClassroomFilter, ordering ...core.DBOrdering) ([]Classroom, error) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "name"}}
	}
	return svc.repo.QueryClassrooms(ctx, filter, ordering...)
}

func (svc *Service) GetClassroomByID(ctx context.Context, id string) (Classroom, error) {
	return svc.repo.GetClassroomByID(ctx, id)
}

func (svc *Service) CreateClassroom(ctx context.Context, nc NewClassroom) (Classroom, error) {
	if err := nc.Validate(); err != nil {
		return Classroom{}, err
	}
	if _, err := svc.repo.GetLevelByID(ctx, nc.LevelID); err != nil {
		if errors.Is(err, ErrLevelNotFound) {
			return Classroom{}, core.NewValidationError(err, core.FieldError{Field: "level_id", Error: err.Error()})
		}
		return Classroom{}, err
	}
	if nc.TeacherID != "" {
		if err := svc.checkTeacher(ctx, nc.TeacherID); err != nil {
			return Classroom{}, err
		}
	}
	room := Classroom{
		LevelID:    nc.LevelID,
		TeacherID:  nc.TeacherID,
		Name:       nc.Name,
		SchoolYear: nc.SchoolYear,
	}
	room, err := svc.repo.CreateClassroom(ctx, room)
	return room, errors.Wrap(err, "creating classroom")
}

func (svc *Service) UpdateClassroom(ctx context.Context, id string, uc UpdateClassroom) (Classroom, error) {
	if err := uc.Validate(); err != nil {
		return Classroom{}, err
	}
	room, err := svc.repo.GetClassroomByID(ctx, id)
	if err != nil {
		return Classroom{}, err
	}
	if uc.LevelID != nil {
		if _, err := svc.repo.GetLevelByID(ctx, *uc.LevelID); err != nil {
			if errors.Is(err, ErrLevelNotFound) {
				return Classroom{}, core.NewValidationError(err, core.FieldError{Field: "level_id", Error: err.Error()})
			}
			return Classroom{}, err
		}
		room.LevelID = *uc.LevelID
	}
	if uc.TeacherID != nil {
		if *uc.TeacherID != "" {
			if err := svc.checkTeacher(ctx, *uc.TeacherID); err != nil {
				return Classroom{}, err
			}
		}
		room.TeacherID = *uc.TeacherID
	}
	if uc.Name != nil {
		room.Name = *uc.Name
	}
	if uc.SchoolYear != nil {
		room.SchoolYear = *uc.SchoolYear
	}
	if err := svc.repo.UpdateClassroom(ctx, room); err != nil {
		return Classroom{}, errors.Wrap(err, "updating classroom")
	}
	return svc.repo.GetClassroomByID(ctx, id)
}

func (svc *Service) DeleteClassroom(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteClassroomsByID(ctx, ids...)
}

// SetClassroomsTeacher makes roomIDs the exact set of rooms taught by usrID.
func (svc *Service) SetClassroomsTeacher(ctx context.Context, usrID string, roomIDs ...string) error {
	for _, id := range roomIDs {
		if _, err := svc.repo.GetClassroomByID(ctx, id); err != nil {
			return err
		}
	}
	return svc.repo.SetClassroomsTeacher(ctx, usrID, roomIDs...)
}

func (svc *Service) QueryStudents(ctx context.Context, filter StudentFilter, ordering ...core.DBOrdering) ([]Student, error) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "last_name"}, {Field: "first_name"}}
	}
	return svc.repo.QueryStudents(ctx, filter, ordering...)
}

// RecentStudents returns the latest enrollments, for the admin dashboard.
func (svc *Service) RecentStudents(ctx context.Context, limit int) ([]Student, error) {
	return svc.repo.QueryRecentStudents(ctx, limit)
}

func (svc *Service) GetStudentByID(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudentByID(ctx, id)
}

func (svc *Service) CreateStudent(ctx context.Context, ns NewStudent) (Student, error) {
	if err := ns.Validate(); err != nil {
		return Student{}, err
	}
	if ns.ClassroomID != "" {
		if _, err := svc.repo.GetClassroomByID(ctx, ns.ClassroomID); err != nil {
			if errors.Is(err, ErrClassroomNotFound) {
				return Student{}, core.NewValidationError(err, core.FieldError{Field: "classroom_id", Error: err.Error()})
			}
			return Student{}, err
		}
	}
	if err := svc.checkParents(ctx, ns.ParentIDs...); err != nil {
		return Student{}, err
	}
	std := Student{
		FirstName:   ns.FirstName,
		LastName:    ns.LastName,
		DateOfBirth: ns.DateOfBirth,
		ClassroomID: ns.ClassroomID,
		ParentIDs:   ns.ParentIDs,
	}
	std, err := svc.repo.CreateStudent(ctx, std)
	if err != nil {
		return Student{}, errors.Wrap(err, "creating student")
	}
	if len(ns.ParentIDs) > 0 {
		if err := svc.repo.SetStudentParents(ctx, std.ID, ns.ParentIDs...); err != nil {
			return Student{}, errors.Wrap(err, "setting student parents")
		}
		std.ParentIDs = ns.ParentIDs
	}
	return std, nil
}

func (svc *Service) UpdateStudent(ctx context.Context, id string, us UpdateStudent) (Student, error) {
	if err := us.Validate(); err != nil {
		return Student{}, err
	}
	std, err := svc.repo.GetStudentByID(ctx, id)
	if err != nil {
		return Student{}, err
	}
	if us.FirstName != nil {
		std.FirstName = *us.FirstName
	}
	if us.LastName != nil {
		std.LastName = *us.LastName
	}
	if us.DateOfBirth != nil {
		std.DateOfBirth = *us.DateOfBirth
	}
	if us.ClassroomID != nil {
		if *us.ClassroomID != "" {
			if _, err := svc.repo.GetClassroomByID(ctx, *us.ClassroomID); err != nil {
				if errors.Is(err, ErrClassroomNotFound) {
					return Student{}, core.NewValidationError(err, core.FieldError{Field: "classroom_id", Error: err.Error()})
				}
				return Student{}, err
			}
		}
		std.ClassroomID = *us.ClassroomID
	}
	if err := svc.repo.UpdateStudent(ctx, std); err != nil {
		return Student{}, errors.Wrap(err, "updating student")
	}
	if us.ParentIDs != nil {
		if err := svc.checkParents(ctx, us.ParentIDs...); err != nil {
			return Student{}, err
		}
		if err := svc.repo.SetStudentParents(ctx, id, us.ParentIDs...); err != nil {
			return Student{}, errors.Wrap(err, "setting student parents")
		}
	}
	return svc.repo.GetStudentByID(ctx, id)
}

func (svc *Service) DeleteStudent(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteStudentsByID(ctx, ids...)
}

func (svc *Service) SetStudentPhoto(ctx context.Context, id, url string) (Student, error) {
	std, err := svc.repo.GetStudentByID(ctx, id)
	if err != nil {
		return Student{}, err
	}
	std.PhotoURL = url
	if err := svc.repo.UpdateStudent(ctx, std); err != nil {
		return Student{}, errors.Wrap(err, "updating student photo")
	}
	return std, nil
}

func (svc *Service) SetStudentParents(ctx context.Context, stdID string, parentIDs ...string) error {
	if _, err := svc.repo.GetStudentByID(ctx, stdID); err != nil {
		return err
	}
	if err := svc.checkParents(ctx, parentIDs...); err != nil {
		return err
	}
	return svc.repo.SetStudentParents(ctx, stdID, parentIDs...)
}

func (svc *Service) QueryStudentParentIDs(ctx context.Context, stdIDs ...string) ([]string, error) {
	return svc.repo.QueryStudentParentIDs(ctx, stdIDs...)
}

func (svc *Service) CountLevels(ctx context.Context) (int, error)     { return svc.repo.CountLevels(ctx) }
func (svc *Service) CountClassrooms(ctx context.Context) (int, error) { return svc.repo.CountClassrooms(ctx) }
func (svc *Service) CountStudents(ctx context.Context) (int, error)   { return svc.repo.CountStudents(ctx) }

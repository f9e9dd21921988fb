package school

import (
	"time"

	"github.com/MoonNight31/AppCaryamil/core"
)

// Expected level slugs, used as routing keys by the API. The set is seeded,
// not enforced: an administrator may add levels.
const (
	SlugMaternelle = "maternelle"
	SlugPrimaire   = "primaire"
	SlugCollege    = "college"
)

type (
	// Level is a school stage (maternelle, primaire, collège).
	Level struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Slug        string `json:"slug"`
		Description string `json:"description"`
	}

	// Classroom groups students for one school year. TeacherID is empty when
	// the room is teacherless (the room survives its teacher).
	Classroom struct {
		ID         string `json:"id"`
		LevelID    string `json:"level_id"`
		TeacherID  string `json:"teacher_id,omitempty"`
		Name       string `json:"name"`
		SchoolYear string `json:"school_year"`

		// populated on listing queries
		StudentCount int `json:"student_count"`
	}

	// Student belongs to at most one classroom (empty ClassroomID = unassigned)
	// and has zero or more parents. Lifecycle is independent of the classroom.
	Student struct {
		ID          string    `json:"id"`
		FirstName   string    `json:"first_name"`
		LastName    string    `json:"last_name"`
		DateOfBirth time.Time `json:"date_of_birth,omitempty"`
		ClassroomID string    `json:"classroom_id,omitempty"`
		PhotoURL    string    `json:"photo_url,omitempty"`
		ParentIDs   []string  `json:"parent_ids"`
		CreatedAt   time.Time `json:"created_at"`
	}
)

func (s Student) Name() string { return s.FirstName + " " + s.LastName }

type NewLevel struct {
	Name        string `json:"name" validate:"required"`
	Slug        string `json:"slug" validate:"required,alphanum_"`
	Description string `json:"description"`
}

func (nl *NewLevel) Validate() error {
	nl.Name = core.CleanString(nl.Name)
	nl.Slug = core.CleanString(nl.Slug, true /* lower */)
	return core.Validate.Struct(nl)
}

type NewClassroom struct {
	LevelID    string `json:"level_id" validate:"required"`
	TeacherID  string `json:"teacher_id"`
	Name       string `json:"name" validate:"required"`
	SchoolYear string `json:"school_year"`
}

func (nc *NewClassroom) Validate() error {
	nc.Name = core.CleanString(nc.Name)
	nc.SchoolYear = core.CleanString(nc.SchoolYear)
	return core.Validate.Struct(nc)
}

type NewStudent struct {
	FirstName   string    `json:"first_name" validate:"required"`
	LastName    string    `json:"last_name" validate:"required"`
	DateOfBirth time.Time `json:"date_of_birth"`
	ClassroomID string    `json:"classroom_id"`
	ParentIDs   []string  `json:"parent_ids"`
}

func (ns *NewStudent) Validate() error {
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	return core.Validate.Struct(ns)
}

// UpdateClassroom carries partial updates; nil fields keep the current value.
// An explicit empty TeacherID detaches the teacher.
type UpdateClassroom struct {
	LevelID    *string `json:"level_id"`
	TeacherID  *string `json:"teacher_id"`
	Name       *string `json:"name"`
	SchoolYear *string `json:"school_year"`
}

func (uc *UpdateClassroom) Validate() error {
	if uc.Name != nil {
		*uc.Name = core.CleanString(*uc.Name)
		if *uc.Name == "" {
			return core.NewValidationError(nil, core.FieldError{Field: "name", Error: "this field is required"})
		}
	}
	if uc.SchoolYear != nil {
		*uc.SchoolYear = core.CleanString(*uc.SchoolYear)
	}
	return nil
}

// UpdateStudent carries partial updates; nil fields keep the current value.
type UpdateStudent struct {
	FirstName   *string    `json:"first_name"`
	LastName    *string    `json:"last_name"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	ClassroomID *string    `json:"classroom_id"`
	ParentIDs   []string   `json:"parent_ids"`
}

func (us *UpdateStudent) Validate() error {
	if us.FirstName != nil {
		*us.FirstName = core.CleanString(*us.FirstName)
		if *us.FirstName == "" {
			return core.NewValidationError(nil, core.FieldError{Field: "first_name", Error: "this field is required"})
		}
	}
	if us.LastName != nil {
		*us.LastName = core.CleanString(*us.LastName)
		if *us.LastName == "" {
			return core.NewValidationError(nil, core.FieldError{Field: "last_name", Error: "this field is required"})
		}
	}
	return nil
}

// ClassroomFilter narrows classroom queries; fields AND together.
type ClassroomFilter struct {
	LevelID    string
	TeacherID  string
	StudentIDs []string // rooms containing at least one of these students
	Search     string
}

// StudentFilter narrows student queries; fields AND together.
type StudentFilter struct {
	ClassroomIDs []string
	ParentID     string
	LevelID      string
	Search       string
}

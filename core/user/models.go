package user

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/MoonNight31/AppCaryamil/core"
)

// Roles. A user may hold several at once; every request re-derives them from
// the stored flags, nothing caches a "current role".
const (
	RoleDirector = "director"
	RoleTeacher  = "teacher"
	RoleParent   = "parent"
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

var Roles = []Role{
	{Name: "Parent", Value: RoleParent},
	{Name: "Professeur", Value: RoleTeacher},
	{Name: "Directeur", Value: RoleDirector},
}

// User holds raw stored flags. The directeur-implies-professeur/staff rule is
// computed by the accessors below, never written back at save time.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	Parent       bool      `json:"is_parent"`
	Teacher      bool      `json:"is_teacher"`
	Director     bool      `json:"is_director"`
	Active       bool      `json:"is_active"`
	Staff        bool      `json:"is_staff"`
	Superuser    bool      `json:"is_superuser"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) IsParent() bool   { return u.Parent }
func (u User) IsDirector() bool { return u.Director }

// IsTeacher reports whether the user acts as a teacher; a director always does.
func (u User) IsTeacher() bool { return u.Teacher || u.Director }

// IsStaff reports admin-site access; directors get it implicitly.
func (u User) IsStaff() bool { return u.Staff || u.Director }

// IsAdmin reports platform-admin visibility: superusers and directors.
func (u User) IsAdmin() bool { return u.Superuser || u.Director }

// GrantedRoles returns the subset of {director, teacher, parent} this user holds.
func (u User) GrantedRoles() []string {
	var roles []string
	if u.IsDirector() {
		roles = append(roles, RoleDirector)
	}
	if u.IsTeacher() {
		roles = append(roles, RoleTeacher)
	}
	if u.IsParent() {
		roles = append(roles, RoleParent)
	}
	return roles
}

// Name returns the display name, falling back to the username.
func (u User) Name() string {
	name := core.CleanString(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// RoleDisplay returns a human readable role string ("Directeur / Parent").
func (u User) RoleDisplay() string {
	var roles []string
	if u.IsDirector() {
		roles = append(roles, "Directeur")
	} else if u.IsTeacher() {
		roles = append(roles, "Professeur")
	}
	if u.IsParent() {
		roles = append(roles, "Parent")
	}
	if len(roles) == 0 {
		return "Utilisateur"
	}
	return strings.Join(roles, " / ")
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Username        string `json:"username" validate:"required,min=3,alphanum_"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email" validate:"omitempty,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	IsParent        bool   `json:"is_parent"`
	IsTeacher       bool   `json:"is_teacher"`
	IsDirector      bool   `json:"is_director"`
}

func (nu *NewUser) Validate(svc *Service) error {
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := core.Validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
// nil pointers leave the original value untouched.
type UpdateUser struct {
	Username        string  `json:"username" validate:"omitempty,min=3,alphanum_"`
	FirstName       *string `json:"first_name"`
	LastName        *string `json:"last_name"`
	Email           string  `json:"email" validate:"omitempty,email"`
	IsParent        *bool   `json:"is_parent"`
	IsTeacher       *bool   `json:"is_teacher"`
	IsDirector      *bool   `json:"is_director"`
	IsActive        *bool   `json:"is_active"`
	Password        string  `json:"password"`
	PasswordConfirm string  `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(origUsr User, svc *Service) error {
	uname := core.CleanString(uu.Username, true /* lower */)
	if uname == "" {
		uname = origUsr.Username
	}
	uu.Username = uname

	email := core.CleanString(uu.Email, true /* lower */)
	if email == "" {
		email = origUsr.Email
	}
	uu.Email = email

	if err := core.Validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(uu.Username, uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate() error { return core.Validate.Struct(rp) }

type QueryFilter struct {
	Search      string    `query:"search"`
	Role        string    `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Role == "" && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
}

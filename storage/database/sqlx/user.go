// Package sqlxrepos implements the repositories on PostgreSQL via sqlx.
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

	"github.com/MoonNight31/AppCaryamil/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

type userRow struct {
	ID           string      `db:"id"`
	Username     string      `db:"username"`
	FirstName    null.String `db:"first_name"`
	LastName     null.String `db:"last_name"`
	Email        null.String `db:"email"`
	IsParent     bool        `db:"is_parent"`
	IsTeacher    bool        `db:"is_teacher"`
	IsDirector   bool        `db:"is_director"`
	IsActive     bool        `db:"is_active"`
	IsStaff      bool        `db:"is_staff"`
	IsSuperuser  bool        `db:"is_superuser"`
	PasswordHash null.Bytes  `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

func (repo userRepository) row(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Username:     usr.Username,
		FirstName:    null.NewString(usr.FirstName, usr.FirstName != ""),
		LastName:     null.NewString(usr.LastName, usr.LastName != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		IsParent:     usr.Parent,
		IsTeacher:    usr.Teacher,
		IsDirector:   usr.Director,
		IsActive:     usr.Active,
		IsStaff:      usr.Staff,
		IsSuperuser:  usr.Superuser,
		PasswordHash: null.BytesFrom(usr.PasswordHash),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) unrow(row userRow) user.User {
	return user.User{
		ID:           row.ID,
		Username:     row.Username,
		FirstName:    row.FirstName.String,
		LastName:     row.LastName.String,
		Email:        row.Email.String,
		Parent:       row.IsParent,
		Teacher:      row.IsTeacher,
		Director:     row.IsDirector,
		Active:       row.IsActive,
		Staff:        row.IsStaff,
		Superuser:    row.IsSuperuser,
		PasswordHash: row.PasswordHash.Bytes,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		LastLogin:    row.LastLogin.Time,
	}
}

func (repo userRepository) unrowSlice(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.unrow(row))
	}
	return users
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

const userCols = `id, username, first_name, last_name, email, is_parent, is_teacher, is_director,
is_active, is_staff, is_superuser, password_hash, created_at, updated_at, last_login`

func (repo userRepository) getOne(ctx context.Context, query string, args ...interface{}) (user.User, error) {
	var row userRow
	if err := repo.db.GetContext(ctx, &row, query, args...); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "getting user")
	}
	return repo.unrow(row), nil
}

func (repo userRepository) CheckUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	query := `SELECT username, email FROM users WHERE (username = ? OR (email IS NOT NULL AND email = ?))`
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		q, inArgs, err := sqlx.In(` AND id NOT IN (?)`, ids)
		if err != nil {
			return errors.Wrap(err, "checking uniqueness")
		}
		query += q
		args = append(args, inArgs...)
	}

	var rows []struct {
		Username string      `db:"username"`
		Email    null.String `db:"email"`
	}
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "checking uniqueness")
	}
	for _, row := range rows {
		if row.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && row.Email.String == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.NewString()
	now := time.Now().UTC()
	usr.CreatedAt = now
	usr.UpdatedAt = now

	query := `INSERT INTO users (` + userCols + `)
VALUES (:id, :username, :first_name, :last_name, :email, :is_parent, :is_teacher, :is_director,
:is_active, :is_staff, :is_superuser, :password_hash, :created_at, :updated_at, :last_login)`
	if _, err := repo.db.NamedExecContext(ctx, query, repo.row(usr)); err != nil {
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	existing, err := repo.GetUserByUsername(ctx, usr.Username)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return repo.CreateUser(ctx, usr)
		}
		return user.User{}, err
	}
	usr.ID = existing.ID
	usr.CreatedAt = existing.CreatedAt
	return repo.UpdateUser(ctx, usr)
}

func (repo userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	var rows []userRow
	query := `SELECT ` + userCols + ` FROM users ORDER BY created_at`
	if err := repo.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return repo.unrowSlice(rows), nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.getOne(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
}

func (repo userRepository) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return repo.getOne(ctx, `SELECT `+userCols+` FROM users WHERE username = $1`, username)
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getOne(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email)
}

func (repo userRepository) GetUserByUsernameOrEmail(ctx context.Context, uname string) (user.User, error) {
	return repo.getOne(ctx, `SELECT `+userCols+` FROM users WHERE username = $1 OR email = $1`, uname)
}

func (repo userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	query, args := buildUserFilterQuery(`SELECT `+userCols+` FROM users`, filter)
	query += ` ORDER BY created_at`

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	return repo.unrowSlice(rows), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.UpdatedAt = time.Now().UTC()

	query := `UPDATE users SET username = :username, first_name = :first_name, last_name = :last_name,
email = :email, is_parent = :is_parent, is_teacher = :is_teacher, is_director = :is_director,
is_active = :is_active, is_staff = :is_staff, is_superuser = :is_superuser,
password_hash = :password_hash, updated_at = :updated_at, last_login = :last_login
WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, query, repo.row(usr))
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUserByID(ctx, usr.ID)
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "deleting users")
	}
	_, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...)
	return errors.Wrap(err, "deleting users")
}

func (repo userRepository) CountUsers(ctx context.Context, filter user.QueryFilter) (int, error) {
	query, args := buildUserFilterQuery(`SELECT COUNT(*) FROM users`, filter)

	var n int
	if err := repo.db.GetContext(ctx, &n, repo.db.Rebind(query), args...); err != nil {
		return 0, errors.Wrap(err, "counting users")
	}
	return n, nil
}

func buildUserFilterQuery(base string, filter user.QueryFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if filter.Search != "" {
		conds = append(conds, `(first_name ILIKE ? OR last_name ILIKE ? OR username ILIKE ? OR email ILIKE ?)`)
		s := "%" + filter.Search + "%"
		args = append(args, s, s, s, s)
	}
	switch filter.Role {
	case user.RoleParent:
		conds = append(conds, `is_parent = TRUE`)
	case user.RoleTeacher:
		// directors teach implicitly
		conds = append(conds, `(is_teacher = TRUE OR is_director = TRUE)`)
	case user.RoleDirector:
		conds = append(conds, `is_director = TRUE`)
	}
	if filter.IsActive != nil {
		conds = append(conds, `is_active = ?`)
		args = append(args, *filter.IsActive)
	}
	if !filter.CreatedFrom.IsZero() {
		conds = append(conds, `created_at >= ?`)
		args = append(args, filter.CreatedFrom)
	}
	if !filter.CreatedTo.IsZero() {
		conds = append(conds, `created_at <= ?`)
		args = append(args, filter.CreatedTo)
	}

	if len(conds) > 0 {
		base += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	return base, args
}

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

	"github.com/MoonNight31/AppCaryamil/core"
	"github.com/MoonNight31/AppCaryamil/core/school"
)

type schoolRepository struct {
	db *sqlx.DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *sqlx.DB) *schoolRepository {
	return &schoolRepository{db: db}
}

type (
	levelRow struct {
		ID          string      `db:"id"`
		Name        string      `db:"name"`
		Slug        string      `db:"slug"`
		Description null.String `db:"description"`
	}

	classroomRow struct {
		ID           string      `db:"id"`
		LevelID      string      `db:"level_id"`
		TeacherID    null.String `db:"teacher_id"`
		Name         string      `db:"name"`
		SchoolYear   string      `db:"school_year"`
		StudentCount int         `db:"student_count"`
	}

	studentRow struct {
		ID          string      `db:"id"`
		FirstName   string      `db:"first_name"`
		LastName    string      `db:"last_name"`
		DateOfBirth null.Time   `db:"date_of_birth"`
		ClassroomID null.String `db:"classroom_id"`
		PhotoURL    null.String `db:"photo_url"`
		CreatedAt   time.Time   `db:"created_at"`
	}
)

func unrowLevel(row levelRow) school.Level {
	return school.Level{
		ID:          row.ID,
		Name:        row.Name,
		Slug:        row.Slug,
		Description: row.Description.String,
	}
}

func unrowClassroom(row classroomRow) school.Classroom {
	return school.Classroom{
		ID:           row.ID,
		LevelID:      row.LevelID,
		TeacherID:    row.TeacherID.String,
		Name:         row.Name,
		SchoolYear:   row.SchoolYear,
		StudentCount: row.StudentCount,
	}
}

func unrowStudent(row studentRow) school.Student {
	return school.Student{
		ID:          row.ID,
		FirstName:   row.FirstName,
		LastName:    row.LastName,
		DateOfBirth: row.DateOfBirth.Time,
		ClassroomID: row.ClassroomID.String,
		PhotoURL:    row.PhotoURL.String,
		CreatedAt:   row.CreatedAt,
	}
}

const classroomCols = `c.id, c.level_id, c.teacher_id, c.name, c.school_year,
(SELECT COUNT(*) FROM students s WHERE s.classroom_id = c.id) AS student_count`

const studentCols = `id, first_name, last_name, date_of_birth, classroom_id, photo_url, created_at`

// sortable columns per entity, keyed by the client-facing field name
var (
	levelSortCols     = map[string]string{"name": "name", "slug": "slug"}
	classroomSortCols = map[string]string{"name": "c.name", "school_year": "c.school_year", "level_id": "c.level_id"}
	studentSortCols   = map[string]string{
		"first_name":    "s.first_name",
		"last_name":     "s.last_name",
		"date_of_birth": "s.date_of_birth",
		"created_at":    "s.created_at",
	}
)

func (repo schoolRepository) QueryLevels(ctx context.Context, ordering ...core.DBOrdering) ([]school.Level, error) {
	var rows []levelRow
	query := `SELECT id, name, slug, description FROM school_levels` + orderBy(ordering, levelSortCols, "name ASC")
	if err := repo.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying levels")
	}
	lvls := make([]school.Level, 0, len(rows))
	for _, row := range rows {
		lvls = append(lvls, unrowLevel(row))
	}
	return lvls, nil
}

func (repo schoolRepository) getLevel(ctx context.Context, query string, arg interface{}) (school.Level, error) {
	var row levelRow
	if err := repo.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return school.Level{}, school.ErrLevelNotFound
		}
		return school.Level{}, errors.Wrap(err, "getting level")
	}
	return unrowLevel(row), nil
}

func (repo schoolRepository) GetLevelByID(ctx context.Context, id string) (school.Level, error) {
	return repo.getLevel(ctx, `SELECT id, name, slug, description FROM school_levels WHERE id = $1`, id)
}

func (repo schoolRepository) GetLevelBySlug(ctx context.Context, slug string) (school.Level, error) {
	return repo.getLevel(ctx, `SELECT id, name, slug, description FROM school_levels WHERE slug = $1`, slug)
}

func (repo schoolRepository) CreateLevel(ctx context.Context, lvl school.Level) (school.Level, error) {
	lvl.ID = uuid.NewString()
	query := `INSERT INTO school_levels (id, name, slug, description) VALUES ($1, $2, $3, $4)`
	if _, err := repo.db.ExecContext(ctx, query, lvl.ID, lvl.Name, lvl.Slug, null.NewString(lvl.Description, lvl.Description != "")); err != nil {
		return school.Level{}, errors.Wrap(err, "creating level")
	}
	return lvl, nil
}

func (repo schoolRepository) UpdateLevel(ctx context.Context, lvl school.Level) error {
	query := `UPDATE school_levels SET name = $2, slug = $3, description = $4 WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query, lvl.ID, lvl.Name, lvl.Slug, null.NewString(lvl.Description, lvl.Description != ""))
	if err != nil {
		return errors.Wrap(err, "updating level")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return school.ErrLevelNotFound
	}
	return nil
}

func (repo schoolRepository) QueryClassrooms(ctx context.Context, filter school.ClassroomFilter, ordering ...core.DBOrdering) ([]school.Classroom, error) {
	query := `SELECT ` + classroomCols + ` FROM classrooms c`
	var conds []string
	var args []interface{}

	if filter.LevelID != "" {
		conds = append(conds, `c.level_id = ?`)
		args = append(args, filter.LevelID)
	}
	if filter.TeacherID != "" {
		conds = append(conds, `c.teacher_id = ?`)
		args = append(args, filter.TeacherID)
	}
	if len(filter.StudentIDs) > 0 {
		q, inArgs, err := sqlx.In(`c.id IN (SELECT classroom_id FROM students WHERE id IN (?))`, filter.StudentIDs)
		if err != nil {
			return nil, errors.Wrap(err, "querying classrooms")
		}
		conds = append(conds, q)
		args = append(args, inArgs...)
	}
	if filter.Search != "" {
		conds = append(conds, `c.name ILIKE ?`)
		args = append(args, "%"+filter.Search+"%")
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += orderBy(ordering, classroomSortCols, "c.name ASC")

	var rows []classroomRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying classrooms")
	}
	rooms := make([]school.Classroom, 0, len(rows))
	for _, row := range rows {
		rooms = append(rooms, unrowClassroom(row))
	}
	return rooms, nil
}

func (repo schoolRepository) GetClassroomByID(ctx context.Context, id string) (school.Classroom, error) {
	var row classroomRow
	query := `SELECT ` + classroomCols + ` FROM classrooms c WHERE c.id = $1`
	if err := repo.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return school.Classroom{}, school.ErrClassroomNotFound
		}
		return school.Classroom{}, errors.Wrap(err, "getting classroom")
	}
	return unrowClassroom(row), nil
}

func (repo schoolRepository) CreateClassroom(ctx context.Context, room school.Classroom) (school.Classroom, error) {
	room.ID = uuid.NewString()
	query := `INSERT INTO classrooms (id, level_id, teacher_id, name, school_year)
VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5, ''), '2025-2026'))`
	_, err := repo.db.ExecContext(ctx, query, room.ID, room.LevelID,
		null.NewString(room.TeacherID, room.TeacherID != ""), room.Name, room.SchoolYear)
	if err != nil {
		return school.Classroom{}, errors.Wrap(err, "creating classroom")
	}
	return repo.GetClassroomByID(ctx, room.ID)
}

func (repo schoolRepository) UpdateClassroom(ctx context.Context, room school.Classroom) error {
	query := `UPDATE classrooms SET level_id = $2, teacher_id = $3, name = $4, school_year = $5 WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query, room.ID, room.LevelID,
		null.NewString(room.TeacherID, room.TeacherID != ""), room.Name, room.SchoolYear)
	if err != nil {
		return errors.Wrap(err, "updating classroom")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return school.ErrClassroomNotFound
	}
	return nil
}

func (repo schoolRepository) DeleteClassroomsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM classrooms WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "deleting classrooms")
	}
	_, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...)
	return errors.Wrap(err, "deleting classrooms")
}

func (repo schoolRepository) SetClassroomsTeacher(ctx context.Context, usrID string, roomIDs ...string) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "setting classrooms teacher")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, `UPDATE classrooms SET teacher_id = NULL WHERE teacher_id = $1`, usrID); err != nil {
		return errors.Wrap(err, "detaching classrooms")
	}
	if len(roomIDs) > 0 {
		query, args, err := sqlx.In(`UPDATE classrooms SET teacher_id = ? WHERE id IN (?)`, usrID, roomIDs)
		if err != nil {
			return errors.Wrap(err, "attaching classrooms")
		}
		if _, err = tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return errors.Wrap(err, "attaching classrooms")
		}
	}
	return errors.Wrap(tx.Commit(), "setting classrooms teacher")
}

func (repo schoolRepository) QueryStudents(ctx context.Context, filter school.StudentFilter, ordering ...core.DBOrdering) ([]school.Student, error) {
	query := `SELECT s.id, s.first_name, s.last_name, s.date_of_birth, s.classroom_id, s.photo_url, s.created_at FROM students s`
	var conds []string
	var args []interface{}

	if len(filter.ClassroomIDs) > 0 {
		q, inArgs, err := sqlx.In(`s.classroom_id IN (?)`, filter.ClassroomIDs)
		if err != nil {
			return nil, errors.Wrap(err, "querying students")
		}
		conds = append(conds, q)
		args = append(args, inArgs...)
	}
	if filter.ParentID != "" {
		conds = append(conds, `s.id IN (SELECT student_id FROM student_parents WHERE parent_id = ?)`)
		args = append(args, filter.ParentID)
	}
	if filter.LevelID != "" {
		conds = append(conds, `s.classroom_id IN (SELECT id FROM classrooms WHERE level_id = ?)`)
		args = append(args, filter.LevelID)
	}
	if filter.Search != "" {
		conds = append(conds, `(s.first_name ILIKE ? OR s.last_name ILIKE ?)`)
		s := "%" + filter.Search + "%"
		args = append(args, s, s)
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += orderBy(ordering, studentSortCols, "s.last_name ASC, s.first_name ASC")

	var rows []studentRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}

	stds := make([]school.Student, 0, len(rows))
	for _, row := range rows {
		std := unrowStudent(row)
		pids, err := repo.QueryStudentParentIDs(ctx, std.ID)
		if err != nil {
			return nil, err
		}
		std.ParentIDs = pids
		stds = append(stds, std)
	}
	return stds, nil
}

func (repo schoolRepository) QueryRecentStudents(ctx context.Context, limit int) ([]school.Student, error) {
	query := `SELECT ` + studentCols + ` FROM students ORDER BY created_at DESC LIMIT $1`

	var rows []studentRow
	if err := repo.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, errors.Wrap(err, "querying recent students")
	}
	stds := make([]school.Student, 0, len(rows))
	for _, row := range rows {
		std := unrowStudent(row)
		pids, err := repo.QueryStudentParentIDs(ctx, std.ID)
		if err != nil {
			return nil, err
		}
		std.ParentIDs = pids
		stds = append(stds, std)
	}
	return stds, nil
}

func (repo schoolRepository) GetStudentByID(ctx context.Context, id string) (school.Student, error) {
	var row studentRow
	query := `SELECT ` + studentCols + ` FROM students WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return school.Student{}, school.ErrStudentNotFound
		}
		return school.Student{}, errors.Wrap(err, "getting student")
	}
	std := unrowStudent(row)
	var err error
	if std.ParentIDs, err = repo.QueryStudentParentIDs(ctx, std.ID); err != nil {
		return school.Student{}, err
	}
	return std, nil
}

func (repo schoolRepository) CreateStudent(ctx context.Context, std school.Student) (school.Student, error) {
	std.ID = uuid.NewString()
	std.CreatedAt = time.Now().UTC()
	query := `INSERT INTO students (` + studentCols + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := repo.db.ExecContext(ctx, query, std.ID, std.FirstName, std.LastName,
		null.NewTime(std.DateOfBirth, !std.DateOfBirth.IsZero()),
		null.NewString(std.ClassroomID, std.ClassroomID != ""),
		null.NewString(std.PhotoURL, std.PhotoURL != ""),
		std.CreatedAt)
	if err != nil {
		return school.Student{}, errors.Wrap(err, "creating student")
	}
	if len(std.ParentIDs) > 0 {
		if err = repo.SetStudentParents(ctx, std.ID, std.ParentIDs...); err != nil {
			return school.Student{}, err
		}
	}
	return repo.GetStudentByID(ctx, std.ID)
}

func (repo schoolRepository) UpdateStudent(ctx context.Context, std school.Student) error {
	query := `UPDATE students SET first_name = $2, last_name = $3, date_of_birth = $4, classroom_id = $5, photo_url = $6
WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query, std.ID, std.FirstName, std.LastName,
		null.NewTime(std.DateOfBirth, !std.DateOfBirth.IsZero()),
		null.NewString(std.ClassroomID, std.ClassroomID != ""),
		null.NewString(std.PhotoURL, std.PhotoURL != ""))
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return school.ErrStudentNotFound
	}
	return nil
}

func (repo schoolRepository) DeleteStudentsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM students WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "deleting students")
	}
	_, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...)
	return errors.Wrap(err, "deleting students")
}

func (repo schoolRepository) SetStudentParents(ctx context.Context, stdID string, parentIDs ...string) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "setting student parents")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, `DELETE FROM student_parents WHERE student_id = $1`, stdID); err != nil {
		return errors.Wrap(err, "clearing student parents")
	}
	for _, pid := range parentIDs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO student_parents (student_id, parent_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, stdID, pid)
		if err != nil {
			return errors.Wrap(err, "adding student parent")
		}
	}
	return errors.Wrap(tx.Commit(), "setting student parents")
}

func (repo schoolRepository) QueryStudentParentIDs(ctx context.Context, stdIDs ...string) ([]string, error) {
	if len(stdIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT DISTINCT parent_id FROM student_parents WHERE student_id IN (?)`, stdIDs)
	if err != nil {
		return nil, errors.Wrap(err, "querying student parents")
	}
	var ids []string
	if err = repo.db.SelectContext(ctx, &ids, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying student parents")
	}
	return ids, nil
}

func (repo schoolRepository) CountLevels(ctx context.Context) (int, error) {
	return repo.count(ctx, `SELECT COUNT(*) FROM school_levels`)
}

func (repo schoolRepository) CountClassrooms(ctx context.Context) (int, error) {
	return repo.count(ctx, `SELECT COUNT(*) FROM classrooms`)
}

func (repo schoolRepository) CountStudents(ctx context.Context) (int, error) {
	return repo.count(ctx, `SELECT COUNT(*) FROM students`)
}

func (repo schoolRepository) count(ctx context.Context, query string) (int, error) {
	var n int
	if err := repo.db.GetContext(ctx, &n, query); err != nil {
		return 0, errors.Wrap(err, "counting")
	}
	return n, nil
}

// orderBy builds an ORDER BY clause from the requested ordering. Field names
// reach us from query strings, so only fields present in the allowed map make
// it into the SQL; anything else is dropped.
func orderBy(ordering []core.DBOrdering, allowed map[string]string, fallback string) string {
	parts := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		col, ok := allowed[ord.Field]
		if !ok {
			continue
		}
		parts = append(parts, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	if len(parts) == 0 {
		return ` ORDER BY ` + fallback
	}
	return ` ORDER BY ` + strings.Join(parts, ", ")
}

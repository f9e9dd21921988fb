package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/MoonNight31/AppCaryamil/core"
	"github.com/MoonNight31/AppCaryamil/core/school"
)

type schoolRepository struct {
	db *schoolTables
}

func NewSchoolRepository(db *DB) school.Repository {
	return &schoolRepository{db: db.school}
}

func (repo *schoolRepository) QueryLevels(ctx context.Context, ordering ...core.DBOrdering) ([]school.Level, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	lvls := make([]school.Level, 0, len(repo.db.levels))
	for _, lvl := range repo.db.levels {
		lvls = append(lvls, *lvl)
	}
	sort.Slice(lvls, func(i, j int) bool { return lvls[i].Name < lvls[j].Name })
	return lvls, nil
}

func (repo *schoolRepository) GetLevelByID(ctx context.Context, id string) (school.Level, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if lvl, ok := repo.db.levels[id]; ok {
		return *lvl, nil
	}
	return school.Level{}, school.ErrLevelNotFound
}

func (repo *schoolRepository) GetLevelBySlug(ctx context.Context, slug string) (school.Level, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, lvl := range repo.db.levels {
		if lvl.Slug == slug {
			return *lvl, nil
		}
	}
	return school.Level{}, school.ErrLevelNotFound
}

func (repo *schoolRepository) CreateLevel(ctx context.Context, lvl school.Level) (school.Level, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	lvl.ID = newPK()
	repo.db.levels[lvl.ID] = &lvl
	return lvl, nil
}

func (repo *schoolRepository) UpdateLevel(ctx context.Context, lvl school.Level) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.levels[lvl.ID]; !ok {
		return school.ErrLevelNotFound
	}
	repo.db.levels[lvl.ID] = &lvl
	return nil
}

func (repo *schoolRepository) QueryClassrooms(ctx context.Context, filter school.ClassroomFilter, ordering ...core.DBOrdering) ([]school.Classroom, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var rooms []school.Classroom
	for _, room := range repo.db.classrooms {
		if !repo.matchesClassroomFilter(*room, filter) {
			continue
		}
		r := *room
		r.StudentCount = repo.countStudents(r.ID)
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
	return rooms, nil
}

func (repo *schoolRepository) GetClassroomByID(ctx context.Context, id string) (school.Classroom, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if room, ok := repo.db.classrooms[id]; ok {
		r := *room
		r.StudentCount = repo.countStudents(r.ID)
		return r, nil
	}
	return school.Classroom{}, school.ErrClassroomNotFound
}

func (repo *schoolRepository) CreateClassroom(ctx context.Context, room school.Classroom) (school.Classroom, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	room.ID = newPK()
	repo.db.classrooms[room.ID] = &room
	return room, nil
}

func (repo *schoolRepository) UpdateClassroom(ctx context.Context, room school.Classroom) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.classrooms[room.ID]; !ok {
		return school.ErrClassroomNotFound
	}
	repo.db.classrooms[room.ID] = &room
	return nil
}

func (repo *schoolRepository) DeleteClassroomsByID(ctx context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		delete(repo.db.classrooms, id)
		// detach, don't delete: students survive their classroom
		for _, std := range repo.db.students {
			if std.ClassroomID == id {
				std.ClassroomID = ""
			}
		}
	}
	return nil
}

func (repo *schoolRepository) SetClassroomsTeacher(ctx context.Context, usrID string, roomIDs ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	wanted := make(map[string]bool, len(roomIDs))
	for _, id := range roomIDs {
		wanted[id] = true
	}
	for id, room := range repo.db.classrooms {
		switch {
		case wanted[id]:
			room.TeacherID = usrID
		case room.TeacherID == usrID:
			room.TeacherID = ""
		}
	}
	return nil
}

func (repo *schoolRepository) QueryStudents(ctx context.Context, filter school.StudentFilter, ordering ...core.DBOrdering) ([]school.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var stds []school.Student
	for _, std := range repo.db.students {
		if !repo.matchesStudentFilter(*std, filter) {
			continue
		}
		s := *std
		s.ParentIDs = append([]string(nil), repo.db.parents[s.ID]...)
		stds = append(stds, s)
	}
	sort.Slice(stds, func(i, j int) bool {
		if stds[i].LastName != stds[j].LastName {
			return stds[i].LastName < stds[j].LastName
		}
		return stds[i].FirstName < stds[j].FirstName
	})
	return stds, nil
}

func (repo *schoolRepository) QueryRecentStudents(ctx context.Context, limit int) ([]school.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var stds []school.Student
	for _, std := range repo.db.students {
		s := *std
		s.ParentIDs = append([]string(nil), repo.db.parents[s.ID]...)
		stds = append(stds, s)
	}
	sort.Slice(stds, func(i, j int) bool { return stds[i].CreatedAt.After(stds[j].CreatedAt) })
	if limit > 0 && len(stds) > limit {
		stds = stds[:limit]
	}
	return stds, nil
}

func (repo *schoolRepository) GetStudentByID(ctx context.Context, id string) (school.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if std, ok := repo.db.students[id]; ok {
		s := *std
		s.ParentIDs = append([]string(nil), repo.db.parents[s.ID]...)
		return s, nil
	}
	return school.Student{}, school.ErrStudentNotFound
}

func (repo *schoolRepository) CreateStudent(ctx context.Context, std school.Student) (school.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	std.ID = newPK()
	std.CreatedAt = now()
	parentIDs := std.ParentIDs
	std.ParentIDs = nil
	repo.db.students[std.ID] = &std
	if len(parentIDs) > 0 {
		repo.db.parents[std.ID] = dedup(parentIDs)
	}
	std.ParentIDs = append([]string(nil), repo.db.parents[std.ID]...)
	return std, nil
}

func (repo *schoolRepository) UpdateStudent(ctx context.Context, std school.Student) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.students[std.ID]; !ok {
		return school.ErrStudentNotFound
	}
	std.ParentIDs = nil // the junction is managed through SetStudentParents
	repo.db.students[std.ID] = &std
	return nil
}

func (repo *schoolRepository) DeleteStudentsByID(ctx context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		delete(repo.db.students, id)
		delete(repo.db.parents, id)
	}
	return nil
}

func (repo *schoolRepository) SetStudentParents(ctx context.Context, stdID string, parentIDs ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.students[stdID]; !ok {
		return school.ErrStudentNotFound
	}
	repo.db.parents[stdID] = dedup(parentIDs)
	return nil
}

func (repo *schoolRepository) QueryStudentParentIDs(ctx context.Context, stdIDs ...string) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	seen := make(map[string]bool)
	var ids []string
	for _, stdID := range stdIDs {
		for _, pid := range repo.db.parents[stdID] {
			if !seen[pid] {
				seen[pid] = true
				ids = append(ids, pid)
			}
		}
	}
	return ids, nil
}

func (repo *schoolRepository) CountLevels(ctx context.Context) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return len(repo.db.levels), nil
}

func (repo *schoolRepository) CountClassrooms(ctx context.Context) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return len(repo.db.classrooms), nil
}

func (repo *schoolRepository) CountStudents(ctx context.Context) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return len(repo.db.students), nil
}

// callers must hold the lock
func (repo *schoolRepository) countStudents(roomID string) int {
	var n int
	for _, std := range repo.db.students {
		if std.ClassroomID == roomID {
			n++
		}
	}
	return n
}

func (repo *schoolRepository) matchesClassroomFilter(room school.Classroom, filter school.ClassroomFilter) bool {
	if filter.LevelID != "" && room.LevelID != filter.LevelID {
		return false
	}
	if filter.TeacherID != "" && room.TeacherID != filter.TeacherID {
		return false
	}
	if len(filter.StudentIDs) > 0 {
		var has bool
		for _, stdID := range filter.StudentIDs {
			if std, ok := repo.db.students[stdID]; ok && std.ClassroomID == room.ID {
				has = true
				break
			}
		}
		if !has {
			return false
		}
	}
	if filter.Search != "" && !strings.Contains(strings.ToLower(room.Name), strings.ToLower(filter.Search)) {
		return false
	}
	return true
}

func (repo *schoolRepository) matchesStudentFilter(std school.Student, filter school.StudentFilter) bool {
	if len(filter.ClassroomIDs) > 0 {
		var in bool
		for _, id := range filter.ClassroomIDs {
			if std.ClassroomID == id {
				in = true
				break
			}
		}
		if !in {
			return false
		}
	}
	if filter.ParentID != "" {
		var has bool
		for _, pid := range repo.db.parents[std.ID] {
			if pid == filter.ParentID {
				has = true
				break
			}
		}
		if !has {
			return false
		}
	}
	if filter.LevelID != "" {
		room, ok := repo.db.classrooms[std.ClassroomID]
		if !ok || room.LevelID != filter.LevelID {
			return false
		}
	}
	if filter.Search != "" {
		s := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(std.FirstName), s) &&
			!strings.Contains(strings.ToLower(std.LastName), s) {
			return false
		}
	}
	return true
}

func dedup(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

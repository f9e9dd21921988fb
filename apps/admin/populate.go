package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/MoonNight31/AppCaryamil/core/school"
	"github.com/MoonNight31/AppCaryamil/core/user"
)

// populate seeds the database with a small demo school: the three levels, a
// classroom per level, a director, a teacher and two families. Safe to run
// repeatedly; existing records are reused.
func (cli *commandLine) populate() error {
	ctx := context.Background()

	lvls := []school.NewLevel{
		{Name: "Maternelle", Slug: school.SlugMaternelle, Description: "Petite, moyenne et grande section"},
		{Name: "Primaire", Slug: school.SlugPrimaire, Description: "Du CP au CM2"},
		{Name: "Collège", Slug: school.SlugCollege, Description: "De la 6e à la 3e"},
	}
	levels := make(map[string]school.Level, len(lvls))
	for _, nl := range lvls {
		lvl, err := cli.schSvc.GetLevelBySlug(ctx, nl.Slug)
		if errors.Cause(err) == school.ErrLevelNotFound {
			if lvl, err = cli.schSvc.CreateLevel(ctx, nl); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		levels[nl.Slug] = lvl
	}

	director, err := cli.seedUser(ctx, user.NewUser{
		Username:        "directrice",
		FirstName:       "Awa",
		LastName:        "Diallo",
		Email:           "direction@demo.school",
		Password:        "LetMeIn123!",
		PasswordConfirm: "LetMeIn123!",
		IsDirector:      true,
	})
	if err != nil {
		return err
	}
	teacher, err := cli.seedUser(ctx, user.NewUser{
		Username:        "prof_cp",
		FirstName:       "Moussa",
		LastName:        "Traoré",
		Email:           "prof.cp@demo.school",
		Password:        "LetMeIn123!",
		PasswordConfirm: "LetMeIn123!",
		IsTeacher:       true,
	})
	if err != nil {
		return err
	}
	parent1, err := cli.seedUser(ctx, user.NewUser{
		Username:        "parent_keita",
		FirstName:       "Fatou",
		LastName:        "Keïta",
		Email:           "f.keita@demo.school",
		Password:        "LetMeIn123!",
		PasswordConfirm: "LetMeIn123!",
		IsParent:        true,
	})
	if err != nil {
		return err
	}
	parent2, err := cli.seedUser(ctx, user.NewUser{
		Username:        "parent_cisse",
		FirstName:       "Ibrahim",
		LastName:        "Cissé",
		Email:           "i.cisse@demo.school",
		Password:        "LetMeIn123!",
		PasswordConfirm: "LetMeIn123!",
		IsParent:        true,
	})
	if err != nil {
		return err
	}

	year := schoolYear(time.Now())
	rooms := []school.NewClassroom{
		{LevelID: levels[school.SlugMaternelle].ID, Name: "Grande section", SchoolYear: year},
		{LevelID: levels[school.SlugPrimaire].ID, TeacherID: teacher.ID, Name: "CP", SchoolYear: year},
		{LevelID: levels[school.SlugCollege].ID, Name: "6e", SchoolYear: year},
	}
	roomIDs := make(map[string]string, len(rooms))
	for _, nc := range rooms {
		room, err := cli.seedClassroom(ctx, nc)
		if err != nil {
			return err
		}
		roomIDs[nc.Name] = room.ID
	}

	students := []school.NewStudent{
		{FirstName: "Aminata", LastName: "Keïta", ClassroomID: roomIDs["CP"], ParentIDs: []string{parent1.ID}},
		{FirstName: "Sékou", LastName: "Keïta", ClassroomID: roomIDs["Grande section"], ParentIDs: []string{parent1.ID}},
		{FirstName: "Mariam", LastName: "Cissé", ClassroomID: roomIDs["6e"], ParentIDs: []string{parent2.ID}},
	}
	for _, ns := range students {
		if err := cli.seedStudent(ctx, ns); err != nil {
			return err
		}
	}

	n, err := cli.msgSvc.EnsureGroupConversations(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("populated: %d level(s), director %q, %d group conversation(s) created\n",
		len(levels), director.Username, n)
	return nil
}

func (cli *commandLine) seedUser(ctx context.Context, nu user.NewUser) (user.User, error) {
	usr, err := cli.usrSvc.GetByUsername(ctx, nu.Username)
	if err == nil {
		return usr, nil
	}
	if errors.Cause(err) != user.ErrNotFound {
		return user.User{}, err
	}
	return cli.usrSvc.Create(ctx, nu)
}

func (cli *commandLine) seedClassroom(ctx context.Context, nc school.NewClassroom) (school.Classroom, error) {
	existing, err := cli.schSvc.QueryClassrooms(ctx, school.ClassroomFilter{LevelID: nc.LevelID, Search: nc.Name})
	if err != nil {
		return school.Classroom{}, err
	}
	for _, room := range existing {
		if room.Name == nc.Name {
			return room, nil
		}
	}
	return cli.schSvc.CreateClassroom(ctx, nc)
}

func (cli *commandLine) seedStudent(ctx context.Context, ns school.NewStudent) error {
	existing, err := cli.schSvc.QueryStudents(ctx, school.StudentFilter{
		ClassroomIDs: []string{ns.ClassroomID},
		Search:       ns.LastName,
	})
	if err != nil {
		return err
	}
	for _, std := range existing {
		if std.FirstName == ns.FirstName && std.LastName == ns.LastName {
			return nil
		}
	}
	_, err = cli.schSvc.CreateStudent(ctx, ns)
	return err
}

// schoolYear formats the running school year, e.g. "2025-2026"; the pivot is
// the start of August.
func schoolYear(now time.Time) string {
	start := now.Year()
	if now.Month() < time.August {
		start--
	}
	return fmt.Sprintf("%d-%d", start, start+1)
}

// Package inmemdb is a map-backed storage implementation used by tests and
// local tinkering. It mirrors the Postgres repositories' semantics closely
// enough that services can be exercised without a database.
package inmemdb

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MoonNight31/AppCaryamil/core/messaging"
	"github.com/MoonNight31/AppCaryamil/core/school"
	"github.com/MoonNight31/AppCaryamil/core/user"
)

type (
	DB struct {
		user      *userTable
		school    *schoolTables
		messaging *messagingTables
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	schoolTables struct {
		sync.RWMutex
		levels     map[string]*school.Level
		classrooms map[string]*school.Classroom
		students   map[string]*school.Student
		// studentID -> parent user IDs, insertion-ordered
		parents map[string][]string
	}

	messagingTables struct {
		sync.RWMutex
		conversations map[string]*messaging.Conversation
		posts         map[string]*messaging.Post
		messages      map[string]*messaging.Message
	}
)

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{table: make(map[string]*user.User)},
		school: &schoolTables{
			levels:     make(map[string]*school.Level),
			classrooms: make(map[string]*school.Classroom),
			students:   make(map[string]*school.Student),
			parents:    make(map[string][]string),
		},
		messaging: &messagingTables{
			conversations: make(map[string]*messaging.Conversation),
			posts:         make(map[string]*messaging.Post),
			messages:      make(map[string]*messaging.Message),
		},
	}
	return db, nil
}

func newPK() string { return uuid.NewString() }

func now() time.Time { return time.Now().UTC() }

package main

import (
	"bytes"
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MoonNight31/AppCaryamil/core/messaging"
	"github.com/MoonNight31/AppCaryamil/core/school"
	"github.com/MoonNight31/AppCaryamil/core/user"
	emailsvc "github.com/MoonNight31/AppCaryamil/services/email"
	inmemdb "github.com/MoonNight31/AppCaryamil/storage/database/inmem"
)

func setup(t *testing.T) *commandLine {
	t.Helper()

	db, err := inmemdb.Open()
	require.NoError(t, err)

	usrRepo := inmemdb.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, emailsvc.NewConsoleServiceMock())
	schSvc := school.NewService(inmemdb.NewSchoolRepository(db), usrRepo)
	msgSvc := messaging.NewService(inmemdb.NewMessagingRepository(db), schSvc)

	return &commandLine{
		usrRepo: usrRepo,
		usrSvc:  usrSvc,
		schSvc:  schSvc,
		msgSvc:  msgSvc,
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	var called bool
	migrateFunc = func(db *sql.DB) error {
		called = true
		return nil
	}

	require.NoError(t, cli.run([]string{"admin", "migrate"}))
	require.True(t, called)
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr, err := cli.usrSvc.Create(context.Background(), user.NewUser{
		Username:        "awe",
		Email:           "awe@test.cd",
		Password:        "m24!dr0wssap",
		PasswordConfirm: "m24!dr0wssap",
	})
	require.NoError(t, err)

	type extra struct {
		pwd string
	}
	tests := []struct {
		name    string
		args    []string // without program name
		wantErr error
		extra   interface{}
	}{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			refreshed, err := cli.usrSvc.GetByID(context.Background(), usr.ID)
			require.NoError(t, err)
			require.False(t, bytes.Equal(refreshed.PasswordHash, usr.PasswordHash), "failed to update new password")
		})
	}
}

func Test_commandLine_createSuperuser(t *testing.T) {
	cli := setup(t)

	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("LetMeIn123!"), nil }

	require.NoError(t, cli.run([]string{"admin", "createsuperuser", "-username", "boss", "-email", "boss@test.cd"}))

	usr, err := cli.usrSvc.GetByUsername(context.Background(), "boss")
	require.NoError(t, err)
	require.True(t, usr.Superuser)
	require.True(t, usr.Staff)
	require.True(t, usr.Active)
	require.NoError(t, usr.CheckPassword("LetMeIn123!"))

	// running it again keeps the same account
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("NewPass456!"), nil }
	require.NoError(t, cli.run([]string{"admin", "createsuperuser", "-username", "boss", "-email", "boss@test.cd"}))

	again, err := cli.usrSvc.GetByUsername(context.Background(), "boss")
	require.NoError(t, err)
	require.Equal(t, usr.ID, again.ID)
	require.NoError(t, again.CheckPassword("NewPass456!"))
}

func Test_commandLine_populate(t *testing.T) {
	cli := setup(t)

	// seeding without confirmation is refused
	require.ErrorIs(t, cli.run([]string{"admin", "populate"}), errHelp)

	require.NoError(t, cli.run([]string{"admin", "populate", "-yes"}))

	ctx := context.Background()
	lvls, err := cli.schSvc.QueryLevels(ctx)
	require.NoError(t, err)
	require.Len(t, lvls, 3)

	n, err := cli.msgSvc.CountConversations(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n) // one group conversation per seeded classroom

	// idempotent
	require.NoError(t, cli.run([]string{"admin", "populate", "-yes"}))
	n, err = cli.msgSvc.CountConversations(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

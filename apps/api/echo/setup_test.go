package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/MoonNight31/AppCaryamil/core"
	"github.com/MoonNight31/AppCaryamil/core/messaging"
	"github.com/MoonNight31/AppCaryamil/core/school"
	"github.com/MoonNight31/AppCaryamil/core/user"
	emailsvc "github.com/MoonNight31/AppCaryamil/services/email"
	logsvc "github.com/MoonNight31/AppCaryamil/services/logger"
	inmemdb "github.com/MoonNight31/AppCaryamil/storage/database/inmem"
)

type testApp struct {
	server Server

	usrRepo user.Repository
	usrSvc  *user.Service
	schSvc  *school.Service
	msgSvc  *messaging.Service
	storage *memStorage
}

// memStorage keeps upload URLs in memory instead of touching the disk.
type memStorage struct {
	saved []string
}

func (s *memStorage) Save(r io.Reader, dir, filename string) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	url := "/media/" + dir + "/" + filename
	s.saved = append(s.saved, url)
	return url, nil
}

func setupApp(t *testing.T) *testApp {
	t.Helper()

	db, err := inmemdb.Open()
	require.NoError(t, err)

	app := &testApp{storage: &memStorage{}}
	app.usrRepo = inmemdb.NewUserRepository(db)
	app.usrSvc = user.NewService(app.usrRepo, emailsvc.NewConsoleServiceMock())
	app.schSvc = school.NewService(inmemdb.NewSchoolRepository(db), app.usrRepo)
	app.msgSvc = messaging.NewService(inmemdb.NewMessagingRepository(db), app.schSvc)

	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), core.Conf)
	logger.Enable(false)

	app.server = NewServer(&Options{
		Address:        "localhost:0",
		DisableReqLogs: true,
		Logger:         logger,
		UserSvc:        app.usrSvc,
		SchoolSvc:      app.schSvc,
		MessagingSvc:   app.msgSvc,
		Storage:        app.storage,
	})
	return app
}

func (app *testApp) request(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.server.ServeHTTP(rec, req)
	return rec
}

// formRequest posts multipart form data; files maps field name to file name.
func (app *testApp) formRequest(method, path, token string, fields, files map[string]string) *httptest.ResponseRecorder {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	for field, name := range files {
		fw, _ := w.CreateFormFile(field, name)
		_, _ = io.Copy(fw, strings.NewReader("fake image bytes"))
	}
	_ = w.Close()

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.server.ServeHTTP(rec, req)
	return rec
}

func (app *testApp) createUser(t *testing.T, uname string, mut func(*user.User)) user.User {
	t.Helper()

	now := time.Now().UTC()
	usr := user.User{
		Username:  uname,
		Email:     uname + "@test.cd",
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if mut != nil {
		mut(&usr)
	}
	require.NoError(t, usr.SetPassword("LetMeIn123!"))

	usr, err := app.usrRepo.CreateUser(context.Background(), usr)
	require.NoError(t, err)
	return usr
}

func (app *testApp) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(GetUserClaims(usr))
	require.NoError(t, err)
	return token
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	return data
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), into))
}

func requireCode(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, rec.Code, "body: %s", rec.Body.String())
}

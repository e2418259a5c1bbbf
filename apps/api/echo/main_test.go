package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	. "github.com/trezcool/maktaba/apps/api/echo"
	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/user"
	"github.com/trezcool/maktaba/storage/database/dummy"
	"github.com/trezcool/maktaba/tests"
)

var (
	t0 = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

type fixture struct {
	app     Server
	conf    *core.Config
	clock   *core.ManualClock
	tokens  *TokenIssuer
	usrRepo user.Repository
	libSvc  library.Service

	admin     user.User
	librarian user.User
	outsider  user.User
}

type option func(opts *Options)

func setup(t *testing.T, opts ...option) *fixture {
	t.Helper()
	conf := core.NewTestConfig()
	clock := core.NewManualClock(t0)
	logger := core.NewStdLogger(nil)

	db := dummydb.Open()
	usrRepo := dummydb.NewUserRepository(db)
	libRepo := dummydb.NewLibraryRepository(db)

	f := &fixture{
		conf:    conf,
		clock:   clock,
		tokens:  NewTokenIssuer(conf),
		usrRepo: usrRepo,
		libSvc:  library.NewService(libRepo, conf.Library, clock, logger),
	}
	options := &Options{
		Conf:           conf,
		Logger:         logger,
		DisableReqLogs: true,
		UserSvc:        user.NewService(usrRepo, clock),
		LibrarySvc:     f.libSvc,
		Sweeper:        library.NewSweeper(libRepo, conf.Library, clock, logger, nil),
	}
	for _, opt := range opts {
		opt(options)
	}
	f.app = NewServer(options)

	f.admin = testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "admin-pwd", []string{user.RoleAdmin}, true)
	f.librarian = testutil.CreateUser(t, usrRepo, "Librarian", "libr", "libr@test.cd", "libr-pwd", []string{user.RoleLibrarian}, true)
	f.outsider = testutil.CreateUser(t, usrRepo, "Outsider", "outsider", "out@test.cd", "out-pwd", nil, true)
	return f
}

func ctx() context.Context { return context.Background() }

func (f *fixture) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := f.tokens.GenerateToken(f.tokens.UserClaims(usr))
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

func (f *fixture) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.method == "" {
				tt.method = http.MethodGet
			}
			if tt.wantCode == 0 {
				tt.wantCode = http.StatusOK
			}
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			f.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest), rec.Body.String())
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

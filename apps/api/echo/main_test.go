package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/skillsharp/lms/apps/api/echo"
	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/chat"
	"github.com/skillsharp/lms/core/course"
	"github.com/skillsharp/lms/core/dashboard"
	"github.com/skillsharp/lms/core/discussion"
	"github.com/skillsharp/lms/core/enrollment"
	"github.com/skillsharp/lms/core/media"
	"github.com/skillsharp/lms/core/payment"
	"github.com/skillsharp/lms/core/quiz"
	"github.com/skillsharp/lms/core/user"
	emailsvc "github.com/skillsharp/lms/services/email"
	storagesvc "github.com/skillsharp/lms/services/storage"
	inmemdb "github.com/skillsharp/lms/storage/database/inmem"
	"github.com/skillsharp/lms/tests"
)

var (
	conf *core.Config
	db   *inmemdb.DB
	app  *Server
	hub  *chat.Hub

	usrRepo     user.Repository
	courseRepo  course.Repository
	paymentRepo payment.Repository

	usrSvc     user.Service
	enrollSvc  enrollment.Service
	paymentSvc payment.Service
	quizSvc    quiz.Service

	stripeGw *testutil.FakeGateway
)

func TestMain(m *testing.M) {
	mediaRoot, err := os.MkdirTemp("", "lms-media-")
	if err != nil {
		fmt.Printf("os.MkdirTemp(): %v", err)
		os.Exit(1)
	}

	conf = testutil.NewConfig()
	conf.Storage.DiskRoot = mediaRoot
	logger := testutil.NewLogger(conf)
	validate, translator := testutil.NewValidator()

	// set up DB & repos
	db = inmemdb.NewDB()
	transactor := inmemdb.NewTransactor(db)
	usrRepo = inmemdb.NewUserRepository(db)
	courseRepo = inmemdb.NewCourseRepository(db)
	paymentRepo = inmemdb.NewPaymentRepository(db)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	usrSvc = user.NewService(usrRepo, mailSvc, validate, conf)
	courseSvc := course.NewService(courseRepo, validate, conf)
	enrollSvc = enrollment.NewService(inmemdb.NewEnrollmentRepository(db), courseSvc, usrSvc, transactor, validate)
	stripeGw = testutil.NewFakeGateway(payment.ProviderStripe)
	paymentSvc = payment.NewService(
		paymentRepo,
		payment.NewGateways(stripeGw),
		courseSvc,
		enrollSvc,
		usrSvc,
		transactor,
		mailSvc,
		logger,
		validate,
		conf,
	)
	quizSvc = quiz.NewService(inmemdb.NewQuizRepository(db), enrollSvc, validate)
	storage, err := storagesvc.NewDiskStorage(conf)
	if err != nil {
		fmt.Printf("NewDiskStorage(): %v", err)
		os.Exit(1)
	}

	hub = chat.NewHub()
	chatSvc := chat.NewService(chat.NewLocalBus(), hub, validate)
	ctx, cancel := context.WithCancel(context.Background())
	if err = chatSvc.Run(ctx); err != nil {
		fmt.Printf("chatSvc.Run(): %v", err)
		os.Exit(1)
	}

	// set up server
	app = NewServer(&Options{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
		MediaRoot:      mediaRoot,
		UserSvc:        usrSvc,
		CourseSvc:      courseSvc,
		EnrollSvc:      enrollSvc,
		PaymentSvc:     paymentSvc,
		QuizSvc:        quizSvc,
		DiscussionSvc:  discussion.NewService(inmemdb.NewDiscussionRepository(db), validate),
		MediaSvc:       media.NewService(storage, conf),
		ChatSvc:        chatSvc,
		DashboardSvc:   dashboard.NewService(usrSvc, courseSvc, enrollSvc, paymentSvc, transactor),
	})

	// run tests
	code := m.Run()

	// clean up
	cancel()
	_ = os.RemoveAll(mediaRoot)
	os.Exit(code)
}

func resetDB() {
	db.Reset()
	emailsvc.ResetSentMessages()
}

type httpErr struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func errResp(msg string, flds ...string) httpErr {
	res := httpErr{Message: msg}
	if len(flds) > 0 {
		res.Errors = make(map[string]string, len(flds)/2)
		for i := 0; i+1 < len(flds); i += 2 {
			res.Errors[flds[i]] = flds[i+1]
		}
	}
	return res
}

var (
	errMissingToken   = errResp("No token provided, authorization denied")
	errInvalidToken   = errResp("Token is not valid")
	errNotInstructor  = errResp("Access denied. Instructor role required")
	errNotAdmin       = errResp("Access denied. Admin role required")
	errNotEnrolled    = errResp("You must be enrolled in this course")
	errCourseNotFound = errResp("Course not found")
)

func successResp(msg string) SuccessResponse {
	return SuccessResponse{Success: true, Message: msg}
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
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

// serve runs a request through the app.
func serve(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	app.ServeHTTP(rec, req)
	return rec
}

func getToken(t *testing.T, usr user.User) string {
	token, err := GenerateToken(GetUserClaims(usr, conf), conf)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarshalBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("json.Unmarshal(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ObjectsAreEqual(j1, j2), nil
}

func checkCode(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	checkCode(t, tt, rec)
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

// runHTTPTests serves every test, defaulting to 200 OK.
// defaults optionally holds the method and the path of tests leaving them empty.
func runHTTPTests(t *testing.T, tests []httpTest, defaults ...string) {
	for _, tt := range tests {
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		if tt.method == "" {
			tt.method = http.MethodGet
			if len(defaults) > 0 {
				tt.method = defaults[0]
			}
		}
		if tt.path == "" && len(defaults) > 1 {
			tt.path = defaults[1]
		}
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func lectures(ids ...string) []course.Lecture {
	res := make([]course.Lecture, 0, len(ids))
	for _, id := range ids {
		res = append(res, course.Lecture{ID: id, Title: "Lecture " + id, Type: course.LectureVideo, Duration: 60})
	}
	return res
}

func reloadCourse(t *testing.T, id string) course.Course {
	c, err := courseRepo.GetCourse(context.Background(), id)
	if err != nil {
		t.Fatalf("GetCourse() failed: %v", err)
	}
	return c
}

func reloadUser(t *testing.T, id string) user.User {
	usr, err := usrSvc.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	return usr
}

package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsharp/lms/core/course"
	"github.com/skillsharp/lms/core/user"
	"github.com/skillsharp/lms/tests"
)

type coursePage struct {
	Success bool            `json:"success"`
	Courses []course.Course `json:"courses"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	Pages   int             `json:"pages"`
}

type courseResp struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Course  course.Course `json:"course"`
}

func TestQueryCourses(t *testing.T) {
	resetDB()
	tutor := testutil.CreateUser(t, usrRepo, "Tutor", "tutor@example.com", testutil.Password, user.RoleInstructor, true)
	testutil.CreateCourse(t, courseRepo, tutor, "Go Basics", 0, true, lectures("l1")...)
	testutil.CreateCourse(t, courseRepo, tutor, "Advanced Go", 4900, true, lectures("l1")...)
	testutil.CreateCourse(t, courseRepo, tutor, "Go Draft", 0, false)

	query := func(t *testing.T, path string) coursePage {
		rec := serve(http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp coursePage
		unmarshalBody(t, rec, &resp)
		return resp
	}

	t.Run("published only", func(t *testing.T) {
		resp := query(t, "/api/courses")
		assert.True(t, resp.Success)
		assert.Equal(t, 2, resp.Total)
		assert.Equal(t, 1, resp.Page)
		assert.Equal(t, 1, resp.Pages)
		for _, c := range resp.Courses {
			assert.True(t, c.IsPublished, c.Title)
		}
	})

	t.Run("search", func(t *testing.T) {
		resp := query(t, "/api/courses?search=advanced")
		require.Len(t, resp.Courses, 1)
		assert.Equal(t, "Advanced Go", resp.Courses[0].Title)
	})

	t.Run("price range and ordering", func(t *testing.T) {
		resp := query(t, "/api/courses?max_price=0")
		require.Len(t, resp.Courses, 1)
		assert.Equal(t, "Go Basics", resp.Courses[0].Title)

		resp = query(t, "/api/courses?ordering=-price")
		require.Len(t, resp.Courses, 2)
		assert.Equal(t, "Advanced Go", resp.Courses[0].Title)
	})

	t.Run("pagination", func(t *testing.T) {
		resp := query(t, "/api/courses?limit=1&page=2")
		assert.Equal(t, 2, resp.Total)
		assert.Equal(t, 2, resp.Page)
		assert.Equal(t, 2, resp.Pages)
		assert.Len(t, resp.Courses, 1)
	})

	t.Run("featured", func(t *testing.T) {
		resp := query(t, "/api/courses/featured")
		assert.Len(t, resp.Courses, 2)
	})
}

func TestRetrieveCourse(t *testing.T) {
	resetDB()
	owner := testutil.CreateUser(t, usrRepo, "Owner", "owner@example.com", testutil.Password, user.RoleInstructor, true)
	other := testutil.CreateUser(t, usrRepo, "Other", "other@example.com", testutil.Password, user.RoleInstructor, true)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@example.com", testutil.Password, user.RoleAdmin, true)
	published := testutil.CreateCourse(t, courseRepo, owner, "Published", 0, true, lectures("l1")...)
	draft := testutil.CreateCourse(t, courseRepo, owner, "Draft", 0, false)

	notFound := marchallObj(t, errCourseNotFound)
	tests := []httpTest{
		{name: "published anonymous", path: "/api/courses/" + published.ID},
		{name: "unknown course", path: "/api/courses/unknown", wantCode: http.StatusNotFound, wantData: notFound},
		{name: "draft anonymous", path: "/api/courses/" + draft.ID, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "draft other instructor", path: "/api/courses/" + draft.ID, token: getToken(t, other), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "draft owner", path: "/api/courses/" + draft.ID, token: getToken(t, owner)},
		{name: "draft admin", path: "/api/courses/" + draft.ID, token: getToken(t, admin)},
		{name: "bad token", path: "/api/courses/" + published.ID, token: "garbage", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errInvalidToken)},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
	}
	runHTTPTests(t, tests)
}

func TestCreateCourse(t *testing.T) {
	resetDB()
	student := testutil.CreateUser(t, usrRepo, "Student", "student@example.com", testutil.Password, user.RoleStudent, true)
	tutor := testutil.CreateUser(t, usrRepo, "Tutor", "tutor@example.com", testutil.Password, user.RoleInstructor, true)
	token := getToken(t, tutor)

	body := []byte(`{
		"title": " Intro to Go ",
		"description": "Learn Go",
		"category": "Programming",
		"price": 1999,
		"lectures": [{"title": "Hello", "type": "video", "duration": 120}]
	}`)

	runHTTPTests(t, []httpTest{
		{name: "no token", method: http.MethodPost, path: "/api/courses", body: body, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "student", method: http.MethodPost, path: "/api/courses", body: body, token: getToken(t, student), wantCode: http.StatusForbidden, wantData: marchallObj(t, errNotInstructor)},
		{
			name:     "invalid data",
			method:   http.MethodPost,
			path:     "/api/courses",
			body:     []byte(`{"price": -1}`),
			token:    token,
			wantCode: http.StatusBadRequest,
		},
	})

	rec := serve(http.MethodPost, "/api/courses", token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp courseResp
	unmarshalBody(t, rec, &resp)
	c := resp.Course
	assert.Equal(t, "Intro to Go", c.Title)
	assert.Equal(t, "intro-to-go", c.Slug)
	assert.Equal(t, "programming", c.Category)
	assert.Equal(t, course.LevelAll, c.Level)
	assert.Equal(t, conf.Payment.Currency, c.Currency)
	assert.Equal(t, tutor.ID, c.InstructorID)
	assert.False(t, c.IsPublished)
	require.Len(t, c.Lectures, 1)
	assert.NotEmpty(t, c.Lectures[0].ID)
	assert.Equal(t, course.LectureVideo, c.Lectures[0].Type)

	t.Run("slug stays unique", func(t *testing.T) {
		rec := serve(http.MethodPost, "/api/courses", token, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var again courseResp
		unmarshalBody(t, rec, &again)
		assert.NotEqual(t, c.Slug, again.Course.Slug)
	})

	t.Run("my courses", func(t *testing.T) {
		rec := serve(http.MethodGet, "/api/courses/instructor/my-courses", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var page coursePage
		unmarshalBody(t, rec, &page)
		assert.Len(t, page.Courses, 2)
	})
}

func TestManageCourse(t *testing.T) {
	resetDB()
	owner := testutil.CreateUser(t, usrRepo, "Owner", "owner@example.com", testutil.Password, user.RoleInstructor, true)
	other := testutil.CreateUser(t, usrRepo, "Other", "other@example.com", testutil.Password, user.RoleInstructor, true)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@example.com", testutil.Password, user.RoleAdmin, true)
	ownerToken := getToken(t, owner)
	empty := testutil.CreateCourse(t, courseRepo, owner, "Empty", 0, false)
	c := testutil.CreateCourse(t, courseRepo, owner, "Full", 0, false, lectures("l1", "l2")...)

	notAuthorized := marchallObj(t, errResp("Not authorized to modify this course"))

	runHTTPTests(t, []httpTest{
		{
			name:     "update by other instructor",
			method:   http.MethodPut,
			path:     "/api/courses/" + c.ID,
			body:     []byte(`{"title":"Hijacked"}`),
			token:    getToken(t, other),
			wantCode: http.StatusForbidden,
			wantData: notAuthorized,
		},
		{
			name:     "publish without lectures",
			method:   http.MethodPatch,
			path:     "/api/courses/" + empty.ID + "/publish",
			token:    ownerToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, errResp("Validation failed", "lectures", "add at least one lecture before publishing")),
		},
		{
			name:     "delete by other instructor",
			method:   http.MethodDelete,
			path:     "/api/courses/" + c.ID,
			token:    getToken(t, other),
			wantCode: http.StatusForbidden,
			wantData: notAuthorized,
		},
	})

	t.Run("update", func(t *testing.T) {
		rec := serve(http.MethodPut, "/api/courses/"+c.ID, ownerToken, []byte(`{"title":"Full Course","price":2500}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		updated := reloadCourse(t, c.ID)
		assert.Equal(t, "Full Course", updated.Title)
		assert.Equal(t, "full-course", updated.Slug)
		assert.Equal(t, int64(2500), updated.Price)
		assert.Len(t, updated.Lectures, 2)
	})

	t.Run("publish toggle", func(t *testing.T) {
		rec := serve(http.MethodPatch, "/api/courses/"+c.ID+"/publish", ownerToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp courseResp
		unmarshalBody(t, rec, &resp)
		assert.Equal(t, "Course published", resp.Message)
		assert.True(t, resp.Course.IsPublished)

		rec = serve(http.MethodPatch, "/api/courses/"+c.ID+"/publish", ownerToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshalBody(t, rec, &resp)
		assert.Equal(t, "Course unpublished", resp.Message)
		assert.False(t, reloadCourse(t, c.ID).IsPublished)
	})

	t.Run("delete by admin", func(t *testing.T) {
		runHTTPTests(t, []httpTest{
			{
				name:     "delete",
				method:   http.MethodDelete,
				path:     "/api/courses/" + c.ID,
				token:    getToken(t, admin),
				wantData: marchallObj(t, successResp("Course deleted")),
			},
			{
				name:     "already deleted",
				method:   http.MethodDelete,
				path:     "/api/courses/" + c.ID,
				token:    ownerToken,
				wantCode: http.StatusNotFound,
				wantData: marchallObj(t, errCourseNotFound),
			},
		})
	})
}

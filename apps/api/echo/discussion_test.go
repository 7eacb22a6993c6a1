package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsharp/lms/core/discussion"
	"github.com/skillsharp/lms/core/user"
	"github.com/skillsharp/lms/tests"
)

type discussionResp struct {
	Success    bool                  `json:"success"`
	Discussion discussion.Discussion `json:"discussion"`
}

func TestDiscussions(t *testing.T) {
	resetDB()
	tutor := testutil.CreateUser(t, usrRepo, "Tutor", "tutor@example.com", testutil.Password, user.RoleInstructor, true)
	alice := testutil.CreateUser(t, usrRepo, "Alice", "alice@example.com", testutil.Password, user.RoleStudent, true)
	bob := testutil.CreateUser(t, usrRepo, "Bob", "bob@example.com", testutil.Password, user.RoleStudent, true)
	outsider := testutil.CreateUser(t, usrRepo, "Outsider", "outsider@example.com", testutil.Password, user.RoleStudent, true)
	c := testutil.CreateCourse(t, courseRepo, tutor, "Course", 0, true, lectures("l1")...)
	for _, usr := range []user.User{alice, bob} {
		_, _, err := enrollSvc.Enroll(context.Background(), usr, c.ID)
		require.NoError(t, err)
	}
	aliceToken, bobToken := getToken(t, alice), getToken(t, bob)
	path := "/api/courses/" + c.ID + "/discussions"

	runHTTPTests(t, []httpTest{
		{
			name:     "not enrolled",
			body:     []byte(`{"title":"Hi","body":"Hello"}`),
			token:    getToken(t, outsider),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errNotEnrolled),
		},
		{
			name:     "missing body",
			body:     []byte(`{"title":"Hi","body":"   "}`),
			token:    aliceToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, errResp("Validation failed", "body", "this field is required")),
		},
		{
			name:     "unknown course",
			path:     "/api/courses/unknown/discussions",
			body:     []byte(`{"title":"Hi","body":"Hello"}`),
			token:    aliceToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, errCourseNotFound),
		},
	}, http.MethodPost, path)

	rec := serve(http.MethodPost, path, aliceToken, []byte(`{"title":" Stuck on lecture 1 ","body":"Any hint?"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created discussionResp
	unmarshalBody(t, rec, &created)
	d := created.Discussion
	assert.Equal(t, "Stuck on lecture 1", d.Title)
	assert.Equal(t, alice.ID, d.UserID)
	assert.Equal(t, "Alice", d.AuthorName)
	assert.Empty(t, d.Replies)

	t.Run("replies", func(t *testing.T) {
		rec := serve(http.MethodPost, "/api/discussions/"+d.ID+"/replies", getToken(t, tutor), []byte(`{"body":"Watch it again"}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var resp discussionResp
		unmarshalBody(t, rec, &resp)
		require.Len(t, resp.Discussion.Replies, 1)
		assert.Equal(t, tutor.ID, resp.Discussion.Replies[0].UserID)
		assert.Equal(t, "Watch it again", resp.Discussion.Replies[0].Body)

		rec = serve(http.MethodPost, "/api/discussions/"+d.ID+"/replies", getToken(t, outsider), []byte(`{"body":"me too"}`))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("list", func(t *testing.T) {
		rec := serve(http.MethodGet, path, bobToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp struct {
			Discussions []discussion.Discussion `json:"discussions"`
			Total       int                     `json:"total"`
		}
		unmarshalBody(t, rec, &resp)
		assert.Equal(t, 1, resp.Total)
		require.Len(t, resp.Discussions, 1)
		assert.Len(t, resp.Discussions[0].Replies, 1)
	})

	t.Run("delete", func(t *testing.T) {
		other := serve(http.MethodPost, path, bobToken, []byte(`{"title":"Bob's","body":"question"}`))
		require.Equal(t, http.StatusCreated, other.Code, other.Body.String())
		var bobs discussionResp
		unmarshalBody(t, other, &bobs)

		runHTTPTests(t, []httpTest{
			{
				name:     "not the author",
				path:     "/api/discussions/" + d.ID,
				token:    bobToken,
				wantCode: http.StatusForbidden,
				wantData: marchallObj(t, errResp("Not authorized to delete this discussion")),
			},
			{name: "author", path: "/api/discussions/" + d.ID, token: aliceToken, wantData: marchallObj(t, successResp("Discussion deleted"))},
			{
				name:     "already deleted",
				path:     "/api/discussions/" + d.ID,
				token:    aliceToken,
				wantCode: http.StatusNotFound,
				wantData: marchallObj(t, errResp("Discussion not found")),
			},
			{name: "course owner", path: "/api/discussions/" + bobs.Discussion.ID, token: getToken(t, tutor)},
		}, http.MethodDelete)
	})
}

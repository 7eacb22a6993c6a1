package course

import (
	"testing"

	"github.com/skillsharp/lms/core/user"
)

func TestCourse_Permissions(t *testing.T) {
	owner := user.User{ID: "owner", Role: user.RoleInstructor}
	other := user.User{ID: "other", Role: user.RoleInstructor}
	admin := user.User{ID: "admin", Role: user.RoleAdmin}
	draft := Course{InstructorID: owner.ID}
	published := Course{InstructorID: owner.ID, IsPublished: true}

	tests := []struct {
		name        string
		course      Course
		usr         *user.User
		wantManage  bool
		wantVisible bool
	}{
		{name: "anonymous draft", course: draft},
		{name: "anonymous published", course: published, wantVisible: true},
		{name: "owner draft", course: draft, usr: &owner, wantManage: true, wantVisible: true},
		{name: "other instructor draft", course: draft, usr: &other},
		{name: "admin draft", course: draft, usr: &admin, wantManage: true, wantVisible: true},
		{name: "no id", course: Course{}, usr: &user.User{Role: user.RoleInstructor}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var usr user.User
			if tt.usr != nil {
				usr = *tt.usr
			}
			if got := tt.course.CanManage(usr); got != tt.wantManage {
				t.Errorf("CanManage() = %v, want %v", got, tt.wantManage)
			}
			if got := tt.course.VisibleTo(tt.usr); got != tt.wantVisible {
				t.Errorf("VisibleTo() = %v, want %v", got, tt.wantVisible)
			}
		})
	}
}

func TestNewCourse_Clean(t *testing.T) {
	nc := NewCourse{Title: "  Go  101 ", Category: " Programming ", Level: "", Currency: "USD"}
	nc.Clean()
	if nc.Title != "Go  101" {
		t.Errorf("Title = %q", nc.Title)
	}
	if nc.Category != "programming" || nc.Level != LevelAll || nc.Currency != "usd" {
		t.Errorf("Clean() = %+v", nc)
	}
}

func TestCourse_Summary(t *testing.T) {
	c := Course{ID: "c", Title: "T", Lectures: []Lecture{{ID: "a"}, {ID: "b"}}}
	if s := c.Summary(); s.ID != "c" || s.Lectures != 2 {
		t.Errorf("Summary() = %+v", s)
	}
}

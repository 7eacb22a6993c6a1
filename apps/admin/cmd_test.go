package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/go-playground/validator/v10"

	"github.com/skillsharp/lms/core/user"
	emailsvc "github.com/skillsharp/lms/services/email"
	inmem "github.com/skillsharp/lms/storage/database/inmem"
	"github.com/skillsharp/lms/tests"
)

var usrRepo user.Repository

func setup(t *testing.T) *commandLine {
	t.Helper()
	conf := testutil.NewConfig()
	conf.SeedAdminEmail = "Root@Example.com"
	conf.SeedAdminName = "Root"
	logger := testutil.NewLogger(conf)
	validate, _ := testutil.NewValidator()

	usrRepo = inmem.NewUserRepository(inmem.NewDB())

	return &commandLine{
		conf:     conf,
		validate: validate,
		usrSvc:   user.NewService(usrRepo, emailsvc.NewConsoleServiceMock(conf, logger), validate, conf),
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

type pwdInput struct {
	pwd string
}

// mockPassword makes the password prompt answer with the pwdInput of extra, or nothing.
func mockPassword(extra interface{}) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		if in, ok := extra.(pwdInput); ok {
			return []byte(in.pwd), nil
		}
		return nil, nil
	}
}

func checkRunErr(t *testing.T, tt cliTest, err error) bool {
	t.Helper()
	if err == nil {
		if tt.wantErr != nil || tt.wantErrStr != "" {
			t.Errorf("cli.run() error = nil, wantErr %v%s", tt.wantErr, tt.wantErrStr)
		}
		return true
	}
	switch {
	case tt.wantErr != nil:
		if err != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr == "validation":
		if _, ok := err.(validator.ValidationErrors); !ok {
			t.Errorf("cli.run() error = %v, want validator.ValidationErrors", err)
		}
	case tt.wantErrStr != "":
		if err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
		}
	default:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
	return false
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)
	var ran []string
	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		if dir != "migrations" {
			return fmt.Errorf("unexpected migrations dir %q", dir)
		}
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, command)
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "add_quizzes", "sql"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			checkRunErr(t, tt, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	want := []string{"up", "up-to", "down-to", "status", "create"}
	if fmt.Sprint(ran) != fmt.Sprint(want) {
		t.Errorf("goose ran %v; want %v", ran, want)
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	existing := testutil.CreateUser(t, usrRepo, "Old Name", "jane@example.com", testutil.Password, user.RoleStudent, false)

	type want struct {
		email string
		name  string
		role  string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "missing flags", args: []string{"adduser", "-email", "a@example.com"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-email", "a@example.com", "-name", "A"}, wantErr: errHelp},
		{
			name:       "weak password",
			args:       []string{"adduser", "-email", "a@example.com", "-name", "A"},
			extra:      pwdInput{pwd: "12345678"},
			wantErrStr: "validation",
		},
		{
			name:       "invalid role",
			args:       []string{"adduser", "-email", "a@example.com", "-name", "A", "-role", "owner"},
			extra:      pwdInput{pwd: testutil.Password},
			wantErrStr: "validation",
		},
		{
			name:  "create student",
			args:  []string{"adduser", "-email", "A@Example.com", "-name", "A"},
			extra: pwdInput{pwd: testutil.Password},
		},
		{
			name:  "create admin",
			args:  []string{"adduser", "-email", "boss@example.com", "-name", "Boss", "-admin"},
			extra: pwdInput{pwd: testutil.Password},
		},
		{
			name:  "update existing",
			args:  []string{"adduser", "-email", existing.Email, "-name", "Jane", "-role", user.RoleInstructor},
			extra: pwdInput{pwd: "An0ther-S3cret!"},
		},
	}
	wants := map[string]want{
		"create student":  {email: "a@example.com", name: "A", role: user.RoleStudent},
		"create admin":    {email: "boss@example.com", name: "Boss", role: user.RoleAdmin},
		"update existing": {email: existing.Email, name: "Jane", role: user.RoleInstructor},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(tt.extra)
			if !checkRunErr(t, tt, cli.run(append([]string{"admin"}, tt.args...))) {
				return
			}
			w, ok := wants[tt.name]
			if !ok {
				return
			}
			usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{Email: w.email})
			if err != nil {
				t.Fatalf("GetUser() failed: %v", err)
			}
			if usr.Name != w.name || usr.Role != w.role || !usr.IsActive {
				t.Errorf("user = %s/%s/active=%v; want %s/%s/active=true", usr.Name, usr.Role, usr.IsActive, w.name, w.role)
			}
			if err = usr.CheckPassword(tt.extra.(pwdInput).pwd); err != nil {
				t.Errorf("CheckPassword() failed: %v", err)
			}
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	usr := testutil.CreateUser(t, usrRepo, "User", "user@example.com", testutil.Password, user.RoleStudent, true)

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", usr.Email}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-email", "lol@example.com"}, extra: pwdInput{pwd: "An0ther-S3cret!"}, wantErr: user.ErrNotFound},
		{name: "weak password", args: []string{"resetpassword", "-email", usr.Email}, extra: pwdInput{pwd: "user"}, wantErrStr: "validation"},
		{name: "reset", args: []string{"resetpassword", "-email", " USER@example.com "}, extra: pwdInput{pwd: "An0ther-S3cret!"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(tt.extra)
			if !checkRunErr(t, tt, cli.run(append([]string{"admin"}, tt.args...))) {
				return
			}
			refreshed, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			if err != nil {
				t.Fatalf("GetUser() failed: %v", err)
			}
			if err = refreshed.CheckPassword("An0ther-S3cret!"); err != nil {
				t.Error("failed to update new password")
			}
		})
	}
}

func Test_commandLine_seedAdmin(t *testing.T) {
	cli := setup(t)
	args := []string{"admin", "seedadmin"}

	mockPassword(nil)
	if err := cli.run(args); err != errHelp {
		t.Fatalf("cli.run() error = %v, wantErr %v", err, errHelp)
	}

	mockPassword(pwdInput{pwd: testutil.Password})
	if err := cli.run(args); err != nil {
		t.Fatalf("cli.run() unexpected error = %v", err)
	}
	admin, err := usrRepo.GetUser(context.Background(), user.GetFilter{Email: "root@example.com"})
	if err != nil {
		t.Fatalf("GetUser() failed: %v", err)
	}
	if !admin.IsAdmin() || admin.Name != "Root" {
		t.Errorf("seeded %s as %s; want Root as admin", admin.Name, admin.Role)
	}

	// the existing account is left alone
	mockPassword(pwdInput{pwd: "An0ther-S3cret!"})
	if err = cli.run(args); err != nil {
		t.Fatalf("cli.run() unexpected error = %v", err)
	}
	again, _ := usrRepo.GetUser(context.Background(), user.GetFilter{ID: admin.ID})
	if err = again.CheckPassword(testutil.Password); err != nil {
		t.Error("seedadmin overwrote the existing password")
	}
}

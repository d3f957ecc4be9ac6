package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/nhle/taskpulse/internal/api"
	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/testutil"
)

type ClientTestSuite struct {
	suite.Suite
	fake   *testutil.FakeAPI
	client *api.Client
	ctx    context.Context
}

func (s *ClientTestSuite) SetupTest() {
	s.fake = testutil.NewFakeAPI(s.T())
	s.client = api.NewClient(s.fake.URL+"/", api.WithMaxRetries(0))
	s.ctx = context.Background()

	s.fake.AddUser(model.User{Email: "boss@example.com", Name: "Boss", UserRole: model.RoleAdmin}, "secret")
	s.fake.AddUser(model.User{Email: "dev@example.com", Name: "Dev", UserRole: model.RoleEmployee}, "hunter2")
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (s *ClientTestSuite) TestUsers() {
	u, err := s.client.GetUser(s.ctx, "boss@example.com")
	s.Require().NoError(err)
	s.Equal("Boss", u.Name)
	s.True(u.IsAdmin())

	assignable, err := s.client.NonAdminUsers(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(assignable, 1)
	s.Equal("dev@example.com", assignable[0].Email)

	_, err = s.client.GetUser(s.ctx, "ghost@example.com")
	s.True(api.IsNotFound(err))
}

func (s *ClientTestSuite) TestRegisterLoginAndRole() {
	s.Require().NoError(s.client.Register(s.ctx, " New Person ", "new@example.com ", " pw "))

	data, err := s.client.Login(s.ctx, "new@example.com", "pw")
	s.Require().NoError(err)

	var u model.User
	s.Require().NoError(json.Unmarshal(data, &u))
	s.Equal("New Person", u.Name)

	s.Require().NoError(s.client.UpdateRole(s.ctx, "new@example.com", model.RoleAdmin))
	stored, ok := s.fake.User("new@example.com")
	s.Require().True(ok)
	s.Equal(model.RoleAdmin, stored.UserRole)

	err = s.client.Register(s.ctx, "dup", "new@example.com", "x")
	var reqErr *api.RequestError
	s.Require().ErrorAs(err, &reqErr)
	s.Equal(http.StatusConflict, reqErr.StatusCode)
	s.Equal("Email already registered", api.UserMessage(err))
}

func (s *ClientTestSuite) TestUpdateProfile() {
	s.Require().NoError(s.client.UpdateProfile(s.ctx, "dev@example.com", "  Dev Ops "))
	stored, ok := s.fake.User("dev@example.com")
	s.Require().True(ok)
	s.Equal("Dev Ops", stored.Name)

	err := s.client.UpdateProfile(s.ctx, "ghost@example.com", "Ghost")
	s.True(api.IsNotFound(err))
}

func (s *ClientTestSuite) TestChangePassword() {
	msg, err := s.client.ChangePassword(s.ctx, "dev@example.com", "hunter2", "correct horse")
	s.Require().NoError(err)
	s.Equal("Password changed successfully", msg)

	_, err = s.client.Login(s.ctx, "dev@example.com", "correct horse")
	s.Require().NoError(err)

	_, err = s.client.ChangePassword(s.ctx, "dev@example.com", "hunter2", "another one")
	var reqErr *api.RequestError
	s.Require().ErrorAs(err, &reqErr)
	s.Equal(http.StatusBadRequest, reqErr.StatusCode)
	s.Equal("Current password is incorrect", api.UserMessage(err))
}

func (s *ClientTestSuite) TestLoginRejected() {
	_, err := s.client.Login(s.ctx, "dev@example.com", "wrong")
	s.True(api.IsAuthError(err))
	s.Equal("Invalid email or password", api.UserMessage(err))
}

func (s *ClientTestSuite) TestTaskLifecycle() {
	created, err := s.client.CreateTask(s.ctx, api.TaskInput{
		Title:       "Write report",
		Priority:    model.PriorityMedium,
		DueDate:     model.Date{Year: 2025, Month: time.May, Day: 1},
		CreatedByID: "boss@example.com",
		AssigneeID:  "dev@example.com",
	})
	s.Require().NoError(err)
	s.False(created.ID.IsZero())
	s.Equal(model.StatusPending, created.Status)
	s.True(created.IsNew)

	isNew, err := s.client.IsTaskNew(s.ctx, created.ID)
	s.Require().NoError(err)
	s.True(isNew)
	s.Require().NoError(s.client.ClearTaskNew(s.ctx, created.ID))
	isNew, err = s.client.IsTaskNew(s.ctx, created.ID)
	s.Require().NoError(err)
	s.False(isNew)

	moved, err := s.client.UpdateTaskStatus(s.ctx, created.ID, model.StatusOngoing)
	s.Require().NoError(err)
	s.Equal(model.StatusOngoing, moved.Status)

	updated, err := s.client.UpdateTask(s.ctx, created.ID, api.TaskInput{
		Title:       "Write final report",
		Priority:    model.PriorityHigh,
		DueDate:     model.Date{Year: 2025, Month: time.May, Day: 2},
		CreatedByID: "boss@example.com",
		AssigneeID:  "dev@example.com",
	})
	s.Require().NoError(err)
	s.Equal("Write final report", updated.Title)
	s.Equal(model.StatusOngoing, updated.Status, "status survives an edit without one")

	all, err := s.client.ListTasks(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 1)

	s.Require().NoError(s.client.DeleteTask(s.ctx, created.ID))
	_, err = s.client.GetTask(s.ctx, created.ID)
	s.True(api.IsNotFound(err))
}

func (s *ClientTestSuite) TestComments() {
	task := s.fake.AddTask(model.Task{Title: "t", CreatedByID: "boss@example.com", AssigneeID: "dev@example.com"})

	c, err := s.client.AddComment(s.ctx, task.ID, model.NewComment{
		AuthorEmail:    "boss@example.com",
		RecipientEmail: "dev@example.com",
		Content:        "please start",
		IsRead:         true,
	})
	s.Require().NoError(err)
	s.Equal(task.ID, c.TaskID)

	n, err := s.client.CountUnread(s.ctx, task.ID, "dev@example.com")
	s.Require().NoError(err)
	s.Equal(1, n)

	s.Require().NoError(s.client.MarkCommentRead(s.ctx, c.ID, "dev@example.com"))
	s.Equal("dev@example.com", s.fake.ReadBy(c.ID))

	n, err = s.client.CountUnread(s.ctx, task.ID, "dev@example.com")
	s.Require().NoError(err)
	s.Zero(n)

	edited, err := s.client.EditComment(s.ctx, c.ID, "please start today")
	s.Require().NoError(err)
	s.Equal("please start today", edited.Content)

	thread, err := s.client.ListComments(s.ctx, task.ID)
	s.Require().NoError(err)
	s.Require().Len(thread, 1)

	s.Require().NoError(s.client.MarkThreadRead(s.ctx, task.ID, "dev@example.com"))
	s.Require().NoError(s.client.DeleteComment(s.ctx, c.ID))
	thread, err = s.client.ListComments(s.ctx, task.ID)
	s.Require().NoError(err)
	s.Empty(thread)
}

func (s *ClientTestSuite) TestInjectedFailureCarriesServerMessage() {
	task := s.fake.AddTask(model.Task{Title: "t"})
	s.fake.FailNext("PUT /task/"+task.ID.String()+"/status", http.StatusInternalServerError)

	_, err := s.client.UpdateTaskStatus(s.ctx, task.ID, model.StatusCompleted)
	var reqErr *api.RequestError
	s.Require().ErrorAs(err, &reqErr)
	s.Equal(http.MethodPut, reqErr.Method)
	s.Equal(http.StatusInternalServerError, reqErr.StatusCode)
	s.Contains(reqErr.Message, "injected failure")
}

func TestClientRetriesOnRateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id": 1, "title": "a", "taskStatus": "PENDING"}]`))
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL)
	tasks, err := client.ListTasks(context.Background())
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
	assert.EqualValues(t, 2, hits.Load())
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, api.WithMaxRetries(1))
	_, err := client.ListTasks(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries")
}

func TestUserMessageFallsBackWhenUnreachable(t *testing.T) {
	client := api.NewClient("http://127.0.0.1:1", api.WithTimeout(time.Second))
	_, err := client.ListTasks(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Couldn't connect to server", api.UserMessage(err))
}

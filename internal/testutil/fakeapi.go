package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nhle/taskpulse/internal/model"
)

// FakeAPI is an in-memory stand-in for the task service REST API served
// by gin in test mode.
type FakeAPI struct {
	URL string

	mu        sync.Mutex
	tasks     []model.Task
	comments  []model.Comment
	users     map[string]model.User
	passwords map[string]string
	readBy    map[model.ID]string
	nextID    int
	calls     []string
	failures  map[string]int
}

// NewFakeAPI starts a fake server that is shut down when t finishes.
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()

	gin.SetMode(gin.TestMode)

	f := &FakeAPI{
		users:     make(map[string]model.User),
		passwords: make(map[string]string),
		readBy:    make(map[model.ID]string),
		failures:  make(map[string]int),
		nextID:    100,
	}

	router := gin.New()
	router.Use(f.record)
	f.routes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	f.URL = srv.URL
	return f
}

// AddUser seeds a user account.
func (f *FakeAPI) AddUser(u model.User, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.Email] = u
	f.passwords[u.Email] = password
}

// AddTask seeds a task, assigning an id when t has none.
func (f *FakeAPI) AddTask(t model.Task) model.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID.IsZero() {
		t.ID = f.newID()
	}
	f.tasks = append(f.tasks, t)
	return t
}

// SetTasks replaces the whole task list.
func (f *FakeAPI) SetTasks(tasks ...model.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append([]model.Task(nil), tasks...)
}

// AddComment seeds a comment.
func (f *FakeAPI) AddComment(c model.Comment) model.Comment {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID.IsZero() {
		c.ID = f.newID()
	}
	f.comments = append(f.comments, c)
	return c
}

// Task returns the server copy of id.
func (f *FakeAPI) Task(id model.ID) (model.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.taskIndex(id)
	if i < 0 {
		return model.Task{}, false
	}
	return f.tasks[i], true
}

// User returns the server copy of the user with email.
func (f *FakeAPI) User(email string) (model.User, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	return u, ok
}

// ReadBy returns who confirmed comment id, if anyone.
func (f *FakeAPI) ReadBy(id model.ID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readBy[id]
}

// FailNext makes the next request whose "METHOD path" equals route answer
// with status.
func (f *FakeAPI) FailNext(route string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[route] = status
}

// Calls returns the "METHOD path" of every request served so far.
func (f *FakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount returns how many times route was requested.
func (f *FakeAPI) CallCount(route string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == route {
			n++
		}
	}
	return n
}

func (f *FakeAPI) newID() model.ID {
	f.nextID++
	return model.ID(strconv.Itoa(f.nextID))
}

func (f *FakeAPI) taskIndex(id model.ID) int {
	for i, t := range f.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (f *FakeAPI) commentIndex(id model.ID) int {
	for i, c := range f.comments {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// record logs the call and serves any injected failure.
func (f *FakeAPI) record(c *gin.Context) {
	route := c.Request.Method + " " + c.Request.URL.Path

	f.mu.Lock()
	f.calls = append(f.calls, route)
	status, fail := f.failures[route]
	if fail {
		delete(f.failures, route)
	}
	f.mu.Unlock()

	if fail {
		c.AbortWithStatusJSON(status, gin.H{"message": fmt.Sprintf("injected failure %d", status)})
		return
	}
	c.Next()
}

func (f *FakeAPI) routes(r *gin.Engine) {
	users := r.Group("/users")
	users.GET("/non-admin", f.nonAdmin)
	users.GET("/:email", f.getUser)
	users.POST("/register", f.register)
	users.POST("/login", f.login)
	users.POST("/update-role", f.updateRole)
	users.PUT("/update/:email", f.updateProfile)
	users.PUT("/change-password/:email", f.changePassword)

	tasks := r.Group("/task")
	tasks.GET("", f.listTasks)
	tasks.POST("/create-task", f.createTask)
	tasks.PUT("/update-task/:id", f.updateTask)
	tasks.PUT("/task-is-new-state/:id", f.clearNew)
	tasks.GET("/:id", f.getTask)
	tasks.DELETE("/:id", f.deleteTask)
	tasks.PUT("/:id/status", f.updateStatus)
	tasks.GET("/:id/is-new", f.isNew)

	comments := r.Group("/comment")
	comments.GET("/task/:id", f.listComments)
	comments.POST("/task/:id", f.addComment)
	comments.PUT("/:id", f.editComment)
	comments.DELETE("/:id", f.deleteComment)
	comments.POST("/mark-as-read/:id", f.markRead)
	comments.POST("/mark-as-read-by-recipient/:id", f.markThreadRead)
	comments.GET("/count-unread-by-recipient/:id/:email", f.countUnread)
}

func (f *FakeAPI) nonAdmin(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.User{}
	for _, u := range f.users {
		if !u.IsAdmin() {
			out = append(out, u)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (f *FakeAPI) getUser(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[c.Param("email")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}
	c.JSON(http.StatusOK, u)
}

func (f *FakeAPI) register(c *gin.Context) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Pwd   string `json:"pwd"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.users[req.Email]; exists {
		c.JSON(http.StatusConflict, gin.H{"message": "Email already registered"})
		return
	}
	f.users[req.Email] = model.User{Email: req.Email, Name: req.Name, UserRole: model.RoleEmployee}
	f.passwords[req.Email] = req.Pwd
	c.String(http.StatusOK, "User registered")
}

func (f *FakeAPI) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if pwd, ok := f.passwords[req.Email]; !ok || pwd != req.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid email or password"})
		return
	}
	c.JSON(http.StatusOK, f.users[req.Email])
}

func (f *FakeAPI) updateRole(c *gin.Context) {
	var req struct {
		Email    string     `json:"email"`
		UserRole model.Role `json:"userRole"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[req.Email]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}
	u.UserRole = req.UserRole
	f.users[req.Email] = u
	c.Status(http.StatusOK)
}

func (f *FakeAPI) updateProfile(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[c.Param("email")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}
	u.Name = req.Name
	f.users[u.Email] = u
	c.Status(http.StatusOK)
}

func (f *FakeAPI) changePassword(c *gin.Context) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	email := c.Param("email")
	pwd, ok := f.passwords[email]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}
	if pwd != req.CurrentPassword {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Current password is incorrect"})
		return
	}
	f.passwords[email] = req.NewPassword
	c.String(http.StatusOK, "Password changed successfully")
}

func (f *FakeAPI) listTasks(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.JSON(http.StatusOK, append([]model.Task{}, f.tasks...))
}

// taskBody mirrors api.TaskInput without importing it.
type taskBody struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Priority    model.Priority   `json:"priority"`
	Status      model.TaskStatus `json:"taskStatus"`
	DueDate     model.Date       `json:"dueDate"`
	CreatedByID string           `json:"createdById"`
	AssigneeID  string           `json:"assigneeId"`
}

func (b taskBody) apply(t *model.Task) {
	t.Title = b.Title
	t.Description = b.Description
	t.Priority = b.Priority
	t.DueDate = b.DueDate
	t.CreatedByID = b.CreatedByID
	t.AssigneeID = b.AssigneeID
	if b.Status != "" {
		t.Status = b.Status
	}
}

func (f *FakeAPI) createTask(c *gin.Context) {
	var body taskBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	task := model.Task{ID: f.newID(), Status: model.StatusPending, IsNew: true}
	body.apply(&task)
	f.tasks = append(f.tasks, task)
	c.JSON(http.StatusOK, task)
}

func (f *FakeAPI) updateTask(c *gin.Context) {
	var body taskBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.taskIndex(model.ID(c.Param("id")))
	if i < 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "Task not found"})
		return
	}
	body.apply(&f.tasks[i])
	c.JSON(http.StatusOK, f.tasks[i])
}

func (f *FakeAPI) getTask(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.taskIndex(model.ID(c.Param("id")))
	if i < 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "Task not found"})
		return
	}
	c.JSON(http.StatusOK, f.tasks[i])
}

func (f *FakeAPI) deleteTask(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.taskIndex(model.ID(c.Param("id")))
	if i < 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "Task not found"})
		return
	}
	f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
	c.Status(http.StatusNoContent)
}

func (f *FakeAPI) updateStatus(c *gin.Context) {
	var req struct {
		TaskStatus model.TaskStatus `json:"taskStatus"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.taskIndex(model.ID(c.Param("id")))
	if i < 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "Task not found"})
		return
	}
	f.tasks[i].Status = req.TaskStatus
	c.JSON(http.StatusOK, f.tasks[i])
}

func (f *FakeAPI) isNew(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.taskIndex(model.ID(c.Param("id")))
	if i < 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "Task not found"})
		return
	}
	c.JSON(http.StatusOK, f.tasks[i].IsNew)
}

func (f *FakeAPI) clearNew(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.taskIndex(model.ID(c.Param("id")))
	if i < 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "Task not found"})
		return
	}
	f.tasks[i].IsNew = false
	c.Status(http.StatusOK)
}

func (f *FakeAPI) listComments(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	taskID := model.ID(c.Param("id"))
	out := []model.Comment{}
	for _, cm := range f.comments {
		if cm.TaskID == taskID {
			out = append(out, cm)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (f *FakeAPI) addComment(c *gin.Context) {
	var in model.NewComment
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cm := model.Comment{
		ID:             f.newID(),
		TaskID:         model.ID(c.Param("id")),
		AuthorEmail:    in.AuthorEmail,
		RecipientEmail: in.RecipientEmail,
		Content:        in.Content,
		CreatedAt:      model.Timestamp{Time: time.Now()},
		IsRead:         in.IsRead,
	}
	f.comments = append(f.comments, cm)
	c.JSON(http.StatusOK, cm)
}

func (f *FakeAPI) editComment(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.commentIndex(model.ID(c.Param("id")))
	if i < 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "Comment not found"})
		return
	}
	f.comments[i].Content = req.Content
	c.JSON(http.StatusOK, f.comments[i])
}

func (f *FakeAPI) deleteComment(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.commentIndex(model.ID(c.Param("id")))
	if i < 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "Comment not found"})
		return
	}
	f.comments = append(f.comments[:i], f.comments[i+1:]...)
	c.Status(http.StatusNoContent)
}

func (f *FakeAPI) markRead(c *gin.Context) {
	var req struct {
		UserEmail string `json:"userEmail"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := model.ID(c.Param("id"))
	i := f.commentIndex(id)
	if i < 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "Comment not found"})
		return
	}
	f.comments[i].IsReadByRecipient = true
	f.readBy[id] = req.UserEmail
	c.Status(http.StatusOK)
}

func (f *FakeAPI) markThreadRead(c *gin.Context) {
	var req struct {
		RecipientEmail string `json:"recipientEmail"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	taskID := model.ID(c.Param("id"))
	for i := range f.comments {
		cm := &f.comments[i]
		if cm.TaskID == taskID && cm.RecipientEmail == req.RecipientEmail {
			cm.IsReadByRecipient = true
			f.readBy[cm.ID] = req.RecipientEmail
		}
	}
	c.Status(http.StatusOK)
}

func (f *FakeAPI) countUnread(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	taskID := model.ID(c.Param("id"))
	email := c.Param("email")
	n := 0
	for _, cm := range f.comments {
		if cm.TaskID == taskID && cm.RecipientEmail == email && !cm.IsReadByRecipient {
			n++
		}
	}
	c.JSON(http.StatusOK, n)
}

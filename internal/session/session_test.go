package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskpulse/internal/api"
	"github.com/nhle/taskpulse/internal/credential"
	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/session"
	"github.com/nhle/taskpulse/internal/testutil"
)

func TestLoginPersistsAndRestores(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	fake.AddUser(model.User{Email: "boss@example.com", Name: "Boss", UserRole: model.RoleAdmin}, "pw")
	client := api.NewClient(fake.URL)
	creds := credential.NewMemoryStore()

	s := session.New(creds)
	require.NoError(t, s.Login(context.Background(), client, " boss@example.com ", "pw"))

	assert.True(t, s.LoggedIn())
	assert.Equal(t, "boss@example.com", s.Email())
	assert.Equal(t, model.RoleAdmin, s.Role())
	assert.Equal(t, "Boss", s.Data().Name)
	assert.NotEmpty(t, s.Data().UserData)

	restored := session.New(creds)
	require.NoError(t, restored.Load())
	assert.Equal(t, s.Data().Email, restored.Data().Email)
	assert.Equal(t, model.RoleAdmin, restored.Role())
	assert.True(t, restored.LoggedIn())
}

func TestLoginFailureLeavesSessionEmpty(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	fake.AddUser(model.User{Email: "dev@example.com"}, "pw")
	s := session.New(credential.NewMemoryStore())

	err := s.Login(context.Background(), api.NewClient(fake.URL), "dev@example.com", "nope")
	assert.True(t, api.IsAuthError(err))
	assert.False(t, s.LoggedIn())

	assert.Error(t, s.Login(context.Background(), api.NewClient(fake.URL), "", "pw"))
}

func TestLogoutClearsStorage(t *testing.T) {
	creds := credential.NewMemoryStore()
	s := session.New(creds)
	require.NoError(t, s.Set(session.Data{Email: "dev@example.com", IsLoggedIn: true, UserRole: model.RoleEmployee}))
	require.NoError(t, s.SetRole(model.RoleAdmin))

	_, err := creds.Get("session")
	require.NoError(t, err)

	require.NoError(t, s.Logout())
	assert.False(t, s.LoggedIn())
	assert.Empty(t, s.Email())

	_, err = creds.Get("session")
	assert.True(t, credential.IsNotFound(err))

	fresh := session.New(creds)
	require.NoError(t, fresh.Load())
	assert.False(t, fresh.LoggedIn())
	require.NoError(t, fresh.Logout(), "logging out twice is harmless")
}

type lockedKeyring struct{}

func (lockedKeyring) Get(string) ([]byte, error) { return nil, errors.New("keyring is locked") }
func (lockedKeyring) Set(string, []byte) error   { return nil }
func (lockedKeyring) Delete(string) error        { return nil }

func TestLoadReportsStorageFailure(t *testing.T) {
	s := session.New(lockedKeyring{})
	err := s.Load()
	assert.ErrorContains(t, err, "keyring is locked")
	assert.False(t, s.LoggedIn())

	require.NoError(t, session.New(credential.NewMemoryStore()).Load(), "a missing entry is not an error")
}

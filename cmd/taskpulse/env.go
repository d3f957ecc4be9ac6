package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/taskpulse/internal/api"
	"github.com/nhle/taskpulse/internal/credential"
	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/realtime"
	"github.com/nhle/taskpulse/internal/session"
	"github.com/nhle/taskpulse/internal/store"
)

// env is what every subcommand is built from.
type env struct {
	configPath string
	cfg        *model.AppConfig
	client     *api.Client
	session    *session.Session
	logOut     io.Writer
}

// loadEnv reads the config and restores the stored session.
func loadEnv(cmd *cobra.Command) (*env, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = model.DefaultConfigPath()
	}
	cfg, err := model.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	creds, err := credential.Open()
	if err != nil {
		return nil, err
	}
	sess := session.New(creds)
	if err := sess.Load(); err != nil {
		return nil, err
	}

	var logOut io.Writer = io.Discard
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logOut = os.Stderr
	}

	return &env{
		configPath: path,
		cfg:        cfg,
		client:     api.NewClient(cfg.API.BaseURL, api.WithTimeout(cfg.APITimeout())),
		session:    sess,
		logOut:     logOut,
	}, nil
}

// logger returns a component logger writing wherever -v sends logs.
func (e *env) logger(component string) *log.Logger {
	return log.New(e.logOut, component+": ", log.LstdFlags)
}

var errNotLoggedIn = errors.New("not logged in, run `taskpulse login` first")

func (e *env) requireLogin() error {
	if !e.session.LoggedIn() {
		return errNotLoggedIn
	}
	return nil
}

// openJournal opens the local notification journal.
func (e *env) openJournal() (*store.SQLiteStore, error) {
	j, err := store.NewSQLiteStore(e.cfg.Journal.Path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return j, nil
}

// newChannel returns the broker channel, or nil when streaming is turned
// off in the config.
func (e *env) newChannel() *realtime.Channel {
	if e.cfg.Realtime.DisableStreaming {
		return nil
	}
	return realtime.New(&realtime.StompDialer{
		URL:       e.cfg.Realtime.URL,
		Heartbeat: e.cfg.Heartbeat(),
	}, realtime.Options{
		ReconnectDelay:    e.cfg.ReconnectDelay(),
		PublishRetryDelay: e.cfg.PublishRetry(),
		Logger:            e.logger("realtime"),
	})
}

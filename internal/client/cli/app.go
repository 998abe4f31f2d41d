// Package cli is the interactive terminal frontend for the daybook client.
package cli

import (
	"bufio"
	"context"
	"log/slog"
	"os"

	"github.com/vblinov/daybook/internal/client/api"
	"github.com/vblinov/daybook/internal/client/config"
	"github.com/vblinov/daybook/internal/client/services"
	"github.com/vblinov/daybook/internal/client/session"
	"github.com/vblinov/daybook/internal/client/storage"
	"github.com/vblinov/daybook/internal/logging"
)

// App wires the storage, API client, session and sync engine together behind
// the REPL.
type App struct {
	config  *config.Config
	repos   *storage.Repositories
	session *session.Session
	api     *api.Client
	entries *services.EntrySyncService
	orch    *services.Orchestrator
	log     logging.Logger
	reader  *bufio.Reader
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	log := logging.NewSlogLogger(slog.Default())

	repos, err := storage.Open(ctx, c.DBPath)
	if err != nil {
		log.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}

	sess := session.New(repos.Metadata)
	if err := sess.Restore(ctx); err != nil {
		_ = repos.Close()
		return nil, err
	}

	apiClient := api.New(c.ServerURL, sess, c.RequestTimeout)

	entries := services.NewEntrySyncService(repos.Entries, repos.Queue, log)
	orch := services.NewOrchestrator(apiClient, entries, repos.Queue, repos.Conflicts,
		repos.Metadata, repos.Entries, c.DeviceName, c.SyncTimeout, log)
	entries.SetTrigger(orch)

	return &App{
		config:  c,
		repos:   repos,
		session: sess,
		api:     apiClient,
		entries: entries,
		orch:    orch,
		log:     log,
		reader:  bufio.NewReader(os.Stdin),
	}, nil
}

// Run starts the reachability watcher and enters the REPL; it returns when
// the user quits or stdin closes.
func (a *App) Run(ctx context.Context) {
	defer a.repos.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.orch.StartReachabilityWatcher(ctx, a.config.OnlineCheckInterval)

	a.Root(ctx)
}

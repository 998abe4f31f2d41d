package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/vblinov/daybook/internal/client/models"
	"github.com/vblinov/daybook/internal/common"
)

func (a *App) syncNow(ctx context.Context) {
	err := a.orch.Sync(ctx)
	switch {
	case errors.Is(err, common.ErrSyncInProgress):
		fmt.Println("A sync is already running.")
	case errors.Is(err, common.ErrNetworkUnavailable):
		fmt.Println("Server unreachable; changes stay queued.")
	case errors.Is(err, common.ErrNotAuthenticated):
		fmt.Println("Not logged in; run 'login' first.")
	case err != nil:
		fmt.Println("Sync failed:", err)
	default:
		a.status()
	}
}

func (a *App) status() {
	st := a.orch.State()
	fmt.Printf("State:     %s\n", st.Phase)
	if st.Message != "" {
		fmt.Printf("Step:      %s\n", st.Message)
	}
	if st.Err != "" {
		fmt.Printf("Error:     %s\n", st.Err)
	}
	if !st.LastSyncAt.IsZero() {
		fmt.Printf("Last sync: %s\n", st.LastSyncAt.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("Pending:   %d\n", st.PendingCount)
	fmt.Printf("Conflicts: %d\n", st.ConflictCount)
	if st.AbandonedCount > 0 {
		fmt.Printf("Abandoned: %d (changes dropped after repeated push failures)\n", st.AbandonedCount)
	}
}

func (a *App) listConflicts(ctx context.Context) {
	open, err := a.repos.Conflicts.ListUnresolved(ctx)
	if err != nil {
		fmt.Println("Failed to list conflicts:", err)
		return
	}
	if len(open) == 0 {
		fmt.Println("No unresolved conflicts.")
		return
	}
	for _, c := range open {
		fmt.Printf("%s  entry %s  local v%d vs server v%d\n", c.ID, c.EntityID, c.LocalVersion, c.ServerVersion)
		if c.LocalData != nil {
			fmt.Printf("  local:  %s\n", c.LocalData.Title)
		}
		if c.ServerData != nil {
			fmt.Printf("  server: %s\n", c.ServerData.Title)
		}
	}
}

func (a *App) resolve(ctx context.Context, conflictID string) {
	choice, err := GetSimpleText(a.reader, "Resolution: (l)ocal, (s)erver or (m)erge", os.Stdout)
	if err != nil {
		fmt.Println("Error reading resolution:", err)
		return
	}

	var resolution models.Resolution
	var merged *models.EntryPayload

	switch strings.ToLower(choice) {
	case "l", "local":
		resolution = models.ResolutionKeepLocal
	case "s", "server":
		resolution = models.ResolutionKeepServer
	case "m", "merge", "merged":
		resolution = models.ResolutionMerged
		title, err := GetSimpleText(a.reader, "Merged title", os.Stdout)
		if err != nil {
			fmt.Println("Error reading title:", err)
			return
		}
		body, err := GetMultiline(a.reader, "Merged body", os.Stdout)
		if err != nil {
			fmt.Println("Error reading body:", err)
			return
		}
		merged = &models.EntryPayload{Title: title, Body: body}
	default:
		fmt.Println("Unknown resolution:", choice)
		return
	}

	err = a.orch.ResolveConflict(ctx, conflictID, resolution, merged)
	switch {
	case errors.Is(err, common.ErrConflictNotFound):
		fmt.Println("No such unresolved conflict:", conflictID)
	case err != nil:
		fmt.Println("Failed to resolve conflict:", err)
	default:
		fmt.Println("Conflict resolved.")
	}
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/vblinov/daybook/internal/client/services"
	"github.com/vblinov/daybook/internal/common"
)

func (a *App) add(ctx context.Context) {
	title, err := GetSimpleText(a.reader, "Title", os.Stdout)
	if err != nil {
		fmt.Println("Error reading title:", err)
		return
	}
	body, err := GetMultiline(a.reader, "Body", os.Stdout)
	if err != nil {
		fmt.Println("Error reading body:", err)
		return
	}
	tags, err := GetSimpleText(a.reader, "Tags (comma-separated, optional)", os.Stdout)
	if err != nil {
		fmt.Println("Error reading tags:", err)
		return
	}

	e, err := a.entries.SaveLocal(ctx, services.EntryInput{Title: title, Body: body, Tags: tags}, true)
	if err != nil {
		fmt.Println("Failed to save entry:", err)
		return
	}
	fmt.Printf("Saved entry %s (v%d)\n", e.ID, e.Version)
}

func (a *App) edit(ctx context.Context, id string) {
	current, err := a.entries.Get(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		fmt.Println("No such entry:", id)
		return
	}
	if err != nil {
		fmt.Println("Failed to load entry:", err)
		return
	}

	fmt.Printf("Editing %q (leave a field empty to keep it)\n", current.Title)
	title, err := GetSimpleText(a.reader, "Title", os.Stdout)
	if err != nil {
		fmt.Println("Error reading title:", err)
		return
	}
	if title == "" {
		title = current.Title
	}
	body, err := GetMultiline(a.reader, "Body", os.Stdout)
	if err != nil {
		fmt.Println("Error reading body:", err)
		return
	}
	if body == "" {
		body = current.Body
	}
	tags, err := GetSimpleText(a.reader, "Tags", os.Stdout)
	if err != nil {
		fmt.Println("Error reading tags:", err)
		return
	}
	if tags == "" {
		tags = current.Tags
	}

	e, err := a.entries.SaveLocal(ctx, services.EntryInput{ID: id, Title: title, Body: body, Tags: tags}, false)
	if err != nil {
		fmt.Println("Failed to save entry:", err)
		return
	}
	fmt.Printf("Saved entry %s (v%d)\n", e.ID, e.Version)
}

func (a *App) delete(ctx context.Context, id string) {
	err := a.entries.SoftDelete(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		fmt.Println("No such entry:", id)
		return
	}
	if err != nil {
		fmt.Println("Failed to delete entry:", err)
		return
	}
	fmt.Println("Deleted.")
}

func (a *App) list(ctx context.Context) {
	items, err := a.entries.ListActive(ctx)
	if err != nil {
		fmt.Println("Failed to list entries:", err)
		return
	}
	if len(items) == 0 {
		fmt.Println("No entries yet.")
		return
	}
	for _, e := range items {
		marker := " "
		if e.NeedsSync {
			marker = "*"
		}
		fmt.Printf("%s %s  v%-3d %s  %s\n", marker, e.ID, e.Version,
			e.UpdatedAt.Local().Format("2006-01-02 15:04"), e.Title)
	}
}

func (a *App) show(ctx context.Context, id string) {
	e, err := a.entries.Get(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		fmt.Println("No such entry:", id)
		return
	}
	if err != nil {
		fmt.Println("Failed to load entry:", err)
		return
	}

	fmt.Printf("Title:   %s\n", e.Title)
	if e.Tags != "" {
		fmt.Printf("Tags:    %s\n", e.Tags)
	}
	fmt.Printf("Version: %d", e.Version)
	if e.NeedsSync {
		fmt.Print(" (pending sync)")
	}
	fmt.Printf("\nUpdated: %s\n\n%s\n", e.UpdatedAt.Local().Format("2006-01-02 15:04"), e.Body)
}

package cli

import (
	"context"
	"fmt"
	"os"
)

func (a *App) login(ctx context.Context) {
	username, err := GetSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		fmt.Println("Error reading username:", err)
		return
	}
	password, err := GetPassword(os.Stdout)
	if err != nil {
		fmt.Println("Error reading password:", err)
		return
	}

	token, err := a.api.Login(ctx, username, string(password))
	if err != nil {
		fmt.Println("Login failed:", err)
		return
	}
	if err := a.session.SetToken(ctx, token); err != nil {
		fmt.Println("Failed to store session:", err)
		return
	}

	fmt.Println("Logged in.")
	a.orch.TriggerSync()
}

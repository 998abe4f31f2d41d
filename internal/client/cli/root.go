package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

func (a *App) getStatus() string {
	s := "offline"
	if a.orch.Online() {
		s = "online"
	}
	if !a.session.Authenticated(context.Background()) {
		s += ", not logged in"
	}
	return fmt.Sprintf("(%s)", s)
}

// Root runs the command loop until EOF or exit.
func (a *App) Root(ctx context.Context) {

	fmt.Println("Welcome to daybook (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Printf("daybook %s> ", a.getStatus())
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			fmt.Println("Available commands: login, add, edit <id>, delete <id>, list, show <id>, sync, status, conflicts, resolve <id>, exit")

		case "login":
			a.login(ctx)
		case "add":
			a.add(ctx)
		case "edit":
			if len(args) == 0 {
				fmt.Println("Usage: edit <id>")
				continue
			}
			a.edit(ctx, args[0])
		case "delete":
			if len(args) == 0 {
				fmt.Println("Usage: delete <id>")
				continue
			}
			a.delete(ctx, args[0])
		case "list":
			a.list(ctx)
		case "show":
			if len(args) == 0 {
				fmt.Println("Usage: show <id>")
				continue
			}
			a.show(ctx, args[0])
		case "sync":
			a.syncNow(ctx)
		case "status":
			a.status()
		case "conflicts":
			a.listConflicts(ctx)
		case "resolve":
			if len(args) == 0 {
				fmt.Println("Usage: resolve <conflict-id>")
				continue
			}
			a.resolve(ctx, args[0])
		case "exit", "quit":
			fmt.Println("Bye!")
			return
		default:
			fmt.Println("Unknown command:", cmd)
		}
	}
}

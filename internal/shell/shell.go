package shell

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell/v2"
)

// ErrUnknownCommand is returned by Dispatch for names it does not handle.
var ErrUnknownCommand = errors.New("unknown command")

// previewWidth is the cell width of session previews in listings.
const previewWidth = 60

type command struct {
	help string
	run  func(a *App, ctx context.Context, args []string) (string, error)
}

var commands = map[string]command{
	"say": {
		help: "say <text> | say <name>: <text>  add a message to the transcript",
		run: func(a *App, _ context.Context, args []string) (string, error) {
			return "", a.Say(strings.Join(args, " "))
		},
	},
	Keyword: {
		help: Keyword + " [-s] [-n name] [-p temp] [-m model] [--full] [seed...]  simulate a turn",
		run: func(a *App, ctx context.Context, args []string) (string, error) {
			handle, err := a.Obliqueme(ctx, args)
			if err != nil {
				return "", err
			}
			return "started " + ShortHandle(handle), nil
		},
	},
	"reroll": {
		help: "reroll [session]  generate another candidate",
		run: func(a *App, ctx context.Context, args []string) (string, error) {
			return "", a.Reroll(ctx, first(args))
		},
	},
	"prev": {
		help: "prev [session]  show the previous candidate",
		run: func(a *App, ctx context.Context, args []string) (string, error) {
			_, err := a.Step(ctx, first(args), -1)
			return "", err
		},
	},
	"next": {
		help: "next [session]  show the next candidate",
		run: func(a *App, ctx context.Context, args []string) (string, error) {
			_, err := a.Step(ctx, first(args), 1)
			return "", err
		},
	},
	"trim": {
		help: "trim [session]  cut the candidate at its last sentence",
		run: func(a *App, ctx context.Context, args []string) (string, error) {
			_, err := a.Trim(ctx, first(args))
			return "", err
		},
	},
	"commit": {
		help: "commit [session]  post the candidate and end the session",
		run: func(a *App, ctx context.Context, args []string) (string, error) {
			text, err := a.Commit(ctx, first(args))
			if err != nil {
				return "", err
			}
			return "committed: " + text, nil
		},
	},
	"delete": {
		help: "delete [session]  end the session and remove its output",
		run: func(a *App, ctx context.Context, args []string) (string, error) {
			return "", a.Delete(ctx, first(args))
		},
	},
	"cancel": {
		help: "cancel [session]  end the session",
		run: func(a *App, ctx context.Context, args []string) (string, error) {
			return "", a.Cancel(ctx, first(args))
		},
	},
	"sessions": {
		help: "sessions  list live sessions",
		run: func(a *App, _ context.Context, _ []string) (string, error) {
			var b strings.Builder
			for _, s := range a.Sessions(previewWidth) {
				marker := " "
				if s.Current {
					marker = "*"
				}
				fmt.Fprintf(&b, "%s %s %s %d/%d %s\n", marker, ShortHandle(s.Handle), s.Name, s.Page, s.Total, s.Preview)
			}
			if b.Len() == 0 {
				return "no sessions", nil
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	},
	"diff": {
		help: "diff <page> <page> [session]  compare two candidates",
		run: func(a *App, _ context.Context, args []string) (string, error) {
			if len(args) < 2 {
				return "", fmt.Errorf("usage: diff <page> <page> [session]")
			}
			from, err := strconv.Atoi(args[0])
			if err != nil {
				return "", fmt.Errorf("invalid page %q", args[0])
			}
			to, err := strconv.Atoi(args[1])
			if err != nil {
				return "", fmt.Errorf("invalid page %q", args[1])
			}
			return a.Diff(first(args[2:]), from, to)
		},
	},
	"history": {
		help: "history [n]  show the last n transcript messages",
		run: func(a *App, _ context.Context, args []string) (string, error) {
			n := 20
			if len(args) > 0 {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < 1 {
					return "", fmt.Errorf("invalid count %q", args[0])
				}
				n = v
			}
			return strings.TrimRight(a.History(n), "\n"), nil
		},
	},
}

// CommandNames returns the shell command names, sorted.
func CommandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs a named command and returns the text to print.
func (a *App) Dispatch(ctx context.Context, name string, args []string) (string, error) {
	cmd, ok := commands[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return cmd.run(a, ctx, args)
}

// NewShell builds the interactive shell. Lines that are not commands are
// treated as chat input.
func NewShell(app *App, prompt string) *ishell.Shell {
	sh := ishell.New()
	sh.SetPrompt(prompt)

	for _, name := range CommandNames() {
		name := name
		sh.AddCmd(&ishell.Cmd{
			Name: name,
			Help: commands[name].help,
			Func: func(c *ishell.Context) {
				out, err := app.Dispatch(context.Background(), name, c.Args)
				printResult(c, out, err)
			},
		})
	}

	sh.NotFound(func(c *ishell.Context) {
		err := app.Input(context.Background(), strings.Join(c.RawArgs, " "))
		printResult(c, "", err)
	})
	return sh
}

func printResult(c *ishell.Context, out string, err error) {
	if err != nil {
		c.Println("error:", err)
		return
	}
	if out != "" {
		c.Println(out)
	}
}

func first(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// Package cli implements gigctl, a terminal client for the campus gig board.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/campus-gigs/backend/internal/gigsync"
	"github.com/campus-gigs/backend/internal/identity"
	"github.com/campus-gigs/backend/internal/lifecycle"
	"github.com/campus-gigs/backend/internal/models"
)

const defaultSnapshotWait = 10 * time.Second

// ErrUsage is returned for unknown commands or bad arguments.
var ErrUsage = errors.New("usage")

// Assistant drafts descriptions and summarizes the board. Both calls return
// fallback text rather than errors.
type Assistant interface {
	MagicDraft(ctx context.Context, title string) (string, bool)
	Pulse(ctx context.Context) string
}

// App wires the client components behind the gigctl commands.
type App struct {
	Binding   *identity.Binding
	Engine    *gigsync.Engine
	Machine   *lifecycle.Machine
	Assistant Assistant
	Out       io.Writer

	// SnapshotWait bounds how long commands wait for the first snapshot.
	SnapshotWait time.Duration
}

const usage = `usage: gigctl <command> [args]

  join NAME            set your display name
  logout               forget your display name
  whoami               show your identity
  list [-open] [-mine] show the gig board
  watch                print the board on every change
  post -title T -reward R [-description D] [-location L] [-magic]
  claim ID             take an open gig
  complete ID          mark your gig as done
  delete ID            remove your gig
  draft TITLE          suggest a description for a title
  pulse                summarize open gigs
`

// Run authenticates and executes one command.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" {
		fmt.Fprint(a.Out, usage)
		return nil
	}
	if _, err := a.Binding.Authenticate(ctx); err != nil {
		return err
	}
	defer a.Engine.Unsubscribe()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "join":
		return a.join(rest)
	case "logout":
		if err := a.Binding.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(a.Out, "Signed out.")
		return nil
	case "whoami":
		return a.whoami()
	case "list":
		return a.list(ctx, rest)
	case "watch":
		return a.watch(ctx)
	case "post":
		return a.post(ctx, rest)
	case "claim", "complete", "delete":
		return a.transition(ctx, lifecycle.Action(cmd), rest)
	case "draft":
		return a.draft(ctx, rest)
	case "pulse":
		return a.pulse(ctx)
	}
	return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
}

func (a *App) join(args []string) error {
	if err := a.Binding.Join(strings.Join(args, " ")); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Welcome, %s.\n", a.Binding.Session().DisplayName)
	return nil
}

func (a *App) whoami() error {
	s := a.Binding.Session()
	name := s.DisplayName
	if !s.Joined {
		name = "(not joined)"
	}
	fmt.Fprintf(a.Out, "id:   %s\nname: %s\n", s.AnonymousID, name)
	return nil
}

func (a *App) actor() (lifecycle.Actor, error) {
	actor, err := a.Binding.Actor()
	if errors.Is(err, identity.ErrNotJoined) {
		return actor, fmt.Errorf("%w: run \"gigctl join NAME\" first", err)
	}
	return actor, err
}

// awaitSnapshot subscribes and blocks until the first view arrives.
func (a *App) awaitSnapshot(ctx context.Context) ([]models.Gig, error) {
	if err := a.Engine.Subscribe(ctx); err != nil {
		return nil, err
	}
	wait := a.SnapshotWait
	if wait == 0 {
		wait = defaultSnapshotWait
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case gigs := <-a.Engine.Updates():
		return gigs, nil
	case <-timer.C:
		return nil, fmt.Errorf("no snapshot after %s", wait)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *App) list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(a.Out)
	open := fs.Bool("open", false, "only OPEN gigs")
	mine := fs.Bool("mine", false, "only gigs you posted or claimed")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	gigs, err := a.awaitSnapshot(ctx)
	if err != nil {
		return err
	}
	me := a.Binding.Session().AnonymousID
	var shown []models.Gig
	for _, g := range gigs {
		if *open && g.Status != models.StatusOpen {
			continue
		}
		if *mine && g.CreatedBy != me && g.ClaimedBy != me {
			continue
		}
		shown = append(shown, g)
	}
	return writeGigs(a.Out, shown, me)
}

func (a *App) watch(ctx context.Context) error {
	if err := a.Engine.Subscribe(ctx); err != nil {
		return err
	}
	me := a.Binding.Session().AnonymousID
	for {
		select {
		case <-ctx.Done():
			return nil
		case gigs := <-a.Engine.Updates():
			fmt.Fprintf(a.Out, "--- %s ---\n", time.Now().Format(time.Kitchen))
			if err := writeGigs(a.Out, gigs, me); err != nil {
				return err
			}
		}
	}
}

func (a *App) post(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("post", flag.ContinueOnError)
	fs.SetOutput(a.Out)
	var d lifecycle.Draft
	fs.StringVar(&d.Title, "title", "", "gig title (required)")
	fs.StringVar(&d.Reward, "reward", "", "reward, e.g. 20 (required)")
	fs.StringVar(&d.Description, "description", "", "details")
	fs.StringVar(&d.Location, "location", "", "where")
	magic := fs.Bool("magic", false, "draft the description with the assistant")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	actor, err := a.actor()
	if err != nil {
		return err
	}
	if *magic && strings.TrimSpace(d.Description) == "" {
		if text, ok := a.Assistant.MagicDraft(ctx, d.Title); ok {
			d.Description = text
		}
	}
	id, err := a.Machine.Create(ctx, actor, d)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Posted %s.\n", id)
	return nil
}

func (a *App) transition(ctx context.Context, action lifecycle.Action, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: %s ID", ErrUsage, action)
	}
	actor, err := a.actor()
	if err != nil {
		return err
	}
	if _, err := a.awaitSnapshot(ctx); err != nil {
		return err
	}
	g, ok := a.Engine.Lookup(args[0])
	if !ok {
		return fmt.Errorf("gig %s not found", args[0])
	}
	switch action {
	case lifecycle.ActionClaim:
		err = a.Machine.Claim(ctx, actor, g)
	case lifecycle.ActionComplete:
		err = a.Machine.Complete(ctx, actor, g)
	case lifecycle.ActionDelete:
		err = a.Machine.Delete(ctx, actor, g)
	}
	if errors.Is(err, lifecycle.ErrStaleTransition) {
		return fmt.Errorf("%w: refresh with \"gigctl list\" and try again", err)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "%s: %s ok.\n", g.Title, action)
	return nil
}

func (a *App) draft(ctx context.Context, args []string) error {
	text, ok := a.Assistant.MagicDraft(ctx, strings.Join(args, " "))
	if !ok {
		return fmt.Errorf("%w: draft TITLE", ErrUsage)
	}
	fmt.Fprintln(a.Out, text)
	return nil
}

func (a *App) pulse(ctx context.Context) error {
	fmt.Fprintln(a.Out, a.Assistant.Pulse(ctx))
	return nil
}

// Package cli is the interactive front end of the sync engine: thin
// presentation glue that gates every command on the session state and the
// ready flag, and converts typed engine errors into messages. No data
// logic lives here.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dkravets/notelock/internal/common"
	"github.com/dkravets/notelock/internal/cryptox"
	"github.com/dkravets/notelock/internal/engine"
	"github.com/dkravets/notelock/internal/keyring"
	"github.com/dkravets/notelock/internal/logging"
	"github.com/dkravets/notelock/internal/mirror"
)

// App wires the session, engine and mirror behind a small REPL.
type App struct {
	session *keyring.Session
	engine  *engine.Engine
	mirror  *mirror.Mirror
	log     logging.Logger
	keep    int
	reader  *bufio.Reader
}

func NewApp(session *keyring.Session, eng *engine.Engine, m *mirror.Mirror, keep int, log logging.Logger) *App {
	return &App{
		session: session,
		engine:  eng,
		mirror:  m,
		log:     log,
		keep:    keep,
		reader:  bufio.NewReader(os.Stdin),
	}
}

func (a *App) status() string {
	if a.session.State() == keyring.Unlocked {
		return "unlocked"
	}
	return "locked"
}

// Run drives the command loop until exit or EOF. All input goes through
// the one buffered reader; a second reader on the same fd would swallow
// lines meant for the interactive prompts.
func (a *App) Run(ctx context.Context) {
	fmt.Println("notelock (type 'help' for commands)")

	for {
		fmt.Printf("notelock (%s)> ", a.status())
		line, err := a.reader.ReadString('\n')
		parts := strings.Fields(line)
		if len(parts) == 0 {
			if err != nil {
				break
			}
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			a.help()
		case "unlock":
			a.unlock(ctx)
		case "lock":
			a.session.Lock()
			a.engine.Reset()
		case "sync":
			a.sync(ctx)
		case "notes":
			a.listNotes()
		case "notebooks":
			a.listNotebooks()
		case "tags":
			a.listTags()
		case "add-notebook":
			a.addNotebook(ctx, args)
		case "add-note":
			a.addNote(ctx, args)
		case "tag-note":
			a.tagNote(ctx, args)
		case "rm-note":
			a.deleteNote(ctx, args)
		case "rm-notebook":
			a.deleteNotebook(ctx, args)
		case "backup":
			a.backup(ctx, args)
		case "backups":
			a.listBackups(ctx)
		case "exit", "quit":
			fmt.Println("Bye!")
			return
		default:
			fmt.Println("unknown command, try 'help'")
		}
		if err != nil {
			break
		}
	}
}

func (a *App) help() {
	if a.session.State() == keyring.Unlocked {
		fmt.Println("Commands: sync, notes, notebooks, tags, add-notebook <name>, add-note [notebook-id], tag-note <note-id> <tag-name>, rm-note <id>, rm-notebook <id>, backup [name], backups, lock, exit")
	} else {
		fmt.Println("Commands: unlock, exit")
	}
}

// unlock reads the passphrase, brings the master key into memory and runs
// the initial full sync. Errors map to the unlock-screen contract:
// incorrect passphrase, not authenticated, or a storage failure.
func (a *App) unlock(ctx context.Context) {
	passphrase, err := getPassphrase(os.Stdout)
	if err != nil {
		fmt.Println("input error:", err)
		return
	}
	defer cryptox.Wipe(passphrase)

	if err := a.session.Unlock(ctx, passphrase); err != nil {
		switch {
		case errors.Is(err, common.ErrIncorrectPassphrase):
			fmt.Println("incorrect passphrase")
		case errors.Is(err, common.ErrPassphraseTooShort):
			fmt.Printf("passphrase must be at least %d characters\n", keyring.MinPassphraseLen)
		case errors.Is(err, common.ErrNotAuthenticated):
			fmt.Println("not signed in")
		default:
			fmt.Println("unlock failed:", err)
		}
		return
	}
	a.sync(ctx)
}

func (a *App) sync(ctx context.Context) {
	report, err := a.engine.Refresh(ctx)
	if err != nil {
		fmt.Println("sync failed:", err)
		return
	}
	fmt.Printf("synced %d objects\n", report.Objects)
	for _, f := range report.Failed {
		fmt.Printf("  could not decrypt %s %s: %v\n", f.Type, f.ID, f.Err)
	}
}

func (a *App) listNotes() {
	for _, n := range a.engine.ListNotes() {
		marks := ""
		if n.Pinned {
			marks += " [pinned]"
		}
		if n.Archived {
			marks += " [archived]"
		}
		fmt.Printf("%s  %s%s\n", n.ID, n.Title, marks)
	}
}

func (a *App) listNotebooks() {
	for _, nb := range a.engine.ListNotebooks() {
		fmt.Printf("%s  %s\n", nb.ID, nb.Name)
	}
}

func (a *App) listTags() {
	for _, t := range a.engine.ListTags() {
		fmt.Printf("%s  %s\n", t.ID, t.Name)
	}
}

func (a *App) addNotebook(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Println("usage: add-notebook <name>")
		return
	}
	nb, err := a.engine.CreateNotebook(ctx, strings.Join(args, " "))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("created notebook", nb.ID)
}

func (a *App) addNote(ctx context.Context, args []string) {
	notebookID := ""
	if len(args) > 0 {
		notebookID = args[0]
	}

	n, err := a.engine.CreateNote(ctx, notebookID)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	title, err := getSimpleText(a.reader, "Title:", os.Stdout)
	if err != nil {
		fmt.Println("input error:", err)
		return
	}
	content, err := getMultiline(a.reader, "Content:", os.Stdout)
	if err != nil {
		fmt.Println("input error:", err)
		return
	}

	n.Title = title
	n.Content = content
	if _, err := a.engine.UpdateNote(ctx, *n); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("created note", n.ID)
}

func (a *App) tagNote(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Println("usage: tag-note <note-id> <tag-name>")
		return
	}
	n := a.engine.GetNote(args[0])
	if n == nil {
		fmt.Println("no such note")
		return
	}
	tag, err := a.engine.CreateTag(ctx, strings.Join(args[1:], " "))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	for _, id := range n.TagIDs {
		if id == tag.ID {
			fmt.Println("already tagged")
			return
		}
	}
	n.TagIDs = append(n.TagIDs, tag.ID)
	if _, err := a.engine.UpdateNote(ctx, *n); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("tagged %s with %s\n", n.ID, tag.Name)
}

func (a *App) deleteNote(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Println("usage: rm-note <id>")
		return
	}
	if err := a.engine.DeleteNote(ctx, args[0]); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("deleted")
}

func (a *App) deleteNotebook(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Println("usage: rm-notebook <id>")
		return
	}
	if err := a.engine.DeleteNotebook(ctx, args[0]); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("deleted")
}

func (a *App) backup(ctx context.Context, args []string) {
	if a.mirror == nil {
		fmt.Println("mirror disabled")
		return
	}
	name := "backup"
	if len(args) > 0 {
		name = args[0]
	}
	b, err := a.mirror.CreateBackup(ctx, name)
	if err != nil {
		fmt.Println("backup failed:", err)
		return
	}
	if err := a.mirror.Prune(ctx, a.keep); err != nil {
		a.log.Warn(ctx, "backup pruning failed", "err", err)
	}
	fmt.Println("created backup", b.Name)
}

func (a *App) listBackups(ctx context.Context) {
	if a.mirror == nil {
		fmt.Println("mirror disabled")
		return
	}
	backups, err := a.mirror.ListBackups(ctx)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	for _, b := range backups {
		fmt.Printf("%s  %s\n", b.CreatedAt.Format("2006-01-02 15:04:05"), b.Name)
	}
}

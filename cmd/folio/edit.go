package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/folio/internal/autosave"
	"github.com/fyrsmithlabs/folio/internal/resume"
	"github.com/fyrsmithlabs/folio/pkg/client"
)

func newEditCmd() *cobra.Command {
	var (
		id       string
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "edit <file.yaml>",
		Short: "Edit a resume from a YAML file with autosave",
		Long: `Watch a YAML draft and autosave it to the server while you edit it.

Every write to the file is fed to the autosave session; saves happen once
edits pause for the debounce window. When a save fails, type "r" and Enter
to retry. Leaving with unsaved changes asks for confirmation.

With --id and a missing file, the stored resume is written to the file first.

Examples:
  folio edit cv.yaml
  folio edit --id 6f1c... cv.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			c := newClient()

			initial := resume.Snapshot{}
			if id != "" {
				rec, err := c.GetResume(cmd.Context(), id)
				if err != nil {
					return err
				}
				initial = rec.Snapshot()
				if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
					if err := writeDraft(path, initial); err != nil {
						return err
					}
				}
			}

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)

			ed := newEditor(path, cmd.OutOrStdout(), c, initial, debounce)
			return ed.run(cmd.Context(), cmd.InOrStdin(), sigs)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "edit an existing resume")
	cmd.Flags().DurationVar(&debounce, "debounce", autosave.DefaultDebounce, "quiet period before saving")
	return cmd
}

// editor binds a draft file to an autosave session.
type editor struct {
	path  string
	rec   *autosave.Reconciler
	guard *autosave.Guard

	mu    sync.Mutex
	out   io.Writer
	retry func()
	last  autosave.State
}

func newEditor(path string, out io.Writer, p autosave.Persister, initial resume.Snapshot, debounce time.Duration) *editor {
	ed := &editor{path: path, out: out}
	// Register only marks the guard active; run consults it on interrupt.
	ed.guard = autosave.NewGuard(autosave.InterceptorFunc(func() func() { return func() {} }))
	ed.rec = autosave.New(announcer{p: p, ed: ed}, initial,
		autosave.WithDebounce(debounce),
		autosave.WithNotifier(ed),
		autosave.WithObserver(ed.guard.Observe),
		autosave.WithObserver(ed.observe),
	)
	return ed
}

// run blocks until the user leaves. Each interrupt or "q" with unsaved
// changes warns once; the next one discards them.
func (ed *editor) run(ctx context.Context, in io.Reader, sigs <-chan os.Signal) error {
	defer ed.guard.Close()
	defer ed.rec.Close()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", ed.path, err)
	}
	defer w.Close()
	// Editors often replace files by rename, so watch the directory.
	if err := w.Add(filepath.Dir(ed.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", ed.path, err)
	}

	ed.reload()
	ed.printf("editing %s (r: retry failed save, q: quit)\n", ed.path)

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
		close(lines)
	}()

	warned := false
	leave := func() bool {
		if ed.guard.Active() && !warned {
			warned = true
			ed.printf("you have unsaved changes; repeat to discard them\n")
			return false
		}
		return true
	}

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == ed.path && ev.Has(fsnotify.Write|fsnotify.Create) {
				warned = false
				ed.reload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			ed.printf("watch error: %v\n", err)
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			switch line {
			case "r":
				ed.retryFailed()
			case "q":
				if leave() {
					return ed.summary()
				}
			}
		case <-sigs:
			if leave() {
				return ed.summary()
			}
		case <-ctx.Done():
			return ed.summary()
		}
	}
}

func (ed *editor) reload() {
	snap, err := loadDraft(ed.path)
	if err != nil {
		ed.printf("%v\n", err)
		return
	}
	ed.rec.Update(snap)
}

func (ed *editor) retryFailed() {
	ed.mu.Lock()
	retry := ed.retry
	ed.retry = nil
	ed.mu.Unlock()
	if retry == nil {
		ed.printf("nothing to retry\n")
		return
	}
	retry()
}

func (ed *editor) summary() error {
	st := ed.rec.Status()
	if st.HasUnsavedChanges {
		ed.printf("left with unsaved changes\n")
		return nil
	}
	ed.printf("all changes saved\n")
	return nil
}

// SaveFailed implements autosave.Notifier.
func (ed *editor) SaveFailed(err error, retry func()) {
	ed.mu.Lock()
	ed.retry = retry
	ed.mu.Unlock()
	ed.printf("save failed: %s\n", describe(err))
}

// SaveRecovered implements autosave.Notifier.
func (ed *editor) SaveRecovered() {
	ed.printf("saved after retry\n")
}

func (ed *editor) observe(s autosave.Status) {
	ed.mu.Lock()
	prev := ed.last
	ed.last = s.State
	ed.mu.Unlock()
	if s.State == prev {
		return
	}
	switch s.State {
	case autosave.Saving:
		ed.printf("saving...\n")
	case autosave.Idle:
		if prev == autosave.Saving {
			ed.printf("saved\n")
		}
	}
}

func (ed *editor) printf(format string, args ...any) {
	ed.mu.Lock()
	defer ed.mu.Unlock()
	fmt.Fprintf(ed.out, format, args...)
}

// describe flattens validation issues into one line.
func describe(err error) string {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || len(apiErr.Issues) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(apiErr.Issues))
	for _, is := range apiErr.Issues {
		parts = append(parts, is.Field+": "+is.Message)
	}
	return strings.Join(parts, "; ")
}

// announcer reports the id of a newly created resume.
type announcer struct {
	p  autosave.Persister
	ed *editor
}

func (a announcer) Persist(ctx context.Context, s resume.Snapshot) (autosave.Persisted, error) {
	res, err := a.p.Persist(ctx, s)
	if err == nil && s.ID == "" {
		a.ed.printf("created resume %s\n", res.ID)
	}
	return res, err
}

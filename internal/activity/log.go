// Package activity runs a background subscriber that appends every
// community change to <dir>/activity.log in a single-line, human-friendly
// format.  It gives operators a trail of RSVPs and comments without
// querying the primary database.
package activity

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/community-events/internal/feed"
	"github.com/iliyamo/community-events/internal/model"
)

// Logger writes change lines to a file.  Subscriptions deliver on their own
// goroutines, so writes are serialized.
type Logger struct {
	path string
	mu   sync.Mutex
}

// Start subscribes to every table on t and logs each change until the
// returned stop func is called.
func Start(ctx context.Context, t feed.Transport, opts feed.Options, dir string) (stop func(), err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	lg := &Logger{path: filepath.Join(dir, "activity.log")}
	l := feed.NewListener(t, opts)
	var subs []*feed.Subscription
	for _, tb := range []model.Table{model.TableEvents, model.TableRsvps, model.TableComments} {
		subs = append(subs, l.Subscribe(ctx, feed.Topic{Table: tb}, lg.Handle))
	}
	log.Printf("activity: logging changes to %s", lg.path)
	return func() {
		for _, s := range subs {
			_ = s.Close()
		}
	}, nil
}

// Handle appends one change.  Errors are logged; the subscription goes on.
func (lg *Logger) Handle(ch model.Change) {
	line := FormatLine(ch)
	lg.mu.Lock()
	defer lg.mu.Unlock()
	f, err := os.OpenFile(lg.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("activity: open log file: %v", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		log.Printf("activity: write log: %v", err)
	}
}

// FormatLine renders ch as one log line, newline included.
func FormatLine(ch model.Change) string {
	at := ch.CommittedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var fields []string
	switch s := ch.Subject().(type) {
	case *model.Event:
		fields = []string{
			"event_id=" + s.ID,
			fmt.Sprintf("title=%q", s.Title),
			"date=" + s.Date.UTC().Format(time.RFC3339),
		}
	case *model.Rsvp:
		fields = []string{"event_id=" + s.EventID, "user_id=" + s.UserID}
	case *model.Comment:
		fields = []string{
			"event_id=" + s.EventID,
			"comment_id=" + s.ID,
			"user_id=" + s.UserID,
			fmt.Sprintf("chars=%d", len([]rune(s.Body))),
		}
	}
	head := fmt.Sprintf("[%s] %s %s", at.UTC().Format(time.RFC3339), ch.Table, ch.Kind)
	return strings.Join(append([]string{head}, fields...), " | ") + "\n"
}

package log

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/apex/log"
)

// InitLogger installs Handler on stderr with the level taken from
// CACHEJOURNAL_LOG (default ERROR).
func InitLogger() {
	level := strings.ToUpper(os.Getenv("CACHEJOURNAL_LOG"))
	if level == "" {
		level = "ERROR"
	}
	log.SetHandler(&Handler{Writer: os.Stderr})
	log.SetLevelFromString(level)
}

// Handler writes one line per entry: timestamp, level initial, message and
// sorted fields.
type Handler struct {
	Writer io.Writer
}

// HandleLog implements log.Handler.
func (h *Handler) HandleLog(e *log.Entry) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %.1s %s", time.Now().Format("2006-01-02 15:04:05"), strings.ToUpper(e.Level.String()), e.Message)

	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, " %s=%v", name, e.Fields[name])
	}
	b.WriteByte('\n')

	_, err := io.WriteString(h.Writer, b.String())
	return err
}

package kitchen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sagra-pos/internal/logger"
	"sagra-pos/internal/models"
	"sagra-pos/internal/ticket"
)

// SpoolPrinter writes print jobs as files under a spool directory, one
// subdirectory per business day. A print daemon picks them up from there.
type SpoolPrinter struct {
	dir      string
	renderer ticket.Renderer
	logger   *logger.Logger
}

func NewSpoolPrinter(dir string, renderer ticket.Renderer, log *logger.Logger) *SpoolPrinter {
	return &SpoolPrinter{
		dir:      dir,
		renderer: renderer,
		logger:   log,
	}
}

// Print spools copies of the kitchen ticket as one job. Printing the same
// ticket twice overwrites the earlier job.
func (p *SpoolPrinter) Print(ctx context.Context, t models.OrderTicket, copies int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	day := t.BusinessDay
	if day == "" {
		day = "unknown"
	}
	dir := filepath.Join(p.dir, day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create spool directory: %w", err)
	}

	path := filepath.Join(dir, JobName(t))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, p.renderer.KitchenJob(t, copies), 0o644); err != nil {
		return fmt.Errorf("failed to write print job: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to publish print job: %w", err)
	}

	p.logger.Debug("ticket_spooled", fmt.Sprintf("Spooled ticket %s", t.Number), "", map[string]interface{}{
		"path":   path,
		"copies": copies,
	})
	return nil
}

// JobName is the spool file name of a ticket.
func JobName(t models.OrderTicket) string {
	id := t.ID
	if len(id) > 8 {
		id = id[len(id)-8:]
	}
	name := t.Number.String()
	if id != "" {
		name += "-" + id
	}
	return strings.ReplaceAll(name, string(filepath.Separator), "_") + ".txt"
}

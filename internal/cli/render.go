package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/campus-gigs/backend/internal/models"
)

// statusLabel renders IN_PROGRESS as "IN PROGRESS".
func statusLabel(s models.Status) string {
	return strings.ReplaceAll(string(s), "_", " ")
}

// available lists what viewer can do with g.
func available(g models.Gig, viewer string) string {
	switch {
	case g.CreatedBy == viewer && g.Status != models.StatusCompleted:
		return "complete, delete"
	case g.CreatedBy == viewer:
		return "delete"
	case g.Status == models.StatusOpen:
		return "claim"
	case g.Status == models.StatusCompleted:
		return "done"
	}
	return "taken"
}

func writeGigs(w io.Writer, gigs []models.Gig, viewer string) error {
	if len(gigs) == 0 {
		_, err := fmt.Fprintln(w, "No gigs yet.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tREWARD\tTITLE\tPOSTED BY\tCLAIMED BY\tACTIONS")
	for _, g := range gigs {
		fmt.Fprintf(tw, "%s\t%s\t$%s\t%s\t%s\t%s\t%s\n",
			g.ID, statusLabel(g.Status), g.Reward, g.Title, g.CreatorName, dash(g.ClaimedByName), available(g, viewer))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

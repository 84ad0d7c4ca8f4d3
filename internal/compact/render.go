package compact

import (
	"fmt"
	"strings"

	"github.com/pablasso/bucle/internal/history"
	"github.com/pablasso/bucle/internal/marker"
)

// RenderSummary renders a snapshot as the marker-delimited summary block the
// context assembler splices into the history section. The assembler locates
// this block by the marker protocol; both sides must agree on marker.Version.
func RenderSummary(snap *history.Snapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Condensed summary of iterations %d-%d.\n", snap.FromIteration, snap.ToIteration)

	writeList(&sb, "Architectural notes", snap.ArchitecturalNotes)
	writeList(&sb, "Constraints discovered", snap.ConstraintsDiscovered)
	writeList(&sb, "Unfinished business", snap.UnfinishedBusiness)

	if len(snap.FilesTouched) > 0 {
		sb.WriteString("Files touched:\n")
		for _, ft := range snap.FilesTouched {
			fmt.Fprintf(&sb, "- %s (%s)\n", ft.Path, ft.Action)
		}
	}

	return marker.Wrap("summary", strings.TrimRight(sb.String(), "\n"))
}

func writeList(sb *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(heading + ":\n")
	for _, item := range items {
		fmt.Fprintf(sb, "- %s\n", item)
	}
}

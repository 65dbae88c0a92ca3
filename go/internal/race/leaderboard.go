package race

import (
	"sort"

	"github.com/raceloop/typerace/go/internal/events"
)

// SortLeaderboard orders players for display: words-per-minute descending,
// then accuracy descending. The stable sort preserves join order as the
// final tie-break, so the ordering is a deterministic total order for any
// roster snapshot.
func SortLeaderboard(players []events.Player) {
	sort.SliceStable(players, func(i, j int) bool {
		if players[i].WPM != players[j].WPM {
			return players[i].WPM > players[j].WPM
		}
		return players[i].Accuracy > players[j].Accuracy
	})
}

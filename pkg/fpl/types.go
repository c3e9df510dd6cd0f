// Package fpl holds the data model shared by the league fetcher: the input
// entries, the league records returned by the entry endpoint, and the
// flattened output rows.
package fpl

// Entry identifies one FPL team entry. Entries are read once from the input
// and never mutated.
type Entry struct {
	Name string `json:"Player Name"`
	ID   int    `json:"Player ID"`
}

// League is a classic league membership as returned by GET /entry/{id}/.
type League struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Row is one entry joined with one of its leagues.
type Row struct {
	Name       string `json:"Player Name"`
	ID         int    `json:"Player ID"`
	LeagueID   int    `json:"League ID"`
	LeagueName string `json:"League Name"`
}

// NewRow joins an entry with a league.
func NewRow(e Entry, l League) Row {
	return Row{
		Name:       e.Name,
		ID:         e.ID,
		LeagueID:   l.ID,
		LeagueName: l.Name,
	}
}

// EntryResponse is the subset of the entry endpoint body we decode.
// A missing "leagues" or "classic" field decodes to an empty list.
type EntryResponse struct {
	Leagues struct {
		Classic []League `json:"classic"`
	} `json:"leagues"`
}

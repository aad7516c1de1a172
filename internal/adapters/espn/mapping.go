package espn

import (
	"strings"

	"github.com/alejandrodnm/squarebot/internal/domain"
)

// mapSummary convierte la respuesta de summary a domain.GameFeed.
// Campos ausentes o malformados quedan en cero; nunca falla.
func mapSummary(eventID string, r summaryResponse) domain.GameFeed {
	feed := domain.GameFeed{EventID: eventID, Status: domain.StatusPre}
	if r.Header.ID != "" {
		feed.EventID = r.Header.ID
	}
	if len(r.Header.Competitions) == 0 {
		return feed
	}
	comp := r.Header.Competitions[0]

	feed.Status = mapStatus(comp.Status.Type)
	feed.Period = comp.Status.Period.N
	feed.Clock = comp.Status.DisplayClock

	home, away := splitCompetitors(comp.Competitors)
	if home != nil {
		feed.Home = mapTeamLine(*home)
	}
	if away != nil {
		feed.Away = mapTeamLine(*away)
	}

	feed.Plays = mapScoringPlays(r.ScoringPlays)
	return feed
}

// mapStatus normaliza el estado a pre/in/post. Un partido marcado como
// completado es "post" aunque el state venga vacío.
func mapStatus(t statusType) string {
	if t.Completed {
		return domain.StatusFinal
	}
	switch strings.ToLower(t.State) {
	case domain.StatusLive:
		return domain.StatusLive
	case domain.StatusFinal:
		return domain.StatusFinal
	default:
		return domain.StatusPre
	}
}

// splitCompetitors usa homeAway; si falta, el primero es local y el otro visitante.
func splitCompetitors(cs []competitor) (home, away *competitor) {
	for i := range cs {
		switch cs[i].HomeAway {
		case "home":
			home = &cs[i]
		case "away":
			away = &cs[i]
		}
	}
	if home == nil && len(cs) > 0 {
		home = &cs[0]
	}
	for i := range cs {
		if away != nil {
			break
		}
		if &cs[i] != home {
			away = &cs[i]
		}
	}
	return home, away
}

func mapTeamLine(c competitor) domain.TeamLine {
	line := domain.TeamLine{
		Abbrev:   c.Team.Abbreviation,
		Name:     c.Team.DisplayName,
		Total:    c.Score.N,
		HasTotal: c.Score.Valid,
		Deltas:   make([]int, 0, len(c.Linescores)),
	}
	for _, ls := range c.Linescores {
		line.Deltas = append(line.Deltas, linescoreValue(ls))
	}
	return line
}

func linescoreValue(ls linescore) int {
	if ls.Value != nil && ls.Value.Valid {
		return ls.Value.N
	}
	return ls.DisplayValue.N
}

// mapScoringPlays descarta jugadas sin marcador: sin él no hay evento que resolver.
func mapScoringPlays(raw []scoringPlay) []domain.ScoringPlay {
	plays := make([]domain.ScoringPlay, 0, len(raw))
	for _, p := range raw {
		if p.ID == "" || (!p.HomeScore.Valid && !p.AwayScore.Valid) {
			continue
		}
		plays = append(plays, domain.ScoringPlay{
			ID:     p.ID,
			Home:   p.HomeScore.N,
			Away:   p.AwayScore.N,
			Period: p.Period.Number.N,
			Text:   p.Text,
		})
	}
	return plays
}

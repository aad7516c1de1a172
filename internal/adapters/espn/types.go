package espn

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// DTOs raw del endpoint summary. Solo se usan dentro de este paquete.
// La conversión a domain.GameFeed se hace en mapping.go.

// summaryResponse es la respuesta de GET /{sport}/{league}/summary?event={id}.
type summaryResponse struct {
	Header       header        `json:"header"`
	ScoringPlays []scoringPlay `json:"scoringPlays"`
}

type header struct {
	ID           string        `json:"id"`
	Competitions []competition `json:"competitions"`
}

type competition struct {
	ID          string       `json:"id"`
	Date        string       `json:"date"`
	Status      status       `json:"status"`
	Competitors []competitor `json:"competitors"`
}

type status struct {
	DisplayClock string     `json:"displayClock"`
	Period       flexInt    `json:"period"`
	Type         statusType `json:"type"`
}

// statusType.State es "pre", "in" o "post".
type statusType struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	Completed bool   `json:"completed"`
}

type competitor struct {
	ID         string      `json:"id"`
	HomeAway   string      `json:"homeAway"`
	Score      flexInt     `json:"score"`
	Team       team        `json:"team"`
	Linescores []linescore `json:"linescores"`
}

type team struct {
	Abbreviation string `json:"abbreviation"`
	DisplayName  string `json:"displayName"`
}

// linescore trae los puntos del periodo; según el deporte llega en
// "value" (número) o solo en "displayValue" (string).
type linescore struct {
	Value        *flexInt `json:"value"`
	DisplayValue flexInt  `json:"displayValue"`
}

type scoringPlay struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	HomeScore flexInt    `json:"homeScore"`
	AwayScore flexInt    `json:"awayScore"`
	Period    playPeriod `json:"period"`
}

type playPeriod struct {
	Number flexInt `json:"number"`
}

// flexInt acepta número, string numérico o null. Cualquier otra cosa es 0
// con Valid=false: un campo roto nunca tumba el decode del summary entero.
type flexInt struct {
	N     int
	Valid bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	*f = flexInt{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	var s string
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
	} else {
		s = string(b)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if n, err := strconv.Atoi(s); err == nil {
		*f = flexInt{N: n, Valid: true}
		return nil
	}
	if x, err := strconv.ParseFloat(s, 64); err == nil {
		*f = flexInt{N: int(x), Valid: true}
	}
	return nil
}

package portal

import (
	"strings"
	"time"
)

// Credentials is the username/password pair used against the user portal.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Complete reports whether both fields are set. No request is issued for
// incomplete credentials.
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.Username) != "" && c.Password != ""
}

// Traffic holds the five quota figures in portal-reported units.
type Traffic struct {
	Total     float64 `json:"total"`
	Last      float64 `json:"last"`
	Current   float64 `json:"current"`
	Used      float64 `json:"used"`
	Remaining float64 `json:"remaining"`
}

// TrafficUnits is keyed identically to Traffic.
type TrafficUnits struct {
	Total     string `json:"total"`
	Last      string `json:"last"`
	Current   string `json:"current"`
	Used      string `json:"used"`
	Remaining string `json:"remaining"`
}

// Quota is the normalized account-status snapshot used by the CLI and TUI.
type Quota struct {
	Traffic   Traffic      `json:"traffic"`
	Units     TrafficUnits `json:"units"`
	FetchedAt time.Time    `json:"fetched_at"`
}

// session carries the artifacts of a single polling cycle.
type session struct {
	cookie string
	csrf   string
}

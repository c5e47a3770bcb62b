package gsi

import (
	json "github.com/goccy/go-json"
)

// Team side identifiers as they appear in GSI payloads.
const (
	TeamCT = "CT"
	TeamT  = "T"
)

// Round phases the coach reacts to.
const (
	PhaseFreezetime = "freezetime"
	PhaseLive       = "live"
	PhaseOver       = "over"
)

// Weapon type strings used by the game's state integration.
const (
	WeaponRifle   = "Rifle"
	WeaponSniper  = "SniperRifle"
	WeaponSMG     = "Submachine Gun"
	WeaponPistol  = "Pistol"
	WeaponShotgun = "Shotgun"
	WeaponMG      = "Machine Gun"
	WeaponKnife   = "Knife"
	WeaponGrenade = "Grenade"
	WeaponC4      = "C4"
	WeaponTaser   = "Taser"
)

// Snapshot is one decoded game-state document. All nested blocks are
// optional; a snapshot without a map block carries no usable state and is
// ignored by the tracker.
type Snapshot struct {
	Map    *MapInfo   `json:"map,omitempty"`
	Round  *RoundInfo `json:"round,omitempty"`
	Player *Player    `json:"player,omitempty"`
}

// MapInfo is the map block of a snapshot.
type MapInfo struct {
	Name   string   `json:"name"`
	Mode   string   `json:"mode"`
	Phase  string   `json:"phase"`
	Round  int      `json:"round"`
	TeamCT TeamInfo `json:"team_ct"`
	TeamT  TeamInfo `json:"team_t"`
}

// TeamInfo carries a team's score and streak counters.
type TeamInfo struct {
	Score             int `json:"score"`
	ConsecutiveLosses int `json:"consecutive_round_losses"`
	ConsecutiveWins   int `json:"consecutive_round_wins"`
}

// RoundInfo is the round block of a snapshot.
type RoundInfo struct {
	Phase   string `json:"phase"`
	WinTeam string `json:"win_team"`
	Bomb    string `json:"bomb"`
}

// Player is the observed player block.
type Player struct {
	Name       string            `json:"name"`
	Team       string            `json:"team"`
	Activity   string            `json:"activity"`
	Position   string            `json:"position,omitempty"`
	State      PlayerState       `json:"state"`
	MatchStats MatchStats        `json:"match_stats"`
	Weapons    map[string]Weapon `json:"weapons"`
}

// PlayerState holds the per-tick player status values. Health defaults to
// 100 when absent so a partial payload never reads as a damage edge.
type PlayerState struct {
	Health           int  `json:"health"`
	Armor            int  `json:"armor"`
	Helmet           bool `json:"helmet"`
	Flashed          int  `json:"flashed"`
	Money            int  `json:"money"`
	RoundKills       int  `json:"round_kills"`
	RoundTotalDamage int  `json:"round_totaldmg"`
	DefuseKit        bool `json:"defusekit"`
}

// UnmarshalJSON applies field defaults before decoding so omitted values
// resolve to safe readings instead of Go zero values.
func (s *PlayerState) UnmarshalJSON(data []byte) error {
	type alias PlayerState
	tmp := alias{Health: 100}
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	*s = PlayerState(tmp)
	return nil
}

// MatchStats holds cumulative per-match player stats.
type MatchStats struct {
	Kills   int `json:"kills"`
	Assists int `json:"assists"`
	Deaths  int `json:"deaths"`
	MVPs    int `json:"mvps"`
	Score   int `json:"score"`
}

// Weapon is one entry of the player's weapons map. AmmoClip is nil for
// items that have no magazine (knife, grenades, C4).
type Weapon struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	State       string `json:"state"`
	AmmoClip    *int   `json:"ammo_clip"`
	AmmoReserve int    `json:"ammo_reserve"`
}

// Decode parses a raw payload into a Snapshot.
func Decode(payload []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// HasMap reports whether the snapshot carries a map block.
func (s *Snapshot) HasMap() bool {
	return s != nil && s.Map != nil
}

// RoundPhase returns the round phase, or "" when no round block is present.
func (s *Snapshot) RoundPhase() string {
	if s == nil || s.Round == nil {
		return ""
	}
	return s.Round.Phase
}

// TeamFor returns the team block for the given side.
func (m *MapInfo) TeamFor(side string) TeamInfo {
	switch side {
	case TeamCT:
		return m.TeamCT
	case TeamT:
		return m.TeamT
	}
	return TeamInfo{}
}

// OpposingSide returns the enemy side for a team identifier.
func OpposingSide(side string) string {
	if side == TeamCT {
		return TeamT
	}
	return TeamCT
}

// ActiveWeapon returns the weapon currently held, or nil.
func (p *Player) ActiveWeapon() *Weapon {
	for key := range p.Weapons {
		w := p.Weapons[key]
		if w.State == "active" {
			return &w
		}
	}
	return nil
}

// HasPrimary reports whether the player carries a primary weapon.
func (p *Player) HasPrimary() bool {
	for _, w := range p.Weapons {
		switch w.Type {
		case WeaponRifle, WeaponSniper, WeaponSMG:
			return true
		}
	}
	return false
}

// Reloadable reports whether the weapon has a magazine worth watching.
func (w *Weapon) Reloadable() bool {
	if w.AmmoClip == nil {
		return false
	}
	switch w.Type {
	case WeaponKnife, WeaponGrenade, WeaponC4, WeaponTaser:
		return false
	}
	return true
}

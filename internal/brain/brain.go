// Package brain is the gateway to the conversational AI collaborator. It
// owns the shared rate limit, translates live game state into a text
// context, and degrades to canned answers when the collaborator misbehaves.
package brain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"cs2coach/internal/coach"
	"cs2coach/internal/gsi"
)

// Sentinel errors a ChatClient maps provider failures onto.
var (
	// ErrQuotaExceeded means the provider rejected the call for rate or
	// quota reasons.
	ErrQuotaExceeded = errors.New("brain: quota exceeded")
	// ErrSessionConflict means the conversation session is in a state the
	// provider will not continue from.
	ErrSessionConflict = errors.New("brain: session conflict")
	// ErrTransport covers network and protocol failures.
	ErrTransport = errors.New("brain: transport failure")
)

// Canned degradation responses. Ask never surfaces raw provider errors to
// the player.
const (
	replyTooShort  = "I didn't catch that."
	replyQuota     = "My brain is a bit tired from too many questions. Give me a few seconds."
	replyOverload  = "My brain is overloaded. Give me a second."
	quotaExtraWait = 5 * time.Second
)

// systemPrompt frames every conversation session.
const systemPrompt = `You are an expert Counter-Strike 2 (CS2) coach.
Provide brief, high-level tactical and strategic advice based on live game
state, match history, and screenshots when available.

GUIDELINES:
- Be concise (1-2 sentences).
- Use RECENT HISTORY to spot patterns.
- Analyze the loss reason of recent rounds.
- If a screenshot is provided, analyze enemy positions, crosshair
  placement, utility, and the radar.
- Use a professional, calm, supportive coaching tone.`

// ChatClient is the boundary to the actual AI provider. Implementations
// map provider failures to the sentinel errors above.
type ChatClient interface {
	// Send submits one prompt within the current conversation session.
	// includeVision asks the provider to attach the current screen.
	Send(ctx context.Context, prompt string, includeVision bool) (string, error)
	// ResetSession discards conversation memory and starts fresh.
	ResetSession()
}

// Brain coordinates questions to the AI collaborator.
type Brain struct {
	client ChatClient
	ledger *CooldownLedger

	quotaBackoff time.Duration
	sleep        func(time.Duration)
}

// New creates a Brain on the given client and cooldown ledger.
func New(client ChatClient, ledger *CooldownLedger) *Brain {
	return &Brain{
		client:       client,
		ledger:       ledger,
		quotaBackoff: quotaExtraWait,
		sleep:        time.Sleep,
	}
}

// Ask sends a player question with the current game context attached. It
// blocks until the shared cooldown allows a call. All failure modes return
// a speakable string; the error channel of the provider never reaches the
// player.
func (b *Brain) Ask(ctx context.Context, question string, snap *gsi.Snapshot, history []coach.HistoryEntry, includeVision bool) string {
	if len(strings.TrimSpace(question)) < 2 {
		return replyTooShort
	}

	// Record-before-send: the reservation lands on disk even if the
	// process dies during the provider call.
	b.ledger.Reserve()

	prompt := fmt.Sprintf(`[SYSTEM UPDATE: CURRENT GAME STATE]
%s
[END SYSTEM UPDATE]

USER QUESTION: %s`, BuildContext(snap, history), question)

	answer, err := b.client.Send(ctx, prompt, includeVision)
	if err == nil {
		return answer
	}

	log.Printf("[Brain] AI call failed: %v", err)
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		// Extra backoff on top of the interval so the next caller does
		// not immediately hit the same wall.
		b.sleep(b.quotaBackoff)
		return replyQuota
	case errors.Is(err, ErrSessionConflict):
		b.client.ResetSession()
		return replyOverload
	default:
		return replyOverload
	}
}

// ResetSession discards the conversation memory. Called on match start so
// stale-game advice does not bleed into a new match.
func (b *Brain) ResetSession() {
	log.Println("[Brain] Resetting conversation memory")
	b.client.ResetSession()
}

// contextWeaponTypes are the weapon classes worth listing in the loadout.
var contextWeaponTypes = map[string]bool{
	gsi.WeaponRifle:   true,
	gsi.WeaponSniper:  true,
	gsi.WeaponPistol:  true,
	gsi.WeaponSMG:     true,
	gsi.WeaponShotgun: true,
	gsi.WeaponMG:      true,
	gsi.WeaponGrenade: true,
}

// BuildContext compresses a snapshot plus recent round history into the
// text summary the AI sees.
func BuildContext(snap *gsi.Snapshot, history []coach.HistoryEntry) string {
	if snap == nil || !snap.HasMap() {
		return "Game state unknown (Main Menu or Loading)."
	}

	mapName := snap.Map.Name
	scoreCT := snap.Map.TeamCT.Score
	scoreT := snap.Map.TeamT.Score
	roundPhase := snap.RoundPhase()
	if roundPhase == "" {
		roundPhase = "unknown"
	}

	teamSide := "Spectator"
	health, money, kills, deaths := 0, 0, 0, 0
	var loadout []string
	if p := snap.Player; p != nil {
		if p.Team != "" {
			teamSide = p.Team
		}
		health = p.State.Health
		money = p.State.Money
		kills = p.MatchStats.Kills
		deaths = p.MatchStats.Deaths
		for _, w := range p.Weapons {
			if contextWeaponTypes[w.Type] {
				loadout = append(loadout, strings.TrimPrefix(w.Name, "weapon_"))
			}
		}
	}

	historyText := "No previous round history available."
	if len(history) > 0 {
		lines := make([]string, 0, len(history))
		for _, r := range history {
			result := "Lost"
			if r.Result == teamSide {
				result = "Won"
			}
			reason := r.Reason
			if reason == "" {
				reason = "Elimination"
			}
			lines = append(lines, fmt.Sprintf("- Rd %d: %s via %s. Stats: %dk | %ddmg.",
				r.Round, result, reason, r.RoundKills, r.Damage))
		}
		historyText = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(`CURRENT MATCH CONTEXT:
- Map: %s
- Score: CT %d - T %d
- Round Phase: %s
- Player: %s Side | HP: %d | Money: $%d
- K/D Ratio: %d/%d
- Loadout: %s

RECENT HISTORY (Last 5 Rounds):
%s`,
		mapName, scoreCT, scoreT, roundPhase,
		teamSide, health, money, kills, deaths,
		strings.Join(loadout, ", "), historyText)
}

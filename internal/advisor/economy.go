package advisor

import (
	"fmt"
	"strings"

	"cs2coach/internal/gsi"
)

// EconomyConfig holds the tunable thresholds of the buy-phase cascade.
// The helmet suppression band is a heuristic, not a domain rule: with
// awkward money and the enemy on a win streak, armor matters more than
// the helmet nag.
type EconomyConfig struct {
	LossBonusBase      int
	LossBonusIncrement int
	LossBonusMax       int

	RifleFullBuy      int
	RichThreshold     int
	MegaRichThreshold int
	UtilityBuffer     int

	SmokeCost      int
	FlashCost      int
	MolotovCost    int
	IncendiaryCost int

	HelmetSuppressMoneyMin int
	HelmetSuppressMoneyMax int
	HelmetSuppressStreak   int
}

// DefaultEconomyConfig returns the standard 12-round-half economy model.
func DefaultEconomyConfig() EconomyConfig {
	return EconomyConfig{
		LossBonusBase:      1400,
		LossBonusIncrement: 500,
		LossBonusMax:       3400,

		RifleFullBuy:      4100,
		RichThreshold:     8000,
		MegaRichThreshold: 11000,
		UtilityBuffer:     3900,

		SmokeCost:      300,
		FlashCost:      200,
		MolotovCost:    400,
		IncendiaryCost: 600,

		HelmetSuppressMoneyMin: 3700,
		HelmetSuppressMoneyMax: 4100,
		HelmetSuppressStreak:   2,
	}
}

// LossBonus forecasts the next-round loss income after n consecutive
// losses under the default economy model.
func LossBonus(consecutiveLosses int) int {
	return DefaultEconomyConfig().lossBonus(consecutiveLosses)
}

func (c EconomyConfig) lossBonus(consecutiveLosses int) int {
	if consecutiveLosses < 0 {
		consecutiveLosses = 0
	}
	bonus := c.LossBonusBase + consecutiveLosses*c.LossBonusIncrement
	if bonus > c.LossBonusMax {
		return c.LossBonusMax
	}
	return bonus
}

// buyContext is the per-snapshot view the economy rules evaluate against.
type buyContext struct {
	cfg         EconomyConfig
	player      *gsi.Player
	money       int
	teamSide    string
	mapName     string
	round       int
	lossStreak  int
	enemyStreak int
}

// economyRule is one step of the cascade; it returns advice text or "".
type economyRule struct {
	category Category
	check    func(*buyContext) string
}

// EconomyAdvisor emits at most one buy-phase advisory per round. The lock
// is cleared when the observed round number changes.
type EconomyAdvisor struct {
	cfg       EconomyConfig
	rules     []economyRule
	lastRound int
	locked    bool
}

// NewEconomyAdvisor creates an advisor with the default config.
func NewEconomyAdvisor() *EconomyAdvisor {
	return NewEconomyAdvisorWithConfig(DefaultEconomyConfig())
}

// NewEconomyAdvisorWithConfig creates an advisor with custom thresholds.
func NewEconomyAdvisorWithConfig(cfg EconomyConfig) *EconomyAdvisor {
	return &EconomyAdvisor{
		cfg:       cfg,
		lastRound: -1,
		rules: []economyRule{
			{CategoryDropRequest, (*buyContext).checkDropOpportunity},
			{CategoryEssentials, (*buyContext).checkEssentials},
			{CategoryEconomyStrategy, (*buyContext).assessStrategy},
			{CategoryUtility, (*buyContext).checkUtility},
		},
	}
}

// Evaluate runs the cascade against a freezetime snapshot. It returns at
// most one advisory; once any rule fires the round stays locked until the
// round number changes.
func (a *EconomyAdvisor) Evaluate(snap *gsi.Snapshot) []Advisory {
	if snap == nil || snap.Map == nil || snap.Player == nil {
		return nil
	}
	if snap.RoundPhase() != gsi.PhaseFreezetime {
		return nil
	}

	if round := snap.Map.Round; round != a.lastRound {
		a.lastRound = round
		a.locked = false
	}
	if a.locked {
		return nil
	}

	player := snap.Player
	enemySide := gsi.OpposingSide(player.Team)
	ctx := &buyContext{
		cfg:         a.cfg,
		player:      player,
		money:       player.State.Money,
		teamSide:    player.Team,
		mapName:     snap.Map.Name,
		round:       snap.Map.Round,
		lossStreak:  snap.Map.TeamFor(player.Team).ConsecutiveLosses,
		enemyStreak: snap.Map.TeamFor(enemySide).ConsecutiveWins,
	}

	for i, rule := range a.rules {
		if text := rule.check(ctx); text != "" {
			a.locked = true
			return []Advisory{{Text: text, Category: rule.category, Priority: i + 1}}
		}
	}
	return nil
}

// checkDropOpportunity nags rich players into dropping for the team.
func (b *buyContext) checkDropOpportunity() string {
	if b.money < b.cfg.RichThreshold {
		return ""
	}
	if b.money > b.cfg.MegaRichThreshold {
		return "You have over 11k. Drop an AWP."
	}
	if b.player.HasPrimary() {
		return "You are rich. Drop rifles."
	}
	return ""
}

// checkEssentials covers kit, kevlar and helmet purchases.
func (b *buyContext) checkEssentials() string {
	state := b.player.State
	isDefusalMap := strings.Contains(b.mapName, "de_")

	if b.teamSide == gsi.TeamCT && isDefusalMap && !state.DefuseKit {
		if b.money >= 400 && b.money > 3500 {
			return "Buy a kit."
		}
		if b.money >= 400 && b.money < 2000 {
			return "Buy a kit, play passive."
		}
	}

	switch {
	case state.Armor < 35:
		if b.money >= 650 {
			return "Buy Kevlar."
		}
	case !state.Helmet && b.teamSide == gsi.TeamCT:
		likelyRifleThreat := b.enemyStreak > b.cfg.HelmetSuppressStreak
		moneyIsTight := b.money >= b.cfg.HelmetSuppressMoneyMin && b.money <= b.cfg.HelmetSuppressMoneyMax
		if likelyRifleThreat && moneyIsTight {
			break
		}
		if b.money > 1000 {
			return "Buy a helmet."
		}
	case !state.Helmet && b.teamSide == gsi.TeamT && b.money > 1000:
		return "Buy a helmet."
	}
	return ""
}

// assessStrategy maps the money/streak situation to buy guidance.
func (b *buyContext) assessStrategy() string {
	if b.round == 0 || b.round == 12 {
		if b.teamSide == gsi.TeamT {
			return "Pistol round. Buy Armor or a Tec-9."
		}
		return "Pistol round. Prioritize Armor or a Kit."
	}

	guaranteedNext := b.money + b.cfg.lossBonus(b.lossStreak)
	if b.money < 2000 && guaranteedNext < b.cfg.RifleFullBuy {
		return fmt.Sprintf("Hard Eco. We need $%d for next round.", b.cfg.RifleFullBuy)
	}

	if (b.round == 1 || b.round == 13) && b.lossStreak == 1 && b.money > 1500 && b.money < 3000 {
		return "Force buy meta. Deagles or SMGs."
	}

	if b.lossStreak >= 5 && b.money < b.cfg.RifleFullBuy {
		return "Max loss bonus active. Force buy."
	}

	if b.money > 4000 && b.money < 5200 {
		return "You can buy a Rifle now, or save for an AWP."
	}
	if b.money >= 2800 && b.money < 3800 {
		return "Awkward money. Check teammate buys."
	}
	return ""
}

// checkUtility recommends grenades once the buy is comfortably covered.
func (b *buyContext) checkUtility() string {
	if b.money < b.cfg.UtilityBuffer {
		return ""
	}

	var hasSmoke, hasFlash, hasFire bool
	grenadeCount := 0
	for _, w := range b.player.Weapons {
		if w.Type != gsi.WeaponGrenade {
			continue
		}
		grenadeCount++
		switch {
		case strings.Contains(w.Name, "smokegrenade"):
			hasSmoke = true
		case strings.Contains(w.Name, "flashbang"):
			hasFlash = true
		case strings.Contains(w.Name, "molotov"), strings.Contains(w.Name, "incgrenade"):
			hasFire = true
		}
	}

	fireName, fireCost := "Incendiary", b.cfg.IncendiaryCost
	if b.teamSide == gsi.TeamT {
		fireName, fireCost = "Molotov", b.cfg.MolotovCost
	}

	switch {
	case !hasSmoke && b.money >= b.cfg.UtilityBuffer+b.cfg.SmokeCost:
		return "Buy a smoke."
	case !hasFlash && b.money >= b.cfg.UtilityBuffer+b.cfg.FlashCost:
		return "Buy a flash."
	case !hasFire && b.money >= b.cfg.UtilityBuffer+fireCost:
		return fmt.Sprintf("Buy a %s.", fireName)
	case b.money > 6000 && grenadeCount < 4:
		return "Fill utility slots."
	}
	return ""
}

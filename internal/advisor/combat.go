package advisor

import (
	"fmt"
	"time"

	"cs2coach/internal/gsi"
)

// CombatConfig holds the cooldowns and ammo thresholds for combat alerts.
type CombatConfig struct {
	FlashCooldown  time.Duration
	DamageCooldown time.Duration
	AmmoCooldown   time.Duration

	// FlashThreshold is the flash intensity above which the player is
	// considered blinded.
	FlashThreshold int

	// KillThresholds maps weapon type to the minimum magazine rounds
	// usually needed to secure a kill.
	KillThresholds map[string]int
	// DefaultKillThreshold applies to weapon types missing from the map.
	DefaultKillThreshold int
}

// DefaultCombatConfig returns the stock cooldowns and thresholds.
func DefaultCombatConfig() CombatConfig {
	return CombatConfig{
		FlashCooldown:  2500 * time.Millisecond,
		DamageCooldown: 3 * time.Second,
		AmmoCooldown:   4 * time.Second,
		FlashThreshold: 50,
		KillThresholds: map[string]int{
			gsi.WeaponRifle:   5,
			gsi.WeaponSMG:     8,
			gsi.WeaponPistol:  3,
			gsi.WeaponSniper:  1,
			gsi.WeaponShotgun: 1,
			gsi.WeaponMG:      15,
		},
		DefaultKillThreshold: 3,
	}
}

// CombatAdvisor watches every live tick for survival problems: being
// flashed, taking damage, running dry. Each category has its own cooldown
// so a molotov tick storm cannot drown out a flash warning and vice versa.
type CombatAdvisor struct {
	cfg CombatConfig

	lastHealth     int
	lastHelmet     bool
	lastFlashWarn  time.Time
	lastDamageWarn time.Time
	lastAmmoWarn   time.Time
}

// NewCombatAdvisor creates an advisor with the default config.
func NewCombatAdvisor() *CombatAdvisor {
	return NewCombatAdvisorWithConfig(DefaultCombatConfig())
}

// NewCombatAdvisorWithConfig creates an advisor with custom tuning.
func NewCombatAdvisorWithConfig(cfg CombatConfig) *CombatAdvisor {
	return &CombatAdvisor{cfg: cfg, lastHealth: 100, lastHelmet: true}
}

// Evaluate inspects one live-phase snapshot. Flash and damage alerts take
// precedence; ammo is only checked on an otherwise quiet tick.
func (a *CombatAdvisor) Evaluate(snap *gsi.Snapshot, now time.Time) []Advisory {
	if snap == nil || snap.Player == nil || snap.Player.Activity != "playing" {
		// Reset on death/spectate so the next spawn does not read as a
		// damage edge.
		a.lastHealth = 100
		a.lastHelmet = true
		return nil
	}

	player := snap.Player
	state := player.State

	var alerts []Advisory

	if state.Flashed > a.cfg.FlashThreshold && now.Sub(a.lastFlashWarn) > a.cfg.FlashCooldown {
		alerts = append(alerts, Advisory{
			Text:     "Flashed! Get behind cover!",
			Category: CategoryFlash,
			Priority: 1,
		})
		a.lastFlashWarn = now
	}

	// Damage fires on a health drop, never on the level itself.
	if state.Health < a.lastHealth {
		damage := a.lastHealth - state.Health
		if damage > 0 && now.Sub(a.lastDamageWarn) > a.cfg.DamageCooldown {
			if text := a.analyzeDamage(state.Health, damage, state.Armor, state.Helmet); text != "" {
				alerts = append(alerts, Advisory{
					Text:     text,
					Category: CategoryDamage,
					Priority: 1,
				})
				a.lastDamageWarn = now
			}
		}
	}

	a.lastHealth = state.Health
	a.lastHelmet = state.Helmet

	if len(alerts) == 0 && now.Sub(a.lastAmmoWarn) > a.cfg.AmmoCooldown {
		if text := a.checkAmmo(player.ActiveWeapon()); text != "" {
			alerts = append(alerts, Advisory{
				Text:     text,
				Category: CategoryAmmo,
				Priority: 2,
			})
			a.lastAmmoWarn = now
		}
	}

	return alerts
}

// analyzeDamage ranks the damage just taken. Only the first matching rule
// speaks; the order is a strict priority, not a best match.
func (a *CombatAdvisor) analyzeDamage(health, damage, armor int, helmet bool) string {
	// Without armor every hit shakes the screen; worth saying before any
	// HP talk.
	if armor == 0 && health > 0 {
		return "No armor! Aim punch risk! Don't commit to sprays."
	}

	if a.lastHelmet && !helmet {
		return "Helmet lost! One-tap risk."
	}

	// Losing 50+ in one tick means a headshot or a sniper hit.
	if damage >= 50 {
		if health <= 10 {
			return "One HP! Play passive, don't peek."
		}
		return fmt.Sprintf("Heavy hit (-%d)! Fall back and hold angle.", damage)
	}

	if health <= 20 {
		return fmt.Sprintf("Critical (%d HP)! You are one-shot to everything.", health)
	}

	if health <= 40 {
		return "In body-shot range. If possible, play contact, let teammates peek first."
	}
	return ""
}

// checkAmmo warns about dry or nearly dry magazines on the held weapon.
func (a *CombatAdvisor) checkAmmo(weapon *gsi.Weapon) string {
	if weapon == nil || !weapon.Reloadable() {
		return ""
	}

	clip := *weapon.AmmoClip
	reserve := weapon.AmmoReserve

	if clip == 0 {
		if reserve > 0 {
			return "Dry! Reload or swap!"
		}
		return "Weapon empty! Drop it or switch!"
	}

	threshold, ok := a.cfg.KillThresholds[weapon.Type]
	if !ok {
		threshold = a.cfg.DefaultKillThreshold
	}

	if clip <= threshold {
		// Snipers live on low magazines; only the very last round with
		// backup left deserves a callout.
		if weapon.Type == gsi.WeaponSniper {
			if clip == 1 && reserve > 0 {
				return "One shot left, make it count."
			}
			return ""
		}
		return "Low ammo! Reload if safe."
	}

	if reserve < 10 && clip < 10 {
		switch weapon.Type {
		case gsi.WeaponRifle, gsi.WeaponSMG:
			return "Last mag! Conservation mode."
		}
	}
	return ""
}

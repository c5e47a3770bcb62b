// Package advisor contains the two rule engines that turn live snapshots
// into spoken advisories: the economy advisor (buy-phase guidance, one
// advisory per round) and the combat advisor (survival alerts with
// per-category cooldowns).
package advisor

// Category identifies the rule family an advisory came from.
type Category string

const (
	CategoryDropRequest     Category = "drop-request"
	CategoryEssentials      Category = "essentials"
	CategoryEconomyStrategy Category = "economy-strategy"
	CategoryUtility         Category = "utility"
	CategoryFlash           Category = "flash"
	CategoryDamage          Category = "damage"
	CategoryAmmo            Category = "ammo"
)

// Advisory is a single piece of advice ready for dispatch. Advisories are
// ephemeral: they are spoken and broadcast, never persisted.
type Advisory struct {
	Text     string   `json:"text"`
	Category Category `json:"category"`
	Priority int      `json:"priority"`
}

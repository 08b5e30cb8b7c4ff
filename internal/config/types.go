// Package config loads and watches the deploy-time configuration file.
// Moderation state (categories, roles, bans, policies) lives in the
// database; this file carries only what must exist before the database
// does: identities, paths, logging and tuning knobs.
package config

import (
	"fmt"
	"strings"
	"time"

	"gigboard/pkg/logx"
)

type Config struct {
	Bot         BotConfig         `json:"bot"`
	Storage     StorageConfig     `json:"storage"`
	Gigs        GigConfig         `json:"gigs"`
	Cleanup     CleanupConfig     `json:"cleanup"`
	Replication ReplicationConfig `json:"replication"`
	Logging     logx.Config       `json:"logging"`
}

type BotConfig struct {
	// AdminUsers and AdminRoles are fixed at deploy time; they are the
	// bootstrap identities that can configure everything else.
	AdminUsers []string `json:"admin_users"`
	AdminRoles []string `json:"admin_roles"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout"`
}

type GigConfig struct {
	DefaultExpiryDays   int `json:"default_expiry_days"`
	DefaultCooldownDays int `json:"default_cooldown_days"`
	MinDescription      int `json:"min_description"`
	MinPay              int `json:"min_pay"`
}

type CleanupConfig struct {
	Spec string `json:"spec"`
}

type ReplicationConfig struct {
	RatePerSec int `json:"rate_per_sec"`
}

// Validate rejects configurations that cannot produce a working bot.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if _, err := c.BusyTimeout(); err != nil {
		return err
	}
	if c.Gigs.DefaultExpiryDays < 0 || c.Gigs.DefaultCooldownDays < 0 {
		return fmt.Errorf("gigs: day counts must be >= 0")
	}
	return nil
}

func (c *Config) BusyTimeout() (time.Duration, error) {
	raw := strings.TrimSpace(c.Storage.BusyTimeout)
	if raw == "" {
		return 5 * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("storage.busy_timeout: invalid duration %q: %w", raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("storage.busy_timeout: must be >= 0")
	}
	return d, nil
}

func (c *Config) DefaultExpiry() time.Duration {
	days := c.Gigs.DefaultExpiryDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

func (c *Config) DefaultCooldown() time.Duration {
	days := c.Gigs.DefaultCooldownDays
	if days <= 0 {
		days = 3
	}
	return time.Duration(days) * 24 * time.Hour
}

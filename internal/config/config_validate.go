// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/snapvault/internal/validation"
)

// minScheduleInterval keeps a misconfigured schedule from filling the disk.
const minScheduleInterval = time.Hour

// Validate checks struct tags first, then the rules that span fields.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	validators := []func() error{
		c.validateDatabase,
		c.validateSchedule,
		c.validateProgress,
		c.validateServer,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Strategy == "external" && len(c.Database.DumpCommand) == 0 {
		return errors.New("database.dump_command is required when database.strategy is external")
	}
	if c.Database.ConnectTimeout < 0 {
		return fmt.Errorf("database.connect_timeout must not be negative, got %s", c.Database.ConnectTimeout)
	}
	return nil
}

func (c *Config) validateSchedule() error {
	if !c.Schedule.Enabled {
		return nil
	}
	if c.Schedule.Interval < minScheduleInterval {
		return fmt.Errorf("schedule.interval must be at least %s, got %s", minScheduleInterval, c.Schedule.Interval)
	}
	return nil
}

func (c *Config) validateProgress() error {
	if c.Progress.ReportPause < 0 || c.Progress.MinWriteInterval < 0 {
		return errors.New("progress intervals must not be negative")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.RateLimitRequests > 0 && c.Server.RateLimitWindow <= 0 {
		return errors.New("server.rate_limit_window must be positive when rate limiting is enabled")
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must not be negative, got %s", c.Server.ShutdownTimeout)
	}
	return nil
}

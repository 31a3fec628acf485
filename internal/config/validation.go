// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

// Package config provides configuration validation and management
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation error for '%s': %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("multiple validation errors: %s", strings.Join(messages, "; "))
}

var logLevels = []string{"debug", "info", "warn", "error"}

// Validate checks the decoded settings and reports every problem at once.
func Validate(s *Settings) error {
	var errs ValidationErrors

	if !contains(logLevels, s.LogLevel) {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Value:   s.LogLevel,
			Message: fmt.Sprintf("must be one of %s", strings.Join(logLevels, ", ")),
		})
	}

	for field, raw := range map[string]string{
		"update.url":     s.Update.URL,
		"repository.url": s.Repository.URL,
	} {
		if raw == "" {
			continue
		}
		if err := validateURL(raw); err != nil {
			errs = append(errs, ValidationError{Field: field, Value: raw, Message: err.Error()})
		}
	}

	if s.Update.Schedule != "" {
		if _, err := cron.ParseStandard(s.Update.Schedule); err != nil {
			errs = append(errs, ValidationError{
				Field:   "update.schedule",
				Value:   s.Update.Schedule,
				Message: err.Error(),
			})
		}
	}

	if s.Update.StartupDelay < 0 {
		errs = append(errs, ValidationError{
			Field:   "update.startup_delay",
			Value:   s.Update.StartupDelay.String(),
			Message: "must not be negative",
		})
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http", "https", "file":
		return nil
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/xion/internal/config"
	"github.com/jeranaias/xion/internal/model"
)

// =============================================================================
// EXIT CODES - Specific codes for different error categories
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates rejected credentials
	ExitAuthError = 4
	// ExitNetworkError indicates the provider could not be reached or kept failing
	ExitNetworkError = 5
	// ExitNotFoundError indicates an unknown model or endpoint
	ExitNotFoundError = 7
	// ExitInterrupted follows the shell convention for SIGINT
	ExitInterrupted = 130
)

// UsageError reports bad arguments.
type UsageError struct {
	Command string
	Reason  string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Reason)
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usage *UsageError
	if errors.As(err, &usage) {
		return ExitUsageError
	}
	var verrs config.ValidateErrors
	if errors.As(err, &verrs) {
		return ExitConfigError
	}

	switch {
	case errors.Is(err, model.ErrConfig):
		return ExitConfigError
	case errors.Is(err, model.ErrAuth):
		return ExitAuthError
	case errors.Is(err, model.ErrNotFound):
		return ExitNotFoundError
	case errors.Is(err, model.ErrTransient),
		errors.Is(err, model.ErrRateLimited),
		errors.Is(err, model.ErrServerError):
		return ExitNetworkError
	case errors.Is(err, model.ErrCanceled), errors.Is(err, context.Canceled):
		return ExitInterrupted
	}
	return ExitGeneralError
}

// apologize is the line shown in place of a reply when a prompt fails.
// The conversation is left unchanged.
func apologize(err error) string {
	return "Sorry, I encountered an error: " + err.Error()
}

// configErr tags a config load failure so ExitCode maps it to ExitConfigError.
func configErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := model.AsErrorInfo(err); ok {
		return err
	}
	info := model.NewError(model.CategoryConfig, err.Error())
	info.Cause = err
	return info
}

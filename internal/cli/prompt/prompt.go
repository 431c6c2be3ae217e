// Package prompt wraps promptui for the interactive lockfsctl shell.
package prompt

import (
	"errors"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user aborts a prompt (Ctrl+C or Ctrl+D).
var ErrAborted = errors.New("aborted")

// IsAborted returns true if the error indicates the user aborted.
func IsAborted(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) ||
		errors.Is(err, promptui.ErrEOF) ||
		errors.Is(err, promptui.ErrAbort) ||
		errors.Is(err, ErrAborted)
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if IsAborted(err) {
		return ErrAborted
	}
	return err
}

// Line reads one line of input. Empty lines are accepted; validate, when
// set, only runs on non-empty input so the user can always skip a line.
func Line(label string, validate func(string) error) (string, error) {
	p := promptui.Prompt{
		Label: label,
		Validate: func(input string) error {
			if validate == nil || strings.TrimSpace(input) == "" {
				return nil
			}
			return validate(input)
		},
	}

	result, err := p.Run()
	return strings.TrimSpace(result), wrapError(err)
}

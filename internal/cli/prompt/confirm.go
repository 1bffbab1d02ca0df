// Package prompt asks the operator to confirm disruptive sweeps.
package prompt

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the operator presses Ctrl+C.
var ErrAborted = errors.New("aborted")

// Confirm asks a yes/no question. Anything but y/yes is a no.
func Confirm(label string, in io.ReadCloser, out io.WriteCloser) (bool, error) {
	p := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     in,
		Stdout:    out,
	}

	result, err := p.Run()
	switch {
	case errors.Is(err, promptui.ErrInterrupt):
		return false, ErrAborted
	case errors.Is(err, promptui.ErrAbort):
		return false, nil
	case err != nil:
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(result))
	return answer == "y" || answer == "yes", nil
}

// ConfirmUnless skips the question when assumeYes is set.
func ConfirmUnless(assumeYes bool, format string, args ...any) (bool, error) {
	if assumeYes {
		return true, nil
	}
	return Confirm(fmt.Sprintf(format, args...), nil, nil)
}

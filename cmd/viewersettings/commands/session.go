package commands

import (
	"context"
	stderr "errors"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"

	"github.com/objectfs/viewersettings/internal/coordinator"
	"github.com/objectfs/viewersettings/pkg/errors"
	"github.com/objectfs/viewersettings/pkg/settings"
	"github.com/objectfs/viewersettings/pkg/types"
)

// errCanceled reports that the user declined a read-only session.
var errCanceled = stderr.New("canceled: settings are not available for writing")

// session is one opened settings resource.
type session struct {
	coord   *coordinator.Coordinator
	backend types.Backend
	source  *settings.Buffer
	result  types.InitResult
}

// openSession resolves link, opens its backend and initializes a coordinator.
// The caller must call close.
func (a *app) openSession(ctx context.Context, link string, readonly bool, opts ...coordinator.Option) (*session, error) {
	id, err := a.factory.Resolve(link)
	if err != nil {
		return nil, err
	}
	backend, err := a.factory.Open(ctx, id)
	if err != nil {
		return nil, err
	}

	source := settings.NewBuffer(nil)
	base := []coordinator.Option{
		coordinator.WithLogger(a.logger),
		coordinator.WithAutosaveInterval(a.cfg.Settings.AutosaveInterval),
		coordinator.WithAccessDeniedHandler(a.accessDenied),
		coordinator.WithMetrics(a.collector),
	}
	coord, err := coordinator.New(backend, a.registry, source, append(base, opts...)...)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	result, err := coord.Initialize(ctx, readonly)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	if result == types.Canceled {
		_ = backend.Close()
		return nil, errCanceled
	}
	a.logger.Debug("Opened settings", "resource", id.String(), "result", result)
	return &session{coord: coord, backend: backend, source: source, result: result}, nil
}

// close saves a writable session and releases everything it holds.
func (s *session) close(ctx context.Context) error {
	err := s.coord.CloseAndSave(ctx)
	if cerr := s.backend.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// accessDenied answers the read-only offer from the flags or by asking.
func (a *app) accessDenied(_ context.Context, ae *errors.AccessError) bool {
	switch {
	case a.yes:
		return true
	case a.no:
		return false
	}

	message, question := splitRemediation(ae.Remediation())
	if message != "" {
		fmt.Fprintln(os.Stderr, message)
	}
	ok, err := a.confirm(question)
	if err != nil {
		a.logger.Debug("Read-only prompt failed", "error", err)
		return false
	}
	return ok
}

// splitRemediation separates the explanation from the trailing question.
func splitRemediation(text string) (message, question string) {
	i := strings.LastIndex(text, "\n")
	if i < 0 {
		return "", text
	}
	return text[:i], text[i+1:]
}

// promptConfirm asks a yes/no question on the terminal. Anything but an
// explicit yes, including Ctrl+C, is a no.
func promptConfirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}

	result, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrAbort || err == promptui.ErrInterrupt {
			return false, nil
		}
		return false, err
	}
	result = strings.ToLower(result)
	return result == "y" || result == "yes", nil
}

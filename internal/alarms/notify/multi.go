package notify

import (
	"context"
	"errors"

	alarmapp "refundtrack/internal/alarms/application"
)

// MultiNotifier dispatches notifications to multiple notifiers. Every
// notifier is attempted; the first failure is returned.
type MultiNotifier struct {
	notifiers []alarmapp.Notifier
}

// NewMultiNotifier constructs a MultiNotifier.
func NewMultiNotifier(notifiers ...alarmapp.Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify forwards the notification to all notifiers.
func (m *MultiNotifier) Notify(ctx context.Context, userID, templateKey string, variables map[string]string) error {
	if m == nil {
		return errors.New("multi notifier: nil")
	}
	var firstErr error
	for _, notifier := range m.notifiers {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, userID, templateKey, variables); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

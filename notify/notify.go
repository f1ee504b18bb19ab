// Package notify pushes alerts for confirmed animal events.
package notify

import (
	"time"

	"github.com/davecgh/go-spew/spew"
	log "github.com/sirupsen/logrus"

	"camtrap/classify"
	"camtrap/config"
)

// Notification is sent to all NotifyListeners registered with Notifier.
type Notification struct {
	TimeString string
	Identifier string
	Detection  classify.Detection
}

type NotifyListener interface {
	Notify(n *Notification) error
}

type Notifier struct {
	Listeners []NotifyListener

	settings config.NotifySettings
	now      func() time.Time
}

func NewNotifier(settings config.NotifySettings, listeners ...NotifyListener) *Notifier {
	return &Notifier{
		Listeners: listeners,
		settings:  settings,
		now:       time.Now,
	}
}

// EventConfirmed is invoked when an event passes the animal filter.
// identifier is the event directory basename.
func (n *Notifier) EventConfirmed(identifier string, detections classify.Detections) {
	best, ok := detections.Best()
	if !ok {
		return
	}
	if best.Confidence < n.settings.ConfidenceThreshold {
		// Not interesting enough for notification.
		return
	}

	ts := n.now()
	if ts.Hour() < n.settings.HoursStart || ts.Hour() >= n.settings.HoursEnd {
		log.Infof("Would send notification, but currently in quiet hours.")
		return
	}

	notification := &Notification{
		TimeString: ts.Format("3:04 PM"),
		Identifier: identifier,
		Detection:  best,
	}
	log.Infof("Sending notification: %v", spew.Sdump(notification))
	for _, l := range n.Listeners {
		go func(l NotifyListener) {
			if err := l.Notify(notification); err != nil {
				log.Errorf("Failed to send notification: %v", err)
			}
		}(l)
	}
}

package pump

import "github.com/sirupsen/logrus"

// SelectedChannels holds the characteristics chosen for the notification and
// command paths. Either may be nil: a missing notify characteristic only
// disables the notification path, and a missing write characteristic makes
// command sends fail at call time, not at selection time.
type SelectedChannels struct {
	Notify Characteristic
	Write  Characteristic
}

// Combined reports whether one characteristic serves both roles.
func (s SelectedChannels) Combined() bool {
	return s.Notify != nil && s.Notify == s.Write
}

// SelectChannels scans the discovered characteristics once and picks the
// notification and write channels. A characteristic carrying both notify and
// write capability is preferred for both roles; otherwise the first
// notify-capable and first write-capable characteristics (in discovery
// order) are chosen independently. The choice is deterministic for an
// identical discovery list.
func SelectChannels(chars []Characteristic, logger *logrus.Logger) SelectedChannels {
	var combined, notify, write []Characteristic

	for _, c := range chars {
		props := c.Properties()
		logger.WithFields(logrus.Fields{
			"char_uuid":  c.UUID(),
			"properties": props.String(),
		}).Debug("Inspecting characteristic")

		if props.CanNotify() && props.CanWrite() {
			combined = append(combined, c)
		}
		if props.CanNotify() {
			notify = append(notify, c)
		}
		if props.CanWrite() {
			write = append(write, c)
		}
	}

	if len(combined) > 0 {
		logger.WithField("char_uuid", combined[0].UUID()).
			Info("Using combined characteristic for notify+write")
		return SelectedChannels{Notify: combined[0], Write: combined[0]}
	}

	var sel SelectedChannels
	if len(notify) > 0 {
		sel.Notify = notify[0]
		logger.WithField("char_uuid", sel.Notify.UUID()).Info("Using notify characteristic")
	} else {
		logger.Warn("No notify characteristic found - notifications disabled")
	}
	if len(write) > 0 {
		sel.Write = write[0]
		logger.WithField("char_uuid", sel.Write.UUID()).Info("Using write characteristic")
	} else {
		logger.Warn("No write characteristic found")
	}
	return sel
}

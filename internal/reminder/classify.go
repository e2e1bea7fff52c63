package reminder

import (
	"time"

	"pireminder/internal/config"
	"pireminder/internal/model"
)

// Windows holds the time windows driving status classification and the
// reminder cadence. All values must be positive; config.Validate enforces
// that before a Scheduler is ever built.
type Windows struct {
	// StartingSoon is how far before the scheduled time an event shows
	// "starting soon".
	StartingSoon time.Duration
	// InProgress is how far past the scheduled time an event stays
	// "in progress".
	InProgress time.Duration
	// VoiceInterval is the repeat cadence of voice announcements.
	VoiceInterval time.Duration
	// AutoStop silences a reminder this long after its first announcement.
	AutoStop time.Duration
}

// WindowsFromConfig converts the seconds-based config block into durations.
func WindowsFromConfig(rc config.ReminderConfig) Windows {
	return Windows{
		StartingSoon:  time.Duration(rc.StartingSoonSeconds) * time.Second,
		InProgress:    time.Duration(rc.InProgressSeconds) * time.Second,
		VoiceInterval: time.Duration(rc.VoiceIntervalSeconds) * time.Second,
		AutoStop:      time.Duration(rc.AutoStopSeconds) * time.Second,
	}
}

// Classify maps an event and an instant to exactly one status. It is a pure
// total function: any finite now yields one status, and no two branches can
// match the same delta.
//
// Branch order matters: a triggered event is Completed no matter where its
// scheduled time sits relative to now. Boundaries are inclusive on the
// closer-to-now side: delta == 0 and delta == -InProgress are InProgress,
// delta == StartingSoon is StartingSoon.
func Classify(ev *model.Event, now time.Time, w Windows) model.Status {
	if ev.Triggered {
		return model.StatusCompleted
	}

	// Positive delta = event is in the future.
	delta := ev.ScheduledTime.Sub(now)

	switch {
	case -w.InProgress <= delta && delta <= 0:
		return model.StatusInProgress
	case delta < -w.InProgress:
		return model.StatusExpired
	case delta <= w.StartingSoon:
		// Here delta > 0 by elimination.
		return model.StatusStartingSoon
	default:
		return model.StatusUpcoming
	}
}

package domain

import (
	"errors"
	"fmt"
)

var ErrInvalidTimerProperty = errors.New("invalid timer property")

// TimerProperty configures a room's pomodoro timer.
type TimerProperty struct {
	TimerLengthMinutes int `json:"timerLengthMinutes"`
	ShortBreakMinutes  int `json:"shortBreakMinutes"`
	LongBreakMinutes   int `json:"longBreakMinutes"`
	LongBreakInterval  int `json:"longBreakInterval"`
}

// TimerPropertyPatch is a partial update; nil fields are left as they are.
type TimerPropertyPatch struct {
	TimerLengthMinutes *int `json:"timerLengthMinutes,omitempty"`
	ShortBreakMinutes  *int `json:"shortBreakMinutes,omitempty"`
	LongBreakMinutes   *int `json:"longBreakMinutes,omitempty"`
	LongBreakInterval  *int `json:"longBreakInterval,omitempty"`
}

// Apply returns p with every non-nil field of patch merged in.
func (p TimerProperty) Apply(patch TimerPropertyPatch) TimerProperty {
	if patch.TimerLengthMinutes != nil {
		p.TimerLengthMinutes = *patch.TimerLengthMinutes
	}
	if patch.ShortBreakMinutes != nil {
		p.ShortBreakMinutes = *patch.ShortBreakMinutes
	}
	if patch.LongBreakMinutes != nil {
		p.LongBreakMinutes = *patch.LongBreakMinutes
	}
	if patch.LongBreakInterval != nil {
		p.LongBreakInterval = *patch.LongBreakInterval
	}
	return p
}

// Validate rejects bundles that would make the timer spin: every phase must
// last at least a minute and a long break needs an interval of one or more.
func (p TimerProperty) Validate() error {
	if p.TimerLengthMinutes < 1 || p.ShortBreakMinutes < 1 || p.LongBreakMinutes < 1 {
		return fmt.Errorf("%w: phase lengths must be positive", ErrInvalidTimerProperty)
	}
	if p.LongBreakInterval < 1 {
		return fmt.Errorf("%w: long break interval must be at least 1", ErrInvalidTimerProperty)
	}
	return nil
}

func DefaultTimerProperty() TimerProperty {
	return TimerProperty{
		TimerLengthMinutes: 25,
		ShortBreakMinutes:  5,
		LongBreakMinutes:   15,
		LongBreakInterval:  4,
	}
}

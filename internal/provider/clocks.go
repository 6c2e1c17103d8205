package provider

import (
	"fmt"
	"time"

	"github.com/danmuck/opencab/internal/contracts/hos"
)

const (
	DateLayout         = "2006-01-02T15:04:05.0000-0700"
	DurationClockLabel = "HOS Test Time"
	BrowserLogout      = "googlechrome://navigate?url=google.com"
)

type dutyProfile struct {
	code  string
	label string
	hours int
	// limits marks the remaining clock; durationLimits marks the duration clock.
	limits         bool
	durationLimits bool
}

func profileFor(d DutyStatus) dutyProfile {
	switch d {
	case DutyDriving:
		return dutyProfile{code: "D", label: "Drive Time Remaining", hours: 11, limits: true}
	case DutyOnDuty:
		return dutyProfile{code: "ON", label: "On Duty Time Remaining", hours: 7, durationLimits: true}
	default:
		return dutyProfile{code: "OFF", label: "Rest Time Remaining", hours: 9}
	}
}

// deadline rounds now up to the next hour and adds hours.
func deadline(now time.Time, hours int) time.Time {
	return now.Truncate(time.Hour).Add(time.Hour + time.Duration(hours)*time.Hour)
}

// Clocks builds the clock list shown for user at now.
func Clocks(now time.Time, duty DutyStatus, user string) []hos.Clock {
	p := profileFor(duty)
	end := deadline(now, p.hours)
	remaining := end.Sub(now).Truncate(time.Second)
	seconds := remaining.Seconds()
	midnight := now.UTC().Truncate(24 * time.Hour).In(now.Location())

	return []hos.Clock{
		{Label: "Duty Status", Value: p.code, ValueType: hos.ValueString},
		{
			Label:              p.label,
			Value:              end.Format(DateLayout),
			ValueType:          hos.ValueCountDown,
			Important:          true,
			LimitsDrivingRange: p.limits,
		},
		{Label: "User", Value: user, ValueType: hos.ValueString},
		{Label: "Time since Rest", Value: midnight.Format(DateLayout), ValueType: hos.ValueCountUp},
		{
			Label:              DurationClockLabel,
			Value:              fmt.Sprintf("%02d:%02d", int(remaining.Hours()), int(remaining.Minutes())%60),
			ValueType:          hos.ValueString,
			LimitsDrivingRange: p.durationLimits,
			DurationSeconds:    &seconds,
		},
		{Label: "Today's Date", Value: now.Format(DateLayout), ValueType: hos.ValueDate},
	}
}

// ManageActionURI is the deep link into the provider's HOS screen.
func ManageActionURI(identity string) string {
	return "hos://" + identity + "/hos"
}

func buildStatus(now time.Time, s Settings, user string) hos.Status {
	st := hos.Status{Clocks: Clocks(now, s.Duty, user)}
	if s.ManageAction {
		st.ManageAction = ManageActionURI(s.Identity)
		st.LogoutAction = st.ManageAction
		if s.ToggleLogoutAction {
			st.LogoutAction = BrowserLogout
		}
	}
	return st
}

package timer

import (
	"time"

	"github.com/mcdev12/pokerleague/go/internal/models"
)

// State is the true timer state at a given instant, derived from a checkpoint.
// All durations are whole seconds.
type State struct {
	Status         models.TimerStatus `json:"status"`
	CurrentLevel   int                `json:"current_level"`
	TimeRemaining  int64              `json:"time_remaining"`
	ElapsedInLevel int64              `json:"elapsed_in_level"`
	TotalElapsed   int64              `json:"total_elapsed"`
	Unlimited      bool               `json:"unlimited"`
	Expired        bool               `json:"expired"`
}

// Compute derives the state of cp at now. It is the only read path for the
// timer; commands freeze its result before changing the checkpoint.
//
// Paused checkpoints are returned verbatim. Active ones combine the stored
// lower bounds with the time since LevelStartTime and StartTime.
func Compute(cp models.TimerCheckpoint, now time.Time) State {
	st := State{
		Status:        cp.Status,
		CurrentLevel:  cp.CurrentLevel,
		TimeRemaining: cp.TimeRemaining,
		TotalElapsed:  cp.TotalElapsed,
		Unlimited:     cp.LevelDuration == 0,
	}
	if cp.Status != models.TimerStatusActive {
		return st
	}

	sinceLevel := secondsSince(cp.LevelStartTime, now)
	if st.Unlimited {
		st.TimeRemaining = 0
		st.ElapsedInLevel = sinceLevel
	} else {
		st.ElapsedInLevel = min(sinceLevel, cp.TimeRemaining)
		st.TimeRemaining = max(0, cp.TimeRemaining-st.ElapsedInLevel)
		st.Expired = st.TimeRemaining == 0
	}

	if cp.StartTime != nil {
		st.TotalElapsed = max(cp.TotalElapsed, secondsSince(cp.StartTime, now))
	}
	return st
}

// secondsSince returns whole seconds from t to now, never negative.
func secondsSince(t *time.Time, now time.Time) int64 {
	if t == nil {
		return 0
	}
	d := now.Sub(*t)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}

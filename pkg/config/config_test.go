package config

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestFromViperDefaults(t *testing.T) {
	cfg, err := FromViper(newTestViper())
	require.NoError(t, err)

	assert.Equal(t, 70, cfg.Materials.MidtermRelevanceFloor)
	assert.Equal(t, 5*time.Second, cfg.Presence.HeartbeatInterval)
	assert.Equal(t, 10*time.Second, cfg.Presence.RefreshInterval)
	assert.Equal(t, 30*time.Second, cfg.Presence.StaleAfter)
	assert.Equal(t, "student", cfg.Presence.CountedPage)
	assert.Equal(t, 2*time.Minute, cfg.Notices.PollInterval)
	assert.Equal(t, "Mid-term Examinations", cfg.Semester.MidtermName)
}

func TestFromViperSemesterEndDatesAreInclusive(t *testing.T) {
	cfg, err := FromViper(newTestViper())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC), cfg.Semester.Start)
	assert.Equal(t, time.Date(2025, 9, 24, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC), cfg.Semester.MidtermEnd)
	assert.True(t, cfg.Semester.End.After(time.Date(2025, 12, 20, 23, 0, 0, 0, time.UTC)))
}

func TestFromViperRejectsMalformedSemester(t *testing.T) {
	v := newTestViper()
	v.Set("SEMESTER_MIDTERM_START", "14/09/2025")

	_, err := FromViper(v)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSemester))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConfiguration))
}

func TestFromViperMissingSemesterDateIsConfigurationError(t *testing.T) {
	v := newTestViper()
	v.Set("SEMESTER_FINAL_START", " ")

	_, err := FromViper(v)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSemester)
	assert.ErrorIs(t, err, appErrors.ErrConfiguration)
	assert.Contains(t, err.Error(), "SEMESTER_FINAL_START is required")
}

func TestSemesterOrderingProblems(t *testing.T) {
	cfg, err := FromViper(newTestViper())
	require.NoError(t, err)
	assert.Empty(t, cfg.Semester.OrderingProblems())

	v := newTestViper()
	v.Set("SEMESTER_MIDTERM_START", v.GetString("SEMESTER_FINAL_START"))
	v.Set("SEMESTER_MIDTERM_END", v.GetString("SEMESTER_END"))
	cfg, err = FromViper(v)
	require.NoError(t, err, "ordering is not a load error")
	assert.Equal(t, []string{"finals start before the midterm ends"}, cfg.Semester.OrderingProblems())
}

func TestFromViperRejectsUnknownTimezone(t *testing.T) {
	v := newTestViper()
	v.Set("SEMESTER_TIMEZONE", "Mars/Olympus")

	_, err := FromViper(v)
	assert.ErrorIs(t, err, ErrInvalidSemester)
}

func TestFromViperClampsRelevanceFloor(t *testing.T) {
	v := newTestViper()
	v.Set("MATERIALS_MIDTERM_RELEVANCE_FLOOR", 250)

	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 70, cfg.Materials.MidtermRelevanceFloor)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a , ,b "))
}

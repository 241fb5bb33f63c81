package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"daily-tracker/internal/logger"
)

// SchedulerService runs the periodic jobs of every session and the bot on
// one cron instance. A job that is still running when its next tick fires
// is skipped, and a panicking job is logged instead of killing the process.
type SchedulerService struct {
	cron *cron.Cron
}

func NewSchedulerService(loc *time.Location) *SchedulerService {
	if loc == nil {
		loc = time.Local
	}
	log := cronLogger{log: logger.Get().With("component", "scheduler")}
	return &SchedulerService{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithSeconds(),
			cron.WithLogger(log),
			cron.WithChain(cron.SkipIfStillRunning(log), cron.Recover(log)),
		),
	}
}

// ScheduleDaily registers a job at a wall-clock time, "HH:MM" or "HH:MM:SS",
// in the scheduler's location.
func (s *SchedulerService) ScheduleDaily(clock string, job func()) (cron.EntryID, error) {
	spec, err := buildDailySpec(clock)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, job)
}

// ScheduleInterval registers a job that runs every interval, rounded to whole
// seconds with a minimum of one.
func (s *SchedulerService) ScheduleInterval(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, errors.New("interval must be positive")
	}
	return s.cron.AddJob(fmt.Sprintf("@every %s", every(interval)), cron.FuncJob(job))
}

// Remove unregisters a job. Unknown ids are ignored.
func (s *SchedulerService) Remove(id cron.EntryID) {
	s.cron.Remove(id)
}

// Entries reports how many jobs are registered.
func (s *SchedulerService) Entries() int {
	return len(s.cron.Entries())
}

// Next returns when the job runs next, or the zero time for unknown ids and
// before Start.
func (s *SchedulerService) Next(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *SchedulerService) Stop() {
	<-s.cron.Stop().Done()
}

func every(interval time.Duration) time.Duration {
	d := interval.Round(time.Second)
	if d < time.Second {
		d = time.Second
	}
	return d
}

func buildDailySpec(clock string) (string, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		t, err := time.Parse(layout, clock)
		if err == nil {
			// seconds minutes hours day-of-month month day-of-week
			return fmt.Sprintf("%d %d %d * * *", t.Second(), t.Minute(), t.Hour()), nil
		}
	}
	return "", fmt.Errorf("invalid time of day %q, expected HH:MM or HH:MM:SS", clock)
}

// cronLogger feeds cron's own logging into slog. Routine scheduling chatter
// goes to debug.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

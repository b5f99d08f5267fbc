package tasks

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/effective-security/x/guid"
	"github.com/effective-security/xlog"
	"github.com/pkg/errors"
)

// TimeUnit specifies the time unit: 'seconds', 'minutes', 'hours'.
type TimeUnit uint

// TimeNow is a function that returns the current time
var TimeNow = time.Now

const (
	// Never specifies the time unit to never run a task
	Never TimeUnit = iota
	// Seconds specifies the time unit in seconds
	Seconds
	// Minutes specifies the time unit in minutes
	Minutes
	// Hours specifies the time unit in hours
	Hours
)

// Task defines task interface
type Task interface {
	// ID returns the id of the task
	ID() string
	// Name returns a name of the task
	Name() string
	// RunCount specifies the number of times the task executed
	RunCount() uint32
	// Schedule returns the task schedule
	Schedule() *Schedule
	// ShouldRun returns true if the task should be run now
	ShouldRun() bool
	// Run will try to run the task, if it's not already running,
	// and immediately reschedule it after run
	Run() bool
	// SetNextRun updates next schedule time
	SetNextRun(time.Duration) Task
	// Do accepts the function that is called every time the task runs
	Do(name string, fn func()) Task
	// IsRunning returns the status
	IsRunning() bool
}

// Schedule defines task schedule
type Schedule struct {
	// Interval * unit between runs
	Interval uint64
	// Unit specifies time units, e.g. 'minutes', 'hours'
	Unit TimeUnit
	// LastRunAt specifies datetime of last run
	LastRunAt *time.Time
	// NextRunAt specifies datetime of next run
	NextRunAt time.Time
	// RunCount specifies the number of runs
	RunCount uint32
}

// ShouldRun returns true if the task is due
func (s *Schedule) ShouldRun() bool {
	return TimeNow().After(s.NextRunAt)
}

// Duration returns the period between runs
func (s *Schedule) Duration() time.Duration {
	interval := time.Duration(s.Interval)
	switch s.Unit {
	case Seconds:
		return interval * time.Second
	case Minutes:
		return interval * time.Minute
	case Hours:
		return interval * time.Hour
	default:
		return time.Duration(1<<63 - 1)
	}
}

// UpdateNextRun computes the next run time
func (s *Schedule) UpdateNextRun() time.Time {
	now := TimeNow()
	s.LastRunAt = &now
	s.NextRunAt = now.Add(s.Duration())
	return s.NextRunAt
}

// task describes a task schedule
type task struct {
	id       string
	name     string
	schedule *Schedule
	callback func()

	runLock chan struct{}
	running bool
}

// NewTaskAtIntervals creates a new task with the time interval.
func NewTaskAtIntervals(interval uint64, unit TimeUnit) Task {
	return New(&Schedule{
		Interval:  interval,
		Unit:      unit,
		LastRunAt: nil,
		NextRunAt: time.Unix(0, 0),
	})
}

// NewTask creates a new task from the format string:
//
//	every %d seconds|minutes|hours
func NewTask(format string) (Task, error) {
	s, err := ParseSchedule(format)
	if err != nil {
		return nil, err
	}
	return New(s), nil
}

// New returns new task
func New(s *Schedule) Task {
	return &task{
		id:       guid.MustCreate(),
		schedule: s,
		runLock:  make(chan struct{}, 1),
	}
}

// ParseSchedule parses the "every N seconds|minutes|hours" syntax.
func ParseSchedule(format string) (*Schedule, error) {
	fields := strings.Fields(strings.ToLower(format))
	if len(fields) != 3 || fields[0] != "every" {
		return nil, errors.Errorf("unsupported schedule format: %q", format)
	}
	interval, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil || interval == 0 {
		return nil, errors.Errorf("unsupported schedule interval: %q", format)
	}

	var unit TimeUnit
	switch strings.TrimSuffix(fields[2], "s") + "s" {
	case "seconds":
		unit = Seconds
	case "minutes":
		unit = Minutes
	case "hours":
		unit = Hours
	default:
		return nil, errors.Errorf("unsupported schedule unit: %q", format)
	}

	return &Schedule{
		Interval:  interval,
		Unit:      unit,
		NextRunAt: time.Unix(0, 0),
	}, nil
}

// ID returns the id of the task
func (j *task) ID() string {
	return j.id
}

// Name returns a name of the task
func (j *task) Name() string {
	return j.name
}

// Schedule returns the task schedule
func (j *task) Schedule() *Schedule {
	return j.schedule
}

// RunCount specifies the number of times the task executed
func (j *task) RunCount() uint32 {
	return atomic.LoadUint32(&j.schedule.RunCount)
}

// ShouldRun returns true if the task should be run now
func (j *task) ShouldRun() bool {
	return !j.running && j.schedule.ShouldRun()
}

// IsRunning returns the status
func (j *task) IsRunning() bool {
	return j.running
}

// SetNextRun updates next schedule time
func (j *task) SetNextRun(after time.Duration) Task {
	j.schedule.NextRunAt = TimeNow().Add(after)
	return j
}

// Do accepts the function that is called every time the task runs
func (j *task) Do(name string, fn func()) Task {
	j.name = name
	j.callback = fn
	j.schedule.UpdateNextRun()
	return j
}

// Run executes the task once; overlapping runs are skipped.
func (j *task) Run() bool {
	select {
	case j.runLock <- struct{}{}:
	default:
		logger.KV(xlog.DEBUG, "status", "already_running", "task", j.name)
		return false
	}

	j.running = true
	atomic.AddUint32(&j.schedule.RunCount, 1)
	j.schedule.UpdateNextRun()

	go func() {
		defer func() {
			j.running = false
			<-j.runLock
			if r := recover(); r != nil {
				logger.KV(xlog.ERROR, "reason", "panic", "task", j.name, "err", r)
			}
		}()
		j.callback()
	}()
	return true
}

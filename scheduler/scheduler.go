package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"cian_scrooper/config"
	"cian_scrooper/models"
	"cian_scrooper/storage"
)

const commandPollInterval = 2 * time.Second

// Runner is what the scheduler drives.
type Runner interface {
	Run(ctx context.Context) error
	HandleCommand(ctx context.Context, cmd *models.Command) error
}

type CommandStore interface {
	GetPendingCommands() ([]models.Command, error)
	MarkCommandProcessed(id int64) error
	GetSetting(key, def string) (string, error)
}

type Scheduler struct {
	cfg    *config.Config
	runner Runner
	store  CommandStore
	cron   *cron.Cron
	stopCh chan struct{}
	once   sync.Once

	mu       sync.Mutex
	entry    cron.EntryID
	schedule string
	running  sync.Mutex
}

func New(cfg *config.Config, runner Runner, store CommandStore) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		store:  store,
		cron:   cron.New(),
		stopCh: make(chan struct{}),
	}
}

// CronSpec turns an HH:MM time of day into a daily cron spec in tz.
func CronSpec(hhmm, tz string) (string, error) {
	parts := strings.Split(strings.TrimSpace(hhmm), ":")
	if len(parts) != 2 {
		return "", eris.Errorf("invalid schedule time %q, want HH:MM", hhmm)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", eris.Errorf("invalid hour in schedule time %q", hhmm)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", eris.Errorf("invalid minute in schedule time %q", hhmm)
	}

	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	if tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return "", eris.Wrapf(err, "invalid timezone %q", tz)
		}
		spec = fmt.Sprintf("CRON_TZ=%s %s", tz, spec)
	}
	return spec, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.reschedule(ctx, s.scheduleTime()); err != nil {
		return err
	}
	s.cron.Start()

	go s.pollCommands(ctx)
	return nil
}

func (s *Scheduler) Stop() {
	s.once.Do(func() {
		<-s.cron.Stop().Done()
		close(s.stopCh)
	})
}

// Schedule returns the active cron spec.
func (s *Scheduler) Schedule() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule
}

// TriggerNow runs a full pass unless one started by this scheduler is still going.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	if !s.running.TryLock() {
		zap.L().Info("pass already running, trigger ignored")
		return nil
	}
	defer s.running.Unlock()
	return s.runner.Run(ctx)
}

// scheduleTime prefers the operator-edited setting over the configured default.
func (s *Scheduler) scheduleTime() string {
	hhmm, err := s.store.GetSetting(storage.SettingScheduleTime, s.cfg.Scheduler.Time)
	if err != nil || hhmm == "" {
		return s.cfg.Scheduler.Time
	}
	return hhmm
}

func (s *Scheduler) reschedule(ctx context.Context, hhmm string) error {
	spec, err := CronSpec(hhmm, s.cfg.Scheduler.Timezone)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if spec == s.schedule {
		return nil
	}

	id, err := s.cron.AddFunc(spec, func() {
		if err := s.TriggerNow(ctx); err != nil {
			zap.L().Error("scheduled run failed", zap.Error(err))
		}
	})
	if err != nil {
		return eris.Wrapf(err, "invalid cron expression %q", spec)
	}
	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	s.entry = id
	s.schedule = spec
	zap.L().Info("daily run scheduled", zap.String("cron", spec))
	return nil
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(commandPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processCommands(ctx)
			if err := s.reschedule(ctx, s.scheduleTime()); err != nil {
				zap.L().Warn("schedule time setting rejected", zap.Error(err))
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) processCommands(ctx context.Context) {
	cmds, err := s.store.GetPendingCommands()
	if err != nil {
		zap.L().Error("error getting commands", zap.Error(err))
		return
	}

	for _, cmd := range cmds {
		zap.L().Info("processing command", zap.String("command", string(cmd.Command)), zap.Int64("id", cmd.ID))
		// Mark first so a crash mid-pass does not replay the command.
		if err := s.store.MarkCommandProcessed(cmd.ID); err != nil {
			zap.L().Error("error marking command processed", zap.Int64("id", cmd.ID), zap.Error(err))
		}
		if err := s.handleCommand(ctx, &cmd); err != nil {
			zap.L().Error("command failed", zap.String("command", string(cmd.Command)), zap.Error(err))
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	if cmd.Command == models.CmdScrapeNow {
		return s.TriggerNow(ctx)
	}
	return s.runner.HandleCommand(ctx, cmd)
}

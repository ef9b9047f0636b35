package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/config"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/engine"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
	"github.com/robfig/cron/v3"
)

// Triggerable allows workers to be triggered manually
type Triggerable interface {
	Trigger()
}

// SearchTrigger can queue one saved search by name.
type SearchTrigger interface {
	Triggerable
	TriggerSearch(name string)
}

// Syncer runs one sync. *engine.Engine satisfies it.
type Syncer interface {
	Run(ctx context.Context) (*engine.RunReport, error)
}

// CommandQueue is the operator command table. *storage.SQLiteStore satisfies it.
type CommandQueue interface {
	GetPendingCommands() ([]models.Command, error)
	MarkCommandProcessed(id int64) error
	ParseCommandParams(cmd *models.Command) (*models.CommandParams, error)
}

type Scheduler struct {
	cfg      *config.SchedulerConfig
	syncer   Syncer
	commands CommandQueue
	cron     *cron.Cron
	ticker   *time.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once
	paused   atomic.Bool
	wg       sync.WaitGroup

	searchWorker SearchTrigger
	pollInterval time.Duration
}

func New(cfg *config.SchedulerConfig, syncer Syncer, commands CommandQueue) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		syncer:       syncer,
		commands:     commands,
		cron:         cron.New(),
		stopCh:       make(chan struct{}),
		pollInterval: 2 * time.Second,
	}
}

// SetSearchWorker registers the search worker for manual triggering
func (s *Scheduler) SetSearchWorker(w SearchTrigger) {
	s.searchWorker = w
}

// Paused reports whether scheduled runs are suspended. Manual triggers still run.
func (s *Scheduler) Paused() bool {
	return s.paused.Load()
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.commands != nil {
		s.wg.Add(1)
		go s.pollCommands(ctx)
	}

	if s.cfg.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Cron)
		_, err := s.cron.AddFunc(s.cfg.Cron, func() {
			s.scheduledRun(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Interval > 0 {
		log.Printf("Starting scheduler with interval: %s", s.cfg.Interval)
		s.ticker = time.NewTicker(s.cfg.Interval)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.scheduledRun(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		log.Println("No schedule configured, daemon will only respond to commands")
	}

	return nil
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Scheduler) scheduledRun(ctx context.Context) {
	if s.paused.Load() {
		log.Println("Scheduler paused, skipping scheduled sync")
		return
	}
	if _, err := s.syncer.Run(ctx); err != nil {
		log.Printf("Scheduled sync error: %v", err)
	}
}

// TriggerNow runs a sync immediately, ignoring pause.
func (s *Scheduler) TriggerNow(ctx context.Context) (*engine.RunReport, error) {
	return s.syncer.Run(ctx)
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processCommands(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) processCommands(ctx context.Context) {
	cmds, err := s.commands.GetPendingCommands()
	if err != nil {
		log.Printf("Error getting commands: %v", err)
		return
	}

	for _, cmd := range cmds {
		log.Printf("Processing command: %s", cmd.Command)
		// Marked first so a failing sync is not retried every poll.
		if err := s.commands.MarkCommandProcessed(cmd.ID); err != nil {
			log.Printf("Error marking command processed: %v", err)
		}
		if err := s.handleCommand(ctx, &cmd); err != nil {
			log.Printf("Command error: %v", err)
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdSyncNow:
		// Runs off the poll loop so pause and resume stay responsive. The
		// engine skips a run that overlaps one already in flight.
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			report, err := s.TriggerNow(ctx)
			if err != nil {
				log.Printf("Command sync error: %v", err)
				return
			}
			log.Printf("Sync via command: %s", report.Summary())
		}()
		return nil
	case models.CmdSyncSearch:
		if s.searchWorker == nil {
			return fmt.Errorf("no search worker configured")
		}
		params, err := s.commands.ParseCommandParams(cmd)
		if err != nil {
			return fmt.Errorf("parse params: %w", err)
		}
		s.searchWorker.TriggerSearch(params.Search)
		log.Println("Search worker triggered via command")
		return nil
	case models.CmdPause:
		s.paused.Store(true)
		log.Println("Scheduler paused via command")
		return nil
	case models.CmdResume:
		s.paused.Store(false)
		log.Println("Scheduler resumed via command")
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
}

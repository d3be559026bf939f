// Package scheduler runs background maintenance loops for the campaign pipeline.
package scheduler

import (
	"context"
	"io"
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/zapsender/zapsender-backend/config"
	"github.com/zapsender/zapsender-backend/models"
	"github.com/zapsender/zapsender-backend/repository"
	"github.com/zapsender/zapsender-backend/utils"
)

var messagesSwept = promauto.NewCounter(prometheus.CounterOpts{
	Name: "campaign_messages_swept_total",
	Help: "Pending messages past the orphan grace period that were marked failed",
})

const sweepBatchLimit = 500

// MessageSweeper marks messages as failed when the scheduler accepted them
// but no delivery result ever arrived. A message is considered orphaned once
// it is still pending past its run time plus the grace period.
type MessageSweeper struct {
	messageRepo  repository.MessageRepository
	scheduleRepo repository.ScheduleRepository
	logger       *log.Logger
	interval     time.Duration
	gracePeriod  time.Duration
}

// NewMessageSweeper creates a sweeper from campaign tunables. Logs go to
// stdout and a rotated file alongside the main application log.
func NewMessageSweeper(
	messageRepo repository.MessageRepository,
	scheduleRepo repository.ScheduleRepository,
	campaignCfg config.CampaignConfig,
	loggingCfg config.LoggingConfig,
) *MessageSweeper {
	interval := campaignCfg.SweeperInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	grace := campaignCfg.OrphanGracePeriod
	if grace <= 0 {
		grace = 15 * time.Minute
	}

	var out io.Writer = os.Stdout
	if loggingCfg.FilePath != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   loggingCfg.FilePath + ".sweeper",
			MaxSize:    loggingCfg.MaxSize,
			MaxBackups: loggingCfg.MaxBackups,
			MaxAge:     loggingCfg.MaxAge,
			Compress:   loggingCfg.Compress,
		})
	}

	return &MessageSweeper{
		messageRepo:  messageRepo,
		scheduleRepo: scheduleRepo,
		logger:       log.New(out, "sweeper ", log.LstdFlags|log.Lmicroseconds|log.LUTC),
		interval:     interval,
		gracePeriod:  grace,
	}
}

// Start launches the sweep loop in a background goroutine and returns a stop function
func (s *MessageSweeper) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return cancel
}

func (s *MessageSweeper) runOnce(ctx context.Context) {
	cutoff := utils.UTCNow().Add(-s.gracePeriod)

	orphaned, err := s.messageRepo.ListOrphanedPending(ctx, cutoff, sweepBatchLimit)
	if err != nil {
		s.logger.Printf("sweeper: list orphaned messages failed: %v", err)
		return
	}
	if len(orphaned) == 0 {
		return
	}

	ids := make([]uint, 0, len(orphaned))
	failedBySchedule := make(map[uint]int)
	for _, msg := range orphaned {
		ids = append(ids, msg.ID)
		if msg.ScheduleID != nil {
			failedBySchedule[*msg.ScheduleID]++
		}
	}

	updated, err := s.messageRepo.UpdateStatusByIDs(ctx, ids, models.MessageStatusFailed)
	if err != nil {
		s.logger.Printf("sweeper: mark orphaned messages failed: %v", err)
		return
	}
	messagesSwept.Add(float64(updated))
	s.logger.Printf("sweeper: marked %d orphaned messages as failed (cutoff %s)", updated, cutoff.Format(time.RFC3339))

	for scheduleID, count := range failedBySchedule {
		if err := s.scheduleRepo.IncrementCounters(ctx, scheduleID, 0, count); err != nil {
			s.logger.Printf("sweeper: increment failed counter for schedule id=%d: %v", scheduleID, err)
		}
	}
}

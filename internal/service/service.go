package service

import (
	"time"

	"go.uber.org/zap"

	"fieldcrew/backend/config"
	"fieldcrew/backend/internal/repository"
	"fieldcrew/backend/internal/schedule"
	"fieldcrew/backend/pkg/clock"
	"fieldcrew/backend/pkg/lock"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Delay      DelayService
	Classifier ClassifierService
	Crew       CrewService
	Cascade    CascadeProcessor
	PTO        PTOService
	Timecard   TimecardService
	TimeEntry  TimeEntryService
	Export     ExportService
	Calendar   CalendarService
	Notifier   Notifier
}

// NewService 创建 Service 聚合
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	locker lock.Locker,
	clk clock.Clock,
	logger *zap.Logger,
) *Service {
	sc := cfg.Scheduler
	loc, err := sc.Location()
	if err != nil {
		logger.Warn("业务时区无效，使用 UTC", zap.String("timezone", sc.Timezone), zap.Error(err))
		loc = time.UTC
	}

	notifier := NewNotifier(repo, logger)
	crew := NewCrewService(repo, locker, schedule.NewLeadPolicy(sc.LeadPromotionPolicy), clk, logger)
	cascade := NewCascadeProcessor(repo, crew, clk, logger)

	return &Service{
		Delay:      NewDelayService(repo, clk, notifier, logger),
		Classifier: NewClassifierService(repo, clk, sc.LookaheadDays, logger),
		Crew:       crew,
		Cascade:    cascade,
		PTO:        NewPTOService(repo, cascade, notifier, clk, logger),
		Timecard:   NewTimecardService(repo, crew, sc, clk, logger),
		TimeEntry:  NewTimeEntryService(repo, logger),
		Export:     NewExportService(repo, logger),
		Calendar:   NewCalendarService(repo, loc, clk, logger),
		Notifier:   notifier,
	}
}

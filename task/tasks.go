package task

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/oskarb/kepler/config"
	"github.com/oskarb/kepler/database"
	"github.com/oskarb/kepler/planner"
)

type Tasks struct {
	cron            *cron.Cron
	cnfg            *config.AppConfig
	PlanningTask    func()
	MaintenanceTask func()
}

func NewTasks(db *database.Database, pipeline *planner.Pipeline, cnfg *config.AppConfig) *Tasks {
	logger := slog.Default().With("module", "tasks")
	return &Tasks{
		cron:            cron.New(),
		cnfg:            cnfg,
		PlanningTask:    NewPlanningTask(logger.With(slog.String("task", "planning")), pipeline, cnfg),
		MaintenanceTask: NewMaintenanceTask(logger.With(slog.String("task", "maintenance")), db, cnfg),
	}
}

func (t *Tasks) Run() {
	_, err := t.cron.AddFunc(t.cnfg.Planner.GetRunAt(), t.PlanningTask)
	if err != nil {
		panic(err)
	}
	_, err = t.cron.AddFunc("30 2 * * *", t.MaintenanceTask)
	if err != nil {
		panic(err)
	}
	t.cron.Start()
}

func (t *Tasks) Stop() context.Context {
	return t.cron.Stop()
}

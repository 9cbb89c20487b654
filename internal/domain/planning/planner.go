// internal/domain/planning/planner.go
package planning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/manufacturing-erp/internal/domain/order"
	"gorm.io/gorm"
)

// ErrRunInProgress is returned to ad-hoc triggers while a scheduled
// reconciliation run is still open.
var ErrRunInProgress = errors.New("reconciliation_run_in_progress")

// plannerLockKey is the redis key serializing runs across instances.
const plannerLockKey = "planning:reconciliation:lock"

// ReconciliationRun is the visible open-run marker: one row per pass,
// open while Status is "running". Ad-hoc triggers must check it before
// proceeding.
type ReconciliationRun struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	RunCode         string     `gorm:"uniqueIndex;not null;size:50" json:"run_code"`
	Status          string     `gorm:"not null;size:20;index" json:"status"` // running, completed, failed
	OrdersProcessed int        `gorm:"default:0" json:"orders_processed"`
	OrdersFailed    int        `gorm:"default:0" json:"orders_failed"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Run statuses
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Planner periodically settles every open customer order. Runs are
// mutually exclusive across instances: a redis lock is taken for the
// duration and a ReconciliationRun row stays open while working.
type Planner struct {
	db         *gorm.DB
	redis      *redis.Client
	reconciler *Reconciler
	interval   time.Duration
	lockTTL    time.Duration
	log        *logrus.Logger
}

// NewPlanner creates a new background planner
func NewPlanner(db *gorm.DB, redisClient *redis.Client, reconciler *Reconciler,
	interval, lockTTL time.Duration, log *logrus.Logger) *Planner {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &Planner{
		db:         db,
		redis:      redisClient,
		reconciler: reconciler,
		interval:   interval,
		lockTTL:    lockTTL,
		log:        log,
	}
}

// Start runs the planner loop until the context is cancelled.
func (p *Planner) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.WithField("interval", p.interval.String()).Info("Background planner started")

	for {
		select {
		case <-ctx.Done():
			p.log.Info("Background planner stopped")
			return
		case <-ticker.C:
			if _, err := p.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
				p.log.WithField("error", err.Error()).Error("Scheduled reconciliation run failed")
			}
		}
	}
}

// RunOnce executes one reconciliation pass over all open customer orders.
// Failures are isolated per order so one malfunctioning order cannot
// abort the batch.
func (p *Planner) RunOnce(ctx context.Context) (*ReconciliationRun, error) {
	acquired, err := p.redis.SetNX(ctx, plannerLockKey, uuid.New().String(), p.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire planner lock: %w", err)
	}
	if !acquired {
		return nil, ErrRunInProgress
	}
	defer p.redis.Del(ctx, plannerLockKey)

	if open, err := p.OpenRun(); err != nil {
		return nil, err
	} else if open != nil {
		return nil, ErrRunInProgress
	}

	run := &ReconciliationRun{
		RunCode:   fmt.Sprintf("RUN-%s-%s", time.Now().Format("20060102"), uuid.New().String()[:8]),
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}
	if err := p.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to open reconciliation run: %w", err)
	}

	var orders []order.Order
	err = p.db.Where("kind = ? AND status = ?", order.KindCustomer, order.StatusOpen).
		Order("delivery_date ASC").
		Find(&orders).Error
	if err != nil {
		p.closeRun(run, RunStatusFailed)
		return run, fmt.Errorf("failed to load open customer orders: %w", err)
	}

	for _, o := range orders {
		if ctx.Err() != nil {
			break
		}
		if _, err := p.reconciler.Settle(o.ID); err != nil {
			run.OrdersFailed++
			p.log.WithFields(logrus.Fields{
				"run_code":     run.RunCode,
				"order_id":     o.ID,
				"order_number": o.OrderNumber,
				"error":        err.Error(),
			}).Error("Order settle failed, continuing run")
			continue
		}
		run.OrdersProcessed++
	}

	status := RunStatusCompleted
	if run.OrdersFailed > 0 && run.OrdersProcessed == 0 {
		status = RunStatusFailed
	}
	p.closeRun(run, status)

	p.log.WithFields(logrus.Fields{
		"run_code":  run.RunCode,
		"processed": run.OrdersProcessed,
		"failed":    run.OrdersFailed,
	}).Info("Reconciliation run finished")

	return run, nil
}

// OpenRun returns the currently open run, if any. Ad-hoc triggers check
// this marker before starting work of their own.
func (p *Planner) OpenRun() (*ReconciliationRun, error) {
	var run ReconciliationRun
	err := p.db.Where("status = ?", RunStatusRunning).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up open run: %w", err)
	}
	return &run, nil
}

func (p *Planner) closeRun(run *ReconciliationRun, status string) {
	now := time.Now()
	run.Status = status
	run.CompletedAt = &now
	if err := p.db.Model(&ReconciliationRun{}).Where("id = ?", run.ID).
		Updates(map[string]interface{}{
			"status":           status,
			"completed_at":     now,
			"orders_processed": run.OrdersProcessed,
			"orders_failed":    run.OrdersFailed,
		}).Error; err != nil {
		p.log.WithFields(logrus.Fields{
			"run_code": run.RunCode,
			"error":    err.Error(),
		}).Error("Failed to close reconciliation run")
	}
}

package scheduler

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Maintenance is the slice of the store the scheduled jobs need.
type Maintenance interface {
	DeleteAlertsOlderThan(days int) (int64, error)
	CountActiveRules() (int, error)
	CountAlertsSince(t time.Time) (int, error)
}

// Notifier delivers the daily digest.
type Notifier interface {
	Send(title, content string) (bool, error)
}

// PriceSource reports the latest observed price for a symbol.
type PriceSource interface {
	CurrentPrice(symbol string) (float64, bool)
}

// Scheduler runs periodic maintenance: history cleanup and a daily
// digest notification. Cron expressions use the 6-field form with a
// leading seconds field.
type Scheduler struct {
	cron     *cron.Cron
	store    Maintenance
	notifier Notifier
	prices   PriceSource
	symbols  []string
}

// New creates a scheduler. symbols lists the feed's symbol set for the
// digest's price section.
func New(store Maintenance, notifier Notifier, prices PriceSource, symbols []string) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		store:    store,
		notifier: notifier,
		prices:   prices,
		symbols:  symbols,
	}
}

// RegisterCleanup schedules deletion of alert history older than
// retentionDays.
func (s *Scheduler) RegisterCleanup(spec string, retentionDays int) error {
	_, err := s.cron.AddFunc(spec, func() {
		n, err := s.store.DeleteAlertsOlderThan(retentionDays)
		if err != nil {
			log.Printf("[ERROR] scheduler: history cleanup: %v", err)
			return
		}
		log.Printf("[INFO] scheduler: history cleanup removed %d alerts older than %d days", n, retentionDays)
	})
	if err != nil {
		return fmt.Errorf("register cleanup job: %w", err)
	}
	log.Printf("[INFO] scheduler: cleanup registered (%s, keep %d days)", spec, retentionDays)
	return nil
}

// RegisterDigest schedules the daily summary notification.
func (s *Scheduler) RegisterDigest(spec string) error {
	_, err := s.cron.AddFunc(spec, s.sendDigest)
	if err != nil {
		return fmt.Errorf("register digest job: %w", err)
	}
	log.Printf("[INFO] scheduler: daily digest registered (%s)", spec)
	return nil
}

func (s *Scheduler) sendDigest() {
	active, err := s.store.CountActiveRules()
	if err != nil {
		log.Printf("[ERROR] scheduler: digest count rules: %v", err)
		return
	}
	fired, err := s.store.CountAlertsSince(time.Now().Add(-24 * time.Hour))
	if err != nil {
		log.Printf("[ERROR] scheduler: digest count alerts: %v", err)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 每日警报摘要\n活跃规则: %d\n过去24小时触发: %d 次", active, fired)
	for _, symbol := range s.symbols {
		if price, ok := s.prices.CurrentPrice(symbol); ok {
			fmt.Fprintf(&b, "\n%s 当前价格: %.2f", strings.ToUpper(symbol), price)
		}
	}
	if _, err := s.notifier.Send("每日警报摘要", b.String()); err != nil {
		log.Printf("[WARN] scheduler: digest notification failed: %v", err)
	}
}

// Start begins running registered jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Println("[INFO] scheduler: started")
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("[INFO] scheduler: stopped")
}

package services

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/yeremiapane/omnipos/models"
	"github.com/yeremiapane/omnipos/utils"
)

// Deliverer pushes a notification to connected screens.
type Deliverer interface {
	Deliver(n models.Notification) int
}

// Publisher forwards a notification to a message broker.
type Publisher interface {
	PublishNotification(ctx context.Context, n models.Notification) error
}

// ChangeMonitor polls the notifications table for rows it has not relayed
// yet and hands them to the hub and, when configured, the broker. Progress
// is an id cursor held in memory, so rows are never rewritten; after a
// restart it starts from the newest row.
//
// On MySQL and Postgres ids are handed out before commit, so a row can
// become visible after a higher id was relayed. Each poll re-scans the
// last Window ids below the cursor and relays what it has not seen; a row
// that commits later than that is only reachable through the list
// endpoint.
type ChangeMonitor struct {
	DB        *gorm.DB
	Hub       Deliverer
	Publisher Publisher
	StopChan  chan struct{}
	Interval  time.Duration
	BatchSize int
	Window    uint

	mu       sync.Mutex
	floor    uint
	lastID   uint
	relayed  map[uint]struct{}
	stopOnce sync.Once
}

func NewChangeMonitor(db *gorm.DB, hub Deliverer, pub Publisher) *ChangeMonitor {
	return &ChangeMonitor{
		DB:        db,
		Hub:       hub,
		Publisher: pub,
		StopChan:  make(chan struct{}),
		Interval:  1 * time.Second,
		BatchSize: 100,
		Window:    50,
		relayed:   make(map[uint]struct{}),
	}
}

// Start skips everything already stored and polls until Stop.
func (cm *ChangeMonitor) Start() error {
	if err := cm.Seek(); err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(cm.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				cm.CheckChanges(context.Background())
			case <-cm.StopChan:
				return
			}
		}
	}()
	return nil
}

func (cm *ChangeMonitor) Stop() {
	cm.stopOnce.Do(func() { close(cm.StopChan) })
}

// Seek moves the cursor to the newest stored notification.
func (cm *ChangeMonitor) Seek() error {
	var last uint
	if err := cm.DB.Model(&models.Notification{}).Select("COALESCE(MAX(id), 0)").Scan(&last).Error; err != nil {
		return err
	}
	cm.mu.Lock()
	cm.floor, cm.lastID = last, last
	cm.relayed = make(map[uint]struct{})
	cm.mu.Unlock()
	return nil
}

// CheckChanges relays one batch of new notifications and returns how many
// it found.
func (cm *ChangeMonitor) CheckChanges(ctx context.Context) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	from := cm.floor
	if cm.lastID > cm.Window && cm.lastID-cm.Window > from {
		from = cm.lastID - cm.Window
	}

	var changes []models.Notification
	if err := cm.DB.WithContext(ctx).
		Where("id > ?", from).
		Order("id ASC").
		Limit(cm.BatchSize + len(cm.relayed)).
		Find(&changes).Error; err != nil {
		utils.ErrorLogger.Printf("Error fetching notifications: %v", err)
		return 0
	}

	count := 0
	for _, n := range changes {
		if count == cm.BatchSize {
			break
		}
		if _, done := cm.relayed[n.ID]; done {
			continue
		}
		delivered := 0
		if cm.Hub != nil {
			delivered = cm.Hub.Deliver(n)
		}
		if cm.Publisher != nil {
			if err := cm.Publisher.PublishNotification(ctx, n); err != nil {
				utils.ErrorLogger.Printf("Error publishing notification %d: %v", n.ID, err)
			}
		}
		utils.InfoLogger.Debugf("Relayed notification %d to %d screens", n.ID, delivered)
		cm.relayed[n.ID] = struct{}{}
		if n.ID > cm.lastID {
			cm.lastID = n.ID
		}
		count++
	}
	cm.forget()

	if count > 0 {
		utils.InfoLogger.Printf("Successfully relayed %d notifications", count)
	}
	return count
}

// forget drops relayed ids that fell out of the re-scan window.
func (cm *ChangeMonitor) forget() {
	if cm.lastID <= cm.Window {
		return
	}
	low := cm.lastID - cm.Window
	for id := range cm.relayed {
		if id <= low {
			delete(cm.relayed, id)
		}
	}
}

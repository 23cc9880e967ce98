package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gdg-garage/garage-rsvp-api/internal/config"
	"github.com/gdg-garage/garage-rsvp-api/internal/database"
	"github.com/gdg-garage/garage-rsvp-api/internal/messaging"
	"github.com/gdg-garage/garage-rsvp-api/internal/models"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return p.err
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(&config.Config{DatabasePath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	return db
}

func createUser(t *testing.T, db *gorm.DB, name string) models.User {
	t.Helper()
	user := models.User{Username: name}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", name, err)
	}
	return user
}

func createEvent(t *testing.T, db *gorm.DB, creatorID string, capacity int) models.Event {
	t.Helper()
	event := models.Event{
		CreatorID: creatorID,
		Title:     "Garage meetup",
		Location:  "Garage",
		Date:      time.Now().Add(48 * time.Hour),
		Capacity:  capacity,
	}
	if err := db.Create(&event).Error; err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
	return event
}

// assertConsistent checks the counter against the ledger.
func assertConsistent(t *testing.T, db *gorm.DB, eventID string, want int) {
	t.Helper()
	var event models.Event
	if err := db.First(&event, "id = ?", eventID).Error; err != nil {
		t.Fatalf("failed to load event: %v", err)
	}
	var ledger int64
	db.Model(&models.RSVP{}).Where("event_id = ?", eventID).Count(&ledger)

	if event.CurrentAttendees != int(ledger) {
		t.Errorf("counter %d does not match ledger %d", event.CurrentAttendees, ledger)
	}
	if event.CurrentAttendees != want {
		t.Errorf("expected %d attendees, got %d", want, event.CurrentAttendees)
	}
	if event.CurrentAttendees > event.Capacity {
		t.Errorf("attendance %d exceeds capacity %d", event.CurrentAttendees, event.Capacity)
	}
}

func TestJoinLeave_CapacityTwoScenario(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	creator := createUser(t, db, "creator")
	a := createUser(t, db, "a")
	b := createUser(t, db, "b")
	c := createUser(t, db, "c")
	event := createEvent(t, db, creator.ID, 2)

	ctrl := NewController(db, nil, 3)

	if _, err := ctrl.Join(ctx, a.ID, event.ID); err != nil {
		t.Fatalf("A join failed: %v", err)
	}
	got, err := ctrl.Join(ctx, b.ID, event.ID)
	if err != nil {
		t.Fatalf("B join failed: %v", err)
	}
	if got.CurrentAttendees != 2 {
		t.Errorf("expected returned event to show 2 attendees, got %d", got.CurrentAttendees)
	}

	if _, err := ctrl.Join(ctx, c.ID, event.ID); !errors.Is(err, models.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded for C, got %v", err)
	}
	assertConsistent(t, db, event.ID, 2)

	left, err := ctrl.Leave(ctx, b.ID, event.ID)
	if err != nil {
		t.Fatalf("B leave failed: %v", err)
	}
	if left.CurrentAttendees != 1 {
		t.Errorf("expected 1 attendee after B left, got %d", left.CurrentAttendees)
	}
	if _, err := ctrl.Join(ctx, c.ID, event.ID); err != nil {
		t.Fatalf("C join after B left failed: %v", err)
	}
	assertConsistent(t, db, event.ID, 2)

	var holders []string
	db.Model(&models.RSVP{}).Where("event_id = ?", event.ID).Order("user_id").Pluck("user_id", &holders)
	want := map[string]bool{a.ID: true, c.ID: true}
	if len(holders) != 2 || !want[holders[0]] || !want[holders[1]] {
		t.Errorf("expected ledger {A, C}, got %v", holders)
	}
}

func TestJoin_Errors(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	creator := createUser(t, db, "creator")
	user := createUser(t, db, "user")
	event := createEvent(t, db, creator.ID, 3)
	ctrl := NewController(db, nil, 3)

	t.Run("EventNotFound", func(t *testing.T) {
		if _, err := ctrl.Join(ctx, user.ID, "missing"); !errors.Is(err, models.ErrEventNotFound) {
			t.Errorf("expected ErrEventNotFound, got %v", err)
		}
	})

	t.Run("AlreadyJoined", func(t *testing.T) {
		if _, err := ctrl.Join(ctx, user.ID, event.ID); err != nil {
			t.Fatalf("first join failed: %v", err)
		}
		if _, err := ctrl.Join(ctx, user.ID, event.ID); !errors.Is(err, models.ErrAlreadyJoined) {
			t.Errorf("expected ErrAlreadyJoined, got %v", err)
		}
		assertConsistent(t, db, event.ID, 1)
	})

	t.Run("NotJoined", func(t *testing.T) {
		other := createUser(t, db, "other")
		if _, err := ctrl.Leave(ctx, other.ID, event.ID); !errors.Is(err, models.ErrNotJoined) {
			t.Errorf("expected ErrNotJoined, got %v", err)
		}
		assertConsistent(t, db, event.ID, 1)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		other := createUser(t, db, "late")
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := ctrl.Join(cancelled, other.ID, event.ID); err == nil {
			t.Fatal("expected error for cancelled context")
		}
		assertConsistent(t, db, event.ID, 1)
	})
}

func TestJoinThenLeave_RestoresState(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	creator := createUser(t, db, "creator")
	user := createUser(t, db, "user")
	event := createEvent(t, db, creator.ID, 5)
	ctrl := NewController(db, nil, 3)

	for i := 0; i < 3; i++ {
		if _, err := ctrl.Join(ctx, user.ID, event.ID); err != nil {
			t.Fatalf("round %d join failed: %v", i, err)
		}
		got, err := ctrl.Leave(ctx, user.ID, event.ID)
		if err != nil {
			t.Fatalf("round %d leave failed: %v", i, err)
		}
		if got.CurrentAttendees != 0 {
			t.Errorf("round %d: expected 0 attendees after leave, got %d", i, got.CurrentAttendees)
		}
		assertConsistent(t, db, event.ID, 0)
	}

	var history []models.RSVPHistory
	db.Where("user_id = ? AND event_id = ?", user.ID, event.ID).Order("id").Find(&history)
	if len(history) != 6 {
		t.Fatalf("expected 6 history rows, got %d", len(history))
	}
	for i, h := range history {
		want := models.ActionJoined
		if i%2 == 1 {
			want = models.ActionLeft
		}
		if h.Action != want {
			t.Errorf("history[%d] = %s, want %s", i, h.Action, want)
		}
	}
}

func TestLeave_DeletedEvent(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	creator := createUser(t, db, "creator")
	user := createUser(t, db, "user")
	event := createEvent(t, db, creator.ID, 3)
	ctrl := NewController(db, nil, 3)

	if _, err := ctrl.Join(ctx, user.ID, event.ID); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	// Same rows the event service leaves behind on delete.
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.RSVPHistory{UserID: user.ID, EventID: event.ID, Action: models.ActionRemoved}).Error; err != nil {
			return err
		}
		if err := tx.Where("event_id = ?", event.ID).Delete(&models.RSVP{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Event{}, "id = ?", event.ID).Error
	})
	if err != nil {
		t.Fatalf("failed to delete event: %v", err)
	}

	t.Run("FormerAttendee", func(t *testing.T) {
		got, err := ctrl.Leave(ctx, user.ID, event.ID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got != nil {
			t.Errorf("expected nil event, got %+v", got)
		}

		var history int64
		db.Model(&models.RSVPHistory{}).Where("user_id = ? AND action = ?", user.ID, models.ActionLeft).Count(&history)
		if history != 0 {
			t.Errorf("expected no left rows, got %d", history)
		}
	})

	t.Run("NeverAttended", func(t *testing.T) {
		other := createUser(t, db, "other")
		if _, err := ctrl.Leave(ctx, other.ID, event.ID); !errors.Is(err, models.ErrNotJoined) {
			t.Errorf("expected ErrNotJoined, got %v", err)
		}
	})
}

func TestLeave_UnknownEvent(t *testing.T) {
	db := setupDB(t)
	user := createUser(t, db, "user")
	ctrl := NewController(db, nil, 3)

	event, err := ctrl.Leave(context.Background(), user.ID, "never-existed")
	if !errors.Is(err, models.ErrNotJoined) {
		t.Fatalf("expected ErrNotJoined, got %v", err)
	}
	if event != nil {
		t.Errorf("expected nil event, got %+v", event)
	}
}

// failHistoryWrites makes every rsvp_history insert on db fail with errBoom.
func failHistoryWrites(t *testing.T, db *gorm.DB) {
	t.Helper()
	err := db.Callback().Create().Before("gorm:create").Register("test:fail_history", func(tx *gorm.DB) {
		if tx.Statement.Table == "rsvp_history" {
			tx.AddError(errBoom)
		}
	})
	if err != nil {
		t.Fatalf("failed to register callback: %v", err)
	}
}

var errBoom = errors.New("boom")

func TestJoin_RollsBackOnFailure(t *testing.T) {
	db := setupDB(t)
	creator := createUser(t, db, "creator")
	user := createUser(t, db, "user")
	event := createEvent(t, db, creator.ID, 3)
	ctrl := NewController(db, nil, 3)

	failHistoryWrites(t, db)

	if _, err := ctrl.Join(context.Background(), user.ID, event.ID); !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}
	assertConsistent(t, db, event.ID, 0)
}

func TestLeave_RollsBackOnFailure(t *testing.T) {
	db := setupDB(t)
	creator := createUser(t, db, "creator")
	user := createUser(t, db, "user")
	event := createEvent(t, db, creator.ID, 3)
	ctrl := NewController(db, nil, 3)

	if _, err := ctrl.Join(context.Background(), user.ID, event.ID); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	failHistoryWrites(t, db)

	if _, err := ctrl.Leave(context.Background(), user.ID, event.ID); !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}
	assertConsistent(t, db, event.ID, 1)
}

func TestJoin_ConcurrentCapacityRace(t *testing.T) {
	db := setupDB(t)
	creator := createUser(t, db, "creator")
	const capacity, contenders = 5, 20
	event := createEvent(t, db, creator.ID, capacity)
	ctrl := NewController(db, nil, 3)

	users := make([]models.User, contenders)
	for i := range users {
		users[i] = createUser(t, db, fmt.Sprintf("user%d", i))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		rejected int
		other    []error
	)
	for _, u := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			_, err := ctrl.Join(context.Background(), userID, event.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.Is(err, models.ErrCapacityExceeded):
				rejected++
			default:
				other = append(other, err)
			}
		}(u.ID)
	}
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if admitted != capacity {
		t.Errorf("expected %d admitted, got %d", capacity, admitted)
	}
	if rejected != contenders-capacity {
		t.Errorf("expected %d rejected, got %d", contenders-capacity, rejected)
	}
	assertConsistent(t, db, event.ID, capacity)
}

func TestJoin_LastSeatRace(t *testing.T) {
	db := setupDB(t)
	creator := createUser(t, db, "creator")
	const capacity, contenders = 4, 8
	event := createEvent(t, db, creator.ID, capacity)
	ctrl := NewController(db, nil, 3)

	for i := 0; i < capacity-1; i++ {
		u := createUser(t, db, fmt.Sprintf("early%d", i))
		if _, err := ctrl.Join(context.Background(), u.ID, event.ID); err != nil {
			t.Fatalf("seeding join failed: %v", err)
		}
	}

	users := make([]models.User, contenders)
	for i := range users {
		users[i] = createUser(t, db, fmt.Sprintf("late%d", i))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		rejected int
	)
	for _, u := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			_, err := ctrl.Join(context.Background(), userID, event.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				admitted++
			} else if errors.Is(err, models.ErrCapacityExceeded) {
				rejected++
			} else {
				t.Errorf("unexpected error: %v", err)
			}
		}(u.ID)
	}
	wg.Wait()

	if admitted != 1 || rejected != contenders-1 {
		t.Errorf("expected 1 admitted and %d rejected, got %d and %d", contenders-1, admitted, rejected)
	}
	assertConsistent(t, db, event.ID, capacity)
}

func TestJoin_ConcurrentDuplicate(t *testing.T) {
	db := setupDB(t)
	creator := createUser(t, db, "creator")
	user := createUser(t, db, "user")
	event := createEvent(t, db, creator.ID, 5)
	ctrl := NewController(db, nil, 3)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		joined int
		dupes  int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ctrl.Join(context.Background(), user.ID, event.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				joined++
			} else if errors.Is(err, models.ErrAlreadyJoined) {
				dupes++
			} else {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if joined != 1 || dupes != 9 {
		t.Errorf("expected 1 join and 9 duplicates, got %d and %d", joined, dupes)
	}
	assertConsistent(t, db, event.ID, 1)
}

func TestJoinLeave_PublishesAfterCommit(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	creator := createUser(t, db, "creator")
	user := createUser(t, db, "user")
	event := createEvent(t, db, creator.ID, 1)

	pub := &recordingPublisher{err: errors.New("broker down")}
	ctrl := NewController(db, pub, 3)

	if _, err := ctrl.Join(ctx, user.ID, event.ID); err != nil {
		t.Fatalf("join must not fail when publishing fails: %v", err)
	}
	if _, err := ctrl.Join(ctx, creator.ID, event.ID); !errors.Is(err, models.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if _, err := ctrl.Leave(ctx, user.ID, event.ID); err != nil {
		t.Fatalf("leave failed: %v", err)
	}

	got := pub.published()
	want := []string{messaging.TopicRSVPJoined, messaging.TopicRSVPLeft}
	if len(got) != len(want) {
		t.Fatalf("expected topics %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("topic[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRun_RetriesTransientErrors(t *testing.T) {
	db := setupDB(t)
	ctrl := NewController(db, nil, 2)
	busy := sqlite3.Error{Code: sqlite3.ErrBusy}

	t.Run("Exhausted", func(t *testing.T) {
		attempts := 0
		err := ctrl.run(context.Background(), opJoin, func(tx *gorm.DB) error {
			attempts++
			return busy
		})
		if !errors.Is(err, models.ErrStorageConflict) {
			t.Errorf("expected ErrStorageConflict, got %v", err)
		}
		if attempts != 3 {
			t.Errorf("expected 3 attempts, got %d", attempts)
		}
	})

	t.Run("RecoversAfterRetry", func(t *testing.T) {
		attempts := 0
		err := ctrl.run(context.Background(), opJoin, func(tx *gorm.DB) error {
			attempts++
			if attempts == 1 {
				return busy
			}
			return nil
		})
		if err != nil {
			t.Errorf("expected success after retry, got %v", err)
		}
		if attempts != 2 {
			t.Errorf("expected 2 attempts, got %d", attempts)
		}
	})

	t.Run("DomainErrorsAreNotRetried", func(t *testing.T) {
		attempts := 0
		err := ctrl.run(context.Background(), opJoin, func(tx *gorm.DB) error {
			attempts++
			return models.ErrCapacityExceeded
		})
		if !errors.Is(err, models.ErrCapacityExceeded) {
			t.Errorf("expected ErrCapacityExceeded, got %v", err)
		}
		if attempts != 1 {
			t.Errorf("expected a single attempt, got %d", attempts)
		}
	})
}

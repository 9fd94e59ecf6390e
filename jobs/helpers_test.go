package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"trashbin/models"
	"trashbin/softdelete"
	"trashbin/store/storetest"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	clock    *testClock
	queue    *Queue
	tasks    *storetest.MemoryCollection
	failures *storetest.MemoryCollection
	users    *softdelete.Model[models.User]
	metrics  *Metrics
}

const testRetention = 30 * 24 * time.Hour

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newTestClock()
	tasks := storetest.NewMemoryCollection("purge_tasks")
	failures := storetest.NewMemoryCollection("purge_task_failures")
	return &fixture{
		clock:    clock,
		tasks:    tasks,
		failures: failures,
		queue:    NewQueue(tasks, failures, WithQueueClock(clock.Now)),
		users:    softdelete.New[models.User](storetest.NewMemoryCollection("users"), softdelete.WithClock(clock.Now)),
		metrics:  NewMetrics(prometheus.NewRegistry()),
	}
}

func (f *fixture) opts(extra ...Option) []Option {
	return append([]Option{WithClock(f.clock.Now), WithMetrics(f.metrics)}, extra...)
}

func (f *fixture) userTarget() *Target[models.User] {
	return &Target[models.User]{Type: "user", Model: f.users}
}

// deletedUsers inserts n users and soft-deletes them at the current clock.
func (f *fixture) deletedUsers(t *testing.T, n int) []primitive.ObjectID {
	t.Helper()
	ctx := context.Background()
	ids := make([]primitive.ObjectID, 0, n)
	for i := 0; i < n; i++ {
		id, err := f.users.Insert(ctx, &models.User{Email: "user@example.com", Role: models.RoleUser})
		require.NoError(t, err)
		_, err = f.users.SoftDelete(ctx, id)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

package app

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"trashbin/config"
	"trashbin/jobs"
	"trashbin/models"
	"trashbin/services"
	"trashbin/store"
	"trashbin/store/storetest"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type blobs struct {
	mu      sync.Mutex
	objects map[string]bool
}

func (b *blobs) Upload(_ context.Context, r io.Reader, name string) (*services.BlobInfo, error) {
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[name] = true
	return &services.BlobInfo{ObjectName: name, Size: n}, nil
}

func (b *blobs) Delete(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, name)
	return nil
}

func (b *blobs) SignedURL(_ context.Context, name string, _ time.Duration) (string, error) {
	return "https://blobs.example.com/" + name, nil
}

type harness struct {
	app   *App
	clock *clock
	blobs *blobs
	colls map[string]*storetest.MemoryCollection
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("JWT_SECRET", "app-secret")
	t.Setenv("PURGE_SCAN_BATCH_SIZE", "2")
	cfg, err := config.Load()
	require.NoError(t, err)

	h := &harness{
		clock: &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		blobs: &blobs{objects: map[string]bool{}},
		colls: map[string]*storetest.MemoryCollection{},
	}
	h.app = New(cfg, Deps{
		Collection: func(name string) store.Collection {
			c := storetest.NewMemoryCollection(name)
			h.colls[name] = c
			return c
		},
		Blobs: h.blobs,
		Now:   h.clock.Now,
	})
	require.NoError(t, h.app.EnsureIndexes(context.Background()))
	return h
}

// drain runs due tasks until the queue has nothing left to claim.
func (h *harness) drain(t *testing.T) int {
	t.Helper()
	n := 0
	for {
		ran, err := h.app.Worker.RunOnce(context.Background())
		require.NoError(t, err)
		if !ran {
			return n
		}
		n++
	}
}

func TestApp_DeletedFileIsPurgedAfterRetention(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	res, err := h.app.Users.Register(ctx, services.RegisterInput{Email: "ada@example.com", Password: "password123"})
	require.NoError(t, err)
	owner := res.User.ID

	file, err := h.app.Files.Upload(ctx, services.UploadInput{
		OwnerID: owner, Filename: "notes.txt", Size: 5, Content: bytes.NewBufferString("hello"),
	})
	require.NoError(t, err)
	_, err = h.app.Files.Delete(ctx, owner, file.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, h.drain(t), "purge is not due yet")

	h.clock.Advance(30*24*time.Hour + time.Minute)
	assert.Equal(t, 1, h.drain(t))

	assert.Equal(t, 0, h.colls[CollectionFiles].Len())
	assert.False(t, h.blobs.objects[file.B2FileName])
	assert.Equal(t, 1, h.colls[CollectionUsers].Len())
}

func TestApp_FilePurgeWaitsForBlobStore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	res, err := h.app.Users.Register(ctx, services.RegisterInput{Email: "ada@example.com", Password: "password123"})
	require.NoError(t, err)
	owner := res.User.ID
	file, err := h.app.Files.Upload(ctx, services.UploadInput{
		OwnerID: owner, Filename: "notes.txt", Size: 5, Content: bytes.NewBufferString("hello"),
	})
	require.NoError(t, err)
	_, err = h.app.Files.Delete(ctx, owner, file.ID)
	require.NoError(t, err)

	// Same database, started without B2 credentials.
	noBlobs := New(h.app.cfg, Deps{
		Collection: func(name string) store.Collection { return h.colls[name] },
		Now:        h.clock.Now,
	})
	h.clock.Advance(30*24*time.Hour + time.Minute)

	ran, err := noBlobs.Worker.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, ran)
	assert.Equal(t, 1, h.colls[CollectionFiles].Len(), "the record is kept while its blob cannot be deleted")
	assert.True(t, h.blobs.objects[file.B2FileName])

	task, err := h.app.Queue.Get(ctx, jobs.PurgeTaskID(EntityFile, file.ID))
	require.NoError(t, err)
	require.NotNil(t, task, "the purge is retried")
	assert.Equal(t, models.TaskStatusPending, task.Status)
	assert.Contains(t, task.LastError, services.ErrBlobStoreDisabled.Error())

	h.clock.Advance(time.Hour)
	assert.Equal(t, 1, h.drain(t))
	assert.Equal(t, 0, h.colls[CollectionFiles].Len())
	assert.False(t, h.blobs.objects[file.B2FileName])
}

func TestOpenBlobStore_DisabledWithoutCredentials(t *testing.T) {
	t.Setenv("JWT_SECRET", "app-secret")
	t.Setenv("B2_APPLICATION_KEY_ID", "")
	t.Setenv("B2_APPLICATION_KEY", "")
	t.Setenv("B2_BUCKET_NAME", "")
	cfg, err := config.Load()
	require.NoError(t, err)
	require.False(t, cfg.BlobStorageEnabled())

	blobs, err := OpenBlobStore(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, blobs, "a disabled store is a nil interface, not a typed nil")
}

func TestApp_RestoredAccountSurvivesRetention(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	res, err := h.app.Users.Register(ctx, services.RegisterInput{Email: "ada@example.com", Password: "password123"})
	require.NoError(t, err)
	_, err = h.app.Users.DeleteAccount(ctx, res.User.ID)
	require.NoError(t, err)

	h.clock.Advance(10 * 24 * time.Hour)
	login, err := h.app.Users.Login(ctx, "ada@example.com", "password123")
	require.NoError(t, err)
	assert.True(t, login.WasRestored)

	h.clock.Advance(60 * 24 * time.Hour)
	h.drain(t)
	assert.Equal(t, 1, h.colls[CollectionUsers].Len())
}

func TestApp_ScanCatchesEntitiesWithoutTasks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	var ids []string
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		res, err := h.app.Users.Register(ctx, services.RegisterInput{Email: email, Password: "password123"})
		require.NoError(t, err)
		_, err = h.app.Users.DeleteAccount(ctx, res.User.ID)
		require.NoError(t, err)
		ids = append(ids, jobs.PurgeTaskID(EntityUser, res.User.ID))
	}
	// Simulate lost scheduling: drop every queued purge task.
	for _, id := range ids {
		_, err := h.colls[CollectionPurgeTasks].DeleteOne(ctx, bson.M{"_id": id})
		require.NoError(t, err)
	}

	h.clock.Advance(31 * 24 * time.Hour)
	created, err := h.app.Scheduler.TriggerScan(ctx)
	require.NoError(t, err)
	require.True(t, created)

	h.drain(t)
	assert.Equal(t, 0, h.colls[CollectionUsers].Len())
	assert.Equal(t, 0, h.colls[CollectionPurgeTasks].Len())
}

func TestApp_StartStop(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, h.app.Start(ctx))
	assert.NotNil(t, h.app.Scheduler.NextRun())
	h.app.Stop()
}

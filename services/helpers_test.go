package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"trashbin/jobs"
	"trashbin/models"
	"trashbin/softdelete"
	"trashbin/store/storetest"
)

const (
	testRetention = 30 * 24 * time.Hour
	testSecret    = "test-secret"
)

type memoryBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	failDel error
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{objects: map[string][]byte{}}
}

func (b *memoryBlobs) Upload(_ context.Context, r io.Reader, objectName string) (*BlobInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[objectName] = data
	return &BlobInfo{ObjectName: objectName, Size: int64(len(data)), SHA1: "sha1"}, nil
}

func (b *memoryBlobs) Delete(_ context.Context, objectName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failDel != nil {
		return b.failDel
	}
	delete(b.objects, objectName)
	return nil
}

func (b *memoryBlobs) SignedURL(_ context.Context, objectName string, _ time.Duration) (string, error) {
	return "https://blobs.example.com/" + objectName + "?token=x", nil
}

func (b *memoryBlobs) Has(objectName string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[objectName]
	return ok
}

type env struct {
	queue *jobs.Queue
	users *Lifecycle[models.User]
	files *Lifecycle[models.File]
	blobs *memoryBlobs

	userSvc  *UserService
	fileSvc  *FileService
	trashSvc *TrashService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	queue := jobs.NewQueue(storetest.NewMemoryCollection("purge_tasks"), storetest.NewMemoryCollection("purge_task_failures"))
	users := NewLifecycle(softdelete.New[models.User](storetest.NewMemoryCollection("users")), queue, "user", testRetention, nil)
	files := NewLifecycle(softdelete.New[models.File](storetest.NewMemoryCollection("files")), queue, "file", testRetention, nil)
	blobs := newMemoryBlobs()
	return &env{
		queue:    queue,
		users:    users,
		files:    files,
		blobs:    blobs,
		userSvc:  NewUserService(users, testSecret, time.Hour, nil),
		fileSvc:  NewFileService(files, blobs, 1024, nil),
		trashSvc: NewTrashService(files, testRetention, nil),
	}
}

func (e *env) upload(t *testing.T, owner *models.User, name, content string) *models.File {
	t.Helper()
	file, err := e.fileSvc.Upload(context.Background(), UploadInput{
		OwnerID:  owner.ID,
		Filename: name,
		MimeType: "text/plain",
		Size:     int64(len(content)),
		Content:  bytes.NewBufferString(content),
	})
	if err != nil {
		t.Fatalf("upload %s: %v", name, err)
	}
	return file
}

func (e *env) register(t *testing.T, email string) *models.User {
	t.Helper()
	res, err := e.userSvc.Register(context.Background(), RegisterInput{Email: email, Password: "password123", Name: "Ada"})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return res.User
}

// failingQueue rejects every call.
type failingQueue struct{}

var errQueueDown = errors.New("queue unavailable")

func (failingQueue) Enqueue(context.Context, jobs.TaskSpec) (bool, error) { return false, errQueueDown }
func (failingQueue) Cancel(context.Context, string) (bool, error)        { return false, errQueueDown }

// busyQueue behaves like a queue whose task id is held by a claimed task.
type busyQueue struct{}

func (busyQueue) Enqueue(context.Context, jobs.TaskSpec) (bool, error) { return false, nil }
func (busyQueue) Cancel(context.Context, string) (bool, error)        { return false, nil }

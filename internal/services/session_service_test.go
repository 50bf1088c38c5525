package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-tryon-backend/internal/domain"
	"github.com/tbourn/go-tryon-backend/internal/events"
	"github.com/tbourn/go-tryon-backend/internal/repo"
)

// ----- Fake repo -----

type fakeSessionRepo struct {
	// capture args
	createLifetime time.Duration
	createErr      error

	getID   string
	getNow  time.Time
	getSess *domain.Session
	getErr  error

	addSessionID string
	addPhoto     domain.SessionPhoto
	addErr       error

	listSessionID string
	listPhotos    []domain.SessionPhoto
	listErr       error

	extendID    string
	extendDelta time.Duration
	extendNext  time.Time
	extendErr   error

	expired    []domain.Session
	expiredErr error

	deletedIDs  []string
	deleteErrBy map[string]error
}

func (r *fakeSessionRepo) CreateSession(ctx context.Context, db *gorm.DB, lifetime time.Duration) (*domain.Session, error) {
	r.createLifetime = lifetime
	if r.createErr != nil {
		return nil, r.createErr
	}
	now := time.Now().UTC()
	return &domain.Session{ID: "s1", Status: domain.SessionActive, CreatedAt: now, ExpiresAt: now.Add(lifetime)}, nil
}

func (r *fakeSessionRepo) GetSession(ctx context.Context, db *gorm.DB, id string, now time.Time) (*domain.Session, error) {
	r.getID, r.getNow = id, now
	return r.getSess, r.getErr
}

func (r *fakeSessionRepo) AddPhoto(ctx context.Context, db *gorm.DB, sessionID string, photo domain.SessionPhoto) (*domain.SessionPhoto, error) {
	r.addSessionID, r.addPhoto = sessionID, photo
	if r.addErr != nil {
		return nil, r.addErr
	}
	photo.ID = "p1"
	photo.SessionID = sessionID
	return &photo, nil
}

func (r *fakeSessionRepo) ListPhotos(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.SessionPhoto, error) {
	r.listSessionID = sessionID
	return r.listPhotos, r.listErr
}

func (r *fakeSessionRepo) ExtendSession(ctx context.Context, db *gorm.DB, id string, delta time.Duration, now time.Time) (time.Time, error) {
	r.extendID, r.extendDelta = id, delta
	return r.extendNext, r.extendErr
}

func (r *fakeSessionRepo) ListExpired(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.Session, error) {
	return r.expired, r.expiredErr
}

func (r *fakeSessionRepo) DeleteSession(ctx context.Context, db *gorm.DB, id string) error {
	r.deletedIDs = append(r.deletedIDs, id)
	if r.deleteErrBy != nil {
		return r.deleteErrBy[id]
	}
	return nil
}

// ----- Fake blob store -----

type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	putURL string
	putErr error

	deleted     []string
	deleteErrBy map[string]error

	publicURLs []string
	publicErr  error
}

func (b *fakeBlobStore) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return "", b.putErr
	}
	if b.objects == nil {
		b.objects = make(map[string][]byte)
	}
	url := "mem://" + path
	if b.putURL != "" {
		url = b.putURL
	}
	b.objects[url] = data
	return url, nil
}

func (b *fakeBlobStore) Get(ctx context.Context, url string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[url]
	if !ok {
		return nil, errors.New("missing object")
	}
	return data, nil
}

func (b *fakeBlobStore) Delete(ctx context.Context, url string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, url)
	if b.deleteErrBy != nil {
		if err := b.deleteErrBy[url]; err != nil {
			return false, err
		}
	}
	return true, nil
}

func (b *fakeBlobStore) MakePublic(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publicErr != nil {
		return b.publicErr
	}
	b.publicURLs = append(b.publicURLs, url)
	return nil
}

func (b *fakeBlobStore) DeleteOlderThan(ctx context.Context, prefix string, cutoff time.Time) (int, error) {
	return 0, nil
}

func newTestSessionService(r *fakeSessionRepo, b *fakeBlobStore) *SessionService {
	return NewSessionService(nil, r, b, events.NewEmitter(zerolog.Nop()), 2*time.Hour)
}

// ----- Tests -----

func TestCreate_ReturnsSessionAndExpirySeconds(t *testing.T) {
	r := &fakeSessionRepo{}
	s := newTestSessionService(r, &fakeBlobStore{})

	sess, expiresIn, err := s.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.ID != "s1" || sess.Status != domain.SessionActive {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if r.createLifetime != 2*time.Hour {
		t.Fatalf("repo got lifetime %v; want 2h", r.createLifetime)
	}
	if expiresIn != 7200 {
		t.Fatalf("expiresIn = %d; want 7200", expiresIn)
	}
}

func TestCreate_RepoErrorWrapped(t *testing.T) {
	sentinel := errors.New("disk full")
	r := &fakeSessionRepo{createErr: sentinel}
	s := newTestSessionService(r, &fakeBlobStore{})

	_, _, err := s.Create(context.Background())
	var se *StorageError
	if !errors.As(err, &se) || !errors.Is(err, sentinel) {
		t.Fatalf("expected StorageError wrapping sentinel, got %v", err)
	}
}

func TestGet_BlankIDIsNotFound(t *testing.T) {
	s := newTestSessionService(&fakeSessionRepo{}, &fakeBlobStore{})

	if _, err := s.Get(context.Background(), "  "); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestGet_ExpiredOrAbsentCollapseToNotFound(t *testing.T) {
	// The repo reports absent and expired identically; the service must not
	// expose any other signal.
	r := &fakeSessionRepo{getErr: repo.ErrNotFound}
	s := newTestSessionService(r, &fakeBlobStore{})

	_, err := s.Get(context.Background(), "gone")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if r.getID != "gone" {
		t.Fatalf("repo got id %q", r.getID)
	}
}

func TestGet_StorageErrorPropagates(t *testing.T) {
	sentinel := errors.New("db locked")
	r := &fakeSessionRepo{getErr: sentinel}
	s := newTestSessionService(r, &fakeBlobStore{})

	_, err := s.Get(context.Background(), "s1")
	if errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("infrastructure error collapsed to not-found")
	}
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
}

func TestIsValid(t *testing.T) {
	live := &fakeSessionRepo{getSess: &domain.Session{ID: "s1"}}
	if !newTestSessionService(live, &fakeBlobStore{}).IsValid(context.Background(), "s1") {
		t.Fatalf("live session reported invalid")
	}
	gone := &fakeSessionRepo{getErr: repo.ErrNotFound}
	if newTestSessionService(gone, &fakeBlobStore{}).IsValid(context.Background(), "s1") {
		t.Fatalf("absent session reported valid")
	}
}

func TestAddPhoto_ValidatesInput(t *testing.T) {
	s := newTestSessionService(&fakeSessionRepo{getSess: &domain.Session{ID: "s1"}}, &fakeBlobStore{})
	ctx := context.Background()

	cases := []domain.SessionPhoto{
		{URL: "", Type: domain.PhotoTypeUser},
		{URL: "mem://u", Type: "selfie"},
		{URL: "mem://u", Type: domain.PhotoTypeUser, View: "diagonal"},
	}
	for i, photo := range cases {
		if _, err := s.AddPhoto(ctx, "s1", photo); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("case %d: expected ErrInvalidArgument, got %v", i, err)
		}
	}
}

func TestAddPhoto_ExpiredSessionIsInvalidSession(t *testing.T) {
	r := &fakeSessionRepo{getErr: repo.ErrNotFound}
	s := newTestSessionService(r, &fakeBlobStore{})

	_, err := s.AddPhoto(context.Background(), "s1", domain.SessionPhoto{
		URL: "mem://u", Type: domain.PhotoTypeUser,
	})
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
	if r.addSessionID != "" {
		t.Fatalf("photo appended to dead session")
	}
}

func TestAddPhoto_AppendsToLiveSession(t *testing.T) {
	r := &fakeSessionRepo{getSess: &domain.Session{ID: "s1"}}
	s := newTestSessionService(r, &fakeBlobStore{})

	photo := domain.SessionPhoto{URL: "mem://uploads/s1/a.png", Type: domain.PhotoTypeGarment, View: domain.ViewFront}
	added, err := s.AddPhoto(context.Background(), "s1", photo)
	if err != nil {
		t.Fatalf("AddPhoto: %v", err)
	}
	if r.addSessionID != "s1" || r.addPhoto.URL != photo.URL {
		t.Fatalf("repo got (%q, %+v)", r.addSessionID, r.addPhoto)
	}
	if added.ID == "" || added.SessionID != "s1" {
		t.Fatalf("unexpected added photo: %+v", added)
	}
}

func TestExtend_RejectsNonPositiveDelta(t *testing.T) {
	r := &fakeSessionRepo{}
	s := newTestSessionService(r, &fakeBlobStore{})

	for _, delta := range []time.Duration{0, -time.Minute} {
		if _, err := s.Extend(context.Background(), "s1", delta); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("delta %v: expected ErrInvalidArgument, got %v", delta, err)
		}
	}
	if r.extendID != "" {
		t.Fatalf("repo called despite invalid delta")
	}
}

func TestExtend_ForwardsAndMapsNotFound(t *testing.T) {
	next := time.Now().Add(3 * time.Hour).UTC()
	r := &fakeSessionRepo{extendNext: next}
	s := newTestSessionService(r, &fakeBlobStore{})

	got, err := s.Extend(context.Background(), "s1", time.Hour)
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if !got.Equal(next) || r.extendDelta != time.Hour {
		t.Fatalf("got %v (delta %v); want %v (1h)", got, r.extendDelta, next)
	}

	r2 := &fakeSessionRepo{extendErr: repo.ErrNotFound}
	s2 := newTestSessionService(r2, &fakeBlobStore{})
	if _, err := s2.Extend(context.Background(), "gone", time.Hour); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestPhotos_AbsentSessionYieldsEmptyList(t *testing.T) {
	r := &fakeSessionRepo{getErr: repo.ErrNotFound}
	s := newTestSessionService(r, &fakeBlobStore{})

	photos, err := s.Photos(context.Background(), "gone")
	if err != nil {
		t.Fatalf("Photos: %v", err)
	}
	if photos == nil || len(photos) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", photos)
	}
}

func TestPhotos_ReturnsUploadOrder(t *testing.T) {
	r := &fakeSessionRepo{
		getSess: &domain.Session{ID: "s1"},
		listPhotos: []domain.SessionPhoto{
			{ID: "p1", URL: "mem://a"},
			{ID: "p2", URL: "mem://b"},
		},
	}
	s := newTestSessionService(r, &fakeBlobStore{})

	photos, err := s.Photos(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Photos: %v", err)
	}
	if len(photos) != 2 || photos[0].ID != "p1" || photos[1].ID != "p2" {
		t.Fatalf("unexpected photos: %+v", photos)
	}
}

func TestDelete_CascadesBlobsAndReportsTrue(t *testing.T) {
	r := &fakeSessionRepo{
		listPhotos: []domain.SessionPhoto{
			{SessionID: "s1", URL: "mem://uploads/s1/a.png"},
			{SessionID: "s1", URL: "mem://uploads/s1/b.png"},
		},
	}
	b := &fakeBlobStore{}
	s := newTestSessionService(r, b)

	ok, err := s.Delete(context.Background(), "s1")
	if err != nil || !ok {
		t.Fatalf("Delete = (%v, %v); want (true, nil)", ok, err)
	}
	if len(b.deleted) != 2 {
		t.Fatalf("deleted %d blobs; want 2", len(b.deleted))
	}
	if len(r.deletedIDs) != 1 || r.deletedIDs[0] != "s1" {
		t.Fatalf("record deletions: %v", r.deletedIDs)
	}
}

func TestDelete_BlobFailureDoesNotAbortRecordDeletion(t *testing.T) {
	r := &fakeSessionRepo{
		listPhotos: []domain.SessionPhoto{
			{SessionID: "s1", URL: "mem://bad"},
			{SessionID: "s1", URL: "mem://good"},
		},
	}
	b := &fakeBlobStore{deleteErrBy: map[string]error{"mem://bad": errors.New("s3 down")}}
	s := newTestSessionService(r, b)

	ok, err := s.Delete(context.Background(), "s1")
	if err != nil || !ok {
		t.Fatalf("Delete = (%v, %v); want (true, nil)", ok, err)
	}
	if len(b.deleted) != 2 {
		t.Fatalf("remaining blob not attempted after failure: %v", b.deleted)
	}
}

func TestDelete_MissingSessionReportsFalseNil(t *testing.T) {
	r := &fakeSessionRepo{deleteErrBy: map[string]error{"gone": repo.ErrNotFound}}
	s := newTestSessionService(r, &fakeBlobStore{})

	ok, err := s.Delete(context.Background(), "gone")
	if ok || err != nil {
		t.Fatalf("Delete = (%v, %v); want (false, nil)", ok, err)
	}
}

func TestCleanupExpired_DeletesAllAndCountsFailures(t *testing.T) {
	r := &fakeSessionRepo{
		expired: []domain.Session{
			{ID: "e1", Photos: []domain.SessionPhoto{{SessionID: "e1", URL: "mem://e1/a"}}},
			{ID: "e2"},
			{ID: "e3", Photos: []domain.SessionPhoto{{SessionID: "e3", URL: "mem://e3/a"}}},
		},
		deleteErrBy: map[string]error{"e2": errors.New("constraint")},
	}
	b := &fakeBlobStore{}
	s := newTestSessionService(r, b)

	deleted, err := s.CleanupExpired(context.Background())
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	// e2's record deletion failed; the sweep continues with e3.
	if deleted != 2 {
		t.Fatalf("deleted = %d; want 2", deleted)
	}
	if len(r.deletedIDs) != 3 {
		t.Fatalf("attempted deletions: %v", r.deletedIDs)
	}
	if len(b.deleted) != 2 {
		t.Fatalf("blob deletions = %v; want both photo blobs", b.deleted)
	}
}

func TestCleanupExpired_ListErrorAbortsSweep(t *testing.T) {
	sentinel := errors.New("db gone")
	r := &fakeSessionRepo{expiredErr: sentinel}
	s := newTestSessionService(r, &fakeBlobStore{})

	deleted, err := s.CleanupExpired(context.Background())
	if deleted != 0 || !errors.Is(err, sentinel) {
		t.Fatalf("CleanupExpired = (%d, %v)", deleted, err)
	}
}

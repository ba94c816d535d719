package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkadesain/design-desk-api/internal/dto"
	"github.com/arkadesain/design-desk-api/internal/models"
	appErrors "github.com/arkadesain/design-desk-api/pkg/errors"
)

// stubRequestRepo keeps requests in memory with the same compare-and-set
// semantics as the SQL layer so claim races behave identically.
type stubRequestRepo struct {
	mu       sync.Mutex
	requests map[string]*models.DesignRequest
}

func newStubRequestRepo() *stubRequestRepo {
	return &stubRequestRepo{requests: map[string]*models.DesignRequest{}}
}

func (r *stubRequestRepo) Create(_ context.Context, req *models.DesignRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.ID == "" {
		req.ID = fmt.Sprintf("req-%d", len(r.requests)+1)
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now
	clone := *req
	r.requests[req.ID] = &clone
	return nil
}

func (r *stubRequestRepo) GetByID(_ context.Context, id string) (*models.DesignRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *req
	return &clone, nil
}

func (r *stubRequestRepo) List(_ context.Context, filter models.RequestFilter) ([]models.DesignRequest, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DesignRequest
	for _, req := range r.requests {
		if filter.Status != nil && req.Status != *filter.Status {
			continue
		}
		if filter.RequesterID != "" && req.RequesterID != filter.RequesterID {
			continue
		}
		out = append(out, *req)
	}
	return out, len(out), nil
}

func (r *stubRequestRepo) Claim(_ context.Context, id, handlerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok || req.HandlerID != nil {
		return false, nil
	}
	req.HandlerID = &handlerID
	req.Status = models.StatusProgress
	return true, nil
}

func (r *stubRequestRepo) UpdateStatus(_ context.Context, id string, status models.RequestStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req, ok := r.requests[id]; ok {
		req.Status = status
	}
	return nil
}

func (r *stubRequestRepo) AppendRevision(_ context.Context, id, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req, ok := r.requests[id]; ok {
		req.Description += note
		req.Status = models.StatusRevision
	}
	return nil
}

func (r *stubRequestRepo) Complete(_ context.Context, id string, rating int, review string, completedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok || req.Status != models.StatusReview {
		return false, nil
	}
	req.Status = models.StatusDone
	req.Rating = &rating
	req.Review = &review
	req.CompletedAt = &completedAt
	return true, nil
}

func (r *stubRequestRepo) MergeFile(_ context.Context, id string, file models.FileAttachment) (models.FileAttachments, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	req.Files = req.Files.Merge(file)
	return req.Files, nil
}

func (r *stubRequestRepo) RemoveFile(_ context.Context, id, name string) (models.FileAttachments, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	req.Files = req.Files.Remove(name)
	return req.Files, nil
}

type stubUserDirectory struct {
	users map[string]string
}

func (d *stubUserDirectory) ListByIDs(_ context.Context, ids []string) ([]models.User, error) {
	var out []models.User
	for _, id := range ids {
		if name, ok := d.users[id]; ok {
			out = append(out, models.User{ID: id, FullName: name})
		}
	}
	return out, nil
}

type stubBlobStorage struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	putErr  error
	deleted []string
}

func newStubBlobStorage() *stubBlobStorage {
	return &stubBlobStorage{blobs: map[string][]byte{}}
}

func (s *stubBlobStorage) Put(path string, data []byte) (string, error) {
	if s.putErr != nil {
		return "", s.putErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[path] = data
	return "http://blob.local/" + path, nil
}

func (s *stubBlobStorage) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, path)
	s.deleted = append(s.deleted, path)
	return nil
}

type stubAudit struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

func (a *stubAudit) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, *log)
	return nil
}

var (
	requesterActor = models.UserInfo{ID: "u1", FullName: "Rina", Role: models.RoleUser}
	adminActor     = models.UserInfo{ID: "a1", FullName: "Bayu", Role: models.RoleAdmin}
)

func newTestService(repo *stubRequestRepo) (*RequestService, *stubBlobStorage, *stubAudit) {
	blobs := newStubBlobStorage()
	audit := &stubAudit{}
	users := &stubUserDirectory{users: map[string]string{"u1": "Rina", "a1": "Bayu", "a2": "Citra"}}
	svc := NewRequestService(repo, users, blobs, audit, nil, nil, nil, nil, 1024)
	return svc, blobs, audit
}

func seedRequest(t *testing.T, repo *stubRequestRepo, status models.RequestStatus, handlerID *string) string {
	t.Helper()
	req := &models.DesignRequest{
		Title:       "Banner",
		Description: "initial brief",
		Project:     "Expo",
		Department:  "Marketing",
		Status:      status,
		RequesterID: "u1",
		HandlerID:   handlerID,
		DueDate:     time.Now().Add(72 * time.Hour),
		Files:       models.FileAttachments{},
	}
	require.NoError(t, repo.Create(context.Background(), req))
	return req.ID
}

func TestCreateRequestStartsUnclaimed(t *testing.T) {
	repo := newStubRequestRepo()
	svc, _, audit := newTestService(repo)

	resp, err := svc.Create(context.Background(), requesterActor, dto.CreateRequestRequest{
		Title:       "Poster",
		Description: "A2 event poster",
		Project:     "Expo",
		Department:  "Marketing",
		DueDate:     time.Now().Add(48 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusToDo, resp.Status)
	assert.Nil(t, resp.HandlerID)
	assert.Equal(t, "u1", resp.RequesterID)
	assert.Equal(t, "Rina", resp.RequesterName)
	assert.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionRequestCreate, audit.logs[0].Action)
}

func TestCreateRequestRejectsPastDueDate(t *testing.T) {
	repo := newStubRequestRepo()
	svc, _, _ := newTestService(repo)

	_, err := svc.Create(context.Background(), requesterActor, dto.CreateRequestRequest{
		Title:       "Poster",
		Description: "A2 event poster",
		Project:     "Expo",
		Department:  "Marketing",
		DueDate:     time.Now().Add(-48 * time.Hour),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateRequestDeduplicatesInitialFiles(t *testing.T) {
	repo := newStubRequestRepo()
	svc, _, _ := newTestService(repo)

	resp, err := svc.Create(context.Background(), requesterActor, dto.CreateRequestRequest{
		Title:       "Poster",
		Description: "A2 event poster",
		Project:     "Expo",
		Department:  "Marketing",
		DueDate:     time.Now().Add(48 * time.Hour),
		Files: []models.FileAttachment{
			{Name: "brief.pdf", URL: "http://blob/v1"},
			{Name: "brief.pdf", URL: "http://blob/v2"},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Files, 1)
	assert.Equal(t, "http://blob/v2", resp.Files[0].URL)
}

func TestClaimRequiresAdmin(t *testing.T) {
	repo := newStubRequestRepo()
	svc, _, _ := newTestService(repo)
	id := seedRequest(t, repo, models.StatusToDo, nil)

	_, err := svc.Claim(context.Background(), requesterActor, id)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestClaimSetsHandlerAndProgress(t *testing.T) {
	repo := newStubRequestRepo()
	svc, _, _ := newTestService(repo)
	id := seedRequest(t, repo, models.StatusToDo, nil)

	resp, err := svc.Claim(context.Background(), adminActor, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProgress, resp.Status)
	require.NotNil(t, resp.HandlerID)
	assert.Equal(t, "a1", *resp.HandlerID)
	assert.Equal(t, "Bayu", resp.HandlerName)
}

func TestClaimAlreadyClaimed(t *testing.T) {
	repo := newStubRequestRepo()
	svc, _, _ := newTestService(repo)
	id := seedRequest(t, repo, models.StatusToDo, nil)

	_, err := svc.Claim(context.Background(), adminActor, id)
	require.NoError(t, err)

	other := models.UserInfo{ID: "a2", Role: models.RoleAdmin}
	_, err = svc.Claim(context.Background(), other, id)
	assert.ErrorIs(t, err, appErrors.ErrAlreadyClaimed)
}

func TestConcurrentClaimsExactlyOneWinner(t *testing.T) {
	repo := newStubRequestRepo()
	svc, _, _ := newTestService(repo)
	id := seedRequest(t, repo, models.StatusToDo, nil)

	const claimers = 16
	var wg sync.WaitGroup
	results := make([]error, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := models.UserInfo{ID: fmt.Sprintf("admin-%d", i), Role: models.RoleAdmin}
			_, results[i] = svc.Claim(context.Background(), actor, id)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, appErrors.ErrAlreadyClaimed)
		}
	}
	assert.Equal(t, 1, winners)

	req, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, req.HandlerID)
	assert.Equal(t, models.StatusProgress, req.Status)
}

func TestChangeStatusOnlyAssignedHandler(t *testing.T) {
	repo := newStubRequestRepo()
	svc, _, _ := newTestService(repo)
	handler := "a1"
	id := seedRequest(t, repo, models.StatusProgress, &handler)

	other := models.UserInfo{ID: "a2", Role: models.RoleAdmin}
	_, err := svc.ChangeStatus(context.Background(), other, id, dto.ChangeStatusRequest{Status: models.StatusReview})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	resp, err := svc.ChangeStatus(context.Background(), adminActor, id, dto.ChangeStatusRequest{Status: models.StatusReview})
	require.NoError(t, err)
	assert.Equal(t, models.StatusReview, resp.Status)
}

func TestChangeStatusRejectsInvalidTransition(t *testing.T) {
	repo := newStubRequestRepo()
	svc, _, _ := newTestService(repo)
	handler := "a1"

	cases := []struct {
		from models.RequestStatus
		to   models.RequestStatus
	}{
		{models.StatusProgress, models.StatusDone},
		{models.StatusReview, models.StatusProgress},
		{models.StatusRevision, models.StatusDone},
	}
	for _, tc := range cases {
		id := seedRequest(t, repo, tc.from, &handler)
		_, err := svc.ChangeStatus(context.Background(), adminActor, id, dto.ChangeStatusRequest{Status: tc.to})
		require.Error(t, err, "from %s to %s", tc.from, tc.to)
		assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	}
}

func TestRevisionAppendsNoteAndMovesBack(t *testing.T) {
	repo := newStubRequestRepo()
	svc, _, _ := newTestService(repo)
	handler := "a1"
	id := seedRequest(t, repo, models.StatusReview, &handler)

	resp, err := svc.RequestRevision(context.Background(), requesterActor, id, dto.RevisionRequest{Note: "make the logo bigger"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRevision, resp.Status)
	assert.Contains(t, resp.Description, "initial brief")
	assert.Contains(t, resp.Description, "[REVISION ")
	assert.True(t, strings.HasSuffix(resp.Description, "make the logo bigger"))
}

func TestRevisionRequiresReviewState(t *testing.T) {
	repo := newStubRequestRepo()
	svc, _, _ := newTestService(repo)
	handler := "a1"
	id := seedRequest(t, repo, models.StatusProgress, &handler)

	_, err := svc.RequestRevision(context.Background(), requesterActor, id, dto.RevisionRequest{Note: "too early"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestRevisionRequesterOnly(t *testing.T) {
	repo := newStubRequestRepo()
	svc, _, _ := newTestService(repo)
	handler := "a1"
	id := seedRequest(t, repo, models.StatusReview, &handler)

	_, err := svc.RequestRevision(context.Background(), adminActor, id, dto.RevisionRequest{Note: "not yours to send back"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestCompleteRatingBounds(t *testing.T) {
	repo := newStubRequestRepo()
	svc, _, _ := newTestService(repo)
	handler := "a1"

	for _, rating := range []int{0, 11, -3} {
		id := seedRequest(t, repo, models.StatusReview, &handler)
		_, err := svc.Complete(context.Background(), requesterActor, id, dto.CompleteRequestRequest{Rating: rating})
		require.Error(t, err, "rating %d", rating)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}

	for _, rating := range []int{1, 10} {
		id := seedRequest(t, repo, models.StatusReview, &handler)
		resp, err := svc.Complete(context.Background(), requesterActor, id, dto.CompleteRequestRequest{Rating: rating})
		require.NoError(t, err, "rating %d", rating)
		assert.Equal(t, models.StatusDone, resp.Status)
		require.NotNil(t, resp.Rating)
		assert.Equal(t, rating, *resp.Rating)
		assert.NotNil(t, resp.CompletedAt)
	}
}

func TestCompleteOnlyFromReview(t *testing.T) {
	repo := newStubRequestRepo()
	svc, _, _ := newTestService(repo)
	handler := "a1"
	id := seedRequest(t, repo, models.StatusProgress, &handler)

	_, err := svc.Complete(context.Background(), requesterActor, id, dto.CompleteRequestRequest{Rating: 8})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestAddFileReplacesSameName(t *testing.T) {
	repo := newStubRequestRepo()
	svc, blobs, _ := newTestService(repo)
	handler := "a1"
	id := seedRequest(t, repo, models.StatusProgress, &handler)

	_, err := svc.AddFile(context.Background(), adminActor, id, "draft.png", []byte("v1"))
	require.NoError(t, err)
	files, err := svc.AddFile(context.Background(), adminActor, id, "draft.png", []byte("v2"))
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.Equal(t, "draft.png", files[0].Name)
	assert.Equal(t, []byte("v2"), blobs.blobs["requests/"+id+"/draft.png"])
}

func TestAddFileRejectsOversized(t *testing.T) {
	repo := newStubRequestRepo()
	svc, _, _ := newTestService(repo)
	handler := "a1"
	id := seedRequest(t, repo, models.StatusProgress, &handler)

	_, err := svc.AddFile(context.Background(), adminActor, id, "huge.psd", make([]byte, 2048))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestFileMutationsHandlerOnly(t *testing.T) {
	repo := newStubRequestRepo()
	svc, _, _ := newTestService(repo)
	handler := "a1"
	id := seedRequest(t, repo, models.StatusProgress, &handler)

	_, err := svc.AddFile(context.Background(), requesterActor, id, "sketch.png", []byte("x"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	other := models.UserInfo{ID: "a2", Role: models.RoleAdmin}
	_, err = svc.AddFile(context.Background(), other, id, "sketch.png", []byte("x"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.RemoveFile(context.Background(), requesterActor, id, "sketch.png")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	unclaimed := seedRequest(t, repo, models.StatusToDo, nil)
	_, err = svc.AddFile(context.Background(), adminActor, unclaimed, "sketch.png", []byte("x"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestAddFileStorageFailure(t *testing.T) {
	repo := newStubRequestRepo()
	svc, blobs, _ := newTestService(repo)
	blobs.putErr = fmt.Errorf("disk full")
	handler := "a1"
	id := seedRequest(t, repo, models.StatusProgress, &handler)

	_, err := svc.AddFile(context.Background(), adminActor, id, "brief.pdf", []byte("x"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStorage.Code, appErrors.FromError(err).Code)

	req, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, req.Files)
}

func TestRemoveFileDeletesBlob(t *testing.T) {
	repo := newStubRequestRepo()
	svc, blobs, _ := newTestService(repo)
	handler := "a1"
	id := seedRequest(t, repo, models.StatusProgress, &handler)

	_, err := svc.AddFile(context.Background(), adminActor, id, "brief.pdf", []byte("x"))
	require.NoError(t, err)

	files, err := svc.RemoveFile(context.Background(), adminActor, id, "brief.pdf")
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Contains(t, blobs.deleted, "requests/"+id+"/brief.pdf")
}

func TestRemoveFileUnknownName(t *testing.T) {
	repo := newStubRequestRepo()
	svc, _, _ := newTestService(repo)
	handler := "a1"
	id := seedRequest(t, repo, models.StatusProgress, &handler)

	_, err := svc.RemoveFile(context.Background(), adminActor, id, "ghost.png")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestListScopesNonAdminToOwnRequests(t *testing.T) {
	repo := newStubRequestRepo()
	svc, _, _ := newTestService(repo)
	seedRequest(t, repo, models.StatusToDo, nil)
	require.NoError(t, repo.Create(context.Background(), &models.DesignRequest{
		Title: "Other", Description: "d", Project: "p", Department: "d",
		Status: models.StatusToDo, RequesterID: "u2", DueDate: time.Now().Add(time.Hour),
	}))

	mine, _, err := svc.List(context.Background(), requesterActor, dto.ListRequestsQuery{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "u1", mine[0].RequesterID)

	all, _, err := svc.List(context.Background(), adminActor, dto.ListRequestsQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetHidesForeignRequestFromNonAdmin(t *testing.T) {
	repo := newStubRequestRepo()
	svc, _, _ := newTestService(repo)
	id := seedRequest(t, repo, models.StatusToDo, nil)

	other := models.UserInfo{ID: "u2", Role: models.RoleUser}
	_, err := svc.Get(context.Background(), other, id)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

// Full lifecycle: create, claim, deliver, revision loop, redeliver, complete.
func TestFullLifecycle(t *testing.T) {
	repo := newStubRequestRepo()
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, requesterActor, dto.CreateRequestRequest{
		Title:       "Company profile deck",
		Description: "20 slides",
		Project:     "Branding",
		Department:  "Sales",
		DueDate:     time.Now().Add(7 * 24 * time.Hour),
	})
	require.NoError(t, err)
	id := created.ID

	_, err = svc.Claim(ctx, adminActor, id)
	require.NoError(t, err)

	_, err = svc.AddFile(ctx, adminActor, id, "deck-v1.pdf", []byte("pdf"))
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, adminActor, id, dto.ChangeStatusRequest{Status: models.StatusReview})
	require.NoError(t, err)

	_, err = svc.RequestRevision(ctx, requesterActor, id, dto.RevisionRequest{Note: "slide 3 typo"})
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, adminActor, id, dto.ChangeStatusRequest{Status: models.StatusReview})
	require.NoError(t, err)

	final, err := svc.Complete(ctx, requesterActor, id, dto.CompleteRequestRequest{Rating: 9, Review: "great"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, final.Status)
	require.NotNil(t, final.Rating)
	assert.Equal(t, 9, *final.Rating)
	assert.Contains(t, final.Description, "slide 3 typo")
	assert.NotNil(t, final.CompletedAt)

	// DONE is terminal for handler moves as well.
	_, err = svc.ChangeStatus(ctx, adminActor, id, dto.ChangeStatusRequest{Status: models.StatusProgress})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

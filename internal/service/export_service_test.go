package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/arkadesain/design-desk-api/internal/dto"
	"github.com/arkadesain/design-desk-api/internal/models"
	appErrors "github.com/arkadesain/design-desk-api/pkg/errors"
	"github.com/arkadesain/design-desk-api/pkg/storage"
)

func newExportService(t *testing.T, repo *stubRequestRepo) *ExportService {
	t.Helper()
	blobs, err := storage.NewLocalStorage(t.TempDir(), "http://localhost:8080/exports")
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	users := &stubUserDirectory{users: map[string]string{"u1": "Rina", "a1": "Bayu"}}
	return NewExportService(repo, users, blobs, signer, &stubAudit{}, nil, nil, "/api/v1/exports/download")
}

func seedExportData(t *testing.T, repo *stubRequestRepo) {
	t.Helper()
	handler := "a1"
	rating := 9
	require.NoError(t, repo.Create(context.Background(), &models.DesignRequest{
		Title:       "Banner",
		Description: "expo banner",
		Project:     "Expo",
		Department:  "Marketing",
		Status:      models.StatusDone,
		RequesterID: "u1",
		HandlerID:   &handler,
		DueDate:     time.Now().Add(24 * time.Hour),
		Rating:      &rating,
	}))
	require.NoError(t, repo.Create(context.Background(), &models.DesignRequest{
		Title:       "Poster",
		Description: "event poster",
		Project:     "Expo",
		Department:  "Sales",
		Status:      models.StatusToDo,
		RequesterID: "u1",
		DueDate:     time.Now().Add(48 * time.Hour),
	}))
}

func TestGenerateExportAdminOnly(t *testing.T) {
	svc := newExportService(t, newStubRequestRepo())

	_, err := svc.Generate(context.Background(), requesterActor, dto.ExportRequestsQuery{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestGenerateExportRejectsUnknownFormat(t *testing.T) {
	svc := newExportService(t, newStubRequestRepo())

	_, err := svc.Generate(context.Background(), adminActor, dto.ExportRequestsQuery{Format: "docx"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGenerateAndDownloadXLSX(t *testing.T) {
	repo := newStubRequestRepo()
	seedExportData(t, repo)
	svc := newExportService(t, repo)

	resp, err := svc.Generate(context.Background(), adminActor, dto.ExportRequestsQuery{Format: "xlsx"})
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, resp.Format)
	assert.True(t, resp.ExpiresAt.After(time.Now()))
	require.Contains(t, resp.URL, "/api/v1/exports/download?token=")

	token := resp.URL[strings.Index(resp.URL, "token=")+len("token="):]
	file, name, err := svc.Download(token)
	require.NoError(t, err)
	defer file.Close()
	assert.True(t, strings.HasSuffix(name, ".xlsx"))

	workbook, err := excelize.OpenReader(file)
	require.NoError(t, err)
	defer workbook.Close()
	rows, err := workbook.GetRows("Design Requests")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Created", rows[0][0])
	assert.Equal(t, "Title", rows[0][2])

	var titles []string
	for _, row := range rows[1:] {
		titles = append(titles, row[2])
	}
	assert.ElementsMatch(t, []string{"Banner", "Poster"}, titles)
}

func TestGenerateCSVResolvesNames(t *testing.T) {
	repo := newStubRequestRepo()
	seedExportData(t, repo)
	svc := newExportService(t, repo)

	resp, err := svc.Generate(context.Background(), adminActor, dto.ExportRequestsQuery{Format: "csv", Status: string(models.StatusDone)})
	require.NoError(t, err)

	token := resp.URL[strings.Index(resp.URL, "token=")+len("token="):]
	file, _, err := svc.Download(token)
	require.NoError(t, err)
	defer file.Close()

	raw, err := io.ReadAll(file)
	require.NoError(t, err)
	content := string(raw)
	assert.Contains(t, content, "Banner")
	assert.Contains(t, content, "Rina")
	assert.Contains(t, content, "Bayu")
	assert.NotContains(t, content, "Poster")
}

func TestDownloadRejectsTamperedToken(t *testing.T) {
	repo := newStubRequestRepo()
	seedExportData(t, repo)
	svc := newExportService(t, repo)

	resp, err := svc.Generate(context.Background(), adminActor, dto.ExportRequestsQuery{Format: "csv"})
	require.NoError(t, err)

	token := resp.URL[strings.Index(resp.URL, "token=")+len("token="):]
	_, _, err = svc.Download(token + "x")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arkadesain/design-desk-api/internal/dto"
	"github.com/arkadesain/design-desk-api/internal/models"
	appErrors "github.com/arkadesain/design-desk-api/pkg/errors"
	"github.com/arkadesain/design-desk-api/pkg/export"
)

const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
	FormatPDF  = "pdf"
)

var exportHeaders = []string{"Created", "Due Date", "Title", "Description", "Status", "Department", "Project", "Requester", "Handler", "Rating"}

type exportListRepository interface {
	List(ctx context.Context, filter models.RequestFilter) ([]models.DesignRequest, int, error)
}

type exportStorage interface {
	Put(path string, data []byte) (string, error)
	Open(path string) (*os.File, error)
}

type urlSigner interface {
	Generate(exportID, relPath string) (string, time.Time, error)
	Parse(token string) (exportID, relPath string, expiresAt time.Time, err error)
}

type exportObserver interface {
	ObserveExport(format string)
}

// ExportService renders filtered request listings to downloadable
// spreadsheets and documents. Rendered files live in private storage and are
// reachable only through short-lived signed URLs.
type ExportService struct {
	requests exportListRepository
	users    userDirectory
	blobs    exportStorage
	signer   urlSigner
	audit    auditRecorder
	metrics  exportObserver
	xlsx     *export.XLSXExporter
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
	baseURL  string
}

// NewExportService constructs the export service. baseURL is the public
// prefix downloads are served under, e.g. "/api/v1/exports/download".
func NewExportService(requests exportListRepository, users userDirectory, blobs exportStorage, signer urlSigner, audit auditRecorder, metrics exportObserver, logger *zap.Logger, baseURL string) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		requests: requests,
		users:    users,
		blobs:    blobs,
		signer:   signer,
		audit:    audit,
		metrics:  metrics,
		xlsx:     export.NewXLSXExporter(),
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// Generate renders the filtered request listing in the requested format and
// returns a signed download URL.
func (s *ExportService) Generate(ctx context.Context, actor models.UserInfo, query dto.ExportRequestsQuery) (*dto.ExportResponse, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}

	format := strings.ToLower(query.Format)
	if format == "" {
		format = FormatXLSX
	}
	if format != FormatXLSX && format != FormatCSV && format != FormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", query.Format))
	}

	filter, err := exportFilter(query)
	if err != nil {
		return nil, err
	}
	// Exports are unpaginated, so walk the listing page by page.
	var requests []models.DesignRequest
	for {
		page, total, err := s.requests.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to collect export rows")
		}
		requests = append(requests, page...)
		if len(page) == 0 || len(requests) >= total {
			break
		}
		filter.Page++
	}

	dataset := s.buildDataset(ctx, requests)
	var rendered []byte
	switch format {
	case FormatXLSX:
		rendered, err = s.xlsx.Render(dataset, "Design Requests")
	case FormatCSV:
		rendered, err = s.csv.Render(dataset)
	case FormatPDF:
		rendered, err = s.pdf.Render(dataset, "Design Requests")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	exportID := uuid.NewString()
	relPath := fmt.Sprintf("%s/design-requests-%s.%s", exportID, time.Now().UTC().Format("20060102-150405"), format)
	if _, err := s.blobs.Put(relPath, rendered); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, appErrors.ErrStorage.Message)
	}

	token, expiresAt, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}

	if s.metrics != nil {
		s.metrics.ObserveExport(format)
	}
	if s.audit != nil {
		s.recordAudit(ctx, actor, exportID, format, len(dataset.Rows))
	}

	return &dto.ExportResponse{
		URL:       fmt.Sprintf("%s?token=%s", s.baseURL, token),
		Format:    format,
		ExpiresAt: expiresAt,
	}, nil
}

// Download validates the signed token and opens the stored export file.
func (s *ExportService) Download(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired download token")
	}
	file, err := s.blobs.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export file not found")
	}
	name := relPath
	if idx := strings.LastIndex(relPath, "/"); idx >= 0 {
		name = relPath[idx+1:]
	}
	return file, name, nil
}

func (s *ExportService) buildDataset(ctx context.Context, requests []models.DesignRequest) export.Dataset {
	names := map[string]string{}
	seen := map[string]bool{}
	var ids []string
	for _, req := range requests {
		if !seen[req.RequesterID] {
			seen[req.RequesterID] = true
			ids = append(ids, req.RequesterID)
		}
		if req.HandlerID != nil && !seen[*req.HandlerID] {
			seen[*req.HandlerID] = true
			ids = append(ids, *req.HandlerID)
		}
	}
	if len(ids) > 0 {
		users, err := s.users.ListByIDs(ctx, ids)
		if err != nil {
			s.logger.Warn("export name lookup failed", zap.Error(err))
		}
		for _, u := range users {
			names[u.ID] = u.FullName
		}
	}

	rows := make([]map[string]string, 0, len(requests))
	for _, req := range requests {
		row := map[string]string{
			"Created":     req.CreatedAt.Format("2006-01-02"),
			"Due Date":    req.DueDate.Format("2006-01-02"),
			"Title":       req.Title,
			"Description": req.Description,
			"Status":      string(req.Status),
			"Department":  req.Department,
			"Project":     req.Project,
			"Requester":   names[req.RequesterID],
		}
		if req.HandlerID != nil {
			row["Handler"] = names[*req.HandlerID]
		}
		if req.Rating != nil {
			row["Rating"] = fmt.Sprintf("%d", *req.Rating)
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: exportHeaders, Rows: rows}
}

func (s *ExportService) recordAudit(ctx context.Context, actor models.UserInfo, exportID, format string, rowCount int) {
	userID := actor.ID
	payload := []byte(fmt.Sprintf(`{"format":%q,"rows":%d}`, format, rowCount))
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionExportGenerate,
		Resource:   "export",
		ResourceID: &exportID,
		NewValues:  payload,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("audit write failed", zap.String("action", string(models.AuditActionExportGenerate)), zap.Error(err))
	}
}

func exportFilter(query dto.ExportRequestsQuery) (models.RequestFilter, error) {
	filter := models.RequestFilter{
		Search:   query.Search,
		Page:     1,
		PageSize: 100,
		SortBy:   "created_at",
	}
	if query.Status != "" {
		status := models.RequestStatus(query.Status)
		if !status.Valid() {
			return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", query.Status))
		}
		filter.Status = &status
	}
	if query.From != "" {
		from, err := time.Parse("2006-01-02", query.From)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "from must be formatted YYYY-MM-DD")
		}
		filter.CreatedFrom = &from
	}
	if query.To != "" {
		to, err := time.Parse("2006-01-02", query.To)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "to must be formatted YYYY-MM-DD")
		}
		end := to.Add(24 * time.Hour)
		filter.CreatedTo = &end
	}
	return filter, nil
}

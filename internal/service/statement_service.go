package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mgiraudo/instituto-api/internal/models"
	appErrors "github.com/mgiraudo/instituto-api/pkg/errors"
	"github.com/mgiraudo/instituto-api/pkg/export"
)

// StatementFormat selects the rendered statement encoding.
type StatementFormat string

const (
	StatementFormatCSV StatementFormat = "csv"
	StatementFormatPDF StatementFormat = "pdf"
)

type statementLedger interface {
	RevenueSummary(ctx context.Context, courseID string) (*models.CourseRevenueSummary, error)
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type enrollmentDetailReader interface {
	Get(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ListPayments(ctx context.Context, id string) ([]models.Payment, error)
}

// Statement is a rendered enrollment ledger export.
type Statement struct {
	FileName    string
	ContentType string
	Content     []byte
}

// StatementService renders enrollment statements and serves course
// revenue summaries through the cache.
type StatementService struct {
	enrollments enrollmentDetailReader
	ledger      statementLedger
	cache       summaryCache
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewStatementService constructs StatementService.
func NewStatementService(enrollments enrollmentDetailReader, ledger statementLedger, cache summaryCache, cacheTTL time.Duration, logger *zap.Logger) *StatementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatementService{
		enrollments: enrollments,
		ledger:      ledger,
		cache:       cache,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

// CourseRevenue returns the per-context ledger totals for a course,
// served from cache while fresh. Registrations invalidate the key.
func (s *StatementService) CourseRevenue(ctx context.Context, courseID string) (*models.CourseRevenueSummary, error) {
	key := fmt.Sprintf("revenue:%s", courseID)
	if s.cache != nil {
		var cached models.CourseRevenueSummary
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	summary, err := s.ledger.RevenueSummary(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate course revenue")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summary, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache revenue summary", zap.String("course_id", courseID), zap.Error(err))
		}
	}
	return summary, nil
}

// RenderStatement exports the tuition ledger of an enrollment.
func (s *StatementService) RenderStatement(ctx context.Context, enrollmentID string, format StatementFormat) (*Statement, error) {
	detail, err := s.enrollments.Get(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	payments, err := s.enrollments.ListPayments(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	dataset := statementDataset(detail, payments)
	title := fmt.Sprintf("Statement %s - %s", detail.CourseName, detail.StudentID)

	switch format {
	case StatementFormatCSV:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv statement")
		}
		return &Statement{
			FileName:    fmt.Sprintf("statement-%s.csv", enrollmentID),
			ContentType: "text/csv",
			Content:     content,
		}, nil
	case StatementFormatPDF:
		content, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf statement")
		}
		return &Statement{
			FileName:    fmt.Sprintf("statement-%s.pdf", enrollmentID),
			ContentType: "application/pdf",
			Content:     content,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported statement format")
	}
}

// RenderReceipt exports a single ledger row of an enrollment as PDF.
func (s *StatementService) RenderReceipt(ctx context.Context, enrollmentID, paymentID string) (*Statement, error) {
	detail, err := s.enrollments.Get(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	payments, err := s.enrollments.ListPayments(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	var payment *models.Payment
	for i := range payments {
		if payments[i].ID == paymentID {
			payment = &payments[i]
			break
		}
	}
	if payment == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found for enrollment")
	}

	dataset := receiptDataset(detail, payment)
	title := fmt.Sprintf("Receipt %s - %s", detail.CourseName, detail.StudentID)
	content, err := s.pdf.Render(dataset, title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	return &Statement{
		FileName:    fmt.Sprintf("receipt-%s.pdf", paymentID),
		ContentType: "application/pdf",
		Content:     content,
	}, nil
}

func receiptDataset(detail *models.EnrollmentDetail, payment *models.Payment) export.Dataset {
	headers := []string{"Field", "Value"}
	rows := []map[string]string{
		{"Field": "Payment", "Value": payment.ID},
		{"Field": "Course", "Value": detail.CourseName},
		{"Field": "Student", "Value": detail.StudentID},
		{"Field": "Paid At", "Value": payment.PaidAt.Format("2006-01-02")},
	}
	if payment.InstallmentNo != nil {
		rows = append(rows, map[string]string{"Field": "Installment", "Value": fmt.Sprintf("%d/%d", *payment.InstallmentNo, detail.Installments)})
	}
	if payment.DiscountPercent != nil && !payment.DiscountPercent.IsZero() {
		rows = append(rows, map[string]string{"Field": "Discount %", "Value": payment.DiscountPercent.StringFixed(1)})
	}
	if payment.SurchargePercent != nil && !payment.SurchargePercent.IsZero() {
		rows = append(rows, map[string]string{"Field": "Surcharge %", "Value": payment.SurchargePercent.StringFixed(1)})
	}
	rows = append(rows,
		map[string]string{"Field": "Registered By", "Value": payment.RegisteredBy},
		map[string]string{"Field": "Amount", "Value": payment.Amount.StringFixed(2)},
	)
	return export.Dataset{Headers: headers, Rows: rows}
}

func statementDataset(detail *models.EnrollmentDetail, payments []models.Payment) export.Dataset {
	headers := []string{"Installment", "Paid At", "Amount", "Discount %", "Surcharge %", "Registered By"}
	rows := make([]map[string]string, 0, len(payments)+1)
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
		row := map[string]string{
			"Paid At":       p.PaidAt.Format("2006-01-02"),
			"Amount":        p.Amount.StringFixed(2),
			"Registered By": p.RegisteredBy,
		}
		if p.InstallmentNo != nil {
			row["Installment"] = fmt.Sprintf("%d/%d", *p.InstallmentNo, detail.Installments)
		}
		if p.DiscountPercent != nil {
			row["Discount %"] = p.DiscountPercent.StringFixed(1)
		}
		if p.SurchargePercent != nil {
			row["Surcharge %"] = p.SurchargePercent.StringFixed(1)
		}
		rows = append(rows, row)
	}
	rows = append(rows, map[string]string{
		"Installment": string(models.DerivePaymentState(len(payments), detail.Installments)),
		"Amount":      total.StringFixed(2),
	})
	return export.Dataset{Headers: headers, Rows: rows}
}

package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	"github.com/smallbiznis/procura/internal/clock"
	"github.com/smallbiznis/procura/internal/config"
	"github.com/smallbiznis/procura/internal/document/domain"
	"github.com/smallbiznis/procura/internal/lock"
	"github.com/smallbiznis/procura/internal/observability/metrics"
	"github.com/smallbiznis/procura/internal/providers/extraction"
	"github.com/smallbiznis/procura/internal/providers/pdf"
	"github.com/smallbiznis/procura/internal/providers/storage"
	prdomain "github.com/smallbiznis/procura/internal/purchaserequest/domain"
	"github.com/smallbiznis/procura/internal/reconciliation"
	"github.com/smallbiznis/procura/pkg/db/option"
	"github.com/smallbiznis/procura/pkg/log/ctxlogger"
	"github.com/smallbiznis/procura/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const lockTTL = time.Minute

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Requests  prdomain.Repository
	Documents repository.Repository[prdomain.Document]
	Extractor extraction.Extractor
	PDF       pdf.Provider
	Storage   storage.Storage
	Audit     auditdomain.Service
	Locker    lock.Locker
	Clock     clock.Clock
	Workflow  *config.WorkflowConfigHolder
	Metrics   *metrics.Metrics `optional:"true"`
}

type service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	requests  prdomain.Repository
	documents repository.Repository[prdomain.Document]
	extractor extraction.Extractor
	pdf       pdf.Provider
	storage   storage.Storage
	audit     auditdomain.Service
	locker    lock.Locker
	clock     clock.Clock
	workflow  *config.WorkflowConfigHolder
	metrics   *metrics.Metrics
}

func NewService(p ServiceParam) domain.Service {
	return &service{
		db:        p.DB,
		log:       p.Log.Named("document.service"),
		genID:     p.GenID,
		requests:  p.Requests,
		documents: p.Documents,
		extractor: p.Extractor,
		pdf:       p.PDF,
		storage:   p.Storage,
		audit:     p.Audit,
		locker:    p.Locker,
		clock:     p.Clock,
		workflow:  p.Workflow,
		metrics:   p.Metrics,
	}
}

func (s *service) ProcessProforma(ctx context.Context, requestID snowflake.ID, fileURL string) (*prdomain.Document, error) {
	log := ctxlogger.WithContext(ctx, s.log).With(zap.String("request_id", requestID.String()))

	pr, err := s.requests.FindUnscoped(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if pr == nil {
		log.Warn("purchase request not found, skipping proforma")
		return nil, nil
	}

	fileURL = strings.TrimSpace(fileURL)
	if fileURL == "" && pr.ProformaFileURL != nil {
		fileURL = *pr.ProformaFileURL
	}
	if fileURL == "" {
		log.Warn("no proforma file for request")
		return nil, nil
	}

	data, err := s.extractor.ExtractProforma(ctx, fileURL)
	if err != nil {
		log.Error("failed to extract proforma", zap.Error(err))
		return nil, err
	}
	extracted, err := domain.ToJSONMap(data)
	if err != nil {
		return nil, err
	}

	doc := s.newDocument(pr.ID, prdomain.DocumentProforma, fileURL)
	doc.ExtractedData = extracted
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.documents.WithTrx(tx).Create(ctx, doc); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			OrgID:      pr.OrgID,
			Action:     auditdomain.ActionProformaAttached,
			TargetType: auditdomain.TargetPurchaseRequest,
			TargetID:   pr.ID,
			Metadata: map[string]any{
				"document_id": doc.ID.String(),
				"vendor_name": data.VendorName,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info("proforma processed", zap.String("document_id", doc.ID.String()))
	return doc, nil
}

func (s *service) GeneratePurchaseOrder(ctx context.Context, requestID snowflake.ID) (*prdomain.Document, error) {
	log := ctxlogger.WithContext(ctx, s.log).With(zap.String("request_id", requestID.String()))

	pr, err := s.requests.FindUnscoped(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if pr == nil {
		log.Warn("purchase request not found, skipping purchase order")
		return nil, nil
	}

	release, err := s.locker.Acquire(ctx, prdomain.LockKey(pr.ID), lockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	// A retried task must not issue a second purchase order. The check runs
	// under the request lock so overlapping retries see each other's document.
	existing, err := s.latest(ctx, pr.ID, prdomain.DocumentPurchaseOrder)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	proformaDoc, err := s.latest(ctx, pr.ID, prdomain.DocumentProforma)
	if err != nil {
		return nil, err
	}
	if proformaDoc == nil {
		log.Warn("no proforma document found for request")
		return nil, nil
	}

	var proforma domain.ProformaData
	if err := domain.FromJSONMap(proformaDoc.ExtractedData, &proforma); err != nil {
		return nil, fmt.Errorf("decode proforma %s: %w", proformaDoc.ID, err)
	}

	po := domain.BuildPurchaseOrder(pr, proforma, s.clock.Now())
	rendered, err := s.pdf.GeneratePurchaseOrder(ctx, po)
	if err != nil {
		log.Error("failed to render purchase order", zap.Error(err))
		return nil, err
	}
	content, err := io.ReadAll(rendered)
	if err != nil {
		return nil, err
	}

	url, err := s.storage.Store(ctx, storage.File{
		Filename:    po.PONumber + ".pdf",
		ContentType: "application/pdf",
		Data:        content,
	}, storage.PurchaseOrderFolder(pr.OrgID.String()))
	if err != nil {
		return nil, err
	}

	extracted, err := domain.ToJSONMap(po)
	if err != nil {
		return nil, err
	}
	doc := s.newDocument(pr.ID, prdomain.DocumentPurchaseOrder, url)
	doc.ExtractedData = extracted

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.requests.WithTx(tx)
		current, err := repo.FindForDecision(ctx, pr.OrgID, pr.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return prdomain.ErrNotFound
		}
		current.PurchaseOrderFileURL = &url
		current.UpdatedAt = s.clock.Now()
		if err := repo.Save(ctx, current); err != nil {
			return err
		}
		if err := s.documents.WithTrx(tx).Create(ctx, doc); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			OrgID:      pr.OrgID,
			Action:     auditdomain.ActionPurchaseOrderIssued,
			TargetType: auditdomain.TargetPurchaseRequest,
			TargetID:   pr.ID,
			Metadata: map[string]any{
				"po_number": po.PONumber,
				"file_url":  url,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info("purchase order generated", zap.String("po_number", po.PONumber))
	return doc, nil
}

func (s *service) ProcessReceipt(ctx context.Context, requestID snowflake.ID, fileURL string) (*prdomain.Document, error) {
	log := ctxlogger.WithContext(ctx, s.log).With(zap.String("request_id", requestID.String()))

	pr, err := s.requests.FindUnscoped(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if pr == nil {
		log.Warn("purchase request not found, skipping receipt")
		return nil, nil
	}

	fileURL = strings.TrimSpace(fileURL)
	if fileURL == "" && pr.ReceiptFileURL != nil {
		fileURL = *pr.ReceiptFileURL
	}
	if fileURL == "" {
		log.Warn("no receipt file for request")
		return nil, nil
	}

	receipt, err := s.extractor.ExtractReceipt(ctx, fileURL)
	if err != nil {
		log.Error("failed to extract receipt", zap.Error(err))
		return nil, err
	}
	extracted, err := domain.ToJSONMap(receipt)
	if err != nil {
		return nil, err
	}
	doc := s.newDocument(pr.ID, prdomain.DocumentReceipt, fileURL)
	doc.ExtractedData = extracted

	poDoc, err := s.latest(ctx, pr.ID, prdomain.DocumentPurchaseOrder)
	if err != nil {
		return nil, err
	}
	if poDoc == nil {
		log.Warn("no purchase order found, storing receipt without validation")
		if err := s.documents.Create(ctx, doc); err != nil {
			return nil, err
		}
		return doc, nil
	}

	var po domain.PurchaseOrderData
	if err := domain.FromJSONMap(poDoc.ExtractedData, &po); err != nil {
		return nil, fmt.Errorf("decode purchase order %s: %w", poDoc.ID, err)
	}

	tol := s.workflow.Get().Reconciliation
	result := reconciliation.Reconcile(receipt, po, reconciliation.TolerancesFromFloat(
		tol.PriceTolerance, tol.TotalTolerance, tol.QuantityTolerance,
	))
	validation, err := domain.ToJSONMap(result)
	if err != nil {
		return nil, err
	}
	doc.ExtractedData["validation"] = map[string]any(validation)

	release, err := s.locker.Acquire(ctx, prdomain.LockKey(pr.ID), lockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	var flagged bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.documents.WithTrx(tx).Create(ctx, doc); err != nil {
			return err
		}
		if !result.IsValid {
			// Only an APPROVED request moves to DISCREPANCY.
			flagged, err = s.requests.WithTx(tx).UpdateStatusIf(ctx, pr.ID, prdomain.StatusApproved, prdomain.StatusDiscrepancy)
			if err != nil {
				return err
			}
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			OrgID:      pr.OrgID,
			Action:     auditdomain.ActionReceiptReconciled,
			TargetType: auditdomain.TargetPurchaseRequest,
			TargetID:   pr.ID,
			Metadata: map[string]any{
				"is_valid":      result.IsValid,
				"discrepancies": len(result.Discrepancies),
				"flagged":       flagged,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordReconciliation(ctx, result.IsValid)
	if result.IsValid {
		log.Info("receipt validated")
	} else {
		log.Warn("receipt discrepancies found",
			zap.Int("discrepancies", len(result.Discrepancies)),
			zap.Bool("status_changed", flagged),
		)
	}
	return doc, nil
}

func (s *service) latest(ctx context.Context, requestID snowflake.ID, docType prdomain.DocumentType) (*prdomain.Document, error) {
	return s.documents.FindOne(ctx,
		&prdomain.Document{RequestID: requestID, DocumentType: docType},
		option.WithOrder("created_at DESC, id DESC"),
	)
}

func (s *service) newDocument(requestID snowflake.ID, docType prdomain.DocumentType, fileURL string) *prdomain.Document {
	return &prdomain.Document{
		ID:           s.genID.Generate(),
		RequestID:    requestID,
		DocumentType: docType,
		FileURL:      fileURL,
		CreatedAt:    s.clock.Now(),
	}
}

package service_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/procura/internal/apperror"
	"github.com/smallbiznis/procura/internal/document"
	docdomain "github.com/smallbiznis/procura/internal/document/domain"
	"github.com/smallbiznis/procura/internal/document/service"
	"github.com/smallbiznis/procura/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/procura/internal/organization/domain"
	"github.com/smallbiznis/procura/internal/providers/storage"
	prdomain "github.com/smallbiznis/procura/internal/purchaserequest/domain"
	"github.com/smallbiznis/procura/internal/tasks"
	"github.com/smallbiznis/procura/internal/testkit"
	workflowservice "github.com/smallbiznis/procura/internal/workflow/service"
	"github.com/smallbiznis/procura/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	proforma docdomain.ProformaData
	receipt  docdomain.ReceiptData
	err      error
}

func (f *fakeExtractor) ExtractProforma(context.Context, string) (docdomain.ProformaData, error) {
	return f.proforma, f.err
}

func (f *fakeExtractor) ExtractReceipt(context.Context, string) (docdomain.ReceiptData, error) {
	return f.receipt, f.err
}

type fakePDF struct {
	mu       sync.Mutex
	rendered []docdomain.PurchaseOrderData
}

func (f *fakePDF) GeneratePurchaseOrder(_ context.Context, po docdomain.PurchaseOrderData) (io.Reader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rendered = append(f.rendered, po)
	return bytes.NewReader([]byte("%PDF-1.4 " + po.PONumber)), nil
}

type fixture struct {
	env       *testkit.Env
	svc       docdomain.Service
	extractor *fakeExtractor
	pdf       *fakePDF
	documents repository.Repository[prdomain.Document]
}

func setup(t *testing.T) *fixture {
	t.Helper()
	env := testkit.New(t)
	f := &fixture{
		env: env,
		extractor: &fakeExtractor{
			proforma: docdomain.ProformaData{
				VendorName:  "Acme Ltd",
				Items:       []docdomain.LineItem{line("Laptop", "2", "500")},
				TotalAmount: decimal.NewFromInt(1000),
				Currency:    "USD",
			},
			receipt: docdomain.ReceiptData{
				SellerName:  "ACME LTD ",
				Items:       []docdomain.LineItem{line("laptop", "2", "500")},
				TotalAmount: decimal.NewFromInt(1000),
			},
		},
		pdf:       &fakePDF{},
		documents: repository.ProvideStore[prdomain.Document](env.DB),
	}
	f.svc = service.NewService(service.ServiceParam{
		DB:        env.DB,
		Log:       env.Log,
		GenID:     env.Node,
		Requests:  env.RequestRepo,
		Documents: f.documents,
		Extractor: f.extractor,
		PDF:       f.pdf,
		Storage:   env.Storage,
		Audit:     env.Audit,
		Locker:    env.Locker,
		Clock:     env.Clock,
		Workflow:  env.Workflow,
		Metrics:   metrics.NewNoop(),
	})
	return f
}

func line(desc, qty, price string) docdomain.LineItem {
	q := decimal.RequireFromString(qty)
	p := decimal.RequireFromString(price)
	return docdomain.LineItem{Description: desc, Quantity: q, UnitPrice: p, Total: q.Mul(p)}
}

// approvedRequest creates a request that has completed its approval chain.
func (f *fixture) approvedRequest(t *testing.T) *prdomain.PurchaseRequest {
	t.Helper()
	org := f.env.Org(t, nil)
	pr := f.env.Request(t, f.env.Staff(t, org), "1000", testkit.Item("Laptop", "2", "500"))
	current := f.env.Reload(t, pr.ID)
	current.Status = prdomain.StatusApproved
	current.CurrentApprovalLevel = 2
	require.NoError(t, f.env.RequestRepo.Save(context.Background(), current))
	return current
}

func (f *fixture) docs(t *testing.T, pr *prdomain.PurchaseRequest, docType prdomain.DocumentType) []*prdomain.Document {
	t.Helper()
	docs, err := f.documents.Find(context.Background(), &prdomain.Document{RequestID: pr.ID, DocumentType: docType})
	require.NoError(t, err)
	return docs
}

func TestProcessProformaAppendsDocument(t *testing.T) {
	f := setup(t)
	pr := f.approvedRequest(t)

	doc, err := f.svc.ProcessProforma(context.Background(), pr.ID, "http://files.test/proforma.pdf")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, prdomain.DocumentProforma, doc.DocumentType)
	assert.Equal(t, "Acme Ltd", doc.ExtractedData["vendor_name"])
	assert.Len(t, f.docs(t, pr, prdomain.DocumentProforma), 1)
}

func TestGeneratePurchaseOrderNeedsProforma(t *testing.T) {
	f := setup(t)
	pr := f.approvedRequest(t)

	doc, err := f.svc.GeneratePurchaseOrder(context.Background(), pr.ID)
	require.NoError(t, err)
	assert.Nil(t, doc)
	assert.Nil(t, f.env.Reload(t, pr.ID).PurchaseOrderFileURL)
	assert.Empty(t, f.pdf.rendered)
}

func TestGeneratePurchaseOrderStoresFileOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	pr := f.approvedRequest(t)
	_, err := f.svc.ProcessProforma(ctx, pr.ID, "http://files.test/proforma.pdf")
	require.NoError(t, err)

	doc, err := f.svc.GeneratePurchaseOrder(ctx, pr.ID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, prdomain.DocumentPurchaseOrder, doc.DocumentType)
	assert.Equal(t, docdomain.PONumber(pr.ID), doc.ExtractedData["po_number"])

	got := f.env.Reload(t, pr.ID)
	require.NotNil(t, got.PurchaseOrderFileURL)
	assert.Equal(t, doc.FileURL, *got.PurchaseOrderFileURL)
	assert.Contains(t, doc.FileURL, "/purchase_orders/")
	assert.Equal(t, prdomain.StatusApproved, got.Status)

	again, err := f.svc.GeneratePurchaseOrder(ctx, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, again.ID)
	assert.Len(t, f.pdf.rendered, 1)
	require.Len(t, f.pdf.rendered[0].Items, 1)
	assert.Equal(t, "Acme Ltd", f.pdf.rendered[0].VendorName)
}

func TestProcessReceiptWithoutPurchaseOrder(t *testing.T) {
	f := setup(t)
	pr := f.approvedRequest(t)

	doc, err := f.svc.ProcessReceipt(context.Background(), pr.ID, "http://files.test/receipt.pdf")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.NotContains(t, doc.ExtractedData, "validation")
	assert.Equal(t, prdomain.StatusApproved, f.env.Reload(t, pr.ID).Status)
}

func TestProcessReceiptMatchingKeepsApproved(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	pr := f.approvedRequest(t)
	_, err := f.svc.ProcessProforma(ctx, pr.ID, "http://files.test/proforma.pdf")
	require.NoError(t, err)
	_, err = f.svc.GeneratePurchaseOrder(ctx, pr.ID)
	require.NoError(t, err)

	// 5% over the PO total sits exactly on the tolerance.
	f.extractor.receipt.TotalAmount = decimal.NewFromInt(1050)
	doc, err := f.svc.ProcessReceipt(ctx, pr.ID, "http://files.test/receipt.pdf")
	require.NoError(t, err)

	validation, ok := doc.ExtractedData["validation"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, validation["is_valid"])
	assert.Equal(t, prdomain.StatusApproved, f.env.Reload(t, pr.ID).Status)
}

func TestProcessReceiptDiscrepancyFlagsRequest(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	pr := f.approvedRequest(t)
	_, err := f.svc.ProcessProforma(ctx, pr.ID, "http://files.test/proforma.pdf")
	require.NoError(t, err)
	_, err = f.svc.GeneratePurchaseOrder(ctx, pr.ID)
	require.NoError(t, err)

	f.extractor.receipt.TotalAmount = decimal.NewFromInt(1060)
	doc, err := f.svc.ProcessReceipt(ctx, pr.ID, "http://files.test/receipt.pdf")
	require.NoError(t, err)

	validation := doc.ExtractedData["validation"].(map[string]any)
	assert.Equal(t, false, validation["is_valid"])
	assert.Equal(t, prdomain.StatusDiscrepancy, f.env.Reload(t, pr.ID).Status)
	assert.Len(t, f.docs(t, pr, prdomain.DocumentReceipt), 1)
}

func TestProcessReceiptExtractionFailureLeavesRequestUntouched(t *testing.T) {
	f := setup(t)
	pr := f.approvedRequest(t)
	f.extractor.err = apperror.Extraction("Failed to extract receipt data", errors.New("timeout"))

	_, err := f.svc.ProcessReceipt(context.Background(), pr.ID, "http://files.test/receipt.pdf")
	assert.ErrorIs(t, err, apperror.ErrExtraction)
	assert.Empty(t, f.docs(t, pr, prdomain.DocumentReceipt))
	assert.Equal(t, prdomain.StatusApproved, f.env.Reload(t, pr.ID).Status)
}

func TestTaskHandlersDecodeArgs(t *testing.T) {
	f := setup(t)
	pr := f.approvedRequest(t)
	registry := tasks.NewRegistry()
	document.RegisterTasks(registry, f.svc)

	h, ok := registry.Lookup(tasks.TaskProcessProforma)
	require.True(t, ok)
	require.NoError(t, h(context.Background(), tasks.DocumentArgs{RequestID: pr.ID, FileURL: "http://files.test/p.pdf"}))
	assert.Len(t, f.docs(t, pr, prdomain.DocumentProforma), 1)

	h, ok = registry.Lookup(tasks.TaskGeneratePurchaseOrder)
	require.True(t, ok)
	assert.ErrorIs(t, h(context.Background(), tasks.DocumentArgs{}), tasks.ErrBadArgs)
}

func TestGeneratePurchaseOrderOverlappingRetries(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pr := f.approvedRequest(t)
	_, err := f.svc.ProcessProforma(ctx, pr.ID, "http://files.test/proforma.pdf")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.GeneratePurchaseOrder(ctx, pr.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, f.docs(t, pr, prdomain.DocumentPurchaseOrder), 1)
	assert.Len(t, f.pdf.rendered, 1)
}

// Receipts submitted through the workflow are reconciled in the same call
// when tasks run inline.
func TestSubmitReceiptReconcilesWithInlineTasks(t *testing.T) {
	f := setup(t)
	org := f.env.Org(t, map[string]any{orgdomain.SettingApprovalLevelsCount: 1})
	staff := f.env.Staff(t, org)
	approver := f.env.Approver(t, org, 1)

	registry := tasks.NewRegistry()
	document.RegisterTasks(registry, f.svc)
	registry.Register(tasks.TaskSendNotification, func(context.Context, ...any) error { return nil })
	engine := workflowservice.NewService(workflowservice.ServiceParam{
		DB:       f.env.DB,
		Log:      f.env.Log,
		Repo:     f.env.RequestRepo,
		GenID:    f.env.Node,
		Orgs:     f.env.Orgs,
		Audit:    f.env.Audit,
		Tasks:    tasks.NewInlineRunner(registry, f.env.Log),
		Storage:  f.env.Storage,
		Locker:   f.env.Locker,
		Clock:    f.env.Clock,
		Workflow: f.env.Workflow,
		Metrics:  metrics.NewNoop(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pr := f.env.Request(t, staff, "1000", testkit.Item("Laptop", "2", "500"))
	_, err := f.svc.ProcessProforma(ctx, pr.ID, "http://files.test/proforma.pdf")
	require.NoError(t, err)
	_, err = engine.Approve(ctx, approver, pr.ID, "")
	require.NoError(t, err)
	require.Len(t, f.docs(t, pr, prdomain.DocumentPurchaseOrder), 1)

	f.extractor.receipt.TotalAmount = decimal.NewFromInt(1060)
	_, err = engine.SubmitReceipt(ctx, staff, pr.ID, storage.File{
		Filename: "receipt.pdf",
		Data:     []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n"),
	})
	require.NoError(t, err)
	require.NoError(t, ctx.Err())

	assert.Len(t, f.docs(t, pr, prdomain.DocumentReceipt), 1)
	assert.Equal(t, prdomain.StatusDiscrepancy, f.env.Reload(t, pr.ID).Status)
}

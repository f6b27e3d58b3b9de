package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	prdomain "github.com/smallbiznis/procura/internal/purchaserequest/domain"
	"github.com/smallbiznis/procura/pkg/db/pagination"
)

type requestItemPayload struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type createPurchaseRequestRequest struct {
	Title           string               `json:"title"`
	Description     string               `json:"description"`
	Amount          decimal.Decimal      `json:"amount"`
	ProformaFileURL *string              `json:"proforma_file_url"`
	Items           []requestItemPayload `json:"items"`
}

type updatePurchaseRequestRequest struct {
	Title           *string               `json:"title"`
	Description     *string               `json:"description"`
	Amount          *decimal.Decimal      `json:"amount"`
	ProformaFileURL *string               `json:"proforma_file_url"`
	Items           *[]requestItemPayload `json:"items"`
}

type decisionRequest struct {
	Comments string `json:"comments"`
}

func toItemInputs(items []requestItemPayload) []prdomain.ItemInput {
	out := make([]prdomain.ItemInput, 0, len(items))
	for _, item := range items {
		out = append(out, prdomain.ItemInput{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return out
}

func (s *Server) CreatePurchaseRequest(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}

	var req createPurchaseRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.requestSvc.Create(c.Request.Context(), principal, prdomain.CreateRequest{
		Title:           req.Title,
		Description:     req.Description,
		Amount:          req.Amount,
		ProformaFileURL: req.ProformaFileURL,
		Items:           toItemInputs(req.Items),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListPurchaseRequests(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}

	var query struct {
		pagination.Pagination
		Status    string `form:"status"`
		DateFrom  string `form:"date_from"`
		DateTo    string `form:"date_to"`
		AmountMin string `form:"amount_min"`
		AmountMax string `form:"amount_max"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	status, err := parseOptionalStatus(query.Status)
	if err != nil {
		AbortWithError(c, newValidationError("status", "invalid_status", "invalid status"))
		return
	}
	dateFrom, err := parseOptionalTime(query.DateFrom, false)
	if err != nil {
		AbortWithError(c, newValidationError("date_from", "invalid_date_from", "invalid date_from"))
		return
	}
	dateTo, err := parseOptionalTime(query.DateTo, true)
	if err != nil {
		AbortWithError(c, newValidationError("date_to", "invalid_date_to", "invalid date_to"))
		return
	}
	amountMin, err := parseOptionalDecimal(query.AmountMin)
	if err != nil {
		AbortWithError(c, newValidationError("amount_min", "invalid_amount_min", "invalid amount_min"))
		return
	}
	amountMax, err := parseOptionalDecimal(query.AmountMax)
	if err != nil {
		AbortWithError(c, newValidationError("amount_max", "invalid_amount_max", "invalid amount_max"))
		return
	}

	resp, err := s.requestSvc.List(c.Request.Context(), principal, prdomain.ListFilter{
		Status:    status,
		DateFrom:  dateFrom,
		DateTo:    dateTo,
		AmountMin: amountMin,
		AmountMax: amountMax,
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Requests, "page_info": resp.PageInfo})
}

func (s *Server) GetPurchaseRequest(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	id, ok := requestIDParam(c)
	if !ok {
		return
	}

	resp, err := s.requestSvc.Get(c.Request.Context(), principal, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdatePurchaseRequest(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	id, ok := requestIDParam(c)
	if !ok {
		return
	}

	var req updatePurchaseRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	update := prdomain.UpdateRequest{
		Title:           req.Title,
		Description:     req.Description,
		Amount:          req.Amount,
		ProformaFileURL: req.ProformaFileURL,
	}
	if req.Items != nil {
		items := toItemInputs(*req.Items)
		update.Items = &items
	}

	resp, err := s.requestSvc.Update(c.Request.Context(), principal, id, update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ApprovePurchaseRequest(c *gin.Context) {
	s.decide(c, true)
}

func (s *Server) RejectPurchaseRequest(c *gin.Context) {
	s.decide(c, false)
}

func (s *Server) decide(c *gin.Context, approve bool) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	id, ok := requestIDParam(c)
	if !ok {
		return
	}

	var req decisionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	ctx := c.Request.Context()
	decide := s.workflowSvc.Reject
	if approve {
		decide = s.workflowSvc.Approve
	}
	approval, err := decide(ctx, principal, id, req.Comments)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// The decider has reviewed the request, so it stays visible to them.
	pr, err := s.requestSvc.Get(ctx, principal, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"approval": approval, "request": pr}})
}

func (s *Server) SubmitReceipt(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	id, ok := requestIDParam(c)
	if !ok {
		return
	}

	file, err := s.readUpload(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.workflowSvc.SubmitReceipt(c.Request.Context(), principal, id, file)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AttachProforma(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	id, ok := requestIDParam(c)
	if !ok {
		return
	}

	file, err := s.readUpload(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.requestSvc.AttachProforma(c.Request.Context(), principal, id, file)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetStatistics(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}

	resp, err := s.requestSvc.Statistics(c.Request.Context(), principal)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

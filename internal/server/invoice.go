package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/hourbill/internal/invoice/domain"
	"github.com/smallbiznis/hourbill/internal/invoice/export"
)

func (s *Server) GetBillingSummary(c *gin.Context) {
	var req invoicedomain.BillingSummaryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	summary, err := s.invoiceSvc.GenerateBillingSummary(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) GenerateInvoice(c *gin.Context) {
	var req invoicedomain.GenerateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	invoice, err := s.invoiceSvc.GenerateInvoice(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": invoice})
}

func (s *Server) ListInvoices(c *gin.Context) {
	var req invoicedomain.ListInvoiceRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.invoiceSvc.ListInvoices(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	detail, err := s.invoiceSvc.GetInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": detail})
}

func (s *Server) UpdateInvoice(c *gin.Context) {
	var req invoicedomain.UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	invoice, err := s.invoiceSvc.UpdateInvoice(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) DeleteInvoice(c *gin.Context) {
	if err := s.invoiceSvc.DeleteInvoice(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) UpdateInvoiceItem(c *gin.Context) {
	var req invoicedomain.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	invoice, err := s.invoiceSvc.UpdateInvoiceItem(c.Request.Context(), c.Param("id"), c.Param("itemId"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) LinkRequest(c *gin.Context) {
	invoice, err := s.invoiceSvc.LinkRequest(c.Request.Context(), c.Param("id"), c.Param("requestId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) UnlinkRequest(c *gin.Context) {
	invoice, err := s.invoiceSvc.UnlinkRequest(c.Request.Context(), c.Param("id"), c.Param("requestId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) ListUnbilledRequests(c *gin.Context) {
	items, err := s.invoiceSvc.ListUnbilledRequests(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

// ExportInvoice serves /export/csv, /export/json and /export/pdf. The csv route takes
// ?format=flat for one row per item.
func (s *Server) ExportInvoice(c *gin.Context) {
	var format export.Format
	switch strings.ToLower(strings.TrimSpace(c.Param("format"))) {
	case "csv":
		format = export.FormatAccountingCSV
		if strings.EqualFold(c.Query("format"), string(export.FormatFlatCSV)) {
			format = export.FormatFlatCSV
		}
	case "json":
		format = export.FormatJSON
	case "pdf":
		format = export.FormatPDF
	default:
		AbortWithError(c, invoicedomain.ErrInvalidFormat)
		return
	}

	file, err := s.exporter.Export(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
	c.Data(http.StatusOK, file.ContentType, file.Body)
}

func (s *Server) SendInvoice(c *gin.Context) {
	invoice, err := s.invoiceSvc.SendInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) PayInvoice(c *gin.Context) {
	var req invoicedomain.PayInvoiceRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
	}

	invoice, err := s.invoiceSvc.PayInvoice(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) RepriceInvoice(c *gin.Context) {
	invoice, err := s.invoiceSvc.RepriceInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) RecalculateInvoice(c *gin.Context) {
	invoice, err := s.invoiceSvc.RecalculateTotals(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	workitemdomain "github.com/smallbiznis/hourbill/internal/workitem/domain"
	"github.com/smallbiznis/hourbill/pkg/db/pagination"
)

// maxImportSize caps CSV uploads.
const maxImportSize = 10 << 20

func (s *Server) CreateRequest(c *gin.Context) {
	var req workitemdomain.CreateWorkItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	item, err := s.workItemSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) ListRequests(c *gin.Context) {
	var query struct {
		pagination.Pagination
		CustomerID string `form:"customerId"`
		Status     string `form:"status"`
		Unbilled   string `form:"unbilled"`
		StartDate  string `form:"startDate"`
		EndDate    string `form:"endDate"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	unbilled, err := queryFlag(query.Unbilled)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.workItemSvc.List(c.Request.Context(), workitemdomain.ListWorkItemRequest{
		Pagination: query.Pagination,
		CustomerID: strings.TrimSpace(query.CustomerID),
		Status:     strings.TrimSpace(query.Status),
		Unbilled:   unbilled != nil && *unbilled,
		StartDate:  strings.TrimSpace(query.StartDate),
		EndDate:    strings.TrimSpace(query.EndDate),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetRequestByID(c *gin.Context) {
	item, err := s.workItemSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) SetRequestStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	item, err := s.workItemSvc.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

// ImportRequests accepts either a multipart upload in the "file" field or a raw text/csv
// body. The customer comes from the customerId form or query value.
func (s *Server) ImportRequests(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportSize)

	var body io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			AbortWithError(c, workitemdomain.ErrInvalidCSV)
			return
		}
		file, err := header.Open()
		if err != nil {
			AbortWithError(c, workitemdomain.ErrInvalidCSV)
			return
		}
		defer file.Close()
		body = file
	}

	customerID := c.PostForm("customerId")
	if customerID == "" {
		customerID = c.Query("customerId")
	}

	result, err := s.workItemSvc.Import(c.Request.Context(), workitemdomain.ImportRequest{
		CustomerID: strings.TrimSpace(customerID),
		Reader:     body,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

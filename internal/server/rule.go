package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	ruledomain "github.com/smallbiznis/loyara/internal/rule/domain"
)

func (s *Server) CreateRule(c *gin.Context) {
	var req ruledomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ruleSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) ListRules(c *gin.Context) {
	merchantID := c.Query("merchant_id")
	if merchantID == "" {
		AbortWithError(c, newValidationError("merchant_id", "invalid_merchant", "merchant_id is required"))
		return
	}

	rules, err := s.ruleSvc.List(c.Request.Context(), merchantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

func (s *Server) GetRule(c *gin.Context) {
	resp, err := s.ruleSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) DeactivateRule(c *gin.Context) {
	if err := s.ruleSvc.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

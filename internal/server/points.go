package server

import (
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	ledgerdomain "github.com/smallbiznis/loyara/internal/ledger/domain"
)

// EarnRateLimit throttles earns per user and per merchant before the
// coordinator is touched. A disabled limiter is a no-op.
func (s *Server) EarnRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.earnLimiter == nil {
			c.Next()
			return
		}

		var req ledgerdomain.EarnRequest
		if err := c.ShouldBindBodyWithJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}

		decision, err := s.earnLimiter.Allow(c.Request.Context(), req.UserID, req.MerchantID)
		if err != nil {
			// Redis trouble should not take the earn path down.
			c.Next()
			return
		}
		if !decision.Allowed {
			s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), "points_earn", decision.DeniedBy)
			if decision.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())+1))
			}
			AbortWithError(c, ErrRateLimited)
			return
		}

		s.obsMetrics.RecordRateLimitAllowed(c.Request.Context(), "points_earn")
		c.Next()
	}
}

func (s *Server) EarnPoints(c *gin.Context) {
	var req ledgerdomain.EarnRequest
	if err := c.ShouldBindBodyWithJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ledgerSvc.Earn(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) BurnPoints(c *gin.Context) {
	var req ledgerdomain.BurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ledgerSvc.Burn(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) ListTransactions(c *gin.Context) {
	var req ledgerdomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.UserID = c.Param("id")

	resp, err := s.ledgerSvc.GetTransactions(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetTransaction(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ledgerSvc.GetTransaction(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ReverseTransaction(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ledgerSvc.Reverse(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

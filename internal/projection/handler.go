package projection

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pulseops-lab/pulseops/internal/auth"
	coreagg "github.com/pulseops-lab/pulseops/internal/core/aggregation"
	httperr "github.com/pulseops-lab/pulseops/internal/core/errors"
)

// RegisterRoutes registers the projection routes on an authenticated group.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/aggregates", s.HandleQueryAggregates)
}

// HandleQueryAggregates handles GET /aggregates
// Query parameters: metric, from, to (YYYY-MM-DD, inclusive), project_id, event_name, granularity
func (s *Service) HandleQueryAggregates(c *gin.Context) {
	principal, ok := auth.PrincipalFrom(c)
	if !ok || principal.OrgID == "" {
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Request is not authenticated",
		})
		return
	}

	var query queryParams
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	from, err := coreagg.ParseDate(query.From)
	if err != nil {
		writeInvalidDate(c, "from", err)
		return
	}
	to, err := coreagg.ParseDate(query.To)
	if err != nil {
		writeInvalidDate(c, "to", err)
		return
	}

	req := AggregateQueryRequest{
		OrgID:       principal.OrgID,
		ProjectID:   query.ProjectID,
		Metric:      query.Metric,
		EventName:   query.EventName,
		From:        from,
		To:          to,
		Granularity: query.Granularity,
	}
	// A project-scoped credential only ever sees its own project.
	if principal.ProjectID != "" {
		req.ProjectID = principal.ProjectID
	}

	resp, err := s.QueryAggregates(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidQuery) {
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpInvalidQueryError,
				Message:   "Invalid aggregate query",
				Details:   err.Error(),
			})
			return
		}

		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to query aggregates",
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func writeInvalidDate(c *gin.Context, field string, err error) {
	c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
		ErrorType: httperr.HttpInvalidQueryError,
		Message:   "Invalid " + field + " date, expected YYYY-MM-DD",
		Details:   err.Error(),
	})
}

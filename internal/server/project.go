package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	customerdomain "github.com/smallbiznis/cirrus/internal/customer/domain"
	"github.com/smallbiznis/cirrus/pkg/db/pagination"
)

type createProjectRequest struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Provider  string `json:"provider"`
}

func (s *Server) CreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.customerSvc.CreateProject(c.Request.Context(), customerdomain.CreateProjectRequest{
		ProjectID: strings.TrimSpace(req.ProjectID),
		Name:      strings.TrimSpace(req.Name),
		Provider:  strings.TrimSpace(req.Provider),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListProjects(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Provider string `form:"provider"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.customerSvc.ListProjects(c.Request.Context(), customerdomain.ListProjectRequest{
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
		Provider:  strings.TrimSpace(query.Provider),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type bindProjectRequest struct {
	CustomerID string `json:"customer_id"`
}

func (s *Server) BindProject(c *gin.Context) {
	projectID := strings.TrimSpace(c.Param("projectId"))

	var req bindProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.customerSvc.BindProject(c.Request.Context(), customerdomain.BindProjectRequest{
		ProjectID:  projectID,
		CustomerID: strings.TrimSpace(req.CustomerID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "project.bind", "project", projectID, map[string]any{
		"customer_id": resp.CustomerID.String(),
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UnbindProject(c *gin.Context) {
	projectID := strings.TrimSpace(c.Param("projectId"))

	if err := s.customerSvc.UnbindProject(c.Request.Context(), customerdomain.UnbindProjectRequest{
		ProjectID: projectID,
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "project.unbind", "project", projectID, nil)

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"project_id": projectID}})
}

package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/privgraph/modelhub/internal/aggregate"
	"github.com/privgraph/modelhub/internal/model"
	"github.com/privgraph/modelhub/internal/store"
)

// MaxArtifactBytes bounds an uploaded model artifact.
const MaxArtifactBytes = 512 << 20

type versionRef struct {
	ProjectID string `json:"project_id"`
	Version   string `json:"version"`
}

func decode(c echo.Context, v interface{}) error {
	if err := json.NewDecoder(c.Request().Body).Decode(v); err != nil {
		return badRequest("can not understand the requested json", err)
	}
	return nil
}

func bindVersionRef(c echo.Context, needVersion bool) (versionRef, error) {
	var ref versionRef
	if err := decode(c, &ref); err != nil {
		return ref, err
	}
	if ref.ProjectID == "" {
		return ref, badRequest("project_id is required", nil)
	}
	if needVersion && ref.Version == "" {
		return ref, badRequest("version is required", nil)
	}
	return ref, nil
}

type learningCurvesResponse struct {
	ProjectID string                  `json:"project_id"`
	Metrics   map[string]model.Curves `json:"metrics"`
}

func LearningCurvesHandler(st store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		ref, err := bindVersionRef(c, false)
		if err != nil {
			return err
		}

		labels, err := st.ListVersions(ctx, ref.ProjectID)
		if err != nil {
			return storeError(err)
		}
		resp := learningCurvesResponse{ProjectID: ref.ProjectID, Metrics: map[string]model.Curves{}}
		for _, l := range labels {
			v, err := st.GetVersion(ctx, ref.ProjectID, l)
			if err != nil {
				return storeError(err)
			}
			resp.Metrics[l] = v.Curves()
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func ConfusionMatrixHandler(st store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		ref, err := bindVersionRef(c, true)
		if err != nil {
			return err
		}
		m, err := st.GetConfusionMatrix(c.Request().Context(), ref.ProjectID, ref.Version)
		if err != nil {
			return storeError(err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"confusion_matrices": map[string]*model.ConfusionMatrix{ref.Version: m},
		})
	}
}

func DeployHandler(st store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		ref, err := bindVersionRef(c, true)
		if err != nil {
			return err
		}
		ep, err := st.Deploy(c.Request().Context(), ref.ProjectID, ref.Version)
		if err != nil {
			return storeError(err)
		}
		return c.JSON(http.StatusOK, ep)
	}
}

type selectedMetricsRequest struct {
	ProjectIDs json.RawMessage `json:"project_ids"`
	Chart      bool            `json:"chart"`
}

type selectedMetricsResponse struct {
	*aggregate.Result
	Chart *aggregate.Chart `json:"chart,omitempty"`
}

func SelectedMetricsHandler(agg *aggregate.Aggregator) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req selectedMetricsRequest
		if err := decode(c, &req); err != nil {
			return err
		}
		var ids []string
		if len(req.ProjectIDs) == 0 || json.Unmarshal(req.ProjectIDs, &ids) != nil || ids == nil {
			return badRequest("project_ids must be a list", nil)
		}

		res, err := agg.Aggregate(c.Request().Context(), ids)
		if err != nil {
			return newError(http.StatusServiceUnavailable, "aggregation interrupted", err)
		}
		resp := selectedMetricsResponse{Result: res}
		if req.Chart {
			resp.Chart = aggregate.NewChart(res)
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func DownloadModelHandler(st store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		ref, err := bindVersionRef(c, true)
		if err != nil {
			return err
		}
		a, err := st.GetArtifact(c.Request().Context(), ref.ProjectID, ref.Version)
		if err != nil {
			return storeError(err)
		}
		c.Response().Header().Set(echo.HeaderContentDisposition,
			fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("model-%s-%s.bin", ref.ProjectID, ref.Version)))
		return c.Blob(http.StatusOK, echo.MIMEOctetStream, a.Content)
	}
}

func PutVersionHandler(st store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var v model.ModelVersion
		if err := decode(c, &v); err != nil {
			return err
		}
		if v.ProjectID == "" || v.Label == "" {
			return badRequest("project_id and version are required", nil)
		}
		stored, err := st.PutVersion(c.Request().Context(), v)
		if err != nil {
			return storeError(err)
		}
		return c.JSON(http.StatusCreated, stored)
	}
}

func PutConfusionMatrixHandler(st store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var m model.ConfusionMatrix
		if err := decode(c, &m); err != nil {
			return err
		}
		if m.ProjectID == "" || m.Label == "" {
			return badRequest("project_id and version are required", nil)
		}
		if err := st.PutConfusionMatrix(c.Request().Context(), m); err != nil {
			return storeError(err)
		}
		return c.JSON(http.StatusCreated, m)
	}
}

func PutArtifactHandler(st store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		project, version := c.Param("project"), c.Param("version")
		content, err := io.ReadAll(io.LimitReader(c.Request().Body, MaxArtifactBytes+1))
		if err != nil {
			return badRequest("can not read the model artifact", err)
		}
		if len(content) > MaxArtifactBytes {
			return newError(http.StatusRequestEntityTooLarge, "model artifact too large", nil)
		}
		if err := st.PutArtifact(c.Request().Context(), project, version, content); err != nil {
			return storeError(err)
		}
		return c.JSON(http.StatusCreated, map[string]interface{}{
			"project_id": project,
			"version":    version,
			"size":       len(content),
		})
	}
}

type createProjectRequest struct {
	Name          string `json:"project_name"`
	TaskName      string `json:"task_name"`
	Description   string `json:"description"`
	PrivacyStatus string `json:"privacy_status"`
	OwnerID       string `json:"owner_id"`
}

func CreateProjectHandler(st store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createProjectRequest
		if err := decode(c, &req); err != nil {
			return err
		}
		p, err := st.CreateProject(c.Request().Context(), store.CreateProjectParams{
			Name:          req.Name,
			TaskName:      req.TaskName,
			Description:   req.Description,
			PrivacyStatus: req.PrivacyStatus,
			OwnerID:       req.OwnerID,
		})
		if err != nil {
			return storeError(err)
		}
		return c.JSON(http.StatusCreated, p)
	}
}

func GetProjectHandler(st store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := st.GetProject(c.Request().Context(), c.Param("project"))
		if err != nil {
			return storeError(err)
		}
		return c.JSON(http.StatusOK, p)
	}
}

type listProjectsResponse struct {
	Projects []model.Project `json:"projects"`
}

// ListProjectsHandler serves GET projects?owner=&public=&limit=. owner
// matches owners and collaborators; public=true keeps public projects only.
func ListProjectsHandler(st store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := store.ListProjectsParams{OwnerID: c.QueryParam("owner")}
		if v := c.QueryParam("public"); v != "" {
			public, err := strconv.ParseBool(v)
			if err != nil {
				return badRequest("public must be true or false", err)
			}
			params.PublicOnly = public
		}
		if v := c.QueryParam("limit"); v != "" {
			limit, err := strconv.Atoi(v)
			if err != nil || limit < 0 {
				return badRequest("limit must be a non-negative integer", err)
			}
			params.Limit = limit
		}

		projects, err := st.ListProjects(c.Request().Context(), params)
		if err != nil {
			return storeError(err)
		}
		if projects == nil {
			projects = []model.Project{}
		}
		return c.JSON(http.StatusOK, listProjectsResponse{Projects: projects})
	}
}

type addCollaboratorRequest struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
}

func AddCollaboratorHandler(st store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req addCollaboratorRequest
		if err := decode(c, &req); err != nil {
			return err
		}
		if req.ProjectID == "" || req.UserID == "" {
			return badRequest("project_id and user_id are required", nil)
		}
		p, err := st.AddCollaborator(c.Request().Context(), req.ProjectID, req.UserID)
		if err != nil {
			return storeError(err)
		}
		return c.JSON(http.StatusOK, p)
	}
}

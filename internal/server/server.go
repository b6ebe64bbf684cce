// Package server exposes the version query protocol over HTTP.
package server

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/privgraph/modelhub/internal/aggregate"
	"github.com/privgraph/modelhub/internal/store"
)

const apiRoot = "/api"

func api(subpath string) string {
	return fmt.Sprintf("%s/%s", apiRoot, strings.TrimPrefix(subpath, "/"))
}

// New builds the echo server over st. Aggregation queries go through agg.
func New(st store.Store, agg *aggregate.Aggregator, loglevel string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	SetLevel(e, loglevel)

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		e.DefaultHTTPErrorHandler(err, c)
		if he, ok := err.(*echo.HTTPError); ok && he.Code < 500 {
			e.Logger.Info(err)
			return
		}
		e.Logger.Error(err)
	}
	e.Use(LogHandlerFunc)

	// dashboard queries
	e.POST(api("learning-curves"), LearningCurvesHandler(st))
	e.POST(api("confusion-matrix"), ConfusionMatrixHandler(st))
	e.POST(api("deploy-model"), DeployHandler(st))
	e.POST(api("selected-metrics"), SelectedMetricsHandler(agg))
	e.POST(api("download-model"), DownloadModelHandler(st))

	// recording, used by the training backend
	e.POST(api("versions"), PutVersionHandler(st))
	e.POST(api("confusion-matrices"), PutConfusionMatrixHandler(st))
	e.PUT(api("models/:project/:version"), PutArtifactHandler(st))

	// projects
	e.POST(api("projects"), CreateProjectHandler(st))
	e.GET(api("projects"), ListProjectsHandler(st))
	e.GET(api("projects/:project"), GetProjectHandler(st))
	e.POST(api("add-collaborators"), AddCollaboratorHandler(st))

	return e
}

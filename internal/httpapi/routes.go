package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"game-fix-manager/internal/fixerr"
	"game-fix-manager/internal/supervisor"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) registerRoutes() {
	s.echo.Use(s.requestLogger())
	s.echo.Use(middleware.Recover())
	s.echo.Use(errorHandling(s.logger))

	s.echo.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics))
	}

	api := s.echo.Group("/api")
	api.GET("/jobs", s.handleJobs)
	api.GET("/history", s.handleHistory)

	apps := api.Group("/apps/:appid")
	apps.GET("/fixes", s.handleCheck)
	apps.POST("/fix", s.handleStartApply)
	apps.GET("/fix", s.handlePollApply)
	apps.DELETE("/fix", s.handleCancelApply)
	apps.POST("/unfix", s.handleStartRemove)
	apps.GET("/unfix", s.handlePollRemove)
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			s.logger.Debug("request", attrs...)
			return nil
		},
	})
}

func appIDParam(c echo.Context) (int64, error) {
	return supervisor.ParseAppID(c.Param("appid"))
}

// respond writes a supervisor result, mapping failures to their HTTP status.
func respond(c echo.Context, okStatus int, res supervisor.Result, body any) error {
	if !res.Success {
		return c.JSON(fixerr.HTTPStatus(res.Err()), res)
	}
	return c.JSON(okStatus, body)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, s.svc.Jobs())
}

func (s *Server) handleHistory(c echo.Context) error {
	if s.history == nil {
		return fixerr.NotFound("history is disabled")
	}
	var appID int64
	if raw := c.QueryParam("appid"); raw != "" {
		id, err := supervisor.ParseAppID(raw)
		if err != nil {
			return err
		}
		appID = id
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return fixerr.Validation("invalid limit %q", raw)
		}
		limit = n
	}
	entries, err := s.history.List(c.Request().Context(), appID, limit)
	if err != nil {
		return fixerr.Internal(err, "list history")
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) handleCheck(c echo.Context) error {
	id, err := appIDParam(c)
	if err != nil {
		return err
	}
	res := s.svc.CheckAvailability(c.Request().Context(), id)
	return respond(c, http.StatusOK, res.Result, res)
}

type applyRequest struct {
	URL         string `json:"url"`
	InstallPath string `json:"installPath"`
	FixType     string `json:"fixType"`
	GameName    string `json:"gameName"`
}

func (s *Server) handleStartApply(c echo.Context) error {
	id, err := appIDParam(c)
	if err != nil {
		return err
	}
	var req applyRequest
	if err := c.Bind(&req); err != nil {
		return fixerr.Validation("invalid request body")
	}
	res := s.svc.StartApply(id, req.URL, req.InstallPath, req.FixType, req.GameName)
	return respond(c, http.StatusAccepted, res, res)
}

func (s *Server) handlePollApply(c echo.Context) error {
	id, err := appIDParam(c)
	if err != nil {
		return err
	}
	res := s.svc.PollApply(id)
	return respond(c, http.StatusOK, res.Result, res)
}

func (s *Server) handleCancelApply(c echo.Context) error {
	id, err := appIDParam(c)
	if err != nil {
		return err
	}
	res := s.svc.CancelApply(id)
	return respond(c, http.StatusOK, res, res)
}

type removeRequest struct {
	InstallPath string `json:"installPath"`
}

func (s *Server) handleStartRemove(c echo.Context) error {
	id, err := appIDParam(c)
	if err != nil {
		return err
	}
	var req removeRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return fixerr.Validation("invalid request body")
		}
	}
	res := s.svc.StartRemove(c.Request().Context(), id, req.InstallPath)
	return respond(c, http.StatusAccepted, res, res)
}

func (s *Server) handlePollRemove(c echo.Context) error {
	id, err := appIDParam(c)
	if err != nil {
		return err
	}
	res := s.svc.PollRemove(id)
	return respond(c, http.StatusOK, res.Result, res)
}

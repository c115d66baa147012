package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"RiskGraph/internal/domain/models"
	"RiskGraph/internal/service/ratelimit"
	"RiskGraph/internal/services/riskengine"
	"RiskGraph/internal/usecase"
	xhttp "RiskGraph/pkg/http"
	xlogger "RiskGraph/pkg/logger"
)

// RiskEchoHandler exposes the engine, the scenario pipeline and the cached
// analytics over HTTP.
type RiskEchoHandler struct {
	logger    *xlogger.Logger
	engine    *usecase.RiskEngine
	runner    *usecase.ScenarioRunner
	analytics *usecase.AnalyticsService
	rl        *ratelimit.Limiter
	rate      float64
	burst     float64
}

func NewRiskEchoHandler(
	logger *xlogger.Logger,
	engine *usecase.RiskEngine,
	runner *usecase.ScenarioRunner,
	analytics *usecase.AnalyticsService,
	rl *ratelimit.Limiter,
	ratePerSec float64,
	burst int,
) *RiskEchoHandler {
	if rl == nil {
		rl = ratelimit.New()
	}
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	if burst <= 0 {
		burst = 5
	}
	return &RiskEchoHandler{
		logger:    logger,
		engine:    engine,
		runner:    runner,
		analytics: analytics,
		rl:        rl,
		rate:      ratePerSec,
		burst:     float64(burst),
	}
}

func (h *RiskEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.POST("/risk/recompute", h.Recompute)
	g.POST("/risk/propagate", h.Propagate)
	g.POST("/risk/dollarize", h.Dollarize)
	g.POST("/risk/normalize", h.Normalize)

	s := g.Group("/scenarios", h.limit)
	s.POST("/acquisition", h.Acquisition)
	s.POST("/divestiture", h.Divestiture)
	s.POST("/risk-event", h.RiskEvent)

	g.GET("/snapshot", h.Snapshot)
	g.GET("/analytics/sectors", h.Sectors)
	g.GET("/analytics/critical-nodes", h.CriticalNodes)
	g.GET("/analytics/top-risks", h.TopRisks)
	g.GET("/analytics/risk-factors", h.RiskFactors)
	g.GET("/catalog", h.Catalog)
	g.GET("/graph/neighborhood", h.Neighborhood)
}

type recomputeResponse struct {
	Propagation   *models.PropagationSummary `json:"propagation"`
	Dollarization dollarizeResponse          `json:"dollarization"`
	Normalized    int                        `json:"normalized"`
}

type dollarizeResponse struct {
	Companies      int     `json:"companies"`
	Blockholders   int     `json:"blockholders"`
	RiskFactors    int     `json:"risk_factors"`
	PortfolioTotal float64 `json:"portfolio_total"`
}

func toDollarizeResponse(r riskengine.DollarizationResult) dollarizeResponse {
	return dollarizeResponse{
		Companies:      r.Companies,
		Blockholders:   r.Blockholders,
		RiskFactors:    r.RiskFactors,
		PortfolioTotal: r.PortfolioTotal,
	}
}

func (h *RiskEchoHandler) Recompute(c echo.Context) error {
	req := &models.RecomputeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	res, err := h.runner.Recompute(ctx, req.MaxIterations)
	if err != nil {
		return h.fail(c, "recompute", err)
	}
	h.invalidate(ctx)
	return xhttp.SuccessResponse(c, recomputeResponse{
		Propagation:   res.Propagation.Summary(),
		Dollarization: toDollarizeResponse(res.Dollarization),
		Normalized:    res.Normalized,
	})
}

func (h *RiskEchoHandler) Propagate(c echo.Context) error {
	req := &models.PropagateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	res, err := h.runner.ComputeTotalRisk(ctx, req.MaxIterations)
	if err != nil {
		return h.fail(c, "propagate", err)
	}
	h.invalidate(ctx)
	return xhttp.SuccessResponse(c, res.Summary())
}

func (h *RiskEchoHandler) Dollarize(c echo.Context) error {
	ctx := c.Request().Context()
	res, err := h.runner.DollarizeRisk(ctx)
	if err != nil {
		return h.fail(c, "dollarize", err)
	}
	h.invalidate(ctx)
	return xhttp.SuccessResponse(c, toDollarizeResponse(res))
}

func (h *RiskEchoHandler) Normalize(c echo.Context) error {
	req := &models.NormalizeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	n, err := h.runner.NormalizeRisk(ctx, req.MaxScore)
	if err != nil {
		return h.fail(c, "normalize", err)
	}
	h.invalidate(ctx)
	return xhttp.SuccessResponse(c, map[string]int{"normalized": n})
}

func (h *RiskEchoHandler) Acquisition(c echo.Context) error {
	req := &models.AcquisitionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p := req.Params()
	return h.run(c, models.ScenarioRequest{
		Kind:          models.ScenarioAcquisition,
		Acquisition:   &p,
		ReportRemoved: req.ReportRemoved,
	})
}

func (h *RiskEchoHandler) Divestiture(c echo.Context) error {
	req := &models.DivestitureRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p := req.Params()
	return h.run(c, models.ScenarioRequest{
		Kind:          models.ScenarioDivestiture,
		Divestiture:   &p,
		ReportRemoved: req.ReportRemoved,
	})
}

func (h *RiskEchoHandler) RiskEvent(c echo.Context) error {
	req := &models.RiskEventRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p := req.Params()
	return h.run(c, models.ScenarioRequest{
		Kind:          models.ScenarioRiskEvent,
		RiskEvent:     &p,
		ReportRemoved: req.ReportRemoved,
	})
}

// run executes the pipeline. A missing operand is reported in the body as
// applied=false with status 200.
func (h *RiskEchoHandler) run(c echo.Context, req models.ScenarioRequest) error {
	out, err := h.runner.Run(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, "scenario", err)
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *RiskEchoHandler) Snapshot(c echo.Context) error {
	snap, err := h.engine.Snapshot(c.Request().Context())
	if err != nil {
		return h.fail(c, "snapshot", err)
	}
	return xhttp.ListResponse(c, snap.Records, int64(len(snap.Records)))
}

func (h *RiskEchoHandler) Sectors(c echo.Context) error {
	req := &models.SectorConcentrationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.analytics.SectorConcentration(c.Request().Context(), req.ThresholdOrDefault())
	if err != nil {
		return h.fail(c, "sector concentration", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *RiskEchoHandler) CriticalNodes(c echo.Context) error {
	req := &models.CriticalNodesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.analytics.CriticalNodes(c.Request().Context(), req.TopN)
	if err != nil {
		return h.fail(c, "critical nodes", err)
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *RiskEchoHandler) TopRisks(c echo.Context) error {
	req := &models.TopRisksRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	kind, _ := models.ParseOwnerKind(req.Kind)
	res, err := h.analytics.TopRisks(c.Request().Context(), kind, req.N)
	if err != nil {
		return h.fail(c, "top risks", err)
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *RiskEchoHandler) RiskFactors(c echo.Context) error {
	req := &models.RiskFactorExposureRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.analytics.RiskFactorExposure(c.Request().Context(), req.N)
	if err != nil {
		return h.fail(c, "risk factors", err)
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *RiskEchoHandler) Catalog(c echo.Context) error {
	res, err := h.analytics.Catalog(c.Request().Context())
	if err != nil {
		return h.fail(c, "catalog", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *RiskEchoHandler) Neighborhood(c echo.Context) error {
	req := &models.NeighborhoodRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	kind, _ := models.ParseOwnerKind(req.Kind)
	res, err := h.engine.Neighborhood(c.Request().Context(), kind, req.ID, req.Depth)
	if err != nil {
		return h.fail(c, "neighborhood", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *RiskEchoHandler) Health(c echo.Context) error {
	if err := h.engine.Health(c.Request().Context()); err != nil {
		h.logger.Warn("health check failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("graph store unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *RiskEchoHandler) limit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !h.rl.Allow(c.RealIP()+":scenario", h.burst, h.rate) {
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("scenario rate limit exceeded"))
		}
		return next(c)
	}
}

func (h *RiskEchoHandler) invalidate(ctx context.Context) {
	if err := h.analytics.Invalidate(ctx); err != nil {
		h.logger.Warn("invalidate analytics cache", xlogger.Error(err))
	}
}

func (h *RiskEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" usecase error", xlogger.Error(err))
	} else {
		h.logger.Warn(op+" rejected", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

var domainErrors = xhttp.NewErrorMap().
	On(models.ErrInvalidScenario, xhttp.BadRequestError).
	On(models.ErrPipelineBusy, xhttp.ConflictError).
	On(models.ErrMalformedSnapshot, xhttp.UnprocessableError).
	On(models.ErrNotFound, xhttp.NotFoundError).
	On(models.ErrConnectionFailure, xhttp.ServiceUnavailableError, "graph store unavailable")

func toAppError(err error) *xhttp.AppError { return domainErrors.Resolve(err) }

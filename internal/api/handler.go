package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/filtering"
	"github.com/spigell/jobmatch/internal/index"
	"github.com/spigell/jobmatch/internal/jobs"
	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/matcher"
)

var errBadRequest = errors.New("bad request")

// Runner runs one matching run.
type Runner interface {
	Run(ctx context.Context, resume *jobs.Resume, postings []*jobs.Posting) (*matcher.Report, error)
	Config() matcher.Config
}

// MatchRequest carries raw collaborator records.
type MatchRequest struct {
	Resume   jobs.Record   `json:"resume"`
	Postings []jobs.Record `json:"postings"`
}

type Handler struct {
	runner  Runner
	filters *filtering.Filtering
	version string
	logger  *zap.Logger
}

func NewHandler(runner Runner, filters *filtering.Filtering, version string, log *zap.Logger) *Handler {
	return &Handler{runner: runner, filters: filters, version: version, logger: logger.OrNop(log)}
}

// Match decodes the request, runs the matcher and replies with the report.
func (h *Handler) Match(c context.Context, ctx *app.RequestContext) {
	resume, postings, rejected, err := decodeRequest(ctx.Request.Body())
	if err != nil {
		h.logger.Info("rejecting match request", zap.Error(err))
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
		return
	}

	for _, rej := range rejected {
		h.logger.Warn("dropping undecodable posting record", zap.Int("index", rej.Index), zap.Error(rej.Err))
	}

	report, err := h.runner.Run(c, resume, postings)
	if report != nil {
		report.AddRejected(rejected)
	}
	if err != nil {
		ctx.JSON(statusFor(err), utils.H{"error": err.Error(), "report": report})
		return
	}

	ctx.JSON(consts.StatusOK, report)
}

func (h *Handler) Health(_ context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
}

// Status describes the matcher configuration and filters.
func (h *Handler) Status(_ context.Context, ctx *app.RequestContext) {
	var filters []filtering.Status
	if h.filters != nil {
		filters = h.filters.Describe()
	}
	ctx.JSON(consts.StatusOK, utils.H{
		"version": h.version,
		"matcher": h.runner.Config(),
		"filters": filters,
	})
}

func decodeRequest(body []byte) (*jobs.Resume, []*jobs.Posting, []jobs.Rejected, error) {
	if len(body) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: empty body", errBadRequest)
	}

	var req MatchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	if req.Resume == nil {
		return nil, nil, nil, fmt.Errorf("%w: resume is required", errBadRequest)
	}

	resume, err := jobs.DecodeResume(req.Resume)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %w", errBadRequest, err)
	}

	postings, rejected := jobs.DecodePostings(req.Postings)
	return resume, postings, rejected, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, jobs.ErrInvalidResume):
		return consts.StatusBadRequest
	case errors.Is(err, matcher.ErrResumeEmbedding):
		return consts.StatusServiceUnavailable
	case errors.Is(err, index.ErrDimensionMismatch):
		return consts.StatusInternalServerError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return consts.StatusGatewayTimeout
	default:
		return consts.StatusInternalServerError
	}
}

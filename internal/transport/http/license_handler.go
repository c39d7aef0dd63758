package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "licensegate/internal/errors"
	"licensegate/internal/license"
	"licensegate/internal/middleware"
	"licensegate/internal/services"
	api "licensegate/pkg/contracts/api/v1"
	contract "licensegate/pkg/contracts/events"
)

// TeamIDParam is the route parameter holding the team ID
const TeamIDParam = "teamId"

// LicenseHandler serves the verification and download endpoints
type LicenseHandler struct {
	service services.LicenseService
	errors  *apierrors.ErrorHandler
	clock   quartz.Clock
	logger  *slog.Logger
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(service services.LicenseService, errorHandler *apierrors.ErrorHandler, clock quartz.Clock, logger *slog.Logger) *LicenseHandler {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &LicenseHandler{
		service: service,
		errors:  errorHandler,
		clock:   clock,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// Routes returns the team scoped routes. Mount under /v1/teams/{teamId}.
// verifyMiddlewares wrap the verification route only.
func (h *LicenseHandler) Routes(verifyMiddlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.With(verifyMiddlewares...).Post("/verification", h.Verify)
	r.Post("/downloads", h.Download)
	return r
}

// Verify handles POST /v1/teams/{teamId}/verification
func (h *LicenseHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req api.VerifyRequest
	if !h.decode(w, r, contract.OperationVerification, &req) {
		return
	}
	verdict := h.service.Verify(r.Context(), chi.URLParam(r, TeamIDParam), req, callerFrom(r))
	h.writeVerdict(w, r, verdict)
}

// Download handles POST /v1/teams/{teamId}/downloads. Denials use the
// verification envelope. An admitted download streams until the artifact is
// exhausted or the client goes away.
func (h *LicenseHandler) Download(w http.ResponseWriter, r *http.Request) {
	var req api.DownloadRequest
	if !h.decode(w, r, contract.OperationDownload, &req) {
		return
	}
	ctx := r.Context()
	delivery, verdict := h.service.Download(ctx, chi.URLParam(r, TeamIDParam), req, callerFrom(r))
	if delivery == nil || !verdict.Valid() {
		if delivery != nil {
			_ = delivery.Body.Close()
		}
		h.writeVerdict(w, r, verdict)
		return
	}
	defer delivery.Body.Close()

	header := w.Header()
	for k, v := range delivery.Header() {
		header[k] = v
	}
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, delivery.Body)
	h.service.RecordDelivered(ctx, n)
	if err != nil {
		// Headers are gone; the client sees a truncated stream
		h.logger.WarnContext(ctx, "download stream aborted",
			slog.String("team_id", verdict.TeamID),
			slog.String("release_id", verdict.ReleaseID),
			slog.Int64("written", n),
			slog.Int64("expected", delivery.Size),
			slog.String("error", err.Error()))
		return
	}
	if n != delivery.Size {
		h.logger.ErrorContext(ctx, "download size mismatch",
			slog.String("release_id", verdict.ReleaseID),
			slog.Int64("written", n),
			slog.Int64("expected", delivery.Size))
	}
}

// decode reads the JSON body. Malformed JSON is a verdict level bad request
// recorded like any other attempt; oversized bodies are rejected with a 413
// problem.
func (h *LicenseHandler) decode(w http.ResponseWriter, r *http.Request, op contract.Operation, v any) bool {
	err := render.DecodeJSON(r.Body, v)
	if err == nil {
		return true
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		h.errors.HandleError(w, r, err)
		return false
	}
	h.logger.DebugContext(r.Context(), "undecodable request body", slog.String("error", err.Error()))
	verdict := h.service.Reject(r.Context(), op, chi.URLParam(r, TeamIDParam), callerFrom(r))
	h.writeVerdict(w, r, verdict)
	return false
}

func (h *LicenseHandler) writeVerdict(w http.ResponseWriter, r *http.Request, v license.Verdict) {
	render.Status(r, v.Code.HTTPStatus())
	render.JSON(w, r, api.Envelope{
		Data: nil,
		Result: api.Result{
			Timestamp:         h.clock.Now().UTC(),
			Valid:             v.Valid(),
			Details:           v.Code.Message(),
			Code:              string(v.Code),
			ChallengeResponse: v.ChallengeResponse,
		},
	})
}

func callerFrom(r *http.Request) license.Caller {
	ctx := r.Context()
	return license.Caller{
		IP:        middleware.ClientIP(r),
		Country:   middleware.GetCountry(ctx),
		RequestID: middleware.GetRequestID(ctx),
	}
}

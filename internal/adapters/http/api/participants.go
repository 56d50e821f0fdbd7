package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/crowdfund/internal/app"
	"github.com/okian/crowdfund/internal/domain/scorestore"
	"github.com/okian/crowdfund/pkg/logger"
)

// ParticipantHandler serves the per-wallet routes.
type ParticipantHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewParticipantHandler creates a new participant handler.
func NewParticipantHandler(deps Dependencies, l logger.Logger) *ParticipantHandler {
	return &ParticipantHandler{deps: deps, logger: l}
}

type scoreRequest struct {
	Score any `json:"score"`
}

type tierRequest struct {
	Tier any `json:"tier"`
}

type fundingResponse struct {
	Wallet  string `json:"wallet"`
	Funding any    `json:"funding"`
}

// HandleGetParticipant handles GET /participants/{wallet}.
func (h *ParticipantHandler) HandleGetParticipant(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_participant"
	v, err := h.deps.Participant(r.Context(), chi.URLParam(r, "wallet"))
	h.respond(w, r, op, v, err)
}

// HandleGetFunding handles GET /participants/{wallet}/funding.
func (h *ParticipantHandler) HandleGetFunding(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_funding"
	wallet := chi.URLParam(r, "wallet")
	amounts, err := h.deps.Funding(r.Context(), wallet)
	if err != nil {
		h.fail(w, r, op, service.ParticipantView{}, err)
		return
	}
	writeJSON(w, http.StatusOK, fundingResponse{Wallet: wallet, Funding: amounts})
}

// HandleSetScore handles PUT /participants/{wallet}/milestones/{index}.
func (h *ParticipantHandler) HandleSetScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.set_score"
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeKindError(w, WrapKind(op, scorestore.ErrInvalidMilestoneIndex, err))
		return
	}
	var req scoreRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeKindError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	score, err := parseNumber("score", req.Score)
	if err != nil {
		writeKindError(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	v, err := h.deps.SetScore(r.Context(), chi.URLParam(r, "wallet"), index, score)
	h.respond(w, r, op, v, err)
}

// HandleSetTier handles PUT /participants/{wallet}/tier.
func (h *ParticipantHandler) HandleSetTier(w http.ResponseWriter, r *http.Request) {
	const op = "api.set_tier"
	var req tierRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeKindError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	tier, err := parseNumber("tier", req.Tier)
	if err != nil {
		writeKindError(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	v, err := h.deps.SetTier(r.Context(), chi.URLParam(r, "wallet"), tier)
	h.respond(w, r, op, v, err)
}

func (h *ParticipantHandler) respond(w http.ResponseWriter, r *http.Request, op string, v service.ParticipantView, err error) {
	if err != nil {
		h.fail(w, r, op, v, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// fail writes the error; a store outage carries the last known-good view.
func (h *ParticipantHandler) fail(w http.ResponseWriter, r *http.Request, op string, v service.ParticipantView, err error) {
	err = Wrap(op, err)
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn(r.Context(), "request failed",
			logger.String("op", op),
			logger.String("request_id", RequestIDFrom(r.Context())),
			logger.Error(err),
		)
	}
	resp := errorResponse{Code: code, Message: err.Error()}
	if v.Stale && errors.Is(err, scorestore.ErrStoreUnavailable) {
		resp.Stale = &v
	}
	writeJSON(w, status, resp)
}

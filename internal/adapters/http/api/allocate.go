package api

import (
	"errors"
	"net/http"

	"github.com/okian/crowdfund/internal/domain/funding"
)

// AllocateHandler runs the allocator on request inputs.
type AllocateHandler struct {
	deps Dependencies
}

// NewAllocateHandler creates a new allocate handler.
func NewAllocateHandler(deps Dependencies) *AllocateHandler {
	return &AllocateHandler{deps: deps}
}

type allocateRequest struct {
	Scores     []any `json:"scores"`
	Tier       any   `json:"tier"`
	Multiplier any   `json:"multiplier,omitempty"`
}

type allocateResponse struct {
	Funding    []funding.Amount `json:"funding"`
	Total      string           `json:"total"`
	Multiplier *float64         `json:"multiplier,omitempty"`
}

// HandleAllocate handles POST /allocate. Scores are coerced leniently the
// way stored values are; tier and an explicit multiplier must be numeric.
func (h *AllocateHandler) HandleAllocate(w http.ResponseWriter, r *http.Request) {
	const op = "api.allocate"
	var req allocateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeKindError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Scores == nil {
		writeKindError(w, WrapKind(op, ErrBadRequest, errors.New("missing scores")))
		return
	}
	tier, err := parseNumber("tier", req.Tier)
	if err != nil {
		writeKindError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	var mult *float64
	if req.Multiplier != nil {
		m, err := parseNumber("multiplier", req.Multiplier)
		if err != nil {
			writeKindError(w, WrapKind(op, ErrBadRequest, err))
			return
		}
		mult = &m
	}

	scores := make([]float64, len(req.Scores))
	for i, s := range req.Scores {
		scores[i] = funding.Coerce(s)
	}
	amounts := h.deps.Allocate(scores, tier, mult)
	writeJSON(w, http.StatusOK, allocateResponse{
		Funding:    amounts,
		Total:      funding.Format(funding.Total(amounts)),
		Multiplier: mult,
	})
}

package scorestore

import (
	"errors"

	"github.com/okian/crowdfund/internal/domain/model"
)

// Sentinel kinds for score store errors.
var (
	ErrStoreUnavailable      = errors.New("record store unavailable")
	ErrInvalidMilestoneIndex = errors.New("invalid milestone index")
	ErrInvalidScoreValue     = errors.New("invalid milestone score")
	ErrInvalidTier           = errors.New("invalid tier")
	ErrInvalidWallet         = model.ErrInvalidWallet
)

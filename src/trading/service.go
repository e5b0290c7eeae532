package trading

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"tradingroom/src/model"
	"tradingroom/src/repository"
)

// ExceptionRecorder persists store failures. *repository.ExceptionRepository implements it.
type ExceptionRecorder interface {
	Create(ctx context.Context, exc *model.Exception) error
}

// service holds what every manager shares. Managers keep no state between
// calls: every read is a fresh store read.
type service struct {
	ledger     *repository.Ledger
	exceptions ExceptionRecorder
	logger     *logrus.Entry
	now        func() time.Time
	config     Config
	module     string
}

func newService(logger *logrus.Entry, ledger *repository.Ledger, exceptions ExceptionRecorder, module string) service {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return service{
		ledger:     ledger,
		exceptions: exceptions,
		logger:     logger.WithField("module", module),
		now:        func() time.Time { return time.Now().UTC() },
		config:     GetConfig(),
		module:     module,
	}
}

// capture records store failures as exceptions. Validation errors, missing
// rows and lost races are expected outcomes and are not recorded.
func (s *service) capture(ctx context.Context, method string, err error, entityType string, entityID uint) {
	if err == nil || !errors.Is(err, ErrStore) {
		return
	}

	s.logger.WithFields(logrus.Fields{
		"method":      method,
		"entity_type": entityType,
		"entity_id":   entityID,
	}).WithError(err).Error("System exception captured")

	if s.exceptions == nil {
		return
	}

	exc := &model.Exception{
		Service:    s.config.ExceptionService,
		Module:     s.module,
		Method:     method,
		Message:    err.Error(),
		Level:      "error",
		EntityType: entityType,
		CreatedAt:  s.now(),
	}
	if entityID != 0 {
		id := entityID
		exc.EntityID = &id
	}

	if e := s.exceptions.Create(context.WithoutCancel(ctx), exc); e != nil {
		s.logger.WithError(e).Error("Failed to persist exception")
	}
}

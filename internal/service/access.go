package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/emrgen/docvault/internal/model"
)

var authorizationDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "docvault",
	Name:      "authorization_decisions_total",
	Help:      "Access decisions by required level and outcome.",
}, []string{"required", "outcome"})

// Authority decides whether a user may act on a document. It only reads the ledger.
type Authority struct {
	ledger *PermissionLedger
}

func NewAuthority(ledger *PermissionLedger) *Authority {
	return &Authority{ledger: ledger}
}

// Authorize returns the caller's level when it is at least required. Denials wrap
// ErrForbidden together with ErrNoGrant or ErrInsufficientLevel.
func (a *Authority) Authorize(ctx context.Context, userID, docID uuid.UUID, required model.Level) (model.Level, error) {
	if !required.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidLevel, required)
	}

	level, ok, err := a.ledger.ResolveLevel(ctx, userID, docID)
	if err != nil {
		return "", err
	}

	fields := logrus.Fields{
		"user":     userID,
		"document": docID,
		"required": required,
	}

	if !ok {
		authorizationDecisions.WithLabelValues(required.String(), "no_grant").Inc()
		logrus.WithFields(fields).Info("access denied: no grant")
		return "", fmt.Errorf("%w: %w", ErrForbidden, ErrNoGrant)
	}

	if !level.AtLeast(required) {
		authorizationDecisions.WithLabelValues(required.String(), "insufficient_level").Inc()
		logrus.WithFields(fields).WithField("level", level).Info("access denied: insufficient level")
		return "", fmt.Errorf("%w: %w", ErrForbidden, ErrInsufficientLevel)
	}

	authorizationDecisions.WithLabelValues(required.String(), "allowed").Inc()
	return level, nil
}

// AuthorizeOperation authorizes op against its fixed minimum level.
func (a *Authority) AuthorizeOperation(ctx context.Context, userID, docID uuid.UUID, op model.Operation) (model.Level, error) {
	required, ok := op.RequiredLevel()
	if !ok {
		return "", fmt.Errorf("%w: unknown operation %q", ErrInvalidArgument, op)
	}

	return a.Authorize(ctx, userID, docID, required)
}

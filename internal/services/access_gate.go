// Package services – AccessGate
//
// AccessGate is the single predicate deciding whether a talent and a business
// may currently communicate. It is evaluated from scratch on every call; no
// result is cached, because either party may discontinue the connection at
// any moment.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/creerlio/connect-gate/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AccessResult is the outcome of a gate check.
type AccessResult struct {
	Allowed      bool   `json:"allowed"`
	Reason       string `json:"reason,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
}

var gateDecisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "access_gate_decisions_total",
		Help: "Access gate decisions by result.",
	},
	[]string{"result"}, // allowed | denied | error
)

func init() {
	prometheus.MustRegister(gateDecisions)
}

// AccessGate answers canCommunicate(talentID, businessID).
type AccessGate struct {
	DB *gorm.DB
}

// Check reports whether the pair has an accepted connection request. With
// several accepted rows the most recently responded one is reported. Store
// failures are returned as *TransientStoreError and never read as a denial.
func (g *AccessGate) Check(ctx context.Context, talentID, businessID string) (AccessResult, error) {
	tr := otel.Tracer("services/AccessGate")
	ctx, span := tr.Start(ctx, "Check",
		trace.WithAttributes(
			attribute.String("talent.id", talentID),
			attribute.String("business.id", businessID),
		),
	)
	defer span.End()

	if strings.TrimSpace(talentID) == "" || strings.TrimSpace(businessID) == "" {
		gateDecisions.WithLabelValues("denied").Inc()
		return AccessResult{Allowed: false, Reason: AccessDeniedMessage}, nil
	}

	conn, err := repo.LatestAcceptedConnection(ctx, g.DB, talentID, businessID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		gateDecisions.WithLabelValues("denied").Inc()
		span.SetAttributes(attribute.Bool("access.allowed", false))
		return AccessResult{Allowed: false, Reason: AccessDeniedMessage}, nil
	case err != nil:
		gateDecisions.WithLabelValues("error").Inc()
		span.RecordError(err)
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("talent_id", talentID).
			Str("business_id", businessID).
			Msg("access gate lookup failed")
		return AccessResult{}, storeErr("check access", err)
	}

	gateDecisions.WithLabelValues("allowed").Inc()
	span.SetAttributes(attribute.Bool("access.allowed", true))
	return AccessResult{Allowed: true, ConnectionID: conn.ID}, nil
}

// Require is Check turned into an error: ErrAccessDenied when the pair may
// not communicate.
func (g *AccessGate) Require(ctx context.Context, talentID, businessID string) (AccessResult, error) {
	res, err := g.Check(ctx, talentID, businessID)
	if err != nil {
		return res, err
	}
	if !res.Allowed {
		return res, ErrAccessDenied
	}
	return res, nil
}

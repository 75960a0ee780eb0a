package sweeper

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/agreement"
	"github.com/Ramsey-B/fern/internal/repositories/intervention"
	"github.com/Ramsey-B/fern/internal/repositories/partner"
	"github.com/Ramsey-B/fern/pkg/hact"
	"github.com/Ramsey-B/fern/pkg/lifecycle"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Sweeper runs the time-driven jobs: agreement auto-end, intervention
// auto-transitions, contingency expiry, and the nightly HACT recompute. Each
// job runs under a redis lock so only one replica sweeps at a time.
type Sweeper struct {
	partners      *partner.Repository
	agreements    *agreement.Repository
	interventions *intervention.Repository
	agreementSvc  *lifecycle.AgreementService
	intervSvc     *lifecycle.InterventionService
	aggregator    *hact.Aggregator
	locker        *redis.Locker

	pollInterval time.Duration
	lockTTL      time.Duration
	batchSize    int
	hactHourUTC  int

	lastHactSweep time.Time
	logger        ectologger.Logger
}

// New creates a new sweeper
func New(
	cfg *config.Config,
	partners *partner.Repository,
	agreements *agreement.Repository,
	interventions *intervention.Repository,
	agreementSvc *lifecycle.AgreementService,
	intervSvc *lifecycle.InterventionService,
	aggregator *hact.Aggregator,
	locker *redis.Locker,
	logger ectologger.Logger,
) *Sweeper {
	return &Sweeper{
		partners:      partners,
		agreements:    agreements,
		interventions: interventions,
		agreementSvc:  agreementSvc,
		intervSvc:     intervSvc,
		aggregator:    aggregator,
		locker:        locker,
		pollInterval:  cfg.SweeperPollInterval,
		lockTTL:       cfg.SweeperLockTTL,
		batchSize:     cfg.SweeperBatchSize,
		hactHourUTC:   cfg.HactSweepHourUTC,
		logger:        logger,
	}
}

// Run polls until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.logger.WithContext(ctx).Info("Sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.WithContext(ctx).Info("Sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "sweeper.Sweeper.sweep")
	defer span.End()

	tenants, err := s.partners.ListTenants(ctx)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list tenants for sweep")
		return
	}

	s.runJob(ctx, "agreement_auto_end", func(ctx context.Context) error {
		return s.forEachTenant(ctx, tenants, s.sweepAgreements)
	})
	s.runJob(ctx, "intervention_auto_transition", func(ctx context.Context) error {
		return s.forEachTenant(ctx, tenants, s.sweepInterventions)
	})
	s.runJob(ctx, "contingency_expiry", func(ctx context.Context) error {
		return s.forEachTenant(ctx, tenants, s.sweepContingency)
	})

	if s.hactDue() {
		s.runJob(ctx, "hact_nightly", func(ctx context.Context) error {
			if err := s.forEachTenant(ctx, tenants, s.sweepHact); err != nil {
				return err
			}
			s.lastHactSweep = time.Now().UTC()
			return nil
		})
	}
}

// runJob executes one named job under its lock and records the outcome. A
// held lock means another replica is sweeping; that is not a failure.
func (s *Sweeper) runJob(ctx context.Context, name string, fn func(ctx context.Context) error) {
	started := time.Now()
	err := s.locker.WithLock(ctx, "sweeper:"+name, s.lockTTL, func() error {
		return fn(ctx)
	})
	status := "ok"
	if err != nil {
		status = "error"
		s.logger.WithContext(ctx).WithError(err).WithField("job", name).Error("Sweeper job failed")
	}
	metrics.RecordSweeperJob(name, status, time.Since(started).Seconds())
}

func (s *Sweeper) forEachTenant(ctx context.Context, tenants []string, fn func(ctx context.Context, tenantID string) error) error {
	var firstErr error
	for _, tenantID := range tenants {
		if err := fn(ctx, tenantID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// sweepAgreements ends signed agreements whose end date has passed.
func (s *Sweeper) sweepAgreements(ctx context.Context, tenantID string) error {
	expired, err := s.agreements.ListExpired(ctx, tenantID, time.Now().UTC(), s.batchSize)
	if err != nil {
		return err
	}
	for _, a := range expired {
		if _, err := s.agreementSvc.Transition(ctx, tenantID, a.ID, models.AgreementStatusEnded, nil); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("agreement_id", a.ID).Warn("Agreement auto-end skipped")
		}
	}
	return nil
}

// autoTargets maps the statuses the sweeper advances to their targets. The
// guards decide whether each candidate actually moves.
var autoTargets = map[string]string{
	models.InterventionStatusSigned: models.InterventionStatusActive,
	models.InterventionStatusActive: models.InterventionStatusEnded,
	models.InterventionStatusEnded:  models.InterventionStatusClosed,
}

func (s *Sweeper) sweepInterventions(ctx context.Context, tenantID string) error {
	statuses := make([]string, 0, len(autoTargets))
	for status := range autoTargets {
		statuses = append(statuses, status)
	}
	candidates, err := s.interventions.ListForAutoTransition(ctx, tenantID, statuses, s.batchSize)
	if err != nil {
		return err
	}
	for _, i := range candidates {
		target := autoTargets[i.Status]
		if _, err := s.intervSvc.Transition(ctx, tenantID, i.ID, target, nil); err != nil {
			// Most candidates legitimately fail a guard (date not reached,
			// outstanding funds); they stay put until the next sweep.
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"intervention_id": i.ID,
				"target":          target,
			}).Debug("Intervention auto-transition skipped")
		}
	}
	return nil
}

// sweepContingency expires signed contingency documents once every linked
// country programme has ended without an activation.
func (s *Sweeper) sweepContingency(ctx context.Context, tenantID string) error {
	candidates, err := s.interventions.ListForAutoTransition(ctx, tenantID, []string{models.InterventionStatusSigned}, s.batchSize)
	if err != nil {
		return err
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	for _, candidate := range candidates {
		if !candidate.ContingencyPD {
			continue
		}
		i, err := s.interventions.GetByID(ctx, tenantID, candidate.ID)
		if err != nil || i == nil {
			continue
		}
		if len(i.CountryProgrammes) == 0 {
			continue
		}
		allEnded := true
		for _, cpID := range i.CountryProgrammes {
			cp, err := s.agreements.GetCountryProgramme(ctx, tenantID, cpID)
			if err != nil {
				return err
			}
			if cp == nil || !cp.ToDate.Before(today) {
				allEnded = false
				break
			}
		}
		if !allEnded {
			continue
		}
		if _, err := s.intervSvc.Transition(ctx, tenantID, i.ID, models.InterventionStatusExpired, nil); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("intervention_id", i.ID).Warn("Contingency expiry skipped")
		}
	}
	return nil
}

func (s *Sweeper) sweepHact(ctx context.Context, tenantID string) error {
	ids, err := s.partners.ListIDs(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, partnerID := range ids {
		if err := s.aggregator.Refresh(ctx, tenantID, partnerID, "nightly"); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("partner_id", partnerID).Warn("Nightly HACT refresh failed")
		}
	}
	return nil
}

// hactDue gates the nightly recompute to once per UTC day after the
// configured hour.
func (s *Sweeper) hactDue() bool {
	now := time.Now().UTC()
	if now.Hour() < s.hactHourUTC {
		return false
	}
	return s.lastHactSweep.IsZero() || s.lastHactSweep.YearDay() != now.YearDay() || s.lastHactSweep.Year() != now.Year()
}

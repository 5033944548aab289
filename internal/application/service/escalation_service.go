package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/garyjia/controlled-docs/internal/application/dispatcher"
	"github.com/garyjia/controlled-docs/internal/application/port"
	"github.com/garyjia/controlled-docs/internal/domain/entity"
	"github.com/garyjia/controlled-docs/internal/domain/event"
	"github.com/garyjia/controlled-docs/internal/domain/policy"
	domainwf "github.com/garyjia/controlled-docs/internal/domain/workflow"
)

// EscalationService turns overdue reviews into escalation records
type EscalationService interface {
	// RunOnce records every newly crossed escalation level as of now and
	// returns how many records were created
	RunOnce(ctx context.Context, now time.Time) (int, error)

	// ListByVersion returns the escalation records of a version
	ListByVersion(ctx context.Context, versionID string) ([]*entity.EscalationRecord, error)
}

type escalationServiceImpl struct {
	versions    port.VersionRepository
	policies    port.PolicyRepository
	escalations port.EscalationRepository
	txManager   port.TransactionManager
	dispatcher  dispatcher.Dispatcher
	logger      Logger
	concurrency int
}

// NewEscalationService creates a new EscalationService. concurrency bounds
// how many projects are scanned in parallel.
func NewEscalationService(
	versions port.VersionRepository,
	policies port.PolicyRepository,
	escalations port.EscalationRepository,
	txManager port.TransactionManager,
	d dispatcher.Dispatcher,
	logger Logger,
	concurrency int,
) EscalationService {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &escalationServiceImpl{
		versions:    versions,
		policies:    policies,
		escalations: escalations,
		txManager:   txManager,
		dispatcher:  d,
		logger:      logger,
		concurrency: concurrency,
	}
}

// RunOnce scans IN_REVIEW versions grouped by project
func (s *escalationServiceImpl) RunOnce(ctx context.Context, now time.Time) (int, error) {
	refs, err := s.versions.ListInReview(ctx)
	if err != nil {
		return 0, fmt.Errorf("list versions in review: %w", err)
	}

	byProject := make(map[string][]entity.VersionRef)
	var order []string
	for _, ref := range refs {
		if ref.At.IsZero() {
			continue
		}
		if _, ok := byProject[ref.ProjectID]; !ok {
			order = append(order, ref.ProjectID)
		}
		byProject[ref.ProjectID] = append(byProject[ref.ProjectID], ref)
	}

	var created atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, projectID := range order {
		projectID := projectID
		g.Go(func() error {
			n, err := s.scanProject(gctx, projectID, byProject[projectID], now)
			created.Add(int64(n))
			return err
		})
	}

	err = g.Wait()
	if err != nil {
		s.logger.Error("Escalation scan aborted", "error", err, "created", created.Load())
		return int(created.Load()), err
	}

	if created.Load() > 0 {
		s.logger.Info("Escalation scan completed", "versions_in_review", len(refs), "created", created.Load())
	}
	return int(created.Load()), nil
}

func (s *escalationServiceImpl) scanProject(ctx context.Context, projectID string, refs []entity.VersionRef, now time.Time) (int, error) {
	pp, err := s.policies.Get(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("load policy for project %s: %w", projectID, err)
	}
	if pp == nil || !pp.Escalation.Enabled || len(pp.Escalation.Levels) == 0 {
		return 0, nil
	}

	created := 0
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		n, err := s.escalateVersion(ctx, pp.Escalation, ref, now)
		created += n
		if err != nil {
			return created, err
		}
	}
	return created, nil
}

// errReviewClosed aborts an escalation whose version left IN_REVIEW after the scan
var errReviewClosed = errors.New("review closed")

// escalateVersion advances the per-version mark and inserts the records for
// every newly crossed level in one transaction
func (s *escalationServiceImpl) escalateVersion(ctx context.Context, chain entity.EscalationChain, ref entity.VersionRef, now time.Time) (int, error) {
	last, err := s.escalations.LastNotified(ctx, ref.VersionID)
	if err != nil {
		return 0, fmt.Errorf("escalation mark of %s: %w", ref.VersionID, err)
	}

	due := policy.DueLevels(chain, ref.At, now, last)
	if len(due) == 0 {
		return 0, nil
	}

	records := make([]*entity.EscalationRecord, 0, len(due))
	for _, lvl := range due {
		records = append(records, &entity.EscalationRecord{
			ID:          uuid.NewString(),
			VersionID:   ref.VersionID,
			DocumentID:  ref.DocumentID,
			ProjectID:   ref.ProjectID,
			Level:       lvl.Level,
			DaysAfter:   lvl.DaysAfter,
			NotifyRole:  lvl.NotifyRole,
			NotifyUsers: append([]string(nil), lvl.NotifyUsers...),
			TriggeredAt: now,
			Status:      entity.EscalationPending,
		})
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		v, err := s.versions.GetByID(txCtx, ref.VersionID)
		if err != nil {
			return fmt.Errorf("get version: %w", err)
		}
		if v == nil || v.State != domainwf.StateInReview {
			return errReviewClosed
		}
		if err := s.escalations.AdvanceMark(txCtx, ref.VersionID, last, due[len(due)-1].DaysAfter, now); err != nil {
			return err
		}
		for _, rec := range records {
			if err := s.escalations.Create(txCtx, rec); err != nil {
				return fmt.Errorf("create escalation record level %d: %w", rec.Level, err)
			}
		}
		return nil
	})
	if errors.Is(err, domainwf.ErrStaleState) {
		// Another scheduler instance got there first
		s.logger.Warn("Escalation already recorded", "version_id", ref.VersionID, "notified_days", last)
		return 0, nil
	}
	if errors.Is(err, errReviewClosed) {
		s.logger.Info("Review closed before escalation", "version_id", ref.VersionID)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("escalate version %s: %w", ref.VersionID, err)
	}

	for _, rec := range records {
		s.logger.Info("Version escalated",
			"version_id", rec.VersionID,
			"document", ref.Title,
			"level", rec.Level,
			"days_after", rec.DaysAfter,
			"notify_role", rec.NotifyRole,
			"elapsed_days", policy.ElapsedDays(ref.At, now),
		)
		if s.dispatcher != nil {
			evt := event.NewEscalation(rec.DocumentID, rec.VersionID, rec.Level, string(rec.NotifyRole), rec.NotifyUsers, now).
				WithPayload(event.KeyRecordID, rec.ID).
				WithPayload(event.KeyProjectID, rec.ProjectID)
			s.dispatcher.DispatchAsync(ctx, evt)
		}
	}

	return len(records), nil
}

// ListByVersion returns the escalation records of a version
func (s *escalationServiceImpl) ListByVersion(ctx context.Context, versionID string) ([]*entity.EscalationRecord, error) {
	records, err := s.escalations.ListByVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("list escalation records: %w", err)
	}
	return records, nil
}

package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/felixgeelhaar/fortify/retry"

	"github.com/garyjia/controlled-docs/internal/application/port"
	"github.com/garyjia/controlled-docs/internal/domain/entity"
	domainwf "github.com/garyjia/controlled-docs/internal/domain/workflow"
)

// NotificationService delivers pending escalation records to the notification collaborator
type NotificationService interface {
	// DeliverPending sends every pending or failed record below the attempt limit
	// and returns how many were delivered
	DeliverPending(ctx context.Context) (int, error)
}

// DeliveryConfig bounds delivery retries
type DeliveryConfig struct {
	// MaxAttempts is the number of delivery rounds before a record is given up
	MaxAttempts int
	// RetryAttempts is the number of immediate retries within one round
	RetryAttempts int
	RetryDelay    time.Duration
	BatchSize     int
}

type notificationServiceImpl struct {
	escalations port.EscalationRepository
	documents   port.DocumentRepository
	versions    port.VersionRepository
	policies    port.PolicyRepository
	notifier    port.Notifier
	retrier     retry.Retry[struct{}]
	config      DeliveryConfig
	logger      Logger
	now         func() time.Time
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	escalations port.EscalationRepository,
	documents port.DocumentRepository,
	versions port.VersionRepository,
	policies port.PolicyRepository,
	notifier port.Notifier,
	config DeliveryConfig,
	logger Logger,
) NotificationService {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 500 * time.Millisecond
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}

	return &notificationServiceImpl{
		escalations: escalations,
		documents:   documents,
		versions:    versions,
		policies:    policies,
		notifier:    notifier,
		retrier: retry.New[struct{}](retry.Config{
			MaxAttempts:        config.RetryAttempts,
			InitialDelay:       config.RetryDelay,
			BackoffPolicy:      retry.BackoffExponential,
			Multiplier:         2.0,
			NonRetryableErrors: []error{port.ErrDeliveryRejected},
		}),
		config: config,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// DeliverPending sends pending escalation records. A failed record is marked
// FAILED with its attempt count and picked up again on a later run. Records of
// versions that are no longer IN_REVIEW are marked SKIPPED without sending.
func (s *notificationServiceImpl) DeliverPending(ctx context.Context) (int, error) {
	records, err := s.escalations.ListPending(ctx, s.config.MaxAttempts, s.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending escalations: %w", err)
	}

	delivered := 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}

		v, err := s.versions.GetByID(ctx, rec.VersionID)
		if err != nil {
			return delivered, fmt.Errorf("get version: %w", err)
		}
		if v == nil || v.State != domainwf.StateInReview {
			s.logger.Info("Review closed, escalation skipped", "record_id", rec.ID, "version_id", rec.VersionID)
			if err := s.escalations.MarkSkipped(ctx, rec.ID, errReviewClosed.Error()); err != nil {
				return delivered, fmt.Errorf("mark escalation skipped: %w", err)
			}
			continue
		}

		msg, err := s.buildMessage(ctx, rec, v)
		if err != nil {
			return delivered, err
		}

		if len(msg.Recipients) == 0 {
			s.logger.Warn("Escalation has no recipients", "record_id", rec.ID, "level", rec.Level, "notify_role", rec.NotifyRole)
			if err := s.escalations.MarkFailed(ctx, rec.ID, "no recipients resolved"); err != nil {
				return delivered, fmt.Errorf("mark escalation failed: %w", err)
			}
			continue
		}

		_, sendErr := s.retrier.Do(ctx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.notifier.NotifyEscalation(ctx, msg)
		})
		if sendErr != nil {
			s.logger.Error("Failed to deliver escalation",
				"error", sendErr,
				"record_id", rec.ID,
				"version_id", rec.VersionID,
				"attempts", rec.Attempts+1,
			)
			if err := s.escalations.MarkFailed(ctx, rec.ID, sendErr.Error()); err != nil {
				return delivered, fmt.Errorf("mark escalation failed: %w", err)
			}
			continue
		}

		if err := s.escalations.MarkSent(ctx, rec.ID, s.now()); err != nil {
			return delivered, fmt.Errorf("mark escalation sent: %w", err)
		}
		delivered++

		s.logger.Info("Escalation delivered",
			"record_id", rec.ID,
			"version_id", rec.VersionID,
			"level", rec.Level,
			"recipients", len(msg.Recipients),
		)
	}

	return delivered, nil
}

func (s *notificationServiceImpl) buildMessage(ctx context.Context, rec *entity.EscalationRecord, v *entity.DocumentVersion) (port.EscalationMessage, error) {
	msg := port.EscalationMessage{Record: rec, VersionString: v.VersionString}

	doc, err := s.documents.GetByID(ctx, rec.DocumentID)
	if err != nil {
		return msg, fmt.Errorf("get document: %w", err)
	}
	if doc != nil {
		msg.DocumentTitle = doc.Title
		msg.DocType = doc.DocType
	}

	pp, err := s.policies.Get(ctx, rec.ProjectID)
	if err != nil {
		return msg, fmt.Errorf("load policy: %w", err)
	}
	msg.Recipients = Recipients(rec, pp)
	return msg, nil
}

// Recipients resolves the explicit users of a record plus every project member
// holding its notify role, deduplicated and sorted
func Recipients(rec *entity.EscalationRecord, pp *entity.ProjectPolicy) []string {
	seen := make(map[string]bool)
	for _, u := range rec.NotifyUsers {
		if u != "" {
			seen[u] = true
		}
	}
	if rec.NotifyRole != "" && pp != nil {
		for _, m := range pp.Members {
			for _, r := range m.Roles {
				if r == rec.NotifyRole {
					seen[m.UserID] = true
					break
				}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

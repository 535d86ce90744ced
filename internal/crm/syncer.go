package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/realty-ai-agent/internal/qualification"
	"github.com/wolfman30/realty-ai-agent/internal/store"
	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

var tracer = otel.Tracer("realty/crm-sync")

// PersonUpdater is the slice of the CRM API the syncer needs.
type PersonUpdater interface {
	UpdatePerson(ctx context.Context, personID string, fields map[string]any) error
	AddNote(ctx context.Context, personID, subject, body string) error
}

// SnapshotSaver persists the qualification snapshot locally.
type SnapshotSaver interface {
	Save(ctx context.Context, rec store.QualificationRecord) error
}

// SyncRequest is one qualification push.
type SyncRequest struct {
	LeadID        string
	PersonID      string
	State         string
	Data          qualification.Data
	HandoffReason string
}

// Syncer mirrors qualification data into the local store and the CRM.
type Syncer struct {
	people    PersonUpdater
	snapshots SnapshotSaver
	statuses  map[string]Status
	logger    *logging.Logger
}

type SyncerOption func(*Syncer)

// WithStatusMap overrides the state to referral status mapping.
func WithStatusMap(m map[string]Status) SyncerOption {
	return func(s *Syncer) {
		if len(m) > 0 {
			s.statuses = m
		}
	}
}

// NewSyncer accepts nil collaborators; the matching half of the sync is
// skipped.
func NewSyncer(people PersonUpdater, snapshots SnapshotSaver, logger *logging.Logger, opts ...SyncerOption) *Syncer {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Syncer{
		people:    people,
		snapshots: snapshots,
		statuses:  DefaultStatusMap(),
		logger:    logger.WithComponent("crm-sync"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncQualification saves the snapshot and pushes it to the CRM person.
// Both halves run even if the other fails.
func (s *Syncer) SyncQualification(ctx context.Context, req SyncRequest) error {
	ctx, span := tracer.Start(ctx, "crm.sync_qualification")
	defer span.End()
	span.SetAttributes(
		attribute.String("crm.lead_id", req.LeadID),
		attribute.String("crm.state", req.State),
		attribute.Int("crm.score", req.Data.QualificationScore),
	)

	var errs []error
	if s.snapshots != nil && req.LeadID != "" {
		if err := s.snapshots.Save(ctx, store.QualificationRecord{
			LeadID:   req.LeadID,
			PersonID: req.PersonID,
			State:    req.State,
			Data:     req.Data,
		}); err != nil {
			errs = append(errs, err)
		}
	}

	if s.people != nil && req.PersonID != "" {
		if err := s.people.UpdatePerson(ctx, req.PersonID, s.PersonFields(req.State, req.Data)); err != nil {
			errs = append(errs, err)
		}
		if req.HandoffReason != "" {
			if err := s.people.AddNote(ctx, req.PersonID, "AI agent handoff", handoffNote(req)); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		return err
	}
	s.logger.Debug("qualification synced", "lead_id", req.LeadID, "state", req.State, "score", req.Data.QualificationScore)
	return nil
}

// PersonFields maps qualification data and conversation state onto CRM
// custom fields.
func (s *Syncer) PersonFields(state string, d qualification.Data) map[string]any {
	fields := map[string]any{
		"customAIQualificationScore": d.QualificationScore,
		"customAIPreApproved":        d.IsPreApproved,
	}
	if d.Timeline != "" {
		fields["customAITimeline"] = d.Timeline
	}
	if budget := budgetLabel(d); budget != "" {
		fields["customAIBudget"] = budget
	}
	if len(d.LocationPreferences) > 0 {
		fields["customAILocations"] = strings.Join(d.LocationPreferences, ", ")
	}
	if len(d.PropertyTypes) > 0 {
		fields["customAIPropertyTypes"] = strings.Join(d.PropertyTypes, ", ")
	}
	if d.Motivation != "" {
		fields["customAIMotivation"] = d.Motivation
	}
	if status, ok := s.statuses[strings.ToLower(state)]; ok {
		fields["stage"] = status.Primary
		if status.SubOption != "" {
			fields["customReferralSubStatus"] = status.SubOption
		}
	}
	return fields
}

func budgetLabel(d qualification.Data) string {
	switch {
	case d.BudgetRangeLow > 0 && d.BudgetRangeHigh > 0:
		return fmt.Sprintf("%d-%d", d.BudgetRangeLow, d.BudgetRangeHigh)
	case d.Budget > 0:
		return fmt.Sprintf("%d", d.Budget)
	default:
		return ""
	}
}

func handoffNote(req SyncRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Handoff reason: %s\n", req.HandoffReason)
	fmt.Fprintf(&b, "Qualification score: %d\n", req.Data.QualificationScore)
	if req.Data.Timeline != "" {
		fmt.Fprintf(&b, "Timeline: %s\n", req.Data.Timeline)
	}
	if budget := budgetLabel(req.Data); budget != "" {
		fmt.Fprintf(&b, "Budget: %s\n", budget)
	}
	return strings.TrimSpace(b.String())
}

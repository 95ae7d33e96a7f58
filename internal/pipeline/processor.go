// Package pipeline owns the lifecycle of every email record: gate
// evaluation, the billable detection and extraction stages, manual
// approve/reject, and the ERP price sync. All EmailState mutation happens
// here, serialized per message_id.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-mfg/pricewatch/internal/domain/entity"
	"github.com/meridian-mfg/pricewatch/internal/domain/workflow"
	"github.com/meridian-mfg/pricewatch/internal/erp"
	"github.com/meridian-mfg/pricewatch/internal/gate"
	"github.com/meridian-mfg/pricewatch/internal/monitoring"
)

// EmailStore persists immutable email records
type EmailStore interface {
	Insert(ctx context.Context, rec *entity.EmailRecord) error
	Get(ctx context.Context, messageID string) (*entity.EmailRecord, error)
}

// StateStore persists mutable email state
type StateStore interface {
	Get(ctx context.Context, messageID string) (*entity.EmailState, error)
	Upsert(ctx context.Context, state *entity.EmailState) error
	ListPending(ctx context.Context) ([]*entity.EmailState, error)
}

// ImpactStore reads the current BOM impact generation for sync checks
type ImpactStore interface {
	GetByMessage(ctx context.Context, messageID string) ([]*entity.BomImpactResult, error)
}

// BodyStore stores and loads raw analysis bodies by reference
type BodyStore interface {
	Save(messageID, body string) (string, error)
	Load(ref string) (string, error)
}

// DetectionStage is the billable classification call. Requiring a
// gate.Verdict argument makes the stage unreachable without the gate.
type DetectionStage interface {
	Classify(ctx context.Context, clearance gate.Verdict, rec *entity.EmailRecord, body string) (*entity.DetectionOutcome, error)
}

// ExtractionStage is the billable structured-extraction call
type ExtractionStage interface {
	Extract(ctx context.Context, clearance gate.Verdict, rec *entity.EmailRecord, body string) (*entity.ExtractedPriceChange, error)
}

// ImpactAnalyzer produces a BOM impact generation from extracted data
type ImpactAnalyzer interface {
	Analyze(ctx context.Context, messageID string) ([]*entity.BomImpactResult, error)
}

// Notifier pushes reviewer-facing notifications; implementations must be
// non-blocking-safe (failures are logged, never propagated).
type Notifier interface {
	EmailParked(ctx context.Context, rec *entity.EmailRecord, reason string)
	SyncBlocked(ctx context.Context, messageID string, blockers, warnings []string)
}

// ProcessOutcome is the result of processing one email through detection
// and (when confirmed) extraction.
type ProcessOutcome struct {
	MessageID           string                       `json:"message_id"`
	IsPriceChange       bool                         `json:"is_price_change"`
	DetectionConfidence float64                      `json:"detection_confidence"`
	DetectionReasoning  string                       `json:"detection_reasoning"`
	Extraction          *entity.ExtractedPriceChange `json:"extraction_result,omitempty"`
	AlreadyProcessed    bool                         `json:"already_processed"`
}

// SyncResult reports an ERP price sync
type SyncResult struct {
	MessageID string   `json:"message_id"`
	Pushed    int      `json:"pushed"`
	Skipped   int      `json:"skipped"`
	Warnings  []string `json:"warnings,omitempty"`
	Forced    bool     `json:"forced"`
}

// Processor drives the email workflow state machine
type Processor struct {
	emails    EmailStore
	states    StateStore
	impacts   ImpactStore
	bodies    BodyStore
	gate      *gate.Gate
	detector  DetectionStage
	extractor ExtractionStage
	analyzer  ImpactAnalyzer
	priceSync erp.PriceSync
	notifier  Notifier
	locks     *keyedMutex
	metrics   *monitoring.Metrics
	logger    *zap.Logger
}

// Deps bundles the processor's collaborators
type Deps struct {
	Emails    EmailStore
	States    StateStore
	Impacts   ImpactStore
	Bodies    BodyStore
	Gate      *gate.Gate
	Detector  DetectionStage
	Extractor ExtractionStage
	Analyzer  ImpactAnalyzer
	PriceSync erp.PriceSync
	Notifier  Notifier
	Metrics   *monitoring.Metrics
}

// NewProcessor creates the pipeline processor
func NewProcessor(deps Deps, logger *zap.Logger) *Processor {
	return &Processor{
		emails:    deps.Emails,
		states:    deps.States,
		impacts:   deps.Impacts,
		bodies:    deps.Bodies,
		gate:      deps.Gate,
		detector:  deps.Detector,
		extractor: deps.Extractor,
		analyzer:  deps.Analyzer,
		priceSync: deps.PriceSync,
		notifier:  deps.Notifier,
		locks:     newKeyedMutex(),
		metrics:   deps.Metrics,
		logger:    logger,
	}
}

// Ingest records a new inbound email, evaluates the gate, and — only for
// verified senders — runs detection immediately. Unverified senders are
// parked in pending_review without any billable spend.
func (p *Processor) Ingest(ctx context.Context, inbound entity.InboundEmail) (*entity.EmailState, error) {
	rec := inbound.Record
	if !p.locks.Acquire(rec.MessageID) {
		return nil, fmt.Errorf("%w: %s", ErrTransitionConflict, rec.MessageID)
	}
	defer p.locks.Release(rec.MessageID)

	if existing, err := p.states.Get(ctx, rec.MessageID); err != nil {
		return nil, err
	} else if existing != nil {
		// Re-delivery of a known message: ingestion is idempotent.
		return existing, nil
	}

	bodyRef, err := p.bodies.Save(rec.MessageID, inbound.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to store body: %w", err)
	}
	rec.BodyRef = bodyRef
	if err := p.emails.Insert(ctx, &rec); err != nil {
		return nil, err
	}

	verdict := p.gate.Evaluate(rec.Sender)
	state := &entity.EmailState{
		MessageID:         rec.MessageID,
		AwaitingDetection: true,
	}

	if !verdict.Verified() {
		state.VerificationStatus = entity.StatusPendingReview
		state.FlaggedReason = gate.FlagReason(rec.Sender)
		if err := p.states.Upsert(ctx, state); err != nil {
			return nil, err
		}
		p.metrics.GateOutcomes.WithLabelValues("parked").Inc()
		p.logger.Info("Email parked for review",
			zap.String("message_id", rec.MessageID),
			zap.String("sender", rec.Sender))
		if p.notifier != nil {
			p.notifier.EmailParked(ctx, &rec, state.FlaggedReason)
		}
		return state, nil
	}

	state.VerificationStatus = entity.StatusVerified
	state.VerificationMethod = verdict.Method()
	state.VendorID = verdict.Vendor().VendorID
	state.VendorName = verdict.Vendor().VendorName
	p.metrics.GateOutcomes.WithLabelValues("verified").Inc()

	if _, err := p.runBillableStages(ctx, verdict, &rec, inbound.Body, state); err != nil {
		// Auto-path stage failures leave the email verified with
		// awaiting_detection set, so it can be retried; verification
		// itself never reverts.
		p.logger.Warn("Billable stages failed on verified email, left awaiting detection",
			zap.String("message_id", rec.MessageID),
			zap.Error(err))
		if upErr := p.states.Upsert(ctx, state); upErr != nil {
			return nil, upErr
		}
		return state, nil
	}

	if err := p.states.Upsert(ctx, state); err != nil {
		return nil, err
	}
	p.runAnalysisIfPriceChange(ctx, state)
	return state, nil
}

// ApproveAndProcess transitions a parked email to manually_approved and
// runs the billable stages. Approval is all-or-nothing: if any stage fails
// or times out, nothing is persisted and the email remains pending_review.
// Re-approving an already processed email is a no-op returning the cached
// result; billable stages are never invoked twice for the same message.
func (p *Processor) ApproveAndProcess(ctx context.Context, messageID, reviewer string) (*ProcessOutcome, error) {
	if !p.locks.Acquire(messageID) {
		return nil, fmt.Errorf("%w: %s", ErrTransitionConflict, messageID)
	}
	defer p.locks.Release(messageID)

	state, err := p.states.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}

	// No double spend: an already-processed email returns its stored result.
	if state.DetectionPerformed && state.Processed {
		return outcomeFromState(state), nil
	}

	machineState, ok := workflow.StatusToState(string(state.VerificationStatus))
	if !ok {
		return nil, fmt.Errorf("%w: %s", workflow.ErrInvalidState, state.VerificationStatus)
	}
	machine := workflow.BuildEmailWorkflow(machineState)
	if err := machine.Fire(ctx, workflow.TriggerApprove); err != nil {
		return nil, err
	}

	rec, err := p.emails.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}
	body, err := p.bodies.Load(rec.BodyRef)
	if err != nil {
		return nil, fmt.Errorf("failed to load body: %w", err)
	}

	// Work on a copy; the stored state stays pending_review until every
	// side effect has succeeded, which is what makes failure a clean
	// revert from the caller's point of view.
	next := *state
	now := time.Now()
	next.VerificationStatus = entity.StatusManuallyApproved
	next.VerificationMethod = entity.MethodManual
	next.ManuallyApprovedBy = reviewer
	next.ManuallyApprovedAt = &now

	clearance := gate.ManualClearance()
	outcome, err := p.runBillableStages(ctx, clearance, rec, body, &next)
	if err != nil {
		p.logger.Warn("Approve transition reverted",
			zap.String("message_id", messageID),
			zap.Error(err))
		return nil, err
	}

	if !outcome.IsPriceChange {
		// Detection overruled the approval: not a price change, so the
		// email is rejected with the confidence and reasoning persisted.
		if err := machine.Fire(ctx, workflow.TriggerReject); err != nil {
			return nil, err
		}
		next.VerificationStatus = entity.StatusRejected
	}

	if err := p.states.Upsert(ctx, &next); err != nil {
		return nil, err
	}
	p.runAnalysisIfPriceChange(ctx, &next)

	p.logger.Info("Email approved and processed",
		zap.String("message_id", messageID),
		zap.String("reviewer", reviewer),
		zap.Bool("is_price_change", outcome.IsPriceChange))
	return outcome, nil
}

// Reprocess re-runs the billable stages for a verified or manually approved
// email that is not processed, either because a stage failed earlier or
// because a reviewer reopened it. An already processed email returns its
// cached result; parked and rejected emails cannot be reprocessed.
func (p *Processor) Reprocess(ctx context.Context, messageID string) (*ProcessOutcome, error) {
	if !p.locks.Acquire(messageID) {
		return nil, fmt.Errorf("%w: %s", ErrTransitionConflict, messageID)
	}
	defer p.locks.Release(messageID)

	state, err := p.states.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}
	if state.DetectionPerformed && state.Processed {
		return outcomeFromState(state), nil
	}

	rec, err := p.emails.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}

	var clearance gate.Verdict
	switch state.VerificationStatus {
	case entity.StatusManuallyApproved:
		clearance = gate.ManualClearance()
	case entity.StatusVerified:
		clearance = p.gate.Evaluate(rec.Sender)
		if !clearance.Verified() {
			// The vendor directory changed underneath the email. It keeps
			// its verified status but needs a human now.
			return nil, fmt.Errorf("%w: sender %s is no longer verified",
				workflow.ErrGuardFailed, rec.Sender)
		}
	default:
		return nil, fmt.Errorf("%w: reprocess from %s",
			workflow.ErrInvalidTransition, state.VerificationStatus)
	}

	body, err := p.bodies.Load(rec.BodyRef)
	if err != nil {
		return nil, fmt.Errorf("failed to load body: %w", err)
	}

	next := *state
	outcome, err := p.runBillableStages(ctx, clearance, rec, body, &next)
	if err != nil {
		return nil, err
	}

	if !outcome.IsPriceChange && next.VerificationStatus == entity.StatusManuallyApproved {
		machine := workflow.BuildEmailWorkflow(workflow.StateManuallyApproved)
		if err := machine.Fire(ctx, workflow.TriggerReject); err != nil {
			return nil, err
		}
		next.VerificationStatus = entity.StatusRejected
	}

	if err := p.states.Upsert(ctx, &next); err != nil {
		return nil, err
	}
	p.runAnalysisIfPriceChange(ctx, &next)

	p.logger.Info("Email reprocessed",
		zap.String("message_id", messageID),
		zap.Bool("is_price_change", outcome.IsPriceChange))
	return outcome, nil
}

// Reject marks a parked email rejected. Rejection is terminal.
func (p *Processor) Reject(ctx context.Context, messageID, reviewer string) error {
	if !p.locks.Acquire(messageID) {
		return fmt.Errorf("%w: %s", ErrTransitionConflict, messageID)
	}
	defer p.locks.Release(messageID)

	state, err := p.states.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}
	if state.VerificationStatus != entity.StatusPendingReview {
		return fmt.Errorf("%w: reject from %s", workflow.ErrInvalidTransition, state.VerificationStatus)
	}

	machine := workflow.BuildEmailWorkflow(workflow.StatePendingReview)
	if err := machine.Fire(ctx, workflow.TriggerReject); err != nil {
		return err
	}

	state.VerificationStatus = entity.StatusRejected
	state.AwaitingDetection = false
	if err := p.states.Upsert(ctx, state); err != nil {
		return err
	}

	p.logger.Info("Email rejected",
		zap.String("message_id", messageID),
		zap.String("reviewer", reviewer))
	return nil
}

// MarkUnprocessed clears the processed flag so an email can be manually
// reprocessed. The verification status is deliberately left unchanged:
// reopening is about reprocessing, not re-verification.
func (p *Processor) MarkUnprocessed(ctx context.Context, messageID string) error {
	if !p.locks.Acquire(messageID) {
		return fmt.Errorf("%w: %s", ErrTransitionConflict, messageID)
	}
	defer p.locks.Release(messageID)

	state, err := p.states.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}

	state.Processed = false
	return p.states.Upsert(ctx, state)
}

// PendingReview lists every email parked for human review
func (p *Processor) PendingReview(ctx context.Context) ([]*entity.EmailState, error) {
	states, err := p.states.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	p.metrics.PendingReviews.Set(float64(len(states)))
	return states, nil
}

// SyncToERP pushes the approved price changes of a processed email into the
// ERP. Hard violations are reported as BlockerError and abort; soft issues
// are reported as WarningError unless force is set.
func (p *Processor) SyncToERP(ctx context.Context, messageID string, force bool) (*SyncResult, error) {
	if !p.locks.Acquire(messageID) {
		return nil, fmt.Errorf("%w: %s", ErrTransitionConflict, messageID)
	}
	defer p.locks.Release(messageID)

	state, err := p.states.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}
	if state.EpicorSynced {
		return &SyncResult{MessageID: messageID}, nil
	}

	results, err := p.impacts.GetByMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	var blockers, warnings []string
	if !state.Processed {
		blockers = append(blockers, "email has not been processed")
	}
	if state.IsPriceChange == nil || !*state.IsPriceChange {
		blockers = append(blockers, "email is not a confirmed price change")
	}

	var approved []*entity.BomImpactResult
	for _, res := range results {
		if !res.Approved {
			continue
		}
		approved = append(approved, res)
		if !res.Verified() {
			warnings = append(warnings,
				fmt.Sprintf("product %d approved without full validation", res.ProductIndex))
		}
		if res.PartNum == "" {
			warnings = append(warnings,
				fmt.Sprintf("product %d has no part number", res.ProductIndex))
		}
	}
	if len(approved) == 0 {
		blockers = append(blockers, "no approved products to sync")
	}

	if len(blockers) > 0 {
		p.metrics.ErpSyncs.WithLabelValues("blocked").Inc()
		if p.notifier != nil {
			p.notifier.SyncBlocked(ctx, messageID, blockers, warnings)
		}
		return nil, &BlockerError{Blockers: blockers, Warnings: warnings}
	}
	if len(warnings) > 0 && !force {
		p.metrics.ErpSyncs.WithLabelValues("blocked").Inc()
		return nil, &WarningError{Warnings: warnings}
	}

	result := &SyncResult{MessageID: messageID, Warnings: warnings, Forced: force}
	for _, res := range approved {
		if res.PartNum == "" {
			result.Skipped++
			continue
		}
		push := erp.PriceChangePush{
			PartNum:         res.PartNum,
			VendorID:        state.VendorID,
			OldPrice:        res.OldPrice,
			NewPrice:        res.NewPrice,
			SourceMessageID: messageID,
		}
		if err := p.priceSync.PushPriceChange(ctx, push); err != nil {
			p.metrics.ErpSyncs.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("price sync for part %s: %w", res.PartNum, err)
		}
		result.Pushed++
	}

	state.EpicorSynced = true
	if err := p.states.Upsert(ctx, state); err != nil {
		return nil, err
	}
	p.metrics.ErpSyncs.WithLabelValues("ok").Inc()

	p.logger.Info("Price changes synced to ERP",
		zap.String("message_id", messageID),
		zap.Int("pushed", result.Pushed),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// runBillableStages runs detection and, when confirmed, extraction,
// recording everything on the given state copy. Nothing is persisted here;
// the caller decides what a failure means for stored state.
func (p *Processor) runBillableStages(ctx context.Context, clearance gate.Verdict, rec *entity.EmailRecord, body string, state *entity.EmailState) (*ProcessOutcome, error) {
	start := time.Now()
	p.metrics.DetectionCalls.Inc()
	detection, err := p.detector.Classify(ctx, clearance, rec, body)
	p.metrics.StageDuration.WithLabelValues("detection").Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.StageFailures.WithLabelValues("detection").Inc()
		return nil, fmt.Errorf("detection stage: %w", err)
	}

	state.AwaitingDetection = false
	state.DetectionPerformed = true
	state.IsPriceChange = &detection.IsPriceChange
	state.DetectionConfidence = detection.Confidence
	state.DetectionReasoning = detection.Reasoning

	outcome := &ProcessOutcome{
		MessageID:           rec.MessageID,
		IsPriceChange:       detection.IsPriceChange,
		DetectionConfidence: detection.Confidence,
		DetectionReasoning:  detection.Reasoning,
	}

	if !detection.IsPriceChange {
		state.Processed = true
		return outcome, nil
	}

	start = time.Now()
	p.metrics.ExtractionCalls.Inc()
	extracted, err := p.extractor.Extract(ctx, clearance, rec, body)
	p.metrics.StageDuration.WithLabelValues("extraction").Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.StageFailures.WithLabelValues("extraction").Inc()
		return nil, fmt.Errorf("extraction stage: %w", err)
	}

	encoded, err := json.Marshal(extracted)
	if err != nil {
		return nil, fmt.Errorf("failed to encode extraction: %w", err)
	}
	state.ExtractedData = string(encoded)
	state.Processed = true

	outcome.Extraction = extracted
	return outcome, nil
}

// runAnalysisIfPriceChange triggers BOM impact analysis after a confirmed
// extraction. Analysis failures never revert the approval; the generation
// can be rebuilt later via reanalyze.
func (p *Processor) runAnalysisIfPriceChange(ctx context.Context, state *entity.EmailState) {
	if p.analyzer == nil || state.IsPriceChange == nil || !*state.IsPriceChange || state.ExtractedData == "" {
		return
	}
	if _, err := p.analyzer.Analyze(ctx, state.MessageID); err != nil {
		p.metrics.StageFailures.WithLabelValues("analysis").Inc()
		p.logger.Warn("BOM impact analysis failed",
			zap.String("message_id", state.MessageID),
			zap.Error(err))
	}
}

func outcomeFromState(state *entity.EmailState) *ProcessOutcome {
	outcome := &ProcessOutcome{
		MessageID:           state.MessageID,
		DetectionConfidence: state.DetectionConfidence,
		DetectionReasoning:  state.DetectionReasoning,
		AlreadyProcessed:    true,
	}
	if state.IsPriceChange != nil {
		outcome.IsPriceChange = *state.IsPriceChange
	}
	if state.ExtractedData != "" {
		var extracted entity.ExtractedPriceChange
		if err := json.Unmarshal([]byte(state.ExtractedData), &extracted); err == nil {
			outcome.Extraction = &extracted
		}
	}
	return outcome
}

// IsConflict reports whether err is a per-message serialization conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrTransitionConflict)
}

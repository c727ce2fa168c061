package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/investlabs/researchd/pkg/agent"
	"github.com/investlabs/researchd/pkg/artifact"
	"github.com/investlabs/researchd/pkg/config"
	"github.com/investlabs/researchd/pkg/models"
	"github.com/investlabs/researchd/pkg/progress"
	"github.com/investlabs/researchd/pkg/services"
)

// storeWriteTimeout bounds terminal session writes, which run on a fresh
// context so they survive run cancellation.
const storeWriteTimeout = 10 * time.Second

// Orchestrator runs research pipelines in the background, one goroutine per
// session, and tracks them for cancellation and graceful shutdown.
type Orchestrator struct {
	store     services.SessionStore
	bus       *progress.Bus
	artifacts *artifact.Store
	runner    agent.Runner
	cfg       config.PipelineConfig

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an orchestrator with its collaborators injected.
func New(store services.SessionStore, bus *progress.Bus, artifacts *artifact.Store, runner agent.Runner, cfg config.PipelineConfig) *Orchestrator {
	return &Orchestrator{
		store:     store,
		bus:       bus,
		artifacts: artifacts,
		runner:    runner,
		cfg:       cfg,
		active:    make(map[string]context.CancelFunc),
	}
}

// Start launches the pipeline for the session in a background goroutine and
// registers it for cancellation.
func (o *Orchestrator) Start(sess *models.AnalysisSession) {
	ctx, cancel := context.WithCancel(context.Background())

	o.mu.Lock()
	o.active[sess.ID] = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.active, sess.ID)
			o.mu.Unlock()
			cancel()
		}()
		o.run(ctx, sess.Clone())
	}()
}

// Cancel aborts the session's run if it is active.
func (o *Orchestrator) Cancel(sessionID string) bool {
	o.mu.Lock()
	cancel, ok := o.active[sessionID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// ActiveCount returns the number of running pipelines.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// Drain waits for running pipelines to finish, canceling whatever is still
// active once the timeout expires, then waits for those to unwind.
func (o *Orchestrator) Drain(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(timeout):
	}

	slog.Warn("drain timeout reached, canceling active pipelines", "active", o.ActiveCount())
	o.mu.Lock()
	for _, cancel := range o.active {
		cancel()
	}
	o.mu.Unlock()
	<-done
}

func emit(feed *progress.Feed, typ models.EventType, agentName, message string, data map[string]any) {
	feed.Emit(models.NewProgressEvent(typ, agentName, message, data))
}

// run executes the full pipeline for one session. It always terminates the
// session record and closes the feed, whatever happens along the way.
func (o *Orchestrator) run(ctx context.Context, sess *models.AnalysisSession) {
	feed := o.bus.Feed(sess.ID)
	logger := slog.With("session_id", sess.ID)
	logger.Info("pipeline started", "use_cached_data", sess.UseCachedData)

	mode := "live"
	if sess.UseCachedData {
		mode = "cached"
	}
	emit(feed, models.EventInfo, "", "Starting investment research pipeline",
		map[string]any{"use_cached_data": sess.UseCachedData, "mode": mode})

	results := make([]StageResult, 0, len(analysisStages))
	for i, stage := range analysisStages {
		if ctx.Err() != nil {
			break
		}
		emit(feed, models.EventPhase, "",
			fmt.Sprintf("Stage %d/%d: %s", i+1, len(analysisStages), stage.DisplayName()), nil)
		res := o.runStage(ctx, feed, stage, sess.UseCachedData)
		results = append(results, res)
		logger.Info("stage finished", "stage", stage.String(), "status", res.Status, "detail", res.Detail)
	}

	overall := Aggregate(results)

	synth := StageResult{Stage: StageSynthesis, Status: models.StageMissing, Detail: "no stage outputs available"}
	var finalNote map[string]any
	if ctx.Err() == nil && anySatisfied(results) {
		emit(feed, models.EventPhase, "", "Final stage: Synthesis", nil)
		synth, finalNote = o.runSynthesis(ctx, feed)
		logger.Info("stage finished", "stage", StageSynthesis.String(), "status", synth.Status, "detail", synth.Detail)
	}

	now := time.Now()
	reportFile := reportFileName(now)
	report := buildReport(sess, results, synth, overall, finalNote, now)
	if err := o.artifacts.WriteJSON(reportFile, report); err != nil {
		logger.Error("failed to write orchestration report", "error", err)
		emit(feed, models.EventError, "", "Failed to write final report", nil)
	} else {
		emit(feed, models.EventStep, "", "Final report written", map[string]any{"report_file": reportFile})
	}

	o.finish(ctx, feed, sess, overall, synth, reportFile, logger)
	feed.Close()
}

// finish writes the terminal session status and emits the closing event.
func (o *Orchestrator) finish(ctx context.Context, feed *progress.Feed, sess *models.AnalysisSession, overall models.PipelineResult, synth StageResult, reportFile string, logger *slog.Logger) {
	storeCtx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()

	upd := models.SessionUpdate{Result: overall, SynthesisStatus: synth.Status}
	status := models.SessionCompleted

	switch {
	case ctx.Err() != nil:
		status = models.SessionFailed
		upd.Result = models.ResultFailure
		upd.ErrorMessage = "analysis canceled"
		emit(feed, models.EventError, "", "Analysis canceled", nil)
	case overall == models.ResultFailure:
		status = models.SessionFailed
		upd.ErrorMessage = "no stage produced output"
		emit(feed, models.EventError, "", "Analysis failed: no stage produced output",
			map[string]any{"overall_status": overall})
	default:
		emit(feed, models.EventComplete, "", "Analysis complete",
			map[string]any{"overall_status": overall, "report_file": reportFile})
	}

	err := o.store.UpdateStatus(storeCtx, sess.ID, status, upd)
	switch {
	case err == nil:
		logger.Info("pipeline finished", "status", status, "overall_status", upd.Result)
	case errors.Is(err, services.ErrNotFound):
		// Session deleted mid-run; nothing left to update.
		logger.Info("pipeline finished for deleted session", "overall_status", upd.Result)
	default:
		logger.Error("failed to record terminal session status", "error", err)
	}
}

// runStage executes one analysis stage, honoring cached mode and the
// missing-input short circuit.
func (o *Orchestrator) runStage(ctx context.Context, feed *progress.Feed, stage Stage, useCached bool) StageResult {
	if useCached {
		return o.loadCachedStage(feed, stage)
	}

	inputs, missing := o.loadInputs(stage.Inputs())
	if missing != "" {
		emit(feed, models.EventStep, stage.Role(),
			fmt.Sprintf("%s skipped: required input %s is missing", stage.DisplayName(), missing), nil)
		return StageResult{Stage: stage, Status: models.StageMissing, Detail: "missing input: " + missing}
	}
	return o.runLiveStage(ctx, feed, stage, inputs)
}

// loadCachedStage satisfies a stage from existing artifacts without any
// remote calls.
func (o *Orchestrator) loadCachedStage(feed *progress.Feed, stage Stage) StageResult {
	for _, name := range stage.Artifacts() {
		if !o.artifacts.Exists(name) {
			emit(feed, models.EventStep, stage.Role(),
				fmt.Sprintf("%s: no cached %s, skipping", stage.DisplayName(), name), nil)
			return StageResult{Stage: stage, Status: models.StageMissing, Detail: "cached artifact missing: " + name}
		}
	}

	// Artifacts may be objects or lists; metrics come from the first
	// object payload that yields any.
	var metrics map[string]any
	for _, name := range stage.Artifacts() {
		var payload any
		if err := o.artifacts.ReadJSON(name, &payload); err != nil {
			emit(feed, models.EventAgentError, stage.Role(),
				fmt.Sprintf("%s: cached %s unreadable", stage.DisplayName(), name), nil)
			return StageResult{Stage: stage, Status: models.StageError, Detail: err.Error()}
		}
		if obj, ok := payload.(map[string]any); ok && metrics == nil {
			metrics = extractMetrics(stage, obj)
		}
	}

	emit(feed, models.EventStep, stage.Role(),
		fmt.Sprintf("%s loaded from cache", stage.DisplayName()), metrics)
	return StageResult{Stage: stage, Status: models.StageCached}
}

// runLiveStage runs the stage's agent turn within the stage budget.
func (o *Orchestrator) runLiveStage(ctx context.Context, feed *progress.Feed, stage Stage, inputs map[string]any) StageResult {
	prompt, err := stagePrompt(stage, inputs)
	if err != nil {
		return StageResult{Stage: stage, Status: models.StageError, Detail: err.Error()}
	}

	emit(feed, models.EventAgentCreated, stage.Role(),
		fmt.Sprintf("Created %s agent", stage.DisplayName()), nil)

	stageCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()

	emit(feed, models.EventAgentRunning, stage.Role(),
		fmt.Sprintf("%s in progress", stage.DisplayName()), nil)

	res, err := o.runner.RunTurn(stageCtx, stage.Role(), prompt)
	if err != nil {
		return o.stageFailure(feed, stage, err)
	}
	if res.Failed {
		emit(feed, models.EventAgentError, stage.Role(),
			fmt.Sprintf("%s run failed: %s", stage.DisplayName(), res.FailureDetail), nil)
		return StageResult{Stage: stage, Status: models.StageError, Detail: res.FailureDetail}
	}

	payload, err := parsePayload(res.Text)
	if err != nil {
		emit(feed, models.EventAgentError, stage.Role(),
			fmt.Sprintf("%s produced unusable output", stage.DisplayName()), nil)
		return StageResult{Stage: stage, Status: models.StageError, Detail: err.Error()}
	}

	if err := o.writeStageArtifacts(stage, payload); err != nil {
		emit(feed, models.EventAgentError, stage.Role(),
			fmt.Sprintf("%s output could not be saved", stage.DisplayName()), nil)
		return StageResult{Stage: stage, Status: models.StageError, Detail: err.Error()}
	}

	o.saveImages(ctx, feed, stage, res.Images)

	emit(feed, models.EventAgentCompleted, stage.Role(),
		fmt.Sprintf("%s completed", stage.DisplayName()), extractMetrics(stage, payload))
	return StageResult{Stage: stage, Status: models.StageSuccess}
}

// stageFailure maps a turn error to the stage's terminal result.
func (o *Orchestrator) stageFailure(feed *progress.Feed, stage Stage, err error) StageResult {
	var timeoutErr *agent.TimeoutError
	if errors.As(err, &timeoutErr) {
		emit(feed, models.EventAgentError, stage.Role(),
			fmt.Sprintf("%s timed out after %s", stage.DisplayName(), o.cfg.StageTimeout), nil)
		return StageResult{Stage: stage, Status: models.StageTimeout, Detail: err.Error()}
	}
	emit(feed, models.EventAgentError, stage.Role(),
		fmt.Sprintf("%s failed: %v", stage.DisplayName(), err), nil)
	return StageResult{Stage: stage, Status: models.StageError, Detail: err.Error()}
}

// writeStageArtifacts persists the stage payload. Compliance splits its
// reply into findings and recommendation artifacts.
func (o *Orchestrator) writeStageArtifacts(stage Stage, payload map[string]any) error {
	if stage == StageCompliance {
		findings := any(payload)
		if v, ok := payload["findings"]; ok {
			findings = v
		}
		recommendation := any(payload)
		if v, ok := payload["recommendation"]; ok {
			recommendation = v
		}
		if err := o.artifacts.WriteJSON(artifact.ComplianceFindings, findings); err != nil {
			return err
		}
		return o.artifacts.WriteJSON(artifact.ComplianceRecommendation, recommendation)
	}
	return o.artifacts.WriteJSON(stage.Artifacts()[0], payload)
}

// saveImages downloads generated charts with deterministic names. Download
// failures degrade to a warning; the stage outcome is already decided.
func (o *Orchestrator) saveImages(ctx context.Context, feed *progress.Feed, stage Stage, images []agent.FileRef) {
	if len(images) == 0 {
		return
	}
	dir, err := o.artifacts.ImagesDir()
	if err != nil {
		slog.Warn("cannot create images dir", "stage", stage.String(), "error", err)
		return
	}
	for i, ref := range images {
		name := artifact.ImageName(stage.Dashboard(), stage.imagePrefix(), i, len(images))
		if err := o.runner.SaveFile(ctx, ref, filepath.Join(dir, name)); err != nil {
			slog.Warn("failed to save generated image", "stage", stage.String(), "file", name, "error", err)
			continue
		}
		emit(feed, models.EventStep, stage.Role(), "Saved chart "+name, nil)
	}
}

// runSynthesis merges available stage outputs into the final research note.
func (o *Orchestrator) runSynthesis(ctx context.Context, feed *progress.Feed) (StageResult, map[string]any) {
	inputs := make(map[string]any)
	for _, stage := range analysisStages {
		for _, name := range stage.Artifacts() {
			if !o.artifacts.Exists(name) {
				continue
			}
			var payload any
			if err := o.artifacts.ReadJSON(name, &payload); err != nil {
				slog.Warn("skipping unreadable synthesis input", "artifact", name, "error", err)
				continue
			}
			inputs[name] = payload
		}
	}
	if len(inputs) == 0 {
		return StageResult{Stage: StageSynthesis, Status: models.StageMissing, Detail: "no stage outputs available"}, nil
	}

	prompt, err := stagePrompt(StageSynthesis, inputs)
	if err != nil {
		return StageResult{Stage: StageSynthesis, Status: models.StageError, Detail: err.Error()}, nil
	}

	emit(feed, models.EventAgentCreated, agent.RoleSynthesis, "Created Synthesis agent", nil)

	synthCtx, cancel := context.WithTimeout(ctx, o.cfg.SynthesisTimeout)
	defer cancel()

	emit(feed, models.EventAgentRunning, agent.RoleSynthesis, "Synthesis in progress",
		map[string]any{"inputs": len(inputs)})

	res, err := o.runner.RunTurn(synthCtx, agent.RoleSynthesis, prompt)
	if err != nil {
		var timeoutErr *agent.TimeoutError
		if errors.As(err, &timeoutErr) {
			emit(feed, models.EventAgentError, agent.RoleSynthesis,
				fmt.Sprintf("Synthesis timed out after %s", o.cfg.SynthesisTimeout), nil)
			return StageResult{Stage: StageSynthesis, Status: models.StageTimeout, Detail: err.Error()}, nil
		}
		emit(feed, models.EventAgentError, agent.RoleSynthesis, fmt.Sprintf("Synthesis failed: %v", err), nil)
		return StageResult{Stage: StageSynthesis, Status: models.StageError, Detail: err.Error()}, nil
	}
	if res.Failed {
		emit(feed, models.EventAgentError, agent.RoleSynthesis, "Synthesis run failed: "+res.FailureDetail, nil)
		return StageResult{Stage: StageSynthesis, Status: models.StageError, Detail: res.FailureDetail}, nil
	}

	payload, err := parsePayload(res.Text)
	if err != nil {
		emit(feed, models.EventAgentError, agent.RoleSynthesis, "Synthesis produced unusable output", nil)
		return StageResult{Stage: StageSynthesis, Status: models.StageError, Detail: err.Error()}, nil
	}

	emit(feed, models.EventAgentCompleted, agent.RoleSynthesis, "Synthesis completed",
		extractMetrics(StageSynthesis, payload))
	return StageResult{Stage: StageSynthesis, Status: models.StageSuccess}, payload
}

// loadInputs reads required input artifacts, returning the first missing or
// unreadable name.
func (o *Orchestrator) loadInputs(names []string) (map[string]any, string) {
	inputs := make(map[string]any, len(names))
	for _, name := range names {
		if !o.artifacts.Exists(name) {
			return nil, name
		}
		var payload any
		if err := o.artifacts.ReadJSON(name, &payload); err != nil {
			return nil, name
		}
		inputs[name] = payload
	}
	return inputs, ""
}

func anySatisfied(results []StageResult) bool {
	for _, r := range results {
		if r.satisfied() {
			return true
		}
	}
	return false
}

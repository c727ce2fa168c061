package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/investlabs/researchd/pkg/agent"
	"github.com/investlabs/researchd/pkg/artifact"
	"github.com/investlabs/researchd/pkg/config"
	"github.com/investlabs/researchd/pkg/models"
	"github.com/investlabs/researchd/pkg/progress"
	"github.com/investlabs/researchd/pkg/services"
)

const (
	stockReply        = `{"ticker":"GMR","current_price":45.2,"risk_score":62,"trend":"bullish","recommendation":"hold","summary":"steady"}`
	fundamentalsReply = `{"company":"GMR Group","overall_score":71,"rating":"stable","strengths":[],"weaknesses":[],"summary":"solid"}`
	complianceReply   = `{"findings":[{"rule":"max_position","status":"pass","notes":""}],"recommendation":{"decision":"approve","rationale":"within limits"}}`
	synthesisReply    = `{"headline":"GMR holds steady","overall_view":"neutral","key_risks":[],"recommendation":"hold","stage_summaries":{}}`
)

type stubReply struct {
	result *agent.TurnResult
	err    error
	block  bool // block until the context expires
}

// stubRunner returns canned replies per role and records calls.
type stubRunner struct {
	mu      sync.Mutex
	replies map[string]stubReply
	calls   []string
	prompts map[string]string
}

func newStubRunner() *stubRunner {
	return &stubRunner{
		replies: map[string]stubReply{
			agent.RoleStockAnalyst:      {result: &agent.TurnResult{Text: stockReply}},
			agent.RoleFundamentals:      {result: &agent.TurnResult{Text: fundamentalsReply}},
			agent.RoleComplianceOfficer: {result: &agent.TurnResult{Text: complianceReply}},
			agent.RoleSynthesis:         {result: &agent.TurnResult{Text: synthesisReply}},
		},
		prompts: make(map[string]string),
	}
}

func (s *stubRunner) RunTurn(ctx context.Context, role, prompt string) (*agent.TurnResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, role)
	s.prompts[role] = prompt
	reply := s.replies[role]
	s.mu.Unlock()

	if reply.block {
		<-ctx.Done()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &agent.TimeoutError{Role: role}
		}
		return nil, ctx.Err()
	}
	return reply.result, reply.err
}

func (s *stubRunner) SaveFile(_ context.Context, _ agent.FileRef, dest string) error {
	return os.WriteFile(dest, []byte("png"), 0o644)
}

func (s *stubRunner) callRoles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type fixture struct {
	orch   *Orchestrator
	store  *services.MemoryStore
	bus    *progress.Bus
	art    *artifact.Store
	runner *stubRunner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	art, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)

	cfg := config.DefaultPipelineConfig()
	cfg.StageTimeout = 2 * time.Second
	cfg.SynthesisTimeout = 2 * time.Second
	cfg.DataDir = art.Dir()

	f := &fixture{
		store:  services.NewMemoryStore(),
		bus:    progress.NewBus(),
		art:    art,
		runner: newStubRunner(),
	}
	f.orch = New(f.store, f.bus, art, f.runner, cfg)
	return f
}

func (f *fixture) startSession(t *testing.T, useCached bool) *models.AnalysisSession {
	t.Helper()
	sess := &models.AnalysisSession{
		ID:            "ab12cd34",
		Status:        models.SessionRunning,
		StartedAt:     time.Now(),
		UseCachedData: useCached,
	}
	require.NoError(t, f.store.Create(context.Background(), sess))
	return sess
}

func eventTypes(events []models.ProgressEvent) []models.EventType {
	out := make([]models.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestLivePipelineAllStagesSucceed(t *testing.T) {
	f := newFixture(t)
	sess := f.startSession(t, false)

	f.orch.run(context.Background(), sess)

	got, err := f.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, got.Status)
	assert.Equal(t, models.ResultSuccess, got.Result)
	assert.Equal(t, models.StageSuccess, got.SynthesisStatus)
	require.NotNil(t, got.CompletedAt)

	for _, name := range []string{
		artifact.StockReport, artifact.CompanyAnalysis,
		artifact.ComplianceFindings, artifact.ComplianceRecommendation,
	} {
		assert.True(t, f.art.Exists(name), "expected artifact %s", name)
	}

	// Compliance ran after fundamentals and saw its output.
	assert.Equal(t, []string{
		agent.RoleStockAnalyst, agent.RoleFundamentals,
		agent.RoleComplianceOfficer, agent.RoleSynthesis,
	}, f.runner.callRoles())
	assert.Contains(t, f.runner.prompts[agent.RoleComplianceOfficer], "overall_score")

	feed, ok := f.bus.Lookup(sess.ID)
	require.True(t, ok)
	assert.True(t, feed.Closed())

	events := feed.Events()
	types := eventTypes(events)
	assert.Contains(t, types, models.EventPhase)
	assert.Contains(t, types, models.EventAgentCompleted)
	last := events[len(events)-1]
	assert.Equal(t, models.EventComplete, last.Type)
	assert.Equal(t, models.ResultSuccess, last.Data["overall_status"])

	// The final report landed with a timestamped name.
	entries, err := os.ReadDir(f.art.Dir())
	require.NoError(t, err)
	var foundReport bool
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "gmr_orchestration_") {
			foundReport = true
		}
	}
	assert.True(t, foundReport)
}

func TestCachedPipelineUsesArtifactsWithoutRemoteCalls(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.art.WriteJSON(artifact.StockReport, map[string]any{"ticker": "GMR"}))
	require.NoError(t, f.art.WriteJSON(artifact.CompanyAnalysis, map[string]any{"overall_score": 71}))
	require.NoError(t, f.art.WriteJSON(artifact.ComplianceFindings, []any{}))
	require.NoError(t, f.art.WriteJSON(artifact.ComplianceRecommendation, map[string]any{"decision": "approve"}))

	sess := f.startSession(t, true)
	f.orch.run(context.Background(), sess)

	got, err := f.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, got.Status)
	assert.Equal(t, models.ResultSuccess, got.Result)

	// Only synthesis talked to the backend.
	assert.Equal(t, []string{agent.RoleSynthesis}, f.runner.callRoles())
}

func TestCachedPipelineMissingArtifactsFails(t *testing.T) {
	f := newFixture(t)
	sess := f.startSession(t, true)

	f.orch.run(context.Background(), sess)

	got, err := f.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionFailed, got.Status)
	assert.Equal(t, models.ResultFailure, got.Result)
	assert.Equal(t, models.StageMissing, got.SynthesisStatus)

	// No stage output, so synthesis never ran and nothing hit the backend.
	assert.Empty(t, f.runner.callRoles())

	feed, _ := f.bus.Lookup(sess.ID)
	events := feed.Events()
	assert.Equal(t, models.EventError, events[len(events)-1].Type)
}

func TestStageTimeoutYieldsPartialSuccess(t *testing.T) {
	f := newFixture(t)
	f.runner.replies[agent.RoleStockAnalyst] = stubReply{block: true}

	sess := f.startSession(t, false)
	f.orch.run(context.Background(), sess)

	got, err := f.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, got.Status)
	assert.Equal(t, models.ResultPartialSuccess, got.Result)

	assert.False(t, f.art.Exists(artifact.StockReport))
	assert.True(t, f.art.Exists(artifact.CompanyAnalysis))
}

func TestTransportErrorDoesNotStopPipeline(t *testing.T) {
	f := newFixture(t)
	f.runner.replies[agent.RoleFundamentals] = stubReply{
		err: &agent.TransportError{Role: agent.RoleFundamentals, Err: errors.New("connection refused")},
	}

	sess := f.startSession(t, false)
	f.orch.run(context.Background(), sess)

	got, err := f.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultPartialSuccess, got.Result)

	// Compliance depends on the fundamentals artifact and was skipped.
	assert.NotContains(t, f.runner.callRoles(), agent.RoleComplianceOfficer)
	assert.False(t, f.art.Exists(artifact.ComplianceFindings))
}

func TestRemoteReportedFailureIsStageError(t *testing.T) {
	f := newFixture(t)
	f.runner.replies[agent.RoleComplianceOfficer] = stubReply{
		result: &agent.TurnResult{Failed: true, FailureDetail: "content filter tripped"},
	}

	sess := f.startSession(t, false)
	f.orch.run(context.Background(), sess)

	got, err := f.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultPartialSuccess, got.Result)

	feed, _ := f.bus.Lookup(sess.ID)
	var sawDetail bool
	for _, ev := range feed.Events() {
		if ev.Type == models.EventAgentError && strings.Contains(ev.Message, "content filter tripped") {
			sawDetail = true
		}
	}
	assert.True(t, sawDetail)
}

func TestGeneratedImagesSavedWithDeterministicNames(t *testing.T) {
	f := newFixture(t)
	f.runner.replies[agent.RoleStockAnalyst] = stubReply{
		result: &agent.TurnResult{
			Text:   stockReply,
			Images: []agent.FileRef{{ContainerID: "cont_1", FileID: "file_1", Filename: "chart.png"}},
		},
	}

	sess := f.startSession(t, false)
	f.orch.run(context.Background(), sess)

	assert.FileExists(t, filepath.Join(f.art.Dir(), "images", "stock_dashboard.png"))
}

func TestStartCancelAndDrain(t *testing.T) {
	f := newFixture(t)
	f.runner.replies[agent.RoleStockAnalyst] = stubReply{block: true}

	sess := f.startSession(t, false)
	f.orch.Start(sess)

	// Wait for the run to reach the blocked stage, then cancel it.
	require.Eventually(t, func() bool {
		return len(f.runner.callRoles()) > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.orch.ActiveCount())
	assert.True(t, f.orch.Cancel(sess.ID))

	f.orch.Drain(5 * time.Second)
	assert.Equal(t, 0, f.orch.ActiveCount())

	got, err := f.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionFailed, got.Status)
	assert.Equal(t, "analysis canceled", got.ErrorMessage)

	assert.False(t, f.orch.Cancel("missing"))
}

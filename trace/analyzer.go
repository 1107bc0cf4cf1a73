package trace

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vantus-ai/webpilot/types"
)

// Archive member names the enhanced loader understands.
const (
	memberTrace    = "trace.trace"
	memberNetwork  = "trace.network"
	memberEnhanced = "trace.enhanced"
)

// Analyzer builds a TraceDocument from a recorded trace archive and answers
// analytical questions over it. The document is parsed once, on the first
// analytical call, and cached for the lifetime of the instance; concurrent
// first calls all observe the same completed load. A failed load is sticky:
// callers wanting a retry construct a new Analyzer.
type Analyzer struct {
	path   string
	source Source
	logger *zap.Logger

	loadOnce sync.Once
	doc      *TraceDocument
	loadErr  error
}

// NewAnalyzer creates an analyzer over the archive at path. The path may be
// a recording directory; nested-directory resolution applies at load time.
func NewAnalyzer(path string, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		path:   path,
		logger: logger.With(zap.String("component", "trace_analyzer")),
	}
}

// NewAnalyzerFromSource creates an analyzer over an already-open Source.
// The analyzer does not close the source.
func NewAnalyzerFromSource(src Source, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		source: src,
		logger: logger.With(zap.String("component", "trace_analyzer")),
	}
}

// Load parses the archive into a TraceDocument, at most once per instance.
func (a *Analyzer) Load(ctx context.Context) (*TraceDocument, error) {
	a.loadOnce.Do(func() {
		a.doc, a.loadErr = a.load(ctx)
		if a.loadErr != nil {
			a.logger.Warn("trace load failed", zap.Error(a.loadErr))
		} else {
			a.logger.Debug("trace loaded",
				zap.String("session_id", a.doc.Metadata.SessionID),
				zap.Int("steps", len(a.doc.Steps)),
				zap.Int("requests", len(a.doc.Network.Requests)))
		}
	})
	return a.doc, a.loadErr
}

func (a *Analyzer) load(ctx context.Context) (*TraceDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := a.source
	if src == nil {
		archive, err := OpenArchive(a.path)
		if err != nil {
			return nil, types.NewError(types.ErrLoadFailed, "failed to load trace data").WithCause(err)
		}
		defer archive.Close()
		src = archive
	}

	doc, err := buildFromSource(src)
	if err != nil {
		return nil, types.NewError(types.ErrLoadFailed, "failed to load trace data").WithCause(err)
	}
	return doc, nil
}

// buildFromSource dispatches on the accepted input shapes: a pre-structured
// trace.enhanced document, or the trace.trace + trace.network event streams.
func buildFromSource(src Source) (*TraceDocument, error) {
	if findMember(src, memberEnhanced) != "" {
		data, err := src.ReadMember(memberEnhanced)
		if err != nil {
			return nil, err
		}
		var doc TraceDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		return &doc, nil
	}

	traceData, err := src.ReadMember(memberTrace)
	if err != nil {
		return nil, err
	}
	networkData, err := src.ReadMember(memberNetwork)
	if err != nil {
		return nil, err
	}

	traceEvents, traceDiags := ParseEvents(traceData)
	networkEvents, networkDiags := ParseEvents(networkData)

	doc := buildDocument(traceEvents, networkEvents)
	doc.Diagnostics = append(traceDiags, networkDiags...)
	return doc, nil
}

// FullAnalysis is the union of every projection.
type FullAnalysis struct {
	ActionContext         *ActionContextAnalysis `json:"action_context"`
	DecisionTrail         *DecisionTrail         `json:"decision_trail"`
	ElementIdentification *ElementIdentification `json:"element_identification"`
	FailureAnalysis       *FailureAnalysis       `json:"failure_analysis"`
	SessionContext        *SessionContext        `json:"session_context"`
	RecoveryInfo          *RecoveryInfo          `json:"recovery_info"`
	ModelData             *ModelData             `json:"model_data"`
	TemporalContext       *TemporalContext       `json:"temporal_context"`
	ElementReporting      *ElementReporting      `json:"element_reporting"`
	ErrorContextAnalysis  *ErrorContextAnalysis  `json:"error_context"`
	TimingAnalysis        *TimingAnalysis        `json:"timing_analysis"`
	VisualStateAnalysis   *VisualStateAnalysis   `json:"visual_state"`
	ErrorRecovery         *ErrorRecovery         `json:"error_recovery"`
	Performance           *PerformanceAnalysis   `json:"performance"`
}

// AnalyzeAll runs every projection over the shared document. The projections
// are pure reads over an immutable document, so they fan out concurrently.
func (a *Analyzer) AnalyzeAll(ctx context.Context) (*FullAnalysis, error) {
	if _, err := a.Load(ctx); err != nil {
		return nil, err
	}

	var out FullAnalysis
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { out.ActionContext, err = a.AnalyzeActionContext(ctx); return })
	g.Go(func() (err error) { out.DecisionTrail, err = a.AnalyzeDecisionTrail(ctx); return })
	g.Go(func() (err error) { out.ElementIdentification, err = a.AnalyzeElementIdentification(ctx); return })
	g.Go(func() (err error) { out.FailureAnalysis, err = a.AnalyzeFailures(ctx); return })
	g.Go(func() (err error) { out.SessionContext, err = a.AnalyzeSessionContext(ctx); return })
	g.Go(func() (err error) { out.RecoveryInfo, err = a.AnalyzeRecoveryInfo(ctx); return })
	g.Go(func() (err error) { out.ModelData, err = a.AnalyzeModelData(ctx); return })
	g.Go(func() (err error) { out.TemporalContext, err = a.AnalyzeTemporalContext(ctx); return })
	g.Go(func() (err error) { out.ElementReporting, err = a.AnalyzeElementReporting(ctx); return })
	g.Go(func() (err error) { out.ErrorContextAnalysis, err = a.AnalyzeErrorContext(ctx); return })
	g.Go(func() (err error) { out.TimingAnalysis, err = a.AnalyzeTiming(ctx); return })
	g.Go(func() (err error) { out.VisualStateAnalysis, err = a.AnalyzeVisualState(ctx); return })
	g.Go(func() (err error) { out.ErrorRecovery, err = a.AnalyzeErrorRecovery(ctx); return })
	g.Go(func() (err error) { out.Performance, err = a.AnalyzePerformance(ctx); return })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}

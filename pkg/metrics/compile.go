package metrics

import (
	"time"
)

// CompileMetrics provides methods to record compilation pipeline metrics.
type CompileMetrics struct {
	registry *Registry
}

// Compile returns the compilation metrics interface for the registry.
func (r *Registry) Compile() *CompileMetrics {
	return &CompileMetrics{registry: r}
}

// Stage identifies one compilation pipeline stage.
type Stage string

// Pipeline stages.
const (
	StageParse    Stage = "parse"
	StageAnalyze  Stage = "analyze"
	StageGenerate Stage = "generate"
)

// StageStatus is the outcome of a stage.
type StageStatus string

const (
	StageStatusSuccess StageStatus = "success"
	StageStatusError   StageStatus = "error"
)

// RecordStage records a completed compilation stage.
func (c *CompileMetrics) RecordStage(stage Stage, status StageStatus, duration time.Duration) {
	c.registry.compileStagesTotal.WithLabelValues(string(stage), string(status)).Inc()
	c.registry.compileStageDuration.WithLabelValues(string(stage)).Observe(duration.Seconds())
}

// RecordStreamSize records the command count of a compiled stream.
func (c *CompileMetrics) RecordStreamSize(commands int) {
	c.registry.compileStreamSize.Observe(float64(commands))
}

// IncActive increments the in-flight compilation count.
func (c *CompileMetrics) IncActive() {
	c.registry.compileActiveCount.Inc()
}

// DecActive decrements the in-flight compilation count.
func (c *CompileMetrics) DecActive() {
	c.registry.compileActiveCount.Dec()
}

// StageTimer times one compilation stage.
type StageTimer struct {
	metrics *CompileMetrics
	stage   Stage
	start   time.Time
}

// NewStageTimer creates a timer for a pipeline stage.
func (c *CompileMetrics) NewStageTimer(stage Stage) *StageTimer {
	return &StageTimer{metrics: c, stage: stage, start: time.Now()}
}

// Done records the stage duration and its outcome.
func (t *StageTimer) Done(err error) {
	status := StageStatusSuccess
	if err != nil {
		status = StageStatusError
	}
	t.metrics.RecordStage(t.stage, status, time.Since(t.start))
}

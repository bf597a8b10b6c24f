// Package metrics exposes the collector's pause statistics as Prometheus
// collectors.
//
// Covered per pause:
//   - wall time of every post-evacuation cleanup phase (histogram by phase)
//   - regions freed and regions retained after evacuation failure
//   - humongous reclaim candidates and eager reclaims
//   - cards redirtied
//   - heap usage after the pause
//
// NewPauseMetrics registers on the default registry; the WithRegistry
// variant keeps tests isolated. Feed a pause with:
//
//	m.ObserveRecorder(rec)
//	m.RecordPause(freed, failed, usedBytes)
//
// Server optionally serves the registry on /metrics.
package metrics

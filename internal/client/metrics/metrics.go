// Package metrics exposes prometheus counters for bootstrap effects and
// OTP verification.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes recorded for effect attempts.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

const effectAttemptsName = "courial_effect_attempts_total"

// Recorder holds the counters. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry      *prometheus.Registry
	effectAttempt *prometheus.CounterVec
	otpVerify     *prometheus.CounterVec
	otpSend       *prometheus.CounterVec
}

// New registers the counters on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		effectAttempt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: effectAttemptsName,
			Help: "Bootstrap effect attempts by effect and outcome.",
		}, []string{"effect", "outcome"}),
		otpVerify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courial_otp_verifications_total",
			Help: "OTP verification results.",
		}, []string{"result"}),
		otpSend: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courial_otp_sends_total",
			Help: "OTP deliveries by gate mode and result.",
		}, []string{"mode", "result"}),
	}
	r.registry.MustRegister(r.effectAttempt, r.otpVerify, r.otpSend)
	return r
}

// Effect counts one attempt of the named effect.
func (r *Recorder) Effect(effect, outcome string) {
	if r == nil {
		return
	}
	r.effectAttempt.WithLabelValues(effect, outcome).Inc()
}

// Verification counts one OTP check.
func (r *Recorder) Verification(accepted bool) {
	if r == nil {
		return
	}
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	r.otpVerify.WithLabelValues(result).Inc()
}

// Send counts one OTP delivery attempt.
func (r *Recorder) Send(mode string, err error) {
	if r == nil {
		return
	}
	result := OutcomeSuccess
	if err != nil {
		result = OutcomeFailure
	}
	r.otpSend.WithLabelValues(mode, result).Inc()
}

// Handler serves the registry in the prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// EffectCount is how many attempts of one effect ended with one outcome.
type EffectCount struct {
	Effect  string
	Outcome string
	Count   int
}

// EffectSummary returns every effect/outcome pair recorded so far, in label
// order.
func (r *Recorder) EffectSummary() []EffectCount {
	if r == nil {
		return nil
	}
	families, err := r.registry.Gather()
	if err != nil {
		return nil
	}
	var out []EffectCount
	for _, mf := range families {
		if mf.GetName() != effectAttemptsName {
			continue
		}
		for _, m := range mf.GetMetric() {
			c := EffectCount{Count: int(m.GetCounter().GetValue())}
			for _, lp := range m.GetLabel() {
				switch lp.GetName() {
				case "effect":
					c.Effect = lp.GetValue()
				case "outcome":
					c.Outcome = lp.GetValue()
				}
			}
			out = append(out, c)
		}
	}
	return out
}

// Attempts returns the number of attempts of effect that ended with outcome.
func (r *Recorder) Attempts(effect, outcome string) int {
	for _, c := range r.EffectSummary() {
		if c.Effect == effect && c.Outcome == outcome {
			return c.Count
		}
	}
	return 0
}

package infra

import (
	"context"

	"blockslot/admission/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PromStats expõe as estatísticas de admissão como métricas Prometheus.
// Não usa ClientID como label (cardinalidade).
type PromStats struct {
	height       prometheus.Gauge
	pending      prometheus.Gauge
	reservations prometheus.Gauge
	admitted     *prometheus.CounterVec
	bumped       prometheus.Counter
	reserve      *prometheus.CounterVec
	submissions  prometheus.Counter
	sessions     prometheus.Gauge
	rejected     *prometheus.CounterVec
	origins      prometheus.Gauge
}

func NewPromStats(reg prometheus.Registerer) *PromStats {
	p := &PromStats{
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blockslot_block_height",
			Help: "Height of the last closed block.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blockslot_pending_depth",
			Help: "Pending submissions waiting for a block after the last tick.",
		}),
		reservations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blockslot_open_reservations",
			Help: "Paid reservations targeting future blocks after the last tick.",
		}),
		admitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blockslot_admitted_total",
			Help: "Entries admitted into a block, by kind.",
		}, []string{"kind"}),
		bumped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blockslot_bumped_total",
			Help: "Paid reservations bumped because the target block was full.",
		}),
		reserve: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blockslot_reservations_total",
			Help: "Reservation requests, by result.",
		}, []string{"result"}),
		submissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blockslot_submissions_total",
			Help: "Unreserved submissions queued.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blockslot_sessions",
			Help: "Connected websocket sessions.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blockslot_http_rejected_total",
			Help: "HTTP requests refused at the edge, by reason.",
		}, []string{"reason"}),
		origins: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blockslot_limiter_origins",
			Help: "Client origins with a live rate-limit bucket after the last sweep.",
		}),
	}
	if reg != nil {
		reg.MustRegister(p.height, p.pending, p.reservations, p.admitted, p.bumped, p.reserve, p.submissions, p.sessions, p.rejected, p.origins)
	}
	return p
}

func (p *PromStats) Record(_ context.Context, ev domain.StatsEvent) error {
	switch ev.Outcome {
	case domain.OutcomeConfirmed:
		p.admitted.WithLabelValues(string(ev.Kind)).Inc()
	case domain.OutcomeBumped:
		p.bumped.Inc()
	case domain.OutcomeSubmitted:
		p.submissions.Inc()
	case domain.OutcomeReserved:
		p.reserve.WithLabelValues("ok").Inc()
	case domain.OutcomeReserveFailed:
		p.reserve.WithLabelValues(domain.ReasonNotEnoughTokens).Inc()
	}
	return nil
}

func (p *PromStats) RecordTick(_ context.Context, r domain.TickReport) error {
	p.height.Set(float64(r.Height))
	p.pending.Set(float64(r.Pending))
	p.reservations.Set(float64(r.Reservations))
	return nil
}

// SessionOpened / SessionClosed são chamados pelo hub de transporte.
func (p *PromStats) SessionOpened() { p.sessions.Inc() }
func (p *PromStats) SessionClosed() { p.sessions.Dec() }

// Rejected conta pedidos recusados na borda ("rate_limited", "sessions_full").
func (p *PromStats) Rejected(reason string) { p.rejected.WithLabelValues(reason).Inc() }

// TrackedKeys é chamado pelo janitor do LimiterStore.
func (p *PromStats) TrackedKeys(n int) { p.origins.Set(float64(n)) }

package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tdexwallet"

// Send outcomes.
const (
	SendBroadcasted = "broadcasted"
	SendPending     = "pending"
	SendFailed      = "failed"
)

// WalletMetrics exposes the state of the wallets as prometheus metrics, one
// series per wallet name.
type WalletMetrics struct {
	syncHeight *prometheus.GaugeVec
	tipHeight  *prometheus.GaugeVec
	balance    *prometheus.GaugeVec
	sends      *prometheus.CounterVec
	reorgs     *prometheus.CounterVec
	syncErrors *prometheus.CounterVec
}

// NewWalletMetrics creates the wallet metrics and registers them with the
// given registerer.
func NewWalletMetrics(reg prometheus.Registerer) (*WalletMetrics, error) {
	m := &WalletMetrics{
		syncHeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_height",
			Help:      "Height of the last block applied to the wallet.",
		}, []string{"wallet"}),
		tipHeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tip_height",
			Help:      "Height of the chain tip as seen by the data source.",
		}, []string{"wallet"}),
		balance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "balance_sats",
			Help:      "Wallet balance in satoshis by kind.",
		}, []string{"wallet", "kind"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Number of sent transactions by outcome.",
		}, []string{"wallet", "outcome"}),
		reorgs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reorgs_total",
			Help:      "Number of chain reorganizations handled.",
		}, []string{"wallet"}),
		syncErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_errors_total",
			Help:      "Number of failed syncs by status.",
		}, []string{"wallet", "status"}),
	}

	for _, c := range []prometheus.Collector{
		m.syncHeight, m.tipHeight, m.balance, m.sends, m.reorgs, m.syncErrors,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *WalletMetrics) SetHeights(wallet string, synced, tip uint32) {
	m.syncHeight.WithLabelValues(wallet).Set(float64(synced))
	m.tipHeight.WithLabelValues(wallet).Set(float64(tip))
}

func (m *WalletMetrics) SetBalance(
	wallet string, spendable, pending, reserved uint64,
) {
	m.balance.WithLabelValues(wallet, "spendable").Set(float64(spendable))
	m.balance.WithLabelValues(wallet, "pending").Set(float64(pending))
	m.balance.WithLabelValues(wallet, "reserved").Set(float64(reserved))
}

func (m *WalletMetrics) IncSends(wallet, outcome string) {
	m.sends.WithLabelValues(wallet, outcome).Inc()
}

func (m *WalletMetrics) IncReorgs(wallet string) {
	m.reorgs.WithLabelValues(wallet).Inc()
}

func (m *WalletMetrics) IncSyncErrors(wallet, status string) {
	m.syncErrors.WithLabelValues(wallet, status).Inc()
}

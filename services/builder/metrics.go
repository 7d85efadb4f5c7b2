package builder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tokensProvisioned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usbdrop_tokens_provisioned_total",
		Help: "Decoy tokens successfully registered during drive preparation.",
	})
	tokenFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usbdrop_token_provision_failures_total",
		Help: "Profile entries that failed token registration and were omitted from the manifest.",
	})
	packagesAssembled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usbdrop_packages_assembled_total",
		Help: "Drive delivery packages assembled.",
	})
)

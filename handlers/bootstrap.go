package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/negroni"

	"github.com/spring-autohost/cluster-manager/config"
	"github.com/spring-autohost/cluster-manager/fleet"
)

var core fleet.FleetApi

var latencyHistogramVec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "fleet_handlers_duration_ms",
	Help:    "How long it took to process a specific handler, in a specific host",
	Buckets: []float64{300, 1200, 5000},
}, []string{"action"})

func init() {
	prometheus.MustRegister(latencyHistogramVec)
}

func Bootstrap(f fleet.FleetApi) {
	core = f
}

// Router builds the admin mux. Split out of Register so tests can drive it
// with httptest.
func Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/ping", Ping).Methods("GET")
	r.HandleFunc("/clusters", ListClusters).Methods("GET")
	r.HandleFunc("/clusters/{clusterId}", GetCluster).Methods("GET")
	r.HandleFunc("/clusters/{clusterId}/instances", ListInstances).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// adminAddr keeps the endpoint on the loopback interface; fleet state is
// not meant to leave the manager host.
func adminAddr() string {
	return "127.0.0.1:" + config.AdminPort
}

func Register() {
	n := negroni.Classic()
	n.UseHandler(Router())

	httpServer := http.Server{
		Addr:              adminAddr(),
		Handler:           n,
		IdleTimeout:       30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Infof("Admin endpoint listening on %s", adminAddr())
	log.Fatal(httpServer.ListenAndServe())
}

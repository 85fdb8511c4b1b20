package handlers

import (
	"net/http"
	"time"
)

func Ping(rw http.ResponseWriter, req *http.Request) {
	start := time.Now()
	defer func() {
		latencyHistogramVec.WithLabelValues("ping").Observe(float64(time.Since(start).Nanoseconds()) / 1000000)
	}()

	rw.Write([]byte("pong"))
}

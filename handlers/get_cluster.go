package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

func ListClusters(rw http.ResponseWriter, req *http.Request) {
	ids := core.ClusterIDs()
	statuses := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		statuses = append(statuses, core.Status(id))
	}

	json.NewEncoder(rw).Encode(statuses)
}

func GetCluster(rw http.ResponseWriter, req *http.Request) {
	clusterID := mux.Vars(req)["clusterId"]

	status := core.Status(clusterID)
	if !status.Configured && status.Total == 0 {
		rw.WriteHeader(http.StatusNotFound)
		return
	}

	json.NewEncoder(rw).Encode(status)
}

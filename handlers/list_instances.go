package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/spring-autohost/cluster-manager/fleet/types"
)

func ListInstances(rw http.ResponseWriter, req *http.Request) {
	clusterID := mux.Vars(req)["clusterId"]

	instances := core.Instances(clusterID)
	if instances == nil {
		instances = []*types.Instance{}
	}

	json.NewEncoder(rw).Encode(instances)
}

package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/spring-autohost/cluster-manager/fleet"
)

// Commands is the chat-facing surface of the orchestrator. Every handler
// returns formatted text for the calling user; admission rejections come
// back as plain user-visible messages, not stack traces.
type Commands struct {
	fleet fleet.FleetApi
}

func NewCommands(f fleet.FleetApi) *Commands {
	return &Commands{fleet: f}
}

// Handle dispatches one chat command line issued by caller.
func (c *Commands) Handle(caller, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", errors.New("empty command")
	}
	command, args := fields[0], fields[1:]

	switch command {
	case "privateHost":
		return c.privateHost(caller, args)
	case "listClusters":
		return c.listClusters()
	case "clusterConfig":
		return c.clusterConfig(args)
	case "clusterStatus":
		return c.clusterStatus(args)
	case "clusterStats":
		return c.clusterStats()
	case "listInstances":
		return c.listInstances(args)
	}
	return "", errors.Errorf("unknown command %q", command)
}

func (c *Commands) privateHost(caller string, args []string) (string, error) {
	clusterID := ""
	password := ""
	if len(args) > 0 {
		clusterID = args[0]
	}
	if len(args) > 1 {
		password = args[1]
	}
	if clusterID == "" {
		ids := c.fleet.ClusterIDs()
		if len(ids) == 0 {
			return "", errors.New("no clusters are configured")
		}
		clusterID = ids[0]
	}

	instance, err := c.fleet.HostNew(clusterID, caller, password)
	if err != nil {
		log.Infof("Rejected privateHost from %s: %v", caller, err)
		return "", err
	}
	return fmt.Sprintf("Starting private host %s in cluster %s, it will contact you when ready", instance.Name, clusterID), nil
}

func (c *Commands) listClusters() (string, error) {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CLUSTER\tSPARE TARGET\tMAX\tMAX PUBLIC\tMAX PRIVATE")
	for _, id := range c.fleet.ClusterIDs() {
		cluster, found := c.fleet.Cluster(id)
		if !found {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\n", id)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", id, cluster.TargetSpares,
			formatLimit(cluster.MaxInstances), formatLimit(cluster.MaxInstancesPublic), formatLimit(cluster.MaxInstancesPrivate))
	}
	w.Flush()
	return b.String(), nil
}

func (c *Commands) clusterConfig(args []string) (string, error) {
	ids := c.fleet.ClusterIDs()
	if len(args) > 0 {
		ids = []string{args[0]}
	}

	var b strings.Builder
	for _, id := range ids {
		cluster, found := c.fleet.Cluster(id)
		if !found {
			return "", errors.Wrapf(fleet.ErrUnknownCluster, "%s", id)
		}
		fmt.Fprintf(&b, "[%s]\n", id)
		fmt.Fprintf(&b, "  nameTemplate: %s\n", cluster.NameTemplate)
		fmt.Fprintf(&b, "  targetSpares: %d\n", cluster.TargetSpares)
		fmt.Fprintf(&b, "  maxInstances: %s public=%s private=%s\n",
			formatLimit(cluster.MaxInstances), formatLimit(cluster.MaxInstancesPublic), formatLimit(cluster.MaxInstancesPrivate))
	}
	return b.String(), nil
}

func (c *Commands) clusterStatus(args []string) (string, error) {
	ids := c.fleet.ClusterIDs()
	if len(args) > 0 {
		ids = []string{args[0]}
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CLUSTER\tTOTAL\tSPARE\tIN USE\tOFFLINE\tSTUCK\tPRIVATE")
	for _, id := range ids {
		status := c.fleet.Status(id)
		name := id
		if !status.Configured {
			name += " (removed)"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n", name, status.Total, status.Spare, status.InUse, status.Offline, status.Stuck, status.Private)
	}
	w.Flush()
	return b.String(), nil
}

func (c *Commands) clusterStats() (string, error) {
	total := fleet.ClusterStatus{}
	for _, id := range c.fleet.ClusterIDs() {
		status := c.fleet.Status(id)
		total.Total += status.Total
		total.Public += status.Public
		total.Private += status.Private
		total.Spare += status.Spare
		total.InUse += status.InUse
		total.Offline += status.Offline
		total.Stuck += status.Stuck
	}
	return fmt.Sprintf("%d instances in %d clusters: %d public (%d spare, %d in use), %d private, %d offline, %d stuck",
		total.Total, len(c.fleet.ClusterIDs()), total.Public, total.Spare, total.InUse, total.Private, total.Offline, total.Stuck), nil
}

func (c *Commands) listInstances(args []string) (string, error) {
	clusterID := ""
	if len(args) > 0 {
		clusterID = args[0]
	}
	instances := c.fleet.Instances(clusterID)
	if len(instances) == 0 {
		return "No instances", nil
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tNAME\tCLUSTER\tOWNER\tSTATE\tPRESENCE\tPID")
	for _, instance := range instances {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\n",
			instance.InstanceNumber, instance.Name, instance.ClusterID, instance.Owner,
			instance.Lifecycle, instance.Presence, instance.ProcessID)
	}
	w.Flush()
	return b.String(), nil
}

func formatLimit(limit int) string {
	if limit <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", limit)
}

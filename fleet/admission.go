package fleet

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/spring-autohost/cluster-manager/config"
	"github.com/spring-autohost/cluster-manager/event"
	"github.com/spring-autohost/cluster-manager/fleet/types"
	"github.com/spring-autohost/cluster-manager/pidfile"
	"github.com/spring-autohost/cluster-manager/spawn"
)

// HostNew validates and materializes a new instance. Owner is the public
// sentinel for pool instances or a lobby username for a private host.
// Checks run in a fixed order so the caller always gets the most specific
// rejection reason.
func (f *fleet) HostNew(clusterID, owner, password string) (*types.Instance, error) {
	f.rw.Lock()
	defer f.rw.Unlock()
	return f.hostNew(clusterID, owner, password)
}

func (f *fleet) hostNew(clusterID, owner, password string) (*types.Instance, error) {
	cluster, found := f.presets.Cluster(clusterID)
	if !found {
		return nil, ErrUnknownCluster
	}
	private := owner != types.PublicOwner

	if private && f.index.ByOwner(owner) != nil {
		return nil, ErrOwnerHasInstance
	}
	if capped(f.index.CountCluster(clusterID), cluster.MaxInstances) {
		return nil, ErrClusterFull
	}
	if !private && capped(f.index.CountClusterWhere(clusterID, isPublic), cluster.MaxInstancesPublic) {
		return nil, ErrClusterPublicFull
	}
	if private && capped(f.index.CountClusterWhere(clusterID, isPrivate), cluster.MaxInstancesPrivate) {
		return nil, ErrClusterPrivateFull
	}
	if capped(f.index.Count(), config.MaxInstances) {
		return nil, ErrFleetFull
	}
	if !private && capped(f.index.CountPublic(), config.MaxInstancesPublic) {
		return nil, ErrFleetPublicFull
	}
	if private && capped(f.index.CountPrivate(), config.MaxInstancesPrivate) {
		return nil, ErrFleetPrivateFull
	}

	number := f.index.NextNumber()
	clusterNumber := f.index.NextClusterNumber(clusterID)

	name := expandName(cluster.NameTemplate, clusterID, config.ManagerName, owner, number, clusterNumber)
	if !validName(name) {
		return nil, errors.Wrapf(ErrBadName, "%q", name)
	}
	if f.index.ByName(name) != nil {
		return nil, errors.Wrapf(ErrNameCollision, "%s", name)
	}

	instance, err := types.NewInstance(number, name, clusterID, clusterNumber, owner)
	if err != nil {
		return nil, err
	}

	executable, err := f.resolveExecutable()
	if err != nil {
		return nil, err
	}

	workingDir, err := f.prepareWorkingDir(number)
	if err != nil {
		return nil, err
	}

	lock, err := f.store.Acquire(number)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	// A leftover record for this number means the on-disk state disagrees
	// with the index. Abort this admission, never overwrite.
	if _, _, err := lock.Read(); !pidfile.NotFound(err) {
		if err == nil {
			err = errors.Errorf("instance %d already has a record", number)
		}
		return nil, err
	}

	record := &pidfile.Record{
		ManagerName:           config.ManagerName,
		InstanceNumber:        number,
		InstanceName:          name,
		ClusterPreset:         clusterID,
		ClusterInstanceNumber: clusterNumber,
		OwnerName:             owner,
	}
	if err := lock.Write(types.StateLaunched, record); err != nil {
		return nil, err
	}

	if private && password == "" {
		password = f.generator.NewId()
	}
	macros := f.spawnMacros(cluster, instance, workingDir, password, private)

	// A name the manager has never seen in the lobby has no account yet.
	// Register it with the account password the worker will log in with.
	if !f.storage.UserSeen(name) {
		accountPassword := macros["lobbyPassword"]
		if accountPassword == "" {
			accountPassword = f.generator.NewId()
			macros["lobbyPassword"] = accountPassword
		}
		if err := f.lobby.Register(name, accountPassword); err != nil {
			if removeErr := lock.Remove(types.StateLaunched); removeErr != nil {
				log.Errorf("Cannot clean up record of failed registration %s. Got: %v", name, removeErr)
			}
			return nil, errors.Wrapf(err, "cannot register lobby account %s", name)
		}
		log.Infof("Registered lobby account for %s", name)
	}

	pid, err := f.spawner.Spawn(spawn.Opts{
		Executable: executable,
		WorkingDir: workingDir,
		Macros:     macros,
	})
	if err != nil {
		if removeErr := lock.Remove(types.StateLaunched); removeErr != nil {
			log.Errorf("Cannot clean up record of failed spawn %s. Got: %v", name, removeErr)
		}
		return nil, errors.Wrapf(err, "cannot spawn instance %s", name)
	}
	instance.ProcessID = pid

	if err := f.index.Add(instance); err != nil {
		return nil, err
	}

	log.Infof("NewInstance name=[%s] cluster=[%s] owner=[%s] pid=%d", name, clusterID, owner, pid)
	f.setGauges()
	f.event.Emit(event.INSTANCE_NEW, name, clusterID)

	return instance, nil
}

// capped treats a zero or negative limit as unlimited.
func capped(count, limit int) bool {
	return limit > 0 && count >= limit
}

func isPublic(i *types.Instance) bool  { return i.IsPublic() }
func isPrivate(i *types.Instance) bool { return !i.IsPublic() }

func (f *fleet) spawnMacros(cluster *types.ClusterConfig, instance *types.Instance, workingDir, password string, private bool) map[string]string {
	macros := map[string]string{
		config.ManagerMacro:               config.ManagerName,
		config.MacroInstanceNumber:        strconv.Itoa(instance.InstanceNumber),
		config.MacroClusterInstanceNumber: strconv.Itoa(instance.ClusterInstanceNumber),
		config.MacroOwner:                 instance.Owner,
		config.MacroStartContext:          "load",
		"lobbyLogin":                      instance.Name,
		"preset":                          instance.ClusterID,
		"instanceDir":                     workingDir,
		"varDir":                          f.store.Dir(),
		"gamePort":                        strconv.Itoa(config.BaseGamePort + instance.InstanceNumber),
		"controlPort":                     strconv.Itoa(config.BaseControlPort + instance.InstanceNumber),
	}
	overrides := cluster.PublicMacros
	if private {
		overrides = cluster.PrivateMacros
		macros["password"] = password
	}
	for k, v := range overrides {
		macros[k] = v
	}
	return macros
}

// executablePathKey is the detected-path cache slot for the worker binary.
const executablePathKey = "autohostExecutable"

// resolveExecutable locates the worker binary. Relative names go through
// the detected-path cache so PATH is searched at most once per manager
// lifetime.
func (f *fleet) resolveExecutable() (string, error) {
	if filepath.IsAbs(config.Executable) {
		return config.Executable, nil
	}
	if cached, err := f.storage.PathGet(executablePathKey); err == nil {
		return cached, nil
	}
	resolved, err := exec.LookPath(config.Executable)
	if err != nil {
		return "", errors.Wrapf(err, "cannot locate executable %q", config.Executable)
	}
	if err := f.storage.PathPut(executablePathKey, resolved); err != nil {
		log.Errorf("Cannot cache executable path. Got: %v", err)
	}
	return resolved, nil
}

func (f *fleet) prepareWorkingDir(number int) (string, error) {
	workingDir := filepath.Join(config.InstancesDir, strconv.Itoa(number))
	if err := os.MkdirAll(workingDir, 0755); err != nil {
		return "", errors.Wrapf(err, "cannot create working directory %s", workingDir)
	}
	if err := f.shareArchiveCache(workingDir); err != nil {
		return "", err
	}
	return workingDir, nil
}

// shareArchiveCache makes the manager's archive cache visible inside an
// instance directory, symlinked when cache sharing is on, copied otherwise.
func (f *fleet) shareArchiveCache(workingDir string) error {
	source := filepath.Join(config.VarDir, "cache")
	if _, err := os.Stat(source); os.IsNotExist(err) {
		return nil
	}
	target := filepath.Join(workingDir, "cache")
	if _, err := os.Lstat(target); err == nil {
		return nil
	}

	if config.ShareArchiveCache {
		return os.Symlink(source, target)
	}
	return copyDir(source, target)
}

func copyDir(source, target string) error {
	if err := os.MkdirAll(target, 0755); err != nil {
		return err
	}
	entries, err := os.ReadDir(source)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		src := filepath.Join(source, entry.Name())
		dst := filepath.Join(target, entry.Name())
		if entry.IsDir() {
			if err := copyDir(src, dst); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(src, dst); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(source, target string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("cannot copy %s: %v", source, err)
	}
	return nil
}

package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/spring-autohost/cluster-manager/fleet/types"
)

var (
	ErrNotFound     = errors.New("no record found")
	ErrInconsistent = errors.New("more than one record for instance number")
	ErrCorrupt      = errors.New("corrupt record")
	ErrLocked       = errors.New("lock is held by another process")
)

func NotFound(err error) bool {
	return errors.Cause(err) == ErrNotFound
}

// Store gives access to the per-manager directory of PID records. Every
// read/modify/rename sequence for one instance number happens under that
// number's advisory lock file.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "cannot create record directory %s", dir)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) lockPath(number int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.lock", number))
}

func (s *Store) recordPath(number int, kind types.LifecycleState) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.%s", number, kindSuffix[kind]))
}

func (s *Store) exitingPath(number int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.exiting", number))
}

// Lock holds the advisory exclusive lock of one instance number. All record
// operations hang off the lock so they cannot be performed without it.
type Lock struct {
	store  *Store
	number int
	file   *os.File
}

// Acquire blocks until the instance's lock is available.
func (s *Store) Acquire(number int) (*Lock, error) {
	return s.acquire(number, 0)
}

// TryAcquire fails with ErrLocked instead of blocking.
func (s *Store) TryAcquire(number int) (*Lock, error) {
	return s.acquire(number, unix.LOCK_NB)
}

func (s *Store) acquire(number int, flags int) (*Lock, error) {
	f, err := os.OpenFile(s.lockPath(number), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open lock file for instance %d", number)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|flags); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, errors.Wrapf(ErrLocked, "instance %d", number)
		}
		return nil, errors.Wrapf(err, "cannot lock instance %d", number)
	}
	return &Lock{store: s, number: number, file: f}, nil
}

func (l *Lock) Release() {
	if l.file == nil {
		return
	}
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		log.Errorf("Error unlocking instance %d. Got: %v", l.number, err)
	}
	l.file.Close()
	l.file = nil
}

// Read determines whether exactly zero or one record exists for this
// instance number and returns it along with its kind.
func (l *Lock) Read() (*Record, types.LifecycleState, error) {
	kinds, err := l.store.kindsOf(l.number)
	if err != nil {
		return nil, "", err
	}
	if len(kinds) == 0 {
		return nil, "", errors.Wrapf(ErrNotFound, "instance %d", l.number)
	}
	if len(kinds) > 1 {
		return nil, "", errors.Wrapf(ErrInconsistent, "instance %d has records %v", l.number, kinds)
	}
	kind := kinds[0]
	data, err := os.ReadFile(l.store.recordPath(l.number, kind))
	if err != nil {
		return nil, "", errors.Wrapf(err, "cannot read record of instance %d", l.number)
	}
	record, err := unmarshalRecord(data)
	if err != nil {
		return nil, "", errors.Wrapf(err, "instance %d", l.number)
	}
	return record, kind, nil
}

func (l *Lock) Write(kind types.LifecycleState, record *Record) error {
	if _, ok := kindSuffix[kind]; !ok {
		return errors.Errorf("kind %s is not storable", kind)
	}
	data, err := record.marshal(kind)
	if err != nil {
		return err
	}
	path := l.store.recordPath(l.number, kind)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "cannot write record %s", path)
	}
	return nil
}

// Transition renames the record from one kind to another. It fails rather
// than lose data when the source is missing or the destination exists.
func (l *Lock) Transition(from, to types.LifecycleState) error {
	src := l.store.recordPath(l.number, from)
	dst := l.store.recordPath(l.number, to)
	if _, err := os.Stat(src); err != nil {
		return errors.Wrapf(err, "no %s record to transition for instance %d", from, l.number)
	}
	if _, err := os.Stat(dst); err == nil {
		return errors.Wrapf(ErrInconsistent, "instance %d already has a %s record", l.number, to)
	}
	if err := os.Rename(src, dst); err != nil {
		return errors.Wrapf(err, "cannot transition instance %d from %s to %s", l.number, from, to)
	}
	return nil
}

func (l *Lock) Remove(kind types.LifecycleState) error {
	path := l.store.recordPath(l.number, kind)
	if err := os.Remove(path); err != nil {
		return errors.Wrapf(err, "cannot remove record %s", path)
	}
	return nil
}

// RemoveAll deletes every record and the lock file of an instance number,
// so the number can be reused. Call with the lock held.
func (l *Lock) RemoveAll() error {
	kinds, err := l.store.kindsOf(l.number)
	if err != nil {
		return err
	}
	for _, kind := range kinds {
		if err := l.Remove(kind); err != nil {
			return err
		}
	}
	os.Remove(l.store.exitingPath(l.number))
	if err := os.Remove(l.store.lockPath(l.number)); err != nil {
		return errors.Wrapf(err, "cannot remove lock file of instance %d", l.number)
	}
	return nil
}

// MarkExiting writes the zero-byte marker a worker leaves just before
// process exit, telling the manager this is a clean departure.
func (s *Store) MarkExiting(number int) error {
	f, err := os.OpenFile(s.exitingPath(number), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(err, "cannot write exiting marker for instance %d", number)
	}
	return f.Close()
}

func (s *Store) HasExiting(number int) bool {
	_, err := os.Stat(s.exitingPath(number))
	return err == nil
}

func (s *Store) ConsumeExiting(number int) error {
	if err := os.Remove(s.exitingPath(number)); err != nil {
		return errors.Wrapf(err, "cannot consume exiting marker of instance %d", number)
	}
	return nil
}

func (s *Store) kindsOf(number int) ([]types.LifecycleState, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot enumerate record directory %s", s.dir)
	}
	prefix := strconv.Itoa(number) + "."
	var kinds []types.LifecycleState
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		if kind, ok := suffixKind[strings.TrimPrefix(e.Name(), prefix)]; ok {
			kinds = append(kinds, kind)
		}
	}
	return kinds, nil
}

// Entry is one record found while enumerating the store at startup.
type Entry struct {
	Number int
	Kind   types.LifecycleState
	Record *Record
}

// List enumerates all records in the directory, reading each one under its
// instance lock. A record that cannot be read is returned as an entry with
// a nil Record so the caller can decide whether to skip it.
func (s *Store) List() ([]Entry, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot enumerate record directory %s", s.dir)
	}
	numbers := map[int]bool{}
	for _, e := range entries {
		numberPart, suffix, found := strings.Cut(e.Name(), ".")
		if !found {
			continue
		}
		if _, ok := suffixKind[suffix]; !ok {
			continue
		}
		number, err := strconv.Atoi(numberPart)
		if err != nil {
			log.Warnf("Ignoring record file with non-numeric name %s", e.Name())
			continue
		}
		numbers[number] = true
	}

	sorted := make([]int, 0, len(numbers))
	for n := range numbers {
		sorted = append(sorted, n)
	}
	sort.Ints(sorted)

	result := make([]Entry, 0, len(sorted))
	for _, n := range sorted {
		lock, err := s.Acquire(n)
		if err != nil {
			log.Errorf("Cannot lock instance %d during enumeration. Got: %v", n, err)
			result = append(result, Entry{Number: n})
			continue
		}
		record, kind, err := lock.Read()
		lock.Release()
		if err != nil {
			log.Errorf("Cannot read record of instance %d during enumeration. Got: %v", n, err)
			result = append(result, Entry{Number: n})
			continue
		}
		result = append(result, Entry{Number: n, Kind: kind, Record: record})
	}
	return result, nil
}

// AcquireManagerLock takes the fleet-wide manager lock. A second manager
// over the same record directory refuses to start.
func (s *Store) AcquireManagerLock() (*os.File, error) {
	path := filepath.Join(s.dir, "manager.lock")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open manager lock %s", path)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, errors.Wrap(ErrLocked, "another manager is already running")
		}
		return nil, errors.Wrapf(err, "cannot lock %s", path)
	}
	return f, nil
}

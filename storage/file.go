package storage

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

const pathCacheSize = 500

type storage struct {
	rw   sync.Mutex
	path string
	db   *DB

	// Hot lookups go through the LRU; the DB map is the persistent seed.
	pathCache *lru.Cache
}

type DB struct {
	SeenUsers     map[string]time.Time `json:"seen_users"`
	DetectedPaths map[string]string    `json:"detected_paths"`
}

func NewFileStorage(path string) (*storage, error) {
	s := &storage{path: path}
	err := s.load()
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	cache, err := lru.New(pathCacheSize)
	if err != nil {
		return nil, err
	}
	s.pathCache = cache
	for k, v := range s.db.DetectedPaths {
		s.pathCache.Add(k, v)
	}
	return s, nil
}

func (s *storage) UserSeen(username string) bool {
	s.rw.Lock()
	defer s.rw.Unlock()

	_, found := s.db.SeenUsers[username]
	return found
}

func (s *storage) UserMarkSeen(username string) error {
	s.rw.Lock()
	defer s.rw.Unlock()

	if _, found := s.db.SeenUsers[username]; found {
		return nil
	}
	s.db.SeenUsers[username] = time.Now()
	return s.save()
}

func (s *storage) UserSeenSince(username string) (time.Time, error) {
	s.rw.Lock()
	defer s.rw.Unlock()

	since, found := s.db.SeenUsers[username]
	if !found {
		return time.Time{}, NewNotFoundError()
	}
	return since, nil
}

func (s *storage) UserCount() (int, error) {
	s.rw.Lock()
	defer s.rw.Unlock()

	return len(s.db.SeenUsers), nil
}

func (s *storage) PathGet(key string) (string, error) {
	s.rw.Lock()
	defer s.rw.Unlock()

	if v, found := s.pathCache.Get(key); found {
		return v.(string), nil
	}
	v, found := s.db.DetectedPaths[key]
	if !found {
		return "", NewNotFoundError()
	}
	s.pathCache.Add(key, v)
	return v, nil
}

func (s *storage) PathPut(key, value string) error {
	s.rw.Lock()
	defer s.rw.Unlock()

	s.pathCache.Add(key, value)
	s.db.DetectedPaths[key] = value
	return s.save()
}

func (s *storage) load() error {
	file, err := os.Open(s.path)
	if err != nil {
		s.db = emptyDB()
		return err
	}
	defer file.Close()

	db := &DB{}
	err = json.NewDecoder(file).Decode(db)
	if err != nil {
		s.db = emptyDB()
		return err
	}
	if db.SeenUsers == nil {
		db.SeenUsers = map[string]time.Time{}
	}
	if db.DetectedPaths == nil {
		db.DetectedPaths = map[string]string{}
	}
	s.db = db
	return nil
}

func (s *storage) save() error {
	file, err := os.Create(s.path)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewEncoder(file).Encode(s.db)
}

func emptyDB() *DB {
	return &DB{
		SeenUsers:     map[string]time.Time{},
		DetectedPaths: map[string]string{},
	}
}

// Package connection is the single open-database handle (component K): it
// owns the storage, crypto, sharding and dataflow engines that every
// statement executes against, and hands out lightweight per-client
// Connection handles over that shared state. Grounded on
// original_source/k9db/connection.h's State/Connection split.
package connection

import (
	"fmt"
	"strings"
	"sync"

	"k9db/internal/config"
	"k9db/internal/crypto"
	"k9db/internal/dataflow"
	"k9db/internal/kv"
	"k9db/internal/rewrite"
)

// State is the process-wide open-database handle. The original guards it
// with an UpgradableMutex so concurrent statement execution holds a shared
// read lock while schema changes (CREATE TABLE) take an exclusive one; Go
// has no upgradable-lock primitive in the standard library, so State uses
// a plain sync.RWMutex with the same split (RLock for DML/SELECT/GDPR,
// Lock for CREATE TABLE) rather than reaching for a third-party lock.
type State struct {
	mu sync.RWMutex

	dbName    string
	db        *kv.DB
	crypto    *crypto.Manager
	flows     *dataflow.Engine
	engine    *rewrite.Engine
	persisted []string
}

// Open opens (or creates) the KV store at path and wires every engine
// component over it, replaying any CREATE TABLE statements persisted by a
// previous session so the ownership graph and physical storage (including
// AUTO_INCREMENT counters) are fully rebuilt before the first statement
// runs. If inMemory is true, path is ignored and the store lives only in
// memory — and, since no prior session could have persisted anything to
// it, reload is always a no-op.
func Open(dbName, path string, inMemory bool) (*State, error) {
	db, err := kv.Open(path, inMemory)
	if err != nil {
		return nil, fmt.Errorf("connection: opening store for database %q: %w", dbName, err)
	}
	mgr, err := crypto.NewManager(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connection: loading crypto keys: %w", err)
	}
	flows := dataflow.NewEngine()
	eng := rewrite.NewEngine(db, mgr, flows)
	persisted, err := eng.ReloadPersistedStatements()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connection: replaying persisted schema for database %q: %w", dbName, err)
	}
	return &State{
		dbName:     dbName,
		db:         db,
		crypto:     mgr,
		flows:      flows,
		engine:     eng,
		persisted:  persisted,
	}, nil
}

// PersistedStatements returns the CREATE TABLE statements this State's
// schema was rebuilt from on Open — empty for a database created fresh in
// this process.
func (s *State) PersistedStatements() []string {
	return s.persisted
}

// OpenConfig opens a State from a loaded k9db.toml configuration.
func OpenConfig(cfg *config.Config) (*State, error) {
	return Open(cfg.DatabaseName, cfg.StorePath, cfg.InMemory)
}

// Close releases the underlying KV store. No statement may execute against
// this State afterward.
func (s *State) Close() error {
	return s.db.Close()
}

// Name returns the database name this State was opened under.
func (s *State) Name() string { return s.dbName }

// Flows exposes the dataflow engine so views can be declared against it
// directly (K9db has no CREATE VIEW statement; flows are assembled
// programmatically, see internal/dataflow.Flow).
func (s *State) Flows() *dataflow.Engine { return s.flows }

// HasTable reports whether a table by this name has been created.
func (s *State) HasTable(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.engine.Table(name)
	return ok
}

// execute runs stmt against the engine, taking the exclusive lock for
// CREATE TABLE (which mutates the shared sharding graph) and the shared
// lock for every other statement kind (which only mutate per-row state
// already synchronized by the KV engine's own transactions).
func (s *State) execute(stmt string, exclusive bool) (rewrite.Result, error) {
	if exclusive {
		s.mu.Lock()
		defer s.mu.Unlock()
	} else {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	return s.engine.Execute(stmt)
}

// NumShards returns how many distinct shard kinds the sharder has created,
// mirroring the original State::NumShards debug accessor.
func (s *State) NumShards() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.engine.Shards.Tables() {
		if t.IsDataSubject {
			n++
		}
	}
	return n
}

// Connection is a lightweight per-client handle onto a shared State,
// tracking that client's prepared statements. Mirrors the original
// Connection struct, minus the interactive session/socket fields that
// have no non-interactive equivalent here.
type Connection struct {
	state *State

	mu    sync.Mutex
	stmts map[string]string // prepared statement name -> canonical SQL
}

// NewConnection opens a new client handle onto state.
func (s *State) NewConnection() *Connection {
	return &Connection{state: s, stmts: make(map[string]string)}
}

// Execute runs one SQL statement, taking the exclusive lock only for
// CREATE TABLE.
func (c *Connection) Execute(stmt string) (rewrite.Result, error) {
	exclusive := isCreateTable(stmt)
	return c.state.execute(stmt, exclusive)
}

// Prepare registers stmt under name for later execution via
// ExecutePrepared, mirroring the original's canonical-statement cache.
func (c *Connection) Prepare(name, stmt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stmts[name] = stmt
}

// ExecutePrepared runs the statement previously registered under name.
func (c *Connection) ExecutePrepared(name string) (rewrite.Result, error) {
	c.mu.Lock()
	stmt, ok := c.stmts[name]
	c.mu.Unlock()
	if !ok {
		return rewrite.Result{}, fmt.Errorf("connection: no prepared statement named %q", name)
	}
	return c.Execute(stmt)
}

// Close releases this connection's local state. The shared State and its
// KV store stay open for other connections.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stmts = nil
}

func isCreateTable(stmt string) bool {
	trimmed := strings.ToUpper(strings.TrimSpace(stmt))
	return strings.HasPrefix(trimmed, "CREATE TABLE")
}

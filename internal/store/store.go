// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.13
//

// Package store persists simulation results in SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/mkhts/proximum"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var ErrRunNotFound = errors.New("run not found")

type Store struct {
	db *sql.DB
}

// Run is the stored header of a simulation run.
type Run struct {
	ID      string
	Epoch   int
	NEpochs int
	State   string
	Seed    uint64
	Config  proximum.SimulationConfig
}

// Open opens or creates the database at path and migrates it to the latest schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}

	// m is not closed, that would close the database as well
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...any) {
	proximum.PrintD(1, "[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return proximum.DBG_ >= 3
}

// SaveRun writes the header, the stats and the nodes of snap in one transaction.
// Saving the same run again replaces what was stored before.
func (s *Store) SaveRun(ctx context.Context, snap *proximum.Snapshot, cfg proximum.SimulationConfig) error {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, epoch, n_epochs, state, seed, config_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(run_id) DO UPDATE SET
			epoch = excluded.epoch,
			n_epochs = excluded.n_epochs,
			state = excluded.state,
			seed = excluded.seed,
			config_json = excluded.config_json,
			updated_at = CURRENT_TIMESTAMP`,
		snap.RunID, snap.Epoch, snap.NEpochs, snap.State, strconv.FormatUint(cfg.Seed, 10), string(cfgJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", snap.RunID, err)
	}

	if err := saveStats(ctx, tx, snap.RunID, &snap.Stats); err != nil {
		return err
	}
	if err := saveNodes(ctx, tx, snap.RunID, snap.Nodes); err != nil {
		return err
	}
	return tx.Commit()
}

func saveStats(ctx context.Context, tx *sql.Tx, runID string, st *proximum.Stats) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO epoch_stats (run_id, epoch, kf_rms_error, ls_rms_error, asserted_rms_error)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range st.Len() {
		if _, err := stmt.ExecContext(ctx, runID, i, st.KFRMSError[i], st.LSRMSError[i], st.AssertedRMSError[i]); err != nil {
			return fmt.Errorf("failed to save stats of epoch %d: %w", i, err)
		}
	}
	return nil
}

func saveNodes(ctx context.Context, tx *sql.Tx, runID string, nodes []proximum.NodeSnapshot) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO nodes (
			run_id, node_id, true_index, asserted_index, ls_estimated_index, kf_estimated_index,
			true_beta, true_tau, kf_estimated_beta, kf_estimated_tau,
			ls_error, kf_error, kf_semimajor, kf_semiminor
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, n := range nodes {
		lsErr := proximum.EucDist(&n.TruePosition, &n.LSEstimatedPosition)
		kfErr := proximum.EucDist(&n.TruePosition, &n.KFEstimatedPosition)
		_, err := stmt.ExecContext(ctx,
			runID, n.ID, n.TrueCell.String(), n.AssertedCell.String(), n.LSEstimatedCell.String(), n.KFEstimatedCell.String(),
			n.TrueBeta, n.TrueTau, n.KFEstimatedBeta, n.KFEstimatedTau,
			lsErr, kfErr, n.KFEllipse.SemiMajorLength, n.KFEllipse.SemiMinorLength,
		)
		if err != nil {
			return fmt.Errorf("failed to save node %d: %w", n.ID, err)
		}
	}
	return nil
}

// LoadRun reads the header of a stored run.
func (s *Store) LoadRun(ctx context.Context, runID string) (*Run, error) {
	var r Run
	var seed, cfgJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, epoch, n_epochs, state, seed, config_json FROM runs WHERE run_id = ?`, runID,
	).Scan(&r.ID, &r.Epoch, &r.NEpochs, &r.State, &seed, &cfgJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	if r.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return nil, fmt.Errorf("invalid seed %q of run %s: %w", seed, runID, err)
	}
	if err := json.Unmarshal([]byte(cfgJSON), &r.Config); err != nil {
		return nil, fmt.Errorf("failed to decode config of run %s: %w", runID, err)
	}
	return &r, nil
}

// LoadEpochStats reads the stats of a stored run in epoch order.
func (s *Store) LoadEpochStats(ctx context.Context, runID string) (proximum.Stats, error) {
	var st proximum.Stats
	rows, err := s.db.QueryContext(ctx, `
		SELECT kf_rms_error, ls_rms_error, asserted_rms_error
		FROM epoch_stats WHERE run_id = ? ORDER BY epoch`, runID)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var kf, ls, asserted float64
		if err := rows.Scan(&kf, &ls, &asserted); err != nil {
			return st, err
		}
		st.KFRMSError = append(st.KFRMSError, kf)
		st.LSRMSError = append(st.LSRMSError, ls)
		st.AssertedRMSError = append(st.AssertedRMSError, asserted)
	}
	if err := rows.Err(); err != nil {
		return st, err
	}
	if st.Len() == 0 {
		return st, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return st, nil
}

// CountNodes returns the number of nodes stored for a run.
func (s *Store) CountNodes(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

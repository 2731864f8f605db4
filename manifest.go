package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/fleetdesk/fleetdesk/internal/linediff"
)

const manifestSchema = `
CREATE TABLE IF NOT EXISTS manifests (
	name       TEXT PRIMARY KEY,
	effective  INTEGER NOT NULL,
	latest     INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS manifest_versions (
	name       TEXT NOT NULL,
	version    INTEGER NOT NULL,
	content    TEXT NOT NULL,
	author     TEXT NOT NULL,
	message    TEXT NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (name, version)
);`

var manifestName = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,62}$`)

// Manifest tracks a deployment manifest's versions. Effective is the version
// currently in force; Latest is the highest version number. They differ after
// a rollback.
type Manifest struct {
	Name      string `json:"name"`
	Effective int    `json:"effective"`
	Latest    int    `json:"latest"`
	UpdatedAt string `json:"updated_at"`
}

// ManifestVersion is one immutable revision.
type ManifestVersion struct {
	Name      string `json:"name"`
	Version   int    `json:"version"`
	Content   string `json:"content,omitempty"`
	Author    string `json:"author"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// PublishRequest creates a new version. A non-zero BaseVersion must equal
// the effective version at commit time.
type PublishRequest struct {
	Name        string `json:"name"`
	Content     string `json:"content"`
	Author      string `json:"author"`
	Message     string `json:"message"`
	BaseVersion int    `json:"base_version"`
}

// ManifestDiff compares two versions of one manifest.
type ManifestDiff struct {
	Name  string         `json:"name"`
	From  int            `json:"from"`
	To    int            `json:"to"`
	Rows  []linediff.Row `json:"rows"`
	Stats linediff.Stats `json:"stats"`
}

// ManifestStore keeps manifest history in sqlite.
type ManifestStore struct {
	db    *sql.DB
	cache *linediff.Cache
	log   *zap.Logger
	now   func() time.Time

	// OnChange, when set, receives publish and rollback events.
	OnChange func(Event)
}

// OpenManifestStore opens dsn and creates the schema.
func OpenManifestStore(ctx context.Context, dsn string, cache *linediff.Cache, log *zap.Logger) (*ManifestStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening manifest db: %w", err)
	}
	// A private :memory: database lives on a single connection.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, manifestSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating manifest schema: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ManifestStore{
		db:    db,
		cache: cache,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close releases the database.
func (s *ManifestStore) Close() error {
	return s.db.Close()
}

// SeedIfEmpty publishes the demo manifests into an empty store.
func (s *ManifestStore) SeedIfEmpty(ctx context.Context) error {
	list, err := s.List(ctx)
	if err != nil || len(list) > 0 {
		return err
	}
	for _, m := range seedManifests {
		if _, err := s.Publish(ctx, PublishRequest{Name: m.name, Content: m.content, Author: "seed", Message: m.message}); err != nil {
			return err
		}
	}
	return nil
}

// List returns every manifest ordered by name.
func (s *ManifestStore) List(ctx context.Context) ([]Manifest, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, effective, latest, updated_at FROM manifests ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing manifests: %w", err)
	}
	defer rows.Close()
	out := []Manifest{}
	for rows.Next() {
		var m Manifest
		if err := rows.Scan(&m.Name, &m.Effective, &m.Latest, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Get returns the manifest header and its effective version.
func (s *ManifestStore) Get(ctx context.Context, name string) (Manifest, ManifestVersion, error) {
	m, err := s.manifest(ctx, s.db, name)
	if err != nil {
		return Manifest{}, ManifestVersion{}, err
	}
	v, err := s.Version(ctx, name, m.Effective)
	return m, v, err
}

// Versions lists a manifest's history, newest first, without content.
func (s *ManifestStore) Versions(ctx context.Context, name string) ([]ManifestVersion, error) {
	if _, err := s.manifest(ctx, s.db, name); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT version, author, message, created_at FROM manifest_versions WHERE name = ? ORDER BY version DESC`, name)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	defer rows.Close()
	out := []ManifestVersion{}
	for rows.Next() {
		v := ManifestVersion{Name: name}
		if err := rows.Scan(&v.Version, &v.Author, &v.Message, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Version returns one revision including its content.
func (s *ManifestStore) Version(ctx context.Context, name string, version int) (ManifestVersion, error) {
	v := ManifestVersion{Name: name, Version: version}
	err := s.db.QueryRowContext(ctx,
		`SELECT content, author, message, created_at FROM manifest_versions WHERE name = ? AND version = ?`,
		name, version).Scan(&v.Content, &v.Author, &v.Message, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ManifestVersion{}, fmt.Errorf("manifest %s version %d: %w", name, version, ErrNotFound)
	}
	if err != nil {
		return ManifestVersion{}, fmt.Errorf("reading manifest version: %w", err)
	}
	return v, nil
}

// Publish validates the content as YAML and stores it as the new effective
// version.
func (s *ManifestStore) Publish(ctx context.Context, req PublishRequest) (ManifestVersion, error) {
	if !manifestName.MatchString(req.Name) {
		return ManifestVersion{}, invalidf("bad manifest name %q", req.Name)
	}
	if strings.TrimSpace(req.Content) == "" {
		return ManifestVersion{}, invalidf("content is required")
	}
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(req.Content), &doc); err != nil {
		return ManifestVersion{}, invalidf("content is not valid YAML: %v", err)
	}
	if req.Author == "" {
		req.Author = "anonymous"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ManifestVersion{}, fmt.Errorf("begin publish: %w", err)
	}
	defer tx.Rollback()

	m, err := s.manifest(ctx, tx, req.Name)
	switch {
	case errors.Is(err, ErrNotFound):
		m = Manifest{Name: req.Name}
	case err != nil:
		return ManifestVersion{}, err
	}
	if req.BaseVersion != 0 && req.BaseVersion != m.Effective {
		return ManifestVersion{}, fmt.Errorf("manifest %s: editing version %d but version %d is effective: %w",
			req.Name, req.BaseVersion, m.Effective, ErrConflict)
	}

	now := s.now().Format(timeLayout)
	v := ManifestVersion{
		Name:      req.Name,
		Version:   m.Latest + 1,
		Content:   req.Content,
		Author:    req.Author,
		Message:   req.Message,
		CreatedAt: now,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO manifest_versions (name, version, content, author, message, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		v.Name, v.Version, v.Content, v.Author, v.Message, v.CreatedAt); err != nil {
		return ManifestVersion{}, fmt.Errorf("inserting version: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO manifests (name, effective, latest, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET effective = excluded.effective, latest = excluded.latest, updated_at = excluded.updated_at`,
		v.Name, v.Version, v.Version, now); err != nil {
		return ManifestVersion{}, fmt.Errorf("updating manifest: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return ManifestVersion{}, fmt.Errorf("commit publish: %w", err)
	}

	s.log.Info("manifest published",
		zap.String("name", v.Name), zap.Int("version", v.Version), zap.String("author", v.Author))
	s.emit(Event{Type: "manifest-published", Resource: "manifest", ID: v.Name, Content: fmt.Sprint(v.Version)})
	return v, nil
}

// Rollback makes an existing version effective again without creating a new
// one.
func (s *ManifestStore) Rollback(ctx context.Context, name string, version int) (Manifest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Manifest{}, fmt.Errorf("begin rollback: %w", err)
	}
	defer tx.Rollback()

	m, err := s.manifest(ctx, tx, name)
	if err != nil {
		return Manifest{}, err
	}
	if version < 1 || version > m.Latest {
		return Manifest{}, fmt.Errorf("manifest %s version %d: %w", name, version, ErrNotFound)
	}
	if version == m.Effective {
		return m, nil
	}
	m.Effective = version
	m.UpdatedAt = s.now().Format(timeLayout)
	if _, err := tx.ExecContext(ctx,
		`UPDATE manifests SET effective = ?, updated_at = ? WHERE name = ?`, m.Effective, m.UpdatedAt, name); err != nil {
		return Manifest{}, fmt.Errorf("rolling back: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Manifest{}, fmt.Errorf("commit rollback: %w", err)
	}
	s.log.Info("manifest rolled back", zap.String("name", name), zap.Int("version", version))
	s.emit(Event{Type: "manifest-rolled-back", Resource: "manifest", ID: name, Content: fmt.Sprint(version)})
	return m, nil
}

// Diff compares two versions. Zero to means the latest; zero from means the
// effective version, or the one before to when they are the same.
func (s *ManifestStore) Diff(ctx context.Context, name string, from, to int) (ManifestDiff, error) {
	fromV, toV, err := s.pair(ctx, name, from, to)
	if err != nil {
		return ManifestDiff{}, err
	}
	res, err := s.cache.Diff(fromV.Content, toV.Content)
	if err != nil {
		return ManifestDiff{}, err
	}
	return ManifestDiff{Name: name, From: fromV.Version, To: toV.Version, Rows: res.Rows, Stats: res.Stats}, nil
}

// Patch renders the change between two versions in diff-match-patch text
// format, which PatchFromText and PatchApply can replay.
func (s *ManifestStore) Patch(ctx context.Context, name string, from, to int) (string, error) {
	fromV, toV, err := s.pair(ctx, name, from, to)
	if err != nil {
		return "", err
	}
	if err := s.cache.Limits().Check(linediff.Split(fromV.Content), linediff.Split(toV.Content)); err != nil {
		return "", err
	}
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(fromV.Content, toV.Content)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
	return dmp.PatchToText(dmp.PatchMake(fromV.Content, diffs)), nil
}

func (s *ManifestStore) pair(ctx context.Context, name string, from, to int) (ManifestVersion, ManifestVersion, error) {
	m, err := s.manifest(ctx, s.db, name)
	if err != nil {
		return ManifestVersion{}, ManifestVersion{}, err
	}
	if to == 0 {
		to = m.Latest
	}
	if from == 0 {
		from = m.Effective
		if from == to && to > 1 {
			from = to - 1
		}
	}
	fromV, err := s.Version(ctx, name, from)
	if err != nil {
		return ManifestVersion{}, ManifestVersion{}, err
	}
	toV, err := s.Version(ctx, name, to)
	if err != nil {
		return ManifestVersion{}, ManifestVersion{}, err
	}
	return fromV, toV, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *ManifestStore) manifest(ctx context.Context, q queryRower, name string) (Manifest, error) {
	m := Manifest{Name: name}
	err := q.QueryRowContext(ctx,
		`SELECT effective, latest, updated_at FROM manifests WHERE name = ?`, name).Scan(&m.Effective, &m.Latest, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Manifest{}, fmt.Errorf("manifest %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("reading manifest: %w", err)
	}
	return m, nil
}

func (s *ManifestStore) emit(e Event) {
	if s.OnChange != nil {
		s.OnChange(e)
	}
}

// Package artifact implements the Artifact Store (C2): the per-tenant,
// per-job on-disk hierarchy and atomic, idempotent writes of spreadsheets,
// JSON checkpoints, and probe screenshots.
package artifact

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ProgressStatus is the per-item state recorded in check_progress.json.
type ProgressStatus string

const (
	ProgressOK     ProgressStatus = "ok"
	ProgressFailed ProgressStatus = "failed"
	ProgressWarned ProgressStatus = "warned"
)

// ProgressEntry is one item's checkpoint record.
type ProgressEntry struct {
	Status      ProgressStatus `json:"status"`
	Stage4Epoch int64          `json:"stage4_epoch"`
}

// Progress maps item_id to its checkpoint entry.
type Progress map[string]ProgressEntry

// Store owns a tenant root filesystem tree and provides atomic writes under
// it. A Store is safe for concurrent use across jobs, since each job writes
// only under its own folder_path.
type Store struct {
	root string // configured storage_root
}

// NewStore creates an artifact Store rooted at the given storage path.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// TenantRoot returns {storage_root}/{tenant_id}.
func (s *Store) TenantRoot(tenantID int64) string {
	return filepath.Join(s.root, fmt.Sprintf("%d", tenantID))
}

// TenantEmodalRoot returns the tenant's master-mirror directory.
func (s *Store) TenantEmodalRoot(tenantID int64) string {
	return filepath.Join(s.TenantRoot(tenantID), "emodal")
}

// JobFolder returns {tenant_root}/emodal/queries/{query_id}.
func (s *Store) JobFolder(tenantID int64, queryID string) string {
	return filepath.Join(s.TenantEmodalRoot(tenantID), "queries", queryID)
}

func (s *Store) responsesDir(tenantID int64, queryID string) string {
	return filepath.Join(s.JobFolder(tenantID, queryID), "containers_checking_attempts", "responses")
}

func (s *Store) screenshotsDir(tenantID int64, queryID string) string {
	return filepath.Join(s.JobFolder(tenantID, queryID), "containers_checking_attempts", "screenshots")
}

// EnsureJobDirs creates the job root and its containers_checking_attempts
// subtree. Idempotent: safe to call repeatedly for the same job.
func (s *Store) EnsureJobDirs(tenantID int64, queryID string) error {
	for _, dir := range []string{
		s.JobFolder(tenantID, queryID),
		s.responsesDir(tenantID, queryID),
		s.screenshotsDir(tenantID, queryID),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// AllContainersPath returns the job-scoped raw listing path from stage 1.
func (s *Store) AllContainersPath(tenantID int64, queryID string) string {
	return filepath.Join(s.JobFolder(tenantID, queryID), "all_containers.xlsx")
}

// FilteredContainersPath returns the job-scoped filtered/enriched table path.
func (s *Store) FilteredContainersPath(tenantID int64, queryID string) string {
	return filepath.Join(s.JobFolder(tenantID, queryID), "filtered_containers.xlsx")
}

// AllAppointmentsPath returns the job-scoped appointments listing path from stage 5.
func (s *Store) AllAppointmentsPath(tenantID int64, queryID string) string {
	return filepath.Join(s.JobFolder(tenantID, queryID), "all_appointments.xlsx")
}

// MasterContainersPath returns the tenant-level mirror of all_containers.xlsx.
func (s *Store) MasterContainersPath(tenantID int64) string {
	return filepath.Join(s.TenantEmodalRoot(tenantID), "all_containers.xlsx")
}

// MasterAppointmentsPath returns the tenant-level mirror of all_appointments.xlsx.
func (s *Store) MasterAppointmentsPath(tenantID int64) string {
	return filepath.Join(s.TenantEmodalRoot(tenantID), "all_appointments.xlsx")
}

func (s *Store) progressPath(tenantID int64, queryID string) string {
	return filepath.Join(s.JobFolder(tenantID, queryID), "check_progress.json")
}

// WriteSpreadsheet atomically replaces the xlsx file at path with table's
// contents: encode to a temp file in the same directory, fsync, then rename.
func (s *Store) WriteSpreadsheet(path string, table *Table) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*.xlsx")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	tmp.Close() // encodeTable opens its own handle via excelize.SaveAs

	if err := encodeTable(tmpPath, table); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := fsyncPath(tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming %s to %s: %w", tmpPath, path, err)
	}
	return nil
}

// ReadSpreadsheet loads the table at path.
func (s *Store) ReadSpreadsheet(path string) (*Table, error) {
	return decodeTable(path)
}

// WriteSpreadsheetBytes atomically replaces path with already-encoded xlsx
// bytes, used when a listing is downloaded directly from the upstream
// rather than built from a Table in memory.
func (s *Store) WriteSpreadsheetBytes(path string, data []byte) error {
	return s.writeBytesAtomic(path, data)
}

// MirrorContainers overwrites the tenant master mirror with the job's
// all_containers.xlsx contents. Every job overwrites the mirror (see the
// Open Question decisions in SPEC_FULL.md §9 on mirror overwrite policy).
func (s *Store) MirrorContainers(tenantID int64, queryID string) error {
	return s.copyFile(s.AllContainersPath(tenantID, queryID), s.MasterContainersPath(tenantID))
}

// MirrorAppointments overwrites the tenant master mirror with the job's
// all_appointments.xlsx contents.
func (s *Store) MirrorAppointments(tenantID int64, queryID string) error {
	return s.copyFile(s.AllAppointmentsPath(tenantID, queryID), s.MasterAppointmentsPath(tenantID))
}

func (s *Store) copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dst), err)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading %s for mirror: %w", src, err)
	}
	return s.writeBytesAtomic(dst, data)
}

// WriteResponse atomically persists a per-item probe response payload.
func (s *Store) WriteResponse(tenantID int64, queryID, itemID string, epoch int64, data []byte) error {
	path := filepath.Join(s.responsesDir(tenantID, queryID), fmt.Sprintf("%s_%d.json", itemID, epoch))
	return s.writeBytesAtomic(path, data)
}

// WriteScreenshot atomically persists a per-item probe screenshot.
func (s *Store) WriteScreenshot(tenantID int64, queryID, itemID string, epoch int64, data []byte) error {
	path := filepath.Join(s.screenshotsDir(tenantID, queryID), fmt.Sprintf("%s_%d.png", itemID, epoch))
	return s.writeBytesAtomic(path, data)
}

// WriteProgress atomically replaces check_progress.json with the given map.
func (s *Store) WriteProgress(tenantID int64, queryID string, progress Progress) error {
	data, err := json.MarshalIndent(progress, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling progress: %w", err)
	}
	return s.writeBytesAtomic(s.progressPath(tenantID, queryID), data)
}

// ReadProgress loads check_progress.json, returning an empty map if the
// file is missing or unparseable — a checkpoint is an optimization, not a
// source of truth, so corruption never fails the job.
func (s *Store) ReadProgress(tenantID int64, queryID string) Progress {
	data, err := os.ReadFile(s.progressPath(tenantID, queryID))
	if err != nil {
		return Progress{}
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return Progress{}
	}
	return p
}

func (s *Store) writeBytesAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming %s to %s: %w", tmpPath, path, err)
	}
	return nil
}

func fsyncPath(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s for fsync: %w", path, err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	return nil
}

// ZipJob streams the job directory as a zip archive to w. Built lazily on
// each call — no zip is persisted on disk.
func (s *Store) ZipJob(w io.Writer, tenantID int64, queryID string) error {
	root := s.JobFolder(tenantID, queryID)
	zw := zip.NewWriter(w)

	err := filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("computing relative path for %s: %w", path, err)
		}
		entry, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return fmt.Errorf("creating zip entry %s: %w", rel, err)
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		if _, err := io.Copy(entry, f); err != nil {
			return fmt.Errorf("copying %s into zip: %w", path, err)
		}
		return nil
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("zipping job %s: %w", queryID, err)
	}
	return zw.Close()
}

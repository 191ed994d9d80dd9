package ingestion

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/database"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/models"
	"github.com/ThiagoRGoveia/lfs-harmonizer/pkg/checksum"
)

// Processor discovers release files and keeps the release ledger up to date.
type Processor interface {
	ScanForFiles(rootPath string) ([]models.FileInfo, error)
	PrepareJobs(fileInfos []models.FileInfo, runID string) ([]models.ReleaseJob, []models.ReleaseError)
	UpdateReleaseStatus(job models.ReleaseJob, release *models.Release, releaseErrors []models.ReleaseError)
}

// FileProcessor handles the stages before harmonization: discovery,
// checksums, deduplication and ledger records. dbManager may be nil, in which
// case nothing is recorded and only in-run duplicates are skipped.
type FileProcessor struct {
	dbManager  database.DBManager
	extensions map[string]bool
}

func NewFileProcessor(dbManager database.DBManager, extensions []string) *FileProcessor {
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}
	return &FileProcessor{
		dbManager:  dbManager,
		extensions: allowed,
	}
}

// ScanForFiles walks rootPath and returns every release file with an allowed
// extension, sorted by lower-cased name. A file whose name, ignoring case,
// was already found in another directory is skipped.
func (fp *FileProcessor) ScanForFiles(rootPath string) ([]models.FileInfo, error) {
	var fileInfos []models.FileInfo
	seen := make(map[string]string)
	log.Printf("Scanning for release files in: %s", rootPath)

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !fp.extensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		key := strings.ToLower(d.Name())
		if first, ok := seen[key]; ok {
			log.Warnf("Skipping %s: same name as %s", path, first)
			return nil
		}
		seen[key] = path

		fileInfos = append(fileInfos, models.FileInfo{Path: path, Name: d.Name()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking directory %s: %w", rootPath, err)
	}

	sort.SliceStable(fileInfos, func(i, j int) bool {
		a, b := strings.ToLower(fileInfos[i].Name), strings.ToLower(fileInfos[j].Name)
		if a != b {
			return a < b
		}
		return strings.ToLower(fileInfos[i].Path) < strings.ToLower(fileInfos[j].Path)
	})

	log.Printf("Found %d release files to process.", len(fileInfos))
	return fileInfos, nil
}

// PrepareJobs checksums every file and turns it into a job. Files whose
// content already appeared in this run, or that the ledger marks as DONE, are
// skipped. A file that cannot be hashed becomes a release error.
func (fp *FileProcessor) PrepareJobs(fileInfos []models.FileInfo, runID string) ([]models.ReleaseJob, []models.ReleaseError) {
	jobs := make([]models.ReleaseJob, 0, len(fileInfos))
	var releaseErrors []models.ReleaseError
	seen := make(map[string]string)

	for _, fileInfo := range fileInfos {
		sum, err := checksum.GetFileChecksum(fileInfo.Path)
		if err != nil {
			log.Errorf("Failed to calculate checksum for %s: %v. Skipping file.", fileInfo.Path, err)
			releaseErrors = append(releaseErrors, models.ReleaseError{File: fileInfo.Name, Message: "Failed to read release", Err: err})
			continue
		}
		fileInfo.Checksum = sum

		if first, ok := seen[sum]; ok {
			log.Printf("File %s has the same content as %s. Skipping.", fileInfo.Name, first)
			continue
		}
		seen[sum] = fileInfo.Name

		job := models.ReleaseJob{FilePath: fileInfo.Path, Name: fileInfo.Name, Checksum: sum}

		if fp.dbManager != nil {
			isProcessed, err := fp.dbManager.IsReleaseAlreadyProcessed(sum)
			if err != nil {
				log.Errorf("Failed to check if release %s is already processed: %v. Skipping file.", fileInfo.Name, err)
				releaseErrors = append(releaseErrors, models.ReleaseError{File: fileInfo.Name, Message: "Failed to check release ledger", Err: err})
				continue
			}
			if isProcessed {
				log.Printf("Release %s (checksum: %s) has already been processed. Skipping.", fileInfo.Name, sum)
				continue
			}

			releaseID, err := fp.dbManager.InsertReleaseRecord(fileInfo.Name, time.Now(), database.RELEASE_STATUS_PROCESSING, sum, runID)
			if err != nil {
				log.Errorf("Failed to insert release record for %s: %v. Skipping file.", fileInfo.Name, err)
				releaseErrors = append(releaseErrors, models.ReleaseError{File: fileInfo.Name, Message: "Failed to record release", Err: err})
				continue
			}
			job.ReleaseID = releaseID
		}

		jobs = append(jobs, job)
	}

	return jobs, releaseErrors
}

// UpdateReleaseStatus closes the ledger record of a job: DONE with the
// detected year and month, or FAILED with its errors.
func (fp *FileProcessor) UpdateReleaseStatus(job models.ReleaseJob, release *models.Release, releaseErrors []models.ReleaseError) {
	if fp.dbManager == nil || job.ReleaseID == 0 {
		return
	}

	status := database.RELEASE_STATUS_DONE
	if len(releaseErrors) > 0 || release == nil {
		status = database.RELEASE_STATUS_FAILED
	}

	var year, month *int
	var errs any
	if release != nil {
		y := release.Year
		year = &y
		month = release.Month
	}
	if len(releaseErrors) > 0 {
		errs = releaseErrors
	}

	if err := fp.dbManager.UpdateReleaseStatus(job.ReleaseID, status, year, month, errs); err != nil {
		log.Errorf("Failed to update status for release %s (ID: %d): %v", job.Name, job.ReleaseID, err)
	}
}

package experience

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// FileStore persists experiences as JSON documents on disk, one file for
// entry experiences and one for exit experiences. Saves rewrite the whole
// document; at the volumes a single trading account produces this is cheap
// and keeps the files human-inspectable.
type FileStore struct {
	mu       sync.Mutex
	path     string
	exitPath string
}

// NewFileStore creates a file-backed persistence layer. Files are created on
// first save; a missing file on load is treated as an empty history.
func NewFileStore(path, exitPath string) *FileStore {
	return &FileStore{path: path, exitPath: exitPath}
}

type experienceDocument struct {
	Experiences []Experience `json:"experiences"`
	SavedAt     time.Time    `json:"saved_at"`
}

type exitExperienceDocument struct {
	Experiences []ExitExperience `json:"exit_experiences"`
	SavedAt     time.Time        `json:"saved_at"`
}

// LoadExperiences reads the full entry-experience history.
func (f *FileStore) LoadExperiences() ([]Experience, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read experience file: %w", err)
	}

	var doc experienceDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse experience file: %w", err)
	}
	return doc.Experiences, nil
}

// SaveExperiences writes the full entry-experience history.
func (f *FileStore) SaveExperiences(experiences []Experience) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc := experienceDocument{Experiences: experiences, SavedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal experiences: %w", err)
	}

	return writeFileAtomic(f.path, data)
}

// LoadExitExperiences reads the full exit-experience history.
func (f *FileStore) LoadExitExperiences() ([]ExitExperience, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.exitPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read exit experience file: %w", err)
	}

	var doc exitExperienceDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse exit experience file: %w", err)
	}
	return doc.Experiences, nil
}

// SaveExitExperiences writes the full exit-experience history.
func (f *FileStore) SaveExitExperiences(records []ExitExperience) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc := exitExperienceDocument{Experiences: records, SavedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal exit experiences: %w", err)
	}

	return writeFileAtomic(f.exitPath, data)
}

// writeFileAtomic writes via a temp file and rename so a crash mid-save
// never truncates the history.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"errors"
	"fmt"
	"time"
)

// Performance holds the rotation, eligibility and retention thresholds
// for one feature directory.
type Performance struct {
	// MaxFileSize closes a batch once appending the next record would
	// push it past this many bytes.
	MaxFileSize int64 `yaml:"max_file_size"`

	// MaxDirectorySize bounds the directory. Before a new batch is
	// created, the oldest batches are purged until the total fits.
	MaxDirectorySize int64 `yaml:"max_directory_size"`

	// MaxFileAgeForWrite closes a batch this long after its creation.
	MaxFileAgeForWrite time.Duration `yaml:"max_file_age_for_write"`

	// MinFileAgeForRead is the settle age: a batch younger than this
	// is never handed to the uploader. Keep it above
	// MaxFileAgeForWrite so a batch cannot be read while it still
	// accepts appends.
	MinFileAgeForRead time.Duration `yaml:"min_file_age_for_read"`

	// MaxFileAgeForRead expires batches that could not be delivered in
	// time. Older batches are deleted instead of uploaded.
	MaxFileAgeForRead time.Duration `yaml:"max_file_age_for_read"`

	// MaxObjectsInFile closes a batch after this many records.
	MaxObjectsInFile int `yaml:"max_objects_in_file"`

	// MaxObjectSize rejects any single encoded record larger than this.
	MaxObjectSize int64 `yaml:"max_object_size"`

	// MinFreeDiskSpace refuses writes while the filesystem has less
	// than this many bytes available. Zero disables the check.
	MinFreeDiskSpace int64 `yaml:"min_free_disk_space"`
}

// BatchSize selects how long batches stay open, trading request count
// against delivery latency.
type BatchSize string

const (
	BatchSmall  BatchSize = "small"
	BatchMedium BatchSize = "medium"
	BatchLarge  BatchSize = "large"
)

// MeanFileAge is the nominal lifetime of an open batch for this size.
func (size BatchSize) MeanFileAge() (time.Duration, error) {
	switch size {
	case BatchSmall:
		return 3 * time.Second, nil
	case BatchMedium:
		return 10 * time.Second, nil
	case BatchLarge:
		return 35 * time.Second, nil
	default:
		return 0, fmt.Errorf("unknown batch size %q (want small, medium or large)", size)
	}
}

// PerformanceFor returns the preset thresholds for a batch size. The
// write window closes just before the mean age and the read window
// opens just after it, so a batch is never both writable and readable.
func PerformanceFor(size BatchSize) (Performance, error) {
	meanAge, err := size.MeanFileAge()
	if err != nil {
		return Performance{}, err
	}
	return Performance{
		MaxFileSize:        4 << 20,
		MaxDirectorySize:   512 << 20,
		MaxFileAgeForWrite: scale(meanAge, 0.95),
		MinFileAgeForRead:  scale(meanAge, 1.05),
		MaxFileAgeForRead:  18 * time.Hour,
		MaxObjectsInFile:   500,
		MaxObjectSize:      512 << 10,
		MinFreeDiskSpace:   16 << 20,
	}, nil
}

func scale(duration time.Duration, factor float64) time.Duration {
	return time.Duration(float64(duration) * factor)
}

// Validate reports every threshold that cannot work.
func (p Performance) Validate() error {
	var errs []error
	if p.MaxFileSize <= 0 {
		errs = append(errs, errors.New("max_file_size must be positive"))
	}
	if p.MaxObjectSize <= 0 {
		errs = append(errs, errors.New("max_object_size must be positive"))
	}
	if p.MaxObjectSize > p.MaxFileSize {
		errs = append(errs, fmt.Errorf("max_object_size (%d) exceeds max_file_size (%d)", p.MaxObjectSize, p.MaxFileSize))
	}
	if p.MaxDirectorySize < 0 {
		errs = append(errs, errors.New("max_directory_size must not be negative"))
	}
	if p.MaxObjectsInFile <= 0 {
		errs = append(errs, errors.New("max_objects_in_file must be positive"))
	}
	if p.MaxFileAgeForWrite <= 0 {
		errs = append(errs, errors.New("max_file_age_for_write must be positive"))
	}
	if p.MinFileAgeForRead < p.MaxFileAgeForWrite {
		errs = append(errs, fmt.Errorf("min_file_age_for_read (%v) is shorter than max_file_age_for_write (%v)", p.MinFileAgeForRead, p.MaxFileAgeForWrite))
	}
	if p.MaxFileAgeForRead <= p.MinFileAgeForRead {
		errs = append(errs, fmt.Errorf("max_file_age_for_read (%v) must exceed min_file_age_for_read (%v)", p.MaxFileAgeForRead, p.MinFileAgeForRead))
	}
	if p.MinFreeDiskSpace < 0 {
		errs = append(errs, errors.New("min_free_disk_space must not be negative"))
	}
	return errors.Join(errs...)
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/pagesweep/pkg/vfs"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks struct tags first, then the rules that span fields.
// It does not modify cfg.
func Validate(cfg *Config) error {
	if err := getValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}

	var errs []error
	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
	}
	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.Endpoint == "" {
		errs = append(errs, errors.New("telemetry.profiling.endpoint is required when profiling is enabled"))
	}

	seen := make(map[string]bool, len(cfg.Filesystems))
	for i, fs := range cfg.Filesystems {
		where := fmt.Sprintf("filesystems[%d] (%s)", i, fs.Name)
		if seen[fs.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate filesystem name", where))
		}
		seen[fs.Name] = true

		if fs.PageSize != 0 && fs.PageSize < vfs.MinPageSize {
			errs = append(errs, fmt.Errorf("%s: page_size %d is below the minimum of %d", where, fs.PageSize, vfs.MinPageSize))
		}
		if err := validateStore(fs.Store); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", where, err))
		}
	}
	return errors.Join(errs...)
}

func validateStore(cfg StoreConfig) error {
	switch cfg.Type {
	case "badger":
		if !cfg.Badger.InMemory && cfg.Badger.Path == "" {
			return errors.New("store.badger.path is required unless in_memory is set")
		}
	case "s3":
		if cfg.S3.Bucket == "" {
			return errors.New("store.s3.bucket is required")
		}
		if (cfg.S3.AccessKeyID == "") != (cfg.S3.SecretAccessKey == "") {
			return errors.New("store.s3.access_key_id and secret_access_key must be set together")
		}
	}
	return nil
}

// formatValidationErrors renders each field error on one line, keeping the
// failing tag visible, e.g. "Config.Logging.Level: failed 'oneof' (DEBUG ...)".
func formatValidationErrors(verrs validator.ValidationErrors) error {
	lines := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		line := fmt.Sprintf("%s: failed '%s'", fe.Namespace(), fe.Tag())
		if p := fe.Param(); p != "" {
			line += fmt.Sprintf(" (%s)", p)
		}
		line += fmt.Sprintf(", got %v", fe.Value())
		lines = append(lines, line)
	}
	return errors.New(strings.Join(lines, "; "))
}

package usecase

import (
	"fmt"
	"regexp"

	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
)

var indexPathRegex = regexp.MustCompile(`^[A-Za-z0-9_]+(\.[A-Za-z0-9_]+)*$`)

// validateGUID rejects empty identifiers
func validateGUID(guid string) error {
	if guid == "" {
		return apperrors.NewValidationError("guid is required")
	}
	return nil
}

// validateAliases rejects empty and repeated aliases
func validateAliases(aliases []string) error {
	seen := make(map[string]struct{}, len(aliases))
	for _, a := range aliases {
		if a == "" {
			return apperrors.NewValidationError("aliases must not be empty")
		}
		if _, dup := seen[a]; dup {
			return apperrors.NewValidationError(fmt.Sprintf("alias %q is listed twice", a))
		}
		seen[a] = struct{}{}
	}
	return nil
}

// validateIndexPath checks a dotted data path
func validateIndexPath(path string) error {
	if !indexPathRegex.MatchString(path) {
		return apperrors.NewValidationError(fmt.Sprintf("invalid index path %q", path))
	}
	return nil
}

// validatePage rejects negative paging values
func validatePage(limit, offset int) error {
	if limit < 0 {
		return apperrors.NewValidationError("limit must not be negative").WithDetail("limit", limit)
	}
	if offset < 0 {
		return apperrors.NewValidationError("offset must not be negative").WithDetail("offset", offset)
	}
	return nil
}

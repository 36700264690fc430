package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/id"
)

// Size limits
const (
	MaxIDLength          = 128
	MaxNameLength        = 256
	MaxDescriptionLength = 2048
	MaxCategoryLength    = 64
	MaxPathLength        = 1024
	MaxContentSize       = 1 << 20 // single file content
	MaxRequestSize       = 8 << 20 // JSON request bodies
)

var (
	// SafeIDPattern allows alphanumeric, hyphens, underscores
	SafeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	// CategoryPattern allows lowercase letters, numbers and hyphens
	CategoryPattern = regexp.MustCompile(`^[a-z0-9-]+$`)
)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if value == "" && !required {
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}
	return nil
}

// ValidateID validates an ID field
func ValidateID(value, fieldName string, required bool) error {
	if err := ValidateString(value, fieldName, 1, MaxIDLength, required); err != nil {
		return err
	}
	if value != "" && !SafeIDPattern.MatchString(value) {
		return fmt.Errorf("%s contains invalid characters (only alphanumeric, hyphens, and underscores allowed)", fieldName)
	}
	return nil
}

// ValidateWorkspaceID checks the ws_<ulid> form
func ValidateWorkspaceID(value string) error {
	if !id.HasPrefix(value, id.WorkspacePrefix) {
		return fmt.Errorf("workspace_id %q is malformed", value)
	}
	return nil
}

// ValidateRunID checks the run_<ulid> form
func ValidateRunID(value string) error {
	if !id.HasPrefix(value, id.RunPrefix) {
		return fmt.Errorf("run_id %q is malformed", value)
	}
	return nil
}

// ValidateName validates a name field
func ValidateName(name, fieldName string) error {
	return ValidateString(name, fieldName, 1, MaxNameLength, true)
}

// ValidateDescription validates a description field
func ValidateDescription(description, fieldName string, required bool) error {
	return ValidateString(description, fieldName, 0, MaxDescriptionLength, required)
}

// ValidateCategory validates a category field
func ValidateCategory(category string, required bool) error {
	if err := ValidateString(category, "category", 0, MaxCategoryLength, required); err != nil {
		return err
	}
	if category != "" && !CategoryPattern.MatchString(category) {
		return fmt.Errorf("category must contain only lowercase letters, numbers, and hyphens")
	}
	return nil
}

// ValidateNodeID validates a slash-separated node path. Empty means the
// tree root when allowRoot is set.
func ValidateNodeID(nodeID, fieldName string, allowRoot bool) error {
	if nodeID == "" {
		if allowRoot {
			return nil
		}
		return fmt.Errorf("%s is required", fieldName)
	}
	return ValidateString(nodeID, fieldName, 1, MaxPathLength, true)
}

// ValidateContent caps a file's content size
func ValidateContent(content string) error {
	if len(content) > MaxContentSize {
		return fmt.Errorf("content size %d bytes exceeds maximum %d bytes", len(content), MaxContentSize)
	}
	return nil
}

package app

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// WorkflowConstraints bound what a user may submit for processing.
type WorkflowConstraints struct {
	TitleMinRunes int
	TitleMaxRunes int
	MaxFileBytes  int64
}

func DefaultWorkflowConstraints() WorkflowConstraints {
	return WorkflowConstraints{
		TitleMinRunes: 1,
		TitleMaxRunes: 100,
		MaxFileBytes:  5 << 20,
	}
}

// Validate checks the form locally. The returned error is a *ValidationError.
func (c WorkflowConstraints) Validate(title string, files []DocumentUpload) error {
	verr := &ValidationError{}
	validateTitle(verr, title, c.TitleMinRunes, c.TitleMaxRunes)

	switch {
	case len(files) == 0:
		verr.add("document", "A document is required.")
	case len(files) > 1:
		verr.add("document", "Upload exactly one document.")
	case files[0].Size <= 0:
		verr.add("document", "The document is empty.")
	case files[0].Size > c.MaxFileBytes:
		verr.add("document", c.fileTooLargeMessage())
	}
	return verr.orNil()
}

// FileTooLarge is the error for an upload rejected before its size is known exactly.
func (c WorkflowConstraints) FileTooLarge() error {
	verr := &ValidationError{}
	verr.add("document", c.fileTooLargeMessage())
	return verr
}

func (c WorkflowConstraints) fileTooLargeMessage() string {
	return fmt.Sprintf("Max file size is %s.", formatBytes(c.MaxFileBytes))
}

type SummaryEditConstraints struct {
	TitleMinRunes int
	TitleMaxRunes int
}

func DefaultSummaryEditConstraints() SummaryEditConstraints {
	return SummaryEditConstraints{TitleMinRunes: 1, TitleMaxRunes: 100}
}

func (c SummaryEditConstraints) Validate(title, content string) error {
	verr := &ValidationError{}
	validateTitle(verr, title, c.TitleMinRunes, c.TitleMaxRunes)
	if strings.TrimSpace(content) == "" {
		verr.add("content", "Content is required.")
	}
	return verr.orNil()
}

func validateTitle(verr *ValidationError, title string, minRunes, maxRunes int) {
	n := utf8.RuneCountInString(strings.TrimSpace(title))
	if minRunes < 1 {
		minRunes = 1
	}
	switch {
	case n == 0:
		verr.add("title", "Title is required.")
	case n < minRunes:
		verr.add("title", fmt.Sprintf("Title must be at least %d characters.", minRunes))
	case n > maxRunes:
		verr.add("title", fmt.Sprintf("Title must be at most %d characters.", maxRunes))
	}
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%dMB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%dKB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

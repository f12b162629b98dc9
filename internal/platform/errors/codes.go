// Package errors provides structured domain errors with localized messages.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Document errors
	CodeDocumentMalformed Code = "DOCUMENT_MALFORMED"
	CodeDocumentKind      Code = "DOCUMENT_INVALID_KIND"

	// Compendium errors
	CodeCompendiumLocked   Code = "COMPENDIUM_LOCKED"
	CodeCompendiumReadOnly Code = "COMPENDIUM_READ_ONLY"

	// Reference data errors
	CodeReferenceDataInvalid   Code = "REFERENCE_DATA_INVALID"
	CodeReferenceRebuildFailed Code = "REFERENCE_REBUILD_FAILED"

	// Version errors
	CodeVersionInvalid Code = "VERSION_INVALID"

	// Storage errors
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
)

// ExitCode maps domain codes to process exit codes for the command line.
func (c Code) ExitCode() int {
	switch c {
	case CodeDocumentMalformed, CodeDocumentKind, CodeReferenceDataInvalid, CodeVersionInvalid:
		return 2
	case CodeCompendiumLocked, CodeCompendiumReadOnly:
		return 3
	case CodeNotFound, CodeAlreadyExists:
		return 4
	case CodeReferenceRebuildFailed:
		return 5
	default:
		return 1
	}
}

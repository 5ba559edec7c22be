package model

// Operation is a document operation gated by a minimum permission level.
type Operation string

const (
	OpUploadVersion Operation = "upload-version"
	OpSign          Operation = "sign"
	OpAnnotate      Operation = "annotate"
	OpShare         Operation = "share"
	OpDelete        Operation = "delete"
	OpDownload      Operation = "download"
	OpRead          Operation = "read"
)

const (
	SuffixSigned    = "-signed"
	SuffixAnnotated = "-annotated"
)

// requiredLevels is fixed policy. Changing an entry changes who may do what.
var requiredLevels = map[Operation]Level{
	OpUploadVersion: LevelEditor,
	OpSign:          LevelEditor,
	OpAnnotate:      LevelEditor,
	OpShare:         LevelOwner,
	OpDelete:        LevelOwner,
	OpDownload:      LevelViewer,
	OpRead:          LevelViewer,
}

// RequiredLevel returns the minimum level needed to perform o.
func (o Operation) RequiredLevel() (Level, bool) {
	level, ok := requiredLevels[o]
	return level, ok
}

// OperationForSuffix maps a version label suffix to the operation producing it.
func OperationForSuffix(suffix string) Operation {
	switch suffix {
	case SuffixSigned:
		return OpSign
	case SuffixAnnotated:
		return OpAnnotate
	default:
		return OpUploadVersion
	}
}

// SuffixForKind maps the kind of a new version (as sent by clients) to its label suffix.
func SuffixForKind(kind string) (string, bool) {
	switch kind {
	case "", "upload":
		return "", true
	case "signed", "sign":
		return SuffixSigned, true
	case "annotated", "annotate":
		return SuffixAnnotated, true
	default:
		return "", false
	}
}

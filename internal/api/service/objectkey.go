package service

import (
	"fmt"
	"regexp"
	"strings"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// BuildResultObjectKey returns the object key of the idx-th result file of a
// job: jobs/<jobID>/<idx:03d>-<objectID>-<safe name>.
func BuildResultObjectKey(jobID string, idx int, objectID, filename string) string {
	return fmt.Sprintf("jobs/%s/%03d-%s-%s", jobID, idx, objectID, sanitizeFilename(filename, idx))
}

// sanitizeFilename keeps the final path segment of a client filename and
// reduces it to [a-zA-Z0-9._-].
func sanitizeFilename(filename string, idx int) string {
	name := filename
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)
	name = unsafeFilenameChars.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	if name == "" || name == "." || name == ".." {
		return fmt.Sprintf("file-%d", idx)
	}
	return name
}

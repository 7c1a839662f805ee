package backup

import (
	"fmt"
	"path"
	"strings"
)

// fallbackFolder holds items whose creation time is unknown.
const fallbackFolder = "other"

// archiveFolder derives the YYYY/MM folder from an RFC 3339 creation
// time; anything unparseable lands in the fallback folder.
func archiveFolder(creationTime string) string {
	parts := strings.SplitN(creationTime, "-", 3)
	if len(parts) < 2 || len(parts[0]) != 4 {
		return fallbackFolder
	}
	return path.Join(parts[0], parts[1])
}

// uniqueFilename places originalFilename under the item's archive
// folder, appending -2, -3, … before the extension until taken reports
// the relative path free. taken covers both the filesystem and rows
// already claimed in the database.
func uniqueFilename(creationTime, originalFilename string, taken func(rel string) bool) string {
	folder := archiveFolder(creationTime)
	name := originalFilename
	for i := 2; taken(path.Join(folder, name)); i++ {
		ext := path.Ext(originalFilename)
		base := strings.TrimSuffix(originalFilename, ext)
		name = fmt.Sprintf("%s-%d%s", base, i, ext)
	}
	return path.Join(folder, name)
}

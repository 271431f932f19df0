package upload

import (
	"fmt"
	"strings"

	"github.com/tomasbasham/drive-uploader/internal/storage"
)

// SuccessMessage summarises uploaded files: a single line for one file, a
// bulleted list for several.
func SuccessMessage(results []storage.UploadResult) string {
	if len(results) == 1 {
		return fmt.Sprintf("File uploaded: %s\n%s", results[0].Name, results[0].Link)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d files uploaded:", len(results))
	for _, r := range results {
		fmt.Fprintf(&b, "\n• %s: %s", r.Name, r.Link)
	}
	return b.String()
}

// FailureMessage carries the error text of a failed request.
func FailureMessage(err error) string {
	return "Upload failed: " + err.Error()
}

// Package docnum generates human readable document numbers such as
// REQ-20261014-3F9A1C7B.
package docnum

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	PrefixRequest = "REQ"
	PrefixGRN     = "GRN"
	PrefixBatch   = "B"
	PrefixIssue   = "ISS"
	PrefixMRN     = "MRN"
)

func New(prefix string, at time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("%s-%s-%s", prefix, at.Format("20060102"), id[:8])
}

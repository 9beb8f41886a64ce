package batches

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

var completionCodeSpace = big.NewInt(1_000_000_000)

// newCompletionCode draws a uniformly random 9-digit pickup code.
func newCompletionCode() (string, error) {
	n, err := rand.Int(rand.Reader, completionCodeSpace)
	if err != nil {
		return "", fmt.Errorf("draw completion code: %w", err)
	}
	return fmt.Sprintf("%09d", n.Int64()), nil
}

// newBatchNumber builds the human-facing batch label shown at the counter.
// It is derived from the batch key and date for traceability; uniqueness is
// the open-batch constraint's job, not the label's.
func newBatchNumber(buyerID uuid.UUID, showID *uuid.UUID, now time.Time) string {
	show := "noshow"
	if showID != nil {
		show = idFragment(*showID)
	}
	return fmt.Sprintf("B-%s-%s-%s", now.UTC().Format("20060102"), show, idFragment(buyerID))
}

func idFragment(id uuid.UUID) string {
	return strings.SplitN(id.String(), "-", 2)[0]
}

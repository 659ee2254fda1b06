package runner

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxClientOrderIDLength is the maximum length allowed by Binance
const MaxClientOrderIDLength = 36

var (
	ErrInvalidClientOrderID = errors.New("invalid client order ID format")

	clientOrderIDPattern = regexp.MustCompile(`^ATS-\d{2}[A-Z]{3}-[0-9a-f]{8}-L[1-3]$`)
)

// NewClientOrderID builds an id of the form ATS-[DDMMM]-[8HEX]-L[n], for
// example "ATS-15JAN-a3f7c2e9-L1". All legs of one ladder share the hex part.
func NewClientOrderID(now time.Time, ladderID string, leg int) string {
	date := strings.ToUpper(now.UTC().Format("02Jan"))
	return fmt.Sprintf("ATS-%s-%s-L%d", date, ladderID, leg)
}

// NewLadderID returns the random part shared by the legs of one ladder.
func NewLadderID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// ParseClientOrderID returns the ladder id and leg number of an id built by
// NewClientOrderID.
func ParseClientOrderID(id string) (ladderID string, leg int, err error) {
	if len(id) > MaxClientOrderIDLength || !clientOrderIDPattern.MatchString(id) {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidClientOrderID, id)
	}
	parts := strings.Split(id, "-")
	return parts[2], int(parts[3][1] - '0'), nil
}

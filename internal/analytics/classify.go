package analytics

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"
)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// pq error classes that indicate the store itself is unhealthy rather than
// the data being bad. Class 08 is connection exceptions, 53 insufficient
// resources, 57 operator intervention (includes 57P01 admin shutdown), 58
// system errors.
var transientPqClasses = map[string]struct{}{
	"08": {},
	"53": {},
	"57": {},
	"58": {},
}

// isTransient reports whether a storage error can be retried without
// re-running the analysis. Connectivity and timeout failures are transient;
// constraint violations and malformed data are not.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		_, ok := transientPqClasses[string(pqErr.Code.Class())]
		return ok
	}

	return false
}

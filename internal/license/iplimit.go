package license

import (
	"time"

	"licensegate/pkg/contracts/domain"
)

// ipLimitReached reports whether ip is a new address on a license whose
// distinct-IP evidence since the window start already meets the limit
func ipLimitReached(l *domain.License, ip string, since time.Time) bool {
	if l.IPLimit == nil {
		return false
	}

	distinct := make(map[string]struct{}, len(l.RequestLogs))
	for _, log := range l.RequestLogs {
		if log.IPAddress == "" || log.CreatedAt.Before(since) {
			continue
		}
		distinct[log.IPAddress] = struct{}{}
	}

	if _, seen := distinct[ip]; seen {
		return false
	}
	return len(distinct) >= *l.IPLimit
}

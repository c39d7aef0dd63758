package license

import (
	"time"

	"licensegate/pkg/contracts/domain"
)

// SeatTracker decides seat admission from device heartbeats. A device holds
// a seat while its last beat is within the team device timeout.
type SeatTracker struct{}

// ActiveDevices returns the devices holding a seat at now
func (SeatTracker) ActiveDevices(devices []domain.Device, timeout time.Duration, now time.Time) []domain.Device {
	active := make([]domain.Device, 0, len(devices))
	for _, d := range devices {
		if now.Sub(d.LastBeatAt) <= timeout {
			active = append(active, d)
		}
	}
	return active
}

// Admit reports whether deviceIdentifier may take or refresh a seat. A device
// already active is always admitted, even past the limit.
func (t SeatTracker) Admit(l *domain.License, deviceIdentifier string, timeout time.Duration, now time.Time) bool {
	if l.Seats == nil {
		return true
	}

	active := t.ActiveDevices(l.Devices, timeout, now)
	for _, d := range active {
		if deviceIdentifier != "" && d.DeviceIdentifier == deviceIdentifier {
			return true
		}
	}
	return len(active) < *l.Seats
}

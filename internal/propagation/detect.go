// Package propagation turns a confirming change of an information record into
// a notification and delivers it to the downstream services.
package propagation

import "infosync/internal/information/models"

// ShouldPropagate reports whether persisting next over prev starts a
// propagation episode. prev is nil when next is being created.
//
// Only a record that becomes confirmed propagates: created confirmed, or
// moved from unconfirmed to confirmed. Callers must read prev and write next
// in one transaction so two writers cannot both observe the transition.
func ShouldPropagate(prev *models.InformationRecord, next models.InformationRecord) bool {
	if !next.Confirmed {
		return false
	}
	return prev == nil || !prev.Confirmed
}

package conditioning

import (
	"github.com/pulsetrack/conditioning/pkg/common/apperrors"
	"github.com/pulsetrack/conditioning/pkg/common/constants"
	"github.com/pulsetrack/conditioning/pkg/common/structs"
)

// authorize is the single access-control gate of the core. Admin callers may
// act on any user; everyone else only on themselves.
func authorize(caller structs.Caller, targetUserID string) error {
	if caller.HasRole(constants.RoleAdmin) {
		return nil
	}
	if caller.UserID != "" && caller.UserID == targetUserID {
		return nil
	}
	return apperrors.Unauthorizedf("caller %s cannot act on user %s", caller.UserID, targetUserID)
}

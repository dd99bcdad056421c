package errors

import "errors"

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 认证相关错误。
var (
	Unauthorized    = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized"}
	NotARider       = Definition{Code: "NOT_A_RIDER", Message: "Account is not a rider"}
	InvalidRiderID  = Definition{Code: "INVALID_RIDER_ID", Message: "Invalid rider ID format"}
	TooManyRequests = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests"}
)

// 定位同步模块错误。
var (
	InvalidBatch     = Definition{Code: "INVALID_BATCH", Message: "Batch is empty or malformed"}
	BatchTooLarge    = Definition{Code: "BATCH_TOO_LARGE", Message: "Batch exceeds maximum sample count"}
	DuplicateInBatch = Definition{Code: "DUPLICATE_IN_BATCH", Message: "Duplicate mobile_id within batch"}
	BatchNotFound    = Definition{Code: "BATCH_NOT_FOUND", Message: "Sync batch not found"}
)

// 工作会话与收益模块错误。
var (
	SessionNotFound     = Definition{Code: "SESSION_NOT_FOUND", Message: "Work session not found"}
	NoActiveAssignment  = Definition{Code: "NO_ACTIVE_ASSIGNMENT", Message: "Rider has no active zone assignment"}
	EarningsUnknownRate = Definition{Code: "EARNINGS_UNKNOWN_RATE", Message: "Unknown earnings rate kind"}
)

// 围栏与容量分配模块错误。
var (
	GeofenceNotFound  = Definition{Code: "GEOFENCE_NOT_FOUND", Message: "Geofence not found"}
	ZoneInactive      = Definition{Code: "ZONE_INACTIVE", Message: "Zone is not active"}
	ZoneAtCapacity    = Definition{Code: "ZONE_AT_CAPACITY", Message: "Zone is at rider capacity"}
	NoRemainingBudget = Definition{Code: "NO_REMAINING_BUDGET", Message: "Zone has no remaining budget"}
	AlreadyAssigned   = Definition{Code: "ALREADY_ASSIGNED", Message: "Rider already assigned to this zone"}
	NoEligibleZone    = Definition{Code: "NO_ELIGIBLE_ZONE", Message: "No eligible zone available"}
	OutOfZone         = Definition{Code: "OUT_OF_ZONE", Message: "Location is outside the zone"}
)

// 照片验证模块错误。
var (
	InvalidImage         = Definition{Code: "INVALID_IMAGE", Message: "Image failed basic validation"}
	VerificationNotFound = Definition{Code: "VERIFICATION_NOT_FOUND", Message: "Verification request not found"}
	VerificationExpired  = Definition{Code: "VERIFICATION_EXPIRED", Message: "Verification response window has passed"}
	VerificationPending  = Definition{Code: "VERIFICATION_PENDING", Message: "A verification request is already pending"}
	CooldownActive       = Definition{Code: "COOLDOWN_ACTIVE", Message: "Action is in cooldown"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	Unauthorized.Code:         Unauthorized,
	NotARider.Code:            NotARider,
	InvalidRiderID.Code:       InvalidRiderID,
	TooManyRequests.Code:      TooManyRequests,
	InvalidBatch.Code:         InvalidBatch,
	BatchTooLarge.Code:        BatchTooLarge,
	DuplicateInBatch.Code:     DuplicateInBatch,
	BatchNotFound.Code:        BatchNotFound,
	SessionNotFound.Code:      SessionNotFound,
	NoActiveAssignment.Code:   NoActiveAssignment,
	EarningsUnknownRate.Code:  EarningsUnknownRate,
	GeofenceNotFound.Code:     GeofenceNotFound,
	ZoneInactive.Code:         ZoneInactive,
	ZoneAtCapacity.Code:       ZoneAtCapacity,
	NoRemainingBudget.Code:    NoRemainingBudget,
	AlreadyAssigned.Code:      AlreadyAssigned,
	NoEligibleZone.Code:       NoEligibleZone,
	OutOfZone.Code:            OutOfZone,
	InvalidImage.Code:         InvalidImage,
	VerificationNotFound.Code: VerificationNotFound,
	VerificationExpired.Code:  VerificationExpired,
	VerificationPending.Code:  VerificationPending,
	CooldownActive.Code:       CooldownActive,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// token 包使用的哨兵错误。
var (
	ErrTokenGeneratorNotInitialized = errors.New("token generator not initialized")
	ErrUnexpectedSigningMethod      = errors.New("unexpected signing method")
	ErrInvalidToken                 = errors.New("invalid token")
	ErrInvalidTokenClaims           = errors.New("invalid token claims")
	ErrInvalidTokenType             = errors.New("invalid token type")
	ErrUserIDNotFound               = errors.New("user id not found in token")
)

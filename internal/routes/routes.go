package routes

const (
	// Health
	Health = "/health"

	// Bot-facing endpoints
	VerifyRequests     = "/verify/v1/requests"
	VerifyRequestByID  = "/verify/v1/requests/{id}"
	VerifyUserRequests = "/verify/v1/users/{user_id}/requests"
	VerifyUserQuota    = "/verify/v1/users/{user_id}/quota"

	// Admin endpoints (approval worker / operators)
	AdminApproveRequest = "/verify/v1/admin/requests/{id}/approve"
	AdminDenyRequest    = "/verify/v1/admin/requests/{id}/deny"
	AdminCleanup        = "/verify/v1/admin/cleanup"
)

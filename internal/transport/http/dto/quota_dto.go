package dto

type PostQuotaResponse struct {
	IsMember  bool `json:"is_member"`
	PostCount int  `json:"post_count"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
	CanPost   bool `json:"can_post"`
}

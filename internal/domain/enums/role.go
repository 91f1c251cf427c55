package enums

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const BadgeGold = "gold"

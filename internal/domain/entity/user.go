package entity

// User is a platform account that may initiate or act on approvals
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	RealName    string `json:"real_name"`
	LarkOpenID  string `json:"lark_open_id,omitempty"`
	IsSuperuser bool   `json:"is_superuser"`
	IsActive    bool   `json:"is_active"`
}

// Role is a named capability group users can hold
type Role struct {
	ID       int64  `json:"id"`
	RoleCode string `json:"role_code"`
	RoleName string `json:"role_name"`
}
